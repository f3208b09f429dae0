// SPDX-License-Identifier: MPL-2.0

package update

import (
	"github.com/invowk/addonctl/internal/depcheck"
	"github.com/invowk/addonctl/internal/lifecycle"
	"github.com/invowk/addonctl/pkg/addon"
)

type (
	// Notifier receives the events the coordinator surfaces to the user.
	// Calls may come from any goroutine.
	Notifier interface {
		// HostUpdateAvailable reports a newer host release.
		HostUpdateAvailable(u *HostUpdate)
		// ReleaseDownloaded is the relaunch hook: the release archive of u
		// is present and validated.
		ReleaseDownloaded(u *HostUpdate)
		// UpdatesAvailable reports add-on updates that were not installed
		// automatically, including held ones.
		UpdatesAvailable(cs *depcheck.ChangeSet)
		// NewAddOns reports add-ons published since the last check.
		NewAddOns(added []*addon.AddOn)
		// DownloadFailed reports, once per transfer, a download that did not
		// produce a usable archive.
		DownloadFailed(label string, err error)
		// Applied reports the outcome of installs and removals.
		Applied(report *lifecycle.Report)
	}

	// NopNotifier ignores every event. Embed it to implement a subset.
	NopNotifier struct{}
)

func (NopNotifier) HostUpdateAvailable(*HostUpdate)      {}
func (NopNotifier) ReleaseDownloaded(*HostUpdate)        {}
func (NopNotifier) UpdatesAvailable(*depcheck.ChangeSet) {}
func (NopNotifier) NewAddOns([]*addon.AddOn)             {}
func (NopNotifier) DownloadFailed(string, error)         {}
func (NopNotifier) Applied(*lifecycle.Report)            {}
