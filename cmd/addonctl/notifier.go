// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/invowk/addonctl/internal/depcheck"
	"github.com/invowk/addonctl/internal/lifecycle"
	"github.com/invowk/addonctl/internal/update"
	"github.com/invowk/addonctl/pkg/addon"
)

// consoleNotifier prints coordinator events. Events may arrive from any
// goroutine, so writes are serialized.
type consoleNotifier struct {
	update.NopNotifier

	mu sync.Mutex
	w  io.Writer
}

func (n *consoleNotifier) printf(format string, args ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, format, args...)
}

// HostUpdateAvailable implements update.Notifier.
func (n *consoleNotifier) HostUpdateAvailable(u *update.HostUpdate) {
	msg := fmt.Sprintf("A new host release is available: %s", CmdStyle.Render(u.Release.Version.String()))
	if u.Downloaded {
		msg += SubtitleStyle.Render(" (already downloaded to " + u.Path + ")")
	}
	n.printf("%s\n", WarningStyle.Render("! ")+msg)
	if u.Release.Notes != "" {
		n.printf("  %s\n", SubtitleStyle.Render(u.Release.Notes))
	}
}

// ReleaseDownloaded implements update.Notifier.
func (n *consoleNotifier) ReleaseDownloaded(u *update.HostUpdate) {
	n.printf("%s host release %s downloaded to %s; restart the host to use it\n",
		SuccessStyle.Render("✓"), u.Release.Version, u.Path)
}

// UpdatesAvailable implements update.Notifier.
func (n *consoleNotifier) UpdatesAvailable(cs *depcheck.ChangeSet) {
	n.printf("%s", renderPlan(cs))
}

// NewAddOns implements update.Notifier.
func (n *consoleNotifier) NewAddOns(added []*addon.AddOn) {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render("New add-ons") + "\n")
	for _, a := range added {
		fmt.Fprintf(&sb, "  %s %s %s\n", CmdStyle.Render(a.ID), a.Version, SubtitleStyle.Render(string(a.Maturity)))
	}
	n.printf("%s", sb.String())
}

// DownloadFailed implements update.Notifier.
func (n *consoleNotifier) DownloadFailed(label string, err error) {
	n.printf("%s download of %s failed: %v\n", ErrorStyle.Render("✗"), CmdStyle.Render(label), err)
}

// Applied implements update.Notifier.
func (n *consoleNotifier) Applied(r *lifecycle.Report) {
	var sb strings.Builder
	for _, o := range r.Outcomes {
		if o.OK {
			fmt.Fprintf(&sb, "%s %s %s %s\n", SuccessStyle.Render("✓"), o.Action, CmdStyle.Render(o.AddOn.ID), o.AddOn.Version)
			continue
		}
		fmt.Fprintf(&sb, "%s %s %s %s: %v\n", ErrorStyle.Render("✗"), o.Action, CmdStyle.Render(o.AddOn.ID), o.AddOn.Version, o.Err)
	}
	n.printf("%s", sb.String())
}

// renderPlan describes a change-set: what is installed, updated and removed,
// and what is held back.
func renderPlan(cs *depcheck.ChangeSet) string {
	var sb strings.Builder
	if len(cs.Installs) > 0 {
		sb.WriteString(TitleStyle.Render("Install") + "\n")
		for _, a := range cs.Installs {
			fmt.Fprintf(&sb, "  %s %s\n", CmdStyle.Render(a.ID), a.Version)
		}
	}
	if len(cs.NewVersions) > 0 {
		sb.WriteString(TitleStyle.Render("Update") + "\n")
		for i, a := range cs.NewVersions {
			from := "?"
			if i < len(cs.OldVersions) {
				from = cs.OldVersions[i].Version.String()
			}
			fmt.Fprintf(&sb, "  %s %s → %s\n", CmdStyle.Render(a.ID), from, a.Version)
		}
	}
	if len(cs.Uninstalls) > 0 {
		sb.WriteString(TitleStyle.Render("Uninstall") + "\n")
		for _, a := range cs.Uninstalls {
			fmt.Fprintf(&sb, "  %s %s\n", CmdStyle.Render(a.ID), a.Version)
		}
	}
	if len(cs.Held) > 0 {
		sb.WriteString(WarningStyle.Render("Held back") + "\n")
		for _, h := range cs.Held {
			fmt.Fprintf(&sb, "  %s %s: %v\n", CmdStyle.Render(h.AddOn.ID), h.AddOn.Version, h.Reason)
		}
	}
	if len(cs.Incompatible) > 0 {
		sb.WriteString(WarningStyle.Render("Incompatible with this host") + "\n")
		for _, a := range cs.Incompatible {
			fmt.Fprintf(&sb, "  %s %s\n", CmdStyle.Render(a.ID), a.Version)
		}
	}
	if cs.RequiresNewerHost {
		sb.WriteString(WarningStyle.Render("Some add-ons need a newer host release.") + "\n")
	}
	return sb.String()
}
