// SPDX-License-Identifier: MPL-2.0

package update

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/mod/semver"

	"github.com/invowk/addonctl/internal/download"
	"github.com/invowk/addonctl/pkg/addon"
)

type (
	// HostUpdate is a host release newer than the running host.
	HostUpdate struct {
		Release *addon.Release
		// Path is where the release archive is (or will be) stored.
		Path string
		// Downloaded is true when the archive is already present.
		Downloaded bool
	}

	pendingRelease struct {
		handle download.Handle
		update *HostUpdate
	}
)

// CheckHost compares the release advertised by remote with the running host.
// It never recommends a downgrade or the same version.
func (c *Coordinator) CheckHost(remote *addon.Catalog) (*HostUpdate, bool) {
	rel := remote.Release()
	if rel == nil || rel.Version == nil {
		return nil, false
	}
	latest, running := semverTag(rel.Version), semverTag(c.deps.Host.Version)
	if !semver.IsValid(latest) || !semver.IsValid(running) {
		c.logger.Warn("cannot compare host versions", "latest", rel.Version, "running", c.deps.Host.Version)
		return nil, false
	}
	if semver.Compare(latest, running) <= 0 {
		return nil, false
	}

	u := &HostUpdate{Release: rel}
	if c.opts.ArchiveDir != "" && rel.FileName != "" {
		u.Path = filepath.Join(c.opts.ArchiveDir, filepath.Base(rel.FileName))
		if info, err := os.Stat(u.Path); err == nil && !info.IsDir() && info.Size() >= rel.Size {
			u.Downloaded = true
		}
	}
	return u, true
}

// DownloadRelease schedules the release archive of u into the archive
// directory. Nothing is scheduled when the archive is already present; the
// relaunch hook then fires at once.
func (c *Coordinator) DownloadRelease(u *HostUpdate) error {
	if u.Downloaded {
		c.deps.Notifier.ReleaseDownloaded(u)
		return nil
	}
	if u.Path == "" {
		return errors.New("no archive directory for the host release")
	}

	// c.release is set before a consumer can take the finished task.
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.deps.Downloads.Schedule(download.Request{
		URL:          u.Release.URL,
		Target:       u.Path,
		ExpectedSize: u.Release.Size,
		ExpectedHash: u.Release.Hash,
		Label:        "release " + u.Release.Version.String(),
	})
	if err != nil {
		return fmt.Errorf("scheduling host release download: %w", err)
	}
	c.release = &pendingRelease{handle: h, update: u}
	return nil
}

// semverTag renders v in the canonical "vMAJOR.MINOR.PATCH[-PRE]" form.
func semverTag(v *addon.Version) string {
	tag := fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		tag += "-" + v.Prerelease
	}
	return tag
}
