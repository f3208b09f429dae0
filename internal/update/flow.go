// SPDX-License-Identifier: MPL-2.0

package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/invowk/addonctl/internal/depcheck"
	"github.com/invowk/addonctl/internal/download"
	"github.com/invowk/addonctl/internal/lifecycle"
	"github.com/invowk/addonctl/pkg/addon"
)

// Result summarizes OnLatest.
type Result struct {
	HostUpdate *HostUpdate
	// Updates is the planned add-on update change-set, if updates were checked.
	Updates *depcheck.ChangeSet
	// Report holds the outcome of updates applied automatically.
	Report    *lifecycle.Report
	NewAddOns []*addon.AddOn
}

// OnLatest processes a freshly fetched catalog: the host release first, then
// add-on updates according to the options, then the add-ons published since
// the last check whose maturity is reported.
func (c *Coordinator) OnLatest(ctx context.Context, remote *addon.Catalog) (*Result, error) {
	res := &Result{Report: &lifecycle.Report{}}

	if u, ok := c.CheckHost(remote); ok {
		res.HostUpdate = u
		c.deps.Notifier.HostUpdateAvailable(u)
		if c.opts.DownloadNewRelease {
			if err := c.DownloadRelease(u); err != nil {
				c.logger.Warn("host release not downloaded", "err", err)
			}
		}
	}

	if c.opts.CheckAddOnUpdates || c.opts.InstallAddOnUpdates || c.opts.InstallScanRules {
		if err := c.processUpdates(ctx, remote, res); err != nil {
			return res, err
		}
	}

	for _, a := range c.NewAddOns(remote) {
		if c.opts.reports(a.Maturity) {
			res.NewAddOns = append(res.NewAddOns, a)
		}
	}
	if len(res.NewAddOns) > 0 {
		c.deps.Notifier.NewAddOns(res.NewAddOns)
	}
	return res, nil
}

func (c *Coordinator) processUpdates(ctx context.Context, remote *addon.Catalog, res *Result) error {
	updated := c.Installed().UpdatedIn(remote)
	cs, err := c.planUpdates(remote, updated, false)
	if err != nil {
		return fmt.Errorf("planning updates: %w", err)
	}
	res.Updates = cs
	if cs.IsEmpty() && len(cs.Held) == 0 && len(cs.Incompatible) == 0 {
		return nil
	}

	var auto *depcheck.ChangeSet
	switch {
	case c.opts.InstallAddOnUpdates:
		auto = cs
	case c.opts.InstallScanRules:
		rules := slices.DeleteFunc(slices.Clone(updated), func(a *addon.AddOn) bool { return !a.IsScanRulesAddOn() })
		if auto, err = c.planUpdates(remote, rules, false); err != nil {
			return fmt.Errorf("planning scan rule updates: %w", err)
		}
	}

	if auto != nil && !auto.IsEmpty() {
		r, err := c.ApplyChanges(ctx, auto)
		if err != nil {
			return err
		}
		res.Report = r
	}
	if auto != cs || len(cs.Held) > 0 || cs.RequiresNewerHost {
		c.deps.Notifier.UpdatesAvailable(cs)
	}
	return nil
}

// NewAddOns returns the add-ons of remote missing from the previous catalog
// snapshot, or from the local catalog when no snapshot exists.
func (c *Coordinator) NewAddOns(remote *addon.Catalog) []*addon.AddOn {
	c.mu.Lock()
	base := c.previous
	c.mu.Unlock()
	if base == nil {
		base = c.Installed()
	}
	return base.NewIn(remote)
}

// InstallLocal installs the add-on archive at path. The archive is copied
// into the archive directory first; a different file already stored under
// the same name is an ErrArchiveConflict. Dependencies are resolved against
// the latest remote catalog and downloaded as needed.
func (c *Coordinator) InstallLocal(ctx context.Context, archive string) (*lifecycle.Report, error) {
	a, err := addon.ReadManifest(archive)
	if err != nil {
		return nil, err
	}
	if err := a.CheckCompatible(c.deps.Host.Version); err != nil {
		return nil, err
	}

	target := archive
	if c.opts.ArchiveDir != "" {
		target = filepath.Join(c.opts.ArchiveDir, filepath.Base(archive))
		if err := copyArchive(archive, target); err != nil {
			return nil, err
		}
	}
	a.LocalPath = target
	a.Status = addon.StatusDownloaded

	candidates := c.Remote().With(a)
	cs, err := c.PlanInstall(candidates, []string{a.ID}, true)
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(cs.Downloads(), func(x *addon.AddOn) bool { return x.ID == a.ID }) {
		return &lifecycle.Report{}, nil
	}
	return c.ApplyChanges(ctx, cs)
}

// copyArchive copies src to dst unless dst already holds the same bytes.
func copyArchive(src, dst string) (err error) {
	srcAbs, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	dstAbs, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	if srcAbs == dstAbs {
		return nil
	}

	if _, statErr := os.Stat(dst); statErr == nil {
		same, err := sameContent(src, dst)
		if err != nil {
			return err
		}
		if !same {
			return fmt.Errorf("%w: %s", ErrArchiveConflict, dst)
		}
		return nil
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		return statErr
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }() // read-only

	out, err := os.CreateTemp(filepath.Dir(dst), ".archive-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(out.Name())
		}
	}()
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(out.Name(), dst)
}

func sameContent(a, b string) (bool, error) {
	da, err := download.FileDigest(a, download.SHA256)
	if err != nil {
		return false, err
	}
	db, err := download.FileDigest(b, download.SHA256)
	if err != nil {
		return false, err
	}
	return da == db, nil
}
