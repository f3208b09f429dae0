// SPDX-License-Identifier: MPL-2.0

package update

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/invowk/addonctl/internal/depcheck"
	"github.com/invowk/addonctl/internal/download"
	"github.com/invowk/addonctl/internal/fetch"
	"github.com/invowk/addonctl/internal/ledger"
	"github.com/invowk/addonctl/internal/lifecycle"
	"github.com/invowk/addonctl/pkg/addon"
)

// manifestWorkers bounds concurrent archive inspections.
const manifestWorkers = 4

type (
	// batch is the download phase of one ApplyChanges call. Its archives
	// are installed together once none is pending.
	batch struct {
		pending map[download.Handle]*addon.AddOn
		ready   []*addon.AddOn
		old     map[string]*addon.AddOn
		failed  map[string]error
	}

	// failure is an add-on that will not be installed from this batch.
	failure struct {
		addOn *addon.AddOn
		err   error
	}
)

// ApplyChanges applies cs: the uninstalls run at once through the
// orchestrator, then the archives of installs and new versions are scheduled
// for download. Archives already present are not downloaded again. The new
// add-ons are installed by ConsumeDownloads once the downloads of the batch
// have finished; when nothing has to be downloaded that happens before
// ApplyChanges returns.
func (c *Coordinator) ApplyChanges(ctx context.Context, cs *depcheck.ChangeSet) (*lifecycle.Report, error) {
	downloads := cs.Downloads()
	if len(downloads) > 0 && c.deps.Downloads == nil && !allLocal(downloads) {
		return nil, errors.New("no download manager configured")
	}

	report := &lifecycle.Report{}
	if removals := cs.Removals(); len(removals) > 0 {
		removal := &depcheck.ChangeSet{Uninstalls: removals, Confirmed: true}
		r := c.deps.Orchestrator.Apply(ctx, removal, c.deps.Progress, c.Installed())
		c.record(ctx, r)
		report.Outcomes = append(report.Outcomes, r.Outcomes...)
	}
	if len(downloads) == 0 {
		return report, nil
	}

	b := &batch{
		pending: make(map[download.Handle]*addon.AddOn),
		old:     make(map[string]*addon.AddOn, len(cs.OldVersions)),
		failed:  make(map[string]error),
	}
	for _, old := range cs.OldVersions {
		b.old[old.ID] = old
	}

	for _, a := range downloads {
		if a.LocalPath == "" {
			c.setRemoteStatus(a.ID, addon.StatusDownloading)
		}
	}

	var failures []failure
	c.mu.Lock()
	for _, a := range downloads {
		if local, ok := c.present(a); ok {
			b.ready = append(b.ready, local)
			continue
		}
		h, err := c.deps.Downloads.Schedule(download.Request{
			URL:          a.URL,
			Target:       filepath.Join(c.opts.ArchiveDir, archiveName(a)),
			ExpectedSize: a.Size,
			ExpectedHash: a.Hash,
			Label:        a.ID,
		})
		if err != nil {
			b.failed[a.ID] = err
			failures = append(failures, failure{addOn: a, err: fmt.Errorf("scheduling download of %s: %w", a.ID, err)})
			continue
		}
		b.pending[h] = a
		c.handles[h] = b
	}
	c.batches = append(c.batches, b)
	c.mu.Unlock()

	c.reportFailures(ctx, failures, report)

	r := c.ConsumeDownloads(ctx)
	report.Outcomes = append(report.Outcomes, r.Outcomes...)
	return report, nil
}

// present returns a when its archive is already on disk and validates.
// Must be called with mu held.
func (c *Coordinator) present(a *addon.AddOn) (*addon.AddOn, bool) {
	p := a.LocalPath
	if p == "" {
		if c.opts.ArchiveDir == "" {
			return nil, false
		}
		p = filepath.Join(c.opts.ArchiveDir, archiveName(a))
	}
	if _, err := os.Stat(p); err != nil {
		return nil, false
	}
	if err := download.Verify(p, a.Size, a.Hash); err != nil {
		c.logger.Debug("stale archive will be downloaded again", "addon", a.ID, "path", p, "err", err)
		return nil, false
	}
	local := a.Clone()
	local.LocalPath = p
	return local, true
}

// ConsumeDownloads takes the finished transfers from the download manager.
// Invalid downloads revert their add-on to available and are reported once;
// batches without pending transfers are installed in dependency order.
func (c *Coordinator) ConsumeDownloads(ctx context.Context) *lifecycle.Report {
	c.consumeMu.Lock()
	defer c.consumeMu.Unlock()

	var tasks []*download.Task
	if c.deps.Downloads != nil {
		tasks = c.deps.Downloads.TakeFinished()
	}

	var (
		failures []failure
		release  *pendingRelease
		releaseT *download.Task
		done     []*batch
	)
	c.mu.Lock()
	for _, t := range tasks {
		if c.release != nil && t.Handle == c.release.handle {
			release, releaseT = c.release, t
			c.release = nil
			continue
		}
		b, ok := c.handles[t.Handle]
		if !ok {
			c.logger.Debug("ignoring unknown download", "handle", t.Handle)
			continue
		}
		delete(c.handles, t.Handle)
		a := b.pending[t.Handle]
		delete(b.pending, t.Handle)

		if !t.Validated {
			b.failed[a.ID] = t.Err
			failures = append(failures, failure{addOn: a, err: fmt.Errorf("downloading %s: %w", a.ID, t.Err)})
			continue
		}
		local := a.Clone()
		local.LocalPath = t.Target
		b.ready = append(b.ready, local)
	}
	c.batches = slices.DeleteFunc(c.batches, func(b *batch) bool {
		if len(b.pending) == 0 {
			done = append(done, b)
			return true
		}
		return false
	})
	c.mu.Unlock()

	c.recordDownloads(ctx, tasks)
	if release != nil {
		c.finishRelease(release, releaseT)
	}

	report := &lifecycle.Report{}
	c.reportFailures(ctx, failures, report)
	for _, b := range done {
		c.installBatch(ctx, b, report)
	}
	return report
}

// WaitForDownloads supervises the download manager until no transfer is
// active, then consumes the finished ones. report receives the active count
// on every poll and may be nil.
func (c *Coordinator) WaitForDownloads(ctx context.Context, report func(active int)) (*lifecycle.Report, error) {
	out := &lifecycle.Report{}
	if c.deps.Downloads == nil {
		return out, nil
	}
	err := c.deps.Downloads.Supervise(ctx, c.opts.ProgressInterval, report, func() {
		r := c.ConsumeDownloads(ctx)
		out.Outcomes = append(out.Outcomes, r.Outcomes...)
	})
	return out, err
}

func (c *Coordinator) finishRelease(p *pendingRelease, t *download.Task) {
	if !t.Validated {
		c.deps.Notifier.DownloadFailed("release "+p.update.Release.Version.String(), t.Err)
		return
	}
	p.update.Downloaded = true
	c.deps.Notifier.ReleaseDownloaded(p.update)
}

// installBatch inspects the archives of b and installs those that passed.
func (c *Coordinator) installBatch(ctx context.Context, b *batch, report *lifecycle.Report) {
	inspected := make([]*addon.AddOn, len(b.ready))
	errs := make([]error, len(b.ready))
	var g errgroup.Group
	g.SetLimit(manifestWorkers)
	for i, a := range b.ready {
		g.Go(func() error {
			inspected[i], errs[i] = c.inspect(a)
			return nil
		})
	}
	_ = g.Wait()

	var failures []failure
	ok := make(map[string]*addon.AddOn, len(b.ready))
	for i, a := range b.ready {
		if errs[i] != nil {
			b.failed[a.ID] = errs[i]
			failures = append(failures, failure{addOn: a, err: errs[i]})
			continue
		}
		ok[a.ID] = inspected[i]
	}

	// Add-ons whose dependencies will not be installed are dropped too.
	for changed := true; changed; {
		changed = false
		for _, id := range slices.Sorted(maps.Keys(ok)) {
			a := ok[id]
			for _, d := range a.Dependencies {
				if cause, failed := b.failed[d.ID]; failed {
					err := fmt.Errorf("add-on %s not installed: dependency %s unavailable: %w", id, d.ID, cause)
					b.failed[id] = err
					failures = append(failures, failure{addOn: a, err: err})
					delete(ok, id)
					changed = true
					break
				}
			}
		}
	}
	c.reportFailures(ctx, failures, report)
	if len(ok) == 0 {
		return
	}

	cs := &depcheck.ChangeSet{Confirmed: true}
	for _, id := range slices.Sorted(maps.Keys(ok)) {
		a := ok[id]
		c.setRemoteStatus(id, addon.StatusDownloaded)
		if old, replacing := b.old[id]; replacing {
			cs.NewVersions = append(cs.NewVersions, a)
			cs.OldVersions = append(cs.OldVersions, old)
			continue
		}
		cs.Installs = append(cs.Installs, a)
	}

	r := c.deps.Orchestrator.Apply(ctx, cs, c.deps.Progress, c.Installed())
	c.record(ctx, r)
	report.Outcomes = append(report.Outcomes, r.Outcomes...)
}

// inspect reads the manifest of a downloaded archive and checks it against
// the catalog entry and the host.
func (c *Coordinator) inspect(a *addon.AddOn) (*addon.AddOn, error) {
	m, err := addon.ReadManifest(a.LocalPath)
	if err != nil {
		return nil, err
	}
	if m.ID != a.ID {
		return nil, fmt.Errorf("%w: archive %s holds add-on %s, expected %s", addon.ErrMalformedManifest, a.LocalPath, m.ID, a.ID)
	}
	if err := m.CheckCompatible(c.deps.Host.Version); err != nil {
		return nil, err
	}
	m.LocalPath = a.LocalPath
	m.URL, m.Size, m.Hash = a.URL, a.Size, a.Hash
	m.Status = addon.StatusDownloaded
	return m, nil
}

// reportFailures reverts failed add-ons to available, notifies once per
// failure and records them.
func (c *Coordinator) reportFailures(ctx context.Context, failures []failure, report *lifecycle.Report) {
	if len(failures) == 0 {
		return
	}
	entries := make([]ledger.Entry, 0, len(failures))
	for _, f := range failures {
		c.setRemoteStatus(f.addOn.ID, addon.StatusAvailable)
		c.deps.Notifier.DownloadFailed(f.addOn.ID, f.err)
		report.Outcomes = append(report.Outcomes, lifecycle.Outcome{
			AddOn:  f.addOn,
			Action: lifecycle.ActionInstall,
			Status: addon.StatusAvailable,
			Err:    f.err,
		})
		entries = append(entries, ledger.Entry{
			AddOnID: f.addOn.ID,
			Version: f.addOn.Version.String(),
			Action:  "download",
			Status:  addon.StatusAvailable,
			Detail:  f.err.Error(),
		})
	}
	if c.deps.Ledger != nil {
		if err := c.deps.Ledger.Record(ctx, entries...); err != nil {
			c.logger.Warn("journal not updated", "err", err)
		}
	}
}

// record publishes the statuses of r to the local and remote catalogs and
// journals the outcomes.
func (c *Coordinator) record(ctx context.Context, r *lifecycle.Report) {
	if len(r.Outcomes) == 0 {
		return
	}
	installed, _ := c.deps.Installed.Update(func(cat *addon.Catalog) (*addon.Catalog, error) {
		for _, o := range r.Outcomes {
			switch o.Status {
			case addon.StatusInstalled, addon.StatusSoftUninstalled:
				a := o.AddOn.Clone()
				a.Status = o.Status
				cat = cat.With(a)
			case addon.StatusUninstalled:
				cat = cat.Without(o.AddOn.ID)
			}
		}
		return cat, nil
	})
	if err := c.saveState(installed); err != nil {
		c.logger.Warn("installed state not saved", "err", err)
	}

	entries := make([]ledger.Entry, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Status == addon.StatusInstalled && o.Action != lifecycle.ActionRemoveOld {
			c.setRemoteStatus(o.AddOn.ID, addon.StatusInstalled)
		}
		e := ledger.Entry{
			AddOnID: o.AddOn.ID,
			Version: o.AddOn.Version.String(),
			Action:  string(o.Action),
			Status:  o.Status,
			OK:      o.OK,
		}
		if o.Err != nil {
			e.Detail = o.Err.Error()
		}
		entries = append(entries, e)
	}
	if c.deps.Ledger != nil {
		if err := c.deps.Ledger.Record(ctx, entries...); err != nil {
			c.logger.Warn("journal not updated", "err", err)
		}
	}
	c.deps.Notifier.Applied(r)
}

func (c *Coordinator) recordDownloads(ctx context.Context, tasks []*download.Task) {
	if c.deps.Ledger == nil {
		return
	}
	for _, t := range tasks {
		d := ledger.Download{
			Handle:     t.Handle.String(),
			URL:        fetch.RedactURL(t.URL),
			Target:     t.Target,
			StartedAt:  t.StartedAt,
			FinishedAt: t.FinishedAt,
			Validated:  t.Validated,
		}
		if t.Err != nil {
			d.Detail = t.Err.Error()
		}
		if err := c.deps.Ledger.RecordDownload(ctx, d); err != nil {
			c.logger.Warn("journal not updated", "err", err)
		}
	}
}

// setRemoteStatus moves a remote catalog entry to s. Entries that are gone
// or cannot make the move are left alone.
func (c *Coordinator) setRemoteStatus(id string, s addon.Status) {
	_, err := c.remote.Update(func(cat *addon.Catalog) (*addon.Catalog, error) {
		if !cat.Has(id) {
			return cat, nil
		}
		return cat.WithStatus(id, s)
	})
	if err != nil {
		c.logger.Debug("remote status unchanged", "addon", id, "status", s, "err", err)
	}
}

// archiveName is the file name an add-on archive is stored under: the last
// element of its URL, or <id>-<version>.zap.
func archiveName(a *addon.AddOn) string {
	if u, err := url.Parse(a.URL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && addon.IsArchiveName(base) {
			return base
		}
	}
	return a.ID + "-" + a.Version.String() + ".zap"
}

func allLocal(addOns []*addon.AddOn) bool {
	for _, a := range addOns {
		if a.LocalPath == "" {
			return false
		}
		if _, err := os.Stat(a.LocalPath); errors.Is(err, fs.ErrNotExist) {
			return false
		}
	}
	return true
}
