// SPDX-License-Identifier: MPL-2.0

package update

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/invowk/addonctl/internal/fetch"
	"github.com/invowk/addonctl/pkg/addon"
)

type fetchState struct {
	done chan struct{}
	cat  *addon.Catalog
	err  error
}

// FetchLatest starts fetching the remote catalog on a background goroutine,
// unless a fetch is already in flight.
func (c *Coordinator) FetchLatest(ctx context.Context) {
	c.start(ctx)
}

// Latest returns the remote catalog, starting a fetch if needed. It polls the
// in-flight fetch until it completes or the latest timeout elapses.
func (c *Coordinator) Latest(ctx context.Context) (*addon.Catalog, error) {
	st := c.start(ctx)
	var waited time.Duration
	for {
		select {
		case <-st.done:
			return st.cat, st.err
		default:
		}
		if waited >= c.opts.LatestTimeout {
			return nil, ErrLatestTimeout
		}
		select {
		case <-st.done:
			return st.cat, st.err
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.deps.Clock.After(c.opts.LatestPoll):
		}
		waited += c.opts.LatestPoll
	}
}

// LatestAsync fetches the remote catalog and calls cb exactly once with the
// catalog or a classified error.
func (c *Coordinator) LatestAsync(ctx context.Context, cb func(*addon.Catalog, error)) {
	st := c.start(ctx)
	go func() {
		select {
		case <-st.done:
			cb(st.cat, st.err)
		case <-ctx.Done():
			cb(nil, ctx.Err())
		}
	}()
}

func (c *Coordinator) start(ctx context.Context) *fetchState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight != nil {
		select {
		case <-c.inflight.done:
		default:
			return c.inflight
		}
	}

	st := &fetchState{done: make(chan struct{})}
	c.inflight = st
	go func() {
		defer close(st.done)
		st.cat, st.err = c.fetchCatalog(ctx)
	}()
	return st
}

// fetchCatalog tries every catalog URL in order. The errors of all attempts
// are joined, so an insecure source stays visible through errors.Is.
func (c *Coordinator) fetchCatalog(ctx context.Context) (*addon.Catalog, error) {
	if len(c.opts.CatalogURLs) == 0 {
		return nil, ErrNoCatalogURL
	}

	var errs []error
	for _, u := range c.opts.CatalogURLs {
		data, err := c.deps.Fetcher.Get(ctx, u)
		if err != nil {
			c.logger.Warn("catalog fetch failed", "url", fetch.RedactURL(u), "err", err)
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		cat, err := addon.ParseCatalog(data)
		if err != nil {
			c.logger.Warn("catalog rejected", "url", fetch.RedactURL(u), "err", err)
			errs = append(errs, err)
			continue
		}

		c.keepSnapshot(data)
		c.remote.Replace(cat)
		c.logger.Debug("catalog fetched", "url", fetch.RedactURL(u), "addons", cat.Len())
		return cat, nil
	}
	return nil, fmt.Errorf("fetching catalog: %w", errors.Join(errs...))
}

// keepSnapshot remembers the previous snapshot for NewAddOns and replaces it
// with data. Snapshot failures are logged only.
func (c *Coordinator) keepSnapshot(data []byte) {
	if c.opts.ArchiveDir == "" {
		return
	}
	path := filepath.Join(c.opts.ArchiveDir, SnapshotName)

	prevData, err := os.ReadFile(path)
	switch {
	case err == nil:
		prev, perr := addon.ParseCatalog(prevData)
		if perr != nil {
			c.logger.Warn("ignoring unreadable catalog snapshot", "path", path, "err", perr)
			break
		}
		c.mu.Lock()
		c.previous = prev
		c.mu.Unlock()
	case !errors.Is(err, fs.ErrNotExist):
		c.logger.Warn("reading catalog snapshot", "path", path, "err", err)
	}

	if err := writeAtomic(path, data); err != nil {
		c.logger.Warn("writing catalog snapshot", "path", path, "err", err)
	}
}

func writeAtomic(path string, data []byte) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
