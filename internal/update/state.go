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

	"github.com/pelletier/go-toml/v2"

	"github.com/invowk/addonctl/pkg/addon"
)

// stateFormat is the version of the installed-state file layout.
const stateFormat = "1"

type (
	stateFile struct {
		Format  string        `toml:"format"`
		Written time.Time     `toml:"written"`
		AddOns  []stateRecord `toml:"addon"`
	}

	stateRecord struct {
		ID      string `toml:"id"`
		Version string `toml:"version"`
		Status  string `toml:"status"`
		Archive string `toml:"archive"`
		URL     string `toml:"url,omitempty"`
		Hash    string `toml:"hash,omitempty"`
		Size    int64  `toml:"size,omitempty"`
	}
)

// Restore rebuilds the local catalog from the state file and loads the
// components of every installed add-on into the host. Entries whose archive
// is gone or no longer matches are dropped with a warning. A missing state
// file leaves the catalog empty.
func (c *Coordinator) Restore(ctx context.Context) (*addon.Catalog, error) {
	if c.opts.StatePath == "" {
		return c.Installed(), nil
	}
	data, err := os.ReadFile(c.opts.StatePath)
	if errors.Is(err, fs.ErrNotExist) {
		return c.Installed(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading installed state: %w", err)
	}

	var doc stateFile
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing installed state %s: %w", c.opts.StatePath, err)
	}
	if doc.Format != stateFormat {
		return nil, fmt.Errorf("installed state %s: unsupported format %q", c.opts.StatePath, doc.Format)
	}

	var addOns []*addon.AddOn
	for _, rec := range doc.AddOns {
		a, err := c.restoreOne(ctx, rec)
		if err != nil {
			c.logger.Warn("installed add-on dropped", "addon", rec.ID, "err", err)
			continue
		}
		addOns = append(addOns, a)
	}
	cat, err := addon.NewCatalog(addOns...)
	if err != nil {
		return nil, err
	}
	c.deps.Installed.Replace(cat)
	return cat, nil
}

func (c *Coordinator) restoreOne(ctx context.Context, rec stateRecord) (*addon.AddOn, error) {
	status := addon.Status(rec.Status)
	if !status.HasLoadedComponents() {
		return nil, fmt.Errorf("unexpected status %q", rec.Status)
	}
	a, err := addon.ReadManifest(rec.Archive)
	if err != nil {
		return nil, err
	}
	if a.ID != rec.ID || a.Version.String() != rec.Version {
		return nil, fmt.Errorf("archive %s now holds %s", rec.Archive, a)
	}
	a.LocalPath = rec.Archive
	a.URL, a.Hash, a.Size = rec.URL, rec.Hash, rec.Size
	a.Status = status

	if !c.deps.Orchestrator.Restore(ctx, a) && status == addon.StatusInstalled {
		a.Status = addon.StatusSoftUninstalled
	}
	return a, nil
}

// saveState writes the installed add-ons of cat to the state file.
func (c *Coordinator) saveState(cat *addon.Catalog) error {
	if c.opts.StatePath == "" {
		return nil
	}
	doc := stateFile{Format: stateFormat, Written: c.deps.Clock.Now().UTC()}
	for _, a := range cat.AddOns() {
		if a.LocalPath == "" {
			continue
		}
		doc.AddOns = append(doc.AddOns, stateRecord{
			ID:      a.ID,
			Version: a.Version.String(),
			Status:  a.Status.String(),
			Archive: a.LocalPath,
			URL:     a.URL,
			Hash:    a.Hash,
			Size:    a.Size,
		})
	}
	data, err := toml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.opts.StatePath), 0o755); err != nil {
		return err
	}
	return writeAtomic(c.opts.StatePath, data)
}
