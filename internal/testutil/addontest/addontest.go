// SPDX-License-Identifier: MPL-2.0

// Package addontest builds add-on values and archives for tests.
package addontest

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/invowk/addonctl/pkg/addon"
)

// Option customizes an add-on built by New.
type Option func(*addon.AddOn)

// New returns an add-on with the given id and version, status available.
func New(id, version string, opts ...Option) *addon.AddOn {
	a := &addon.AddOn{
		ID:          id,
		Name:        id,
		Version:     addon.MustParseVersion(version),
		FileVersion: 1,
		Maturity:    addon.MaturityRelease,
		Status:      addon.StatusAvailable,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Installed returns New(...) with StatusInstalled.
func Installed(id, version string, opts ...Option) *addon.AddOn {
	return New(id, version, append(opts, WithStatus(addon.StatusInstalled))...)
}

// DependsOn adds a dependency on id constrained by rng (empty = any version).
func DependsOn(id, rng string) Option {
	return func(a *addon.AddOn) {
		a.Dependencies = append(a.Dependencies, addon.Dependency{ID: id, Range: addon.MustParseRange(rng)})
	}
}

// WithStatus sets the installation status.
func WithStatus(s addon.Status) Option {
	return func(a *addon.AddOn) { a.Status = s }
}

// WithHostRange sets the host compatibility bounds; empty strings mean unbounded.
func WithHostRange(notBefore, notFrom string) Option {
	return func(a *addon.AddOn) {
		if notBefore != "" {
			a.NotBefore = addon.MustParseVersion(notBefore)
		}
		if notFrom != "" {
			a.NotFrom = addon.MustParseVersion(notFrom)
		}
	}
}

// WithFiles declares root-relative files.
func WithFiles(files ...string) Option {
	return func(a *addon.AddOn) { a.Files = append(a.Files, files...) }
}

// WithExtensions declares extension names.
func WithExtensions(names ...string) Option {
	return func(a *addon.AddOn) { a.Extensions = append(a.Extensions, names...) }
}

// WithActiveScanRules declares active scan rule names.
func WithActiveScanRules(names ...string) Option {
	return func(a *addon.AddOn) { a.ActiveScanRules = append(a.ActiveScanRules, names...) }
}

// WithPassiveScanRules declares passive scan rule names.
func WithPassiveScanRules(names ...string) Option {
	return func(a *addon.AddOn) { a.PassiveScanRules = append(a.PassiveScanRules, names...) }
}

// WithBundle declares a message bundle.
func WithBundle(baseName, prefix string) Option {
	return func(a *addon.AddOn) { a.Bundle = addon.BundleDescriptor{BaseName: baseName, Prefix: prefix} }
}

// WithFileVersion sets the file version.
func WithFileVersion(n int) Option {
	return func(a *addon.AddOn) { a.FileVersion = n }
}

// WithMaturity sets the maturity.
func WithMaturity(m addon.Maturity) Option {
	return func(a *addon.AddOn) { a.Maturity = m }
}

// WithRemote sets the remote fetch metadata.
func WithRemote(url string, size int64, hash string) Option {
	return func(a *addon.AddOn) {
		a.URL = url
		a.Size = size
		a.Hash = hash
	}
}

// Catalog builds a catalog, failing the test on duplicate IDs.
func Catalog(t testing.TB, addOns ...*addon.AddOn) *addon.Catalog {
	t.Helper()
	c, err := addon.NewCatalog(addOns...)
	if err != nil {
		t.Fatalf("building catalog: %v", err)
	}
	return c
}

// ArchiveBytes renders an add-on archive holding the manifest of a, the given
// entries, and an empty message bundle when a declares one and entries lacks it.
func ArchiveBytes(t testing.TB, a *addon.AddOn, entries map[string]string) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), a.ID+".zap")
	WriteArchive(t, path, a, entries)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	return data
}

// WriteArchive writes an add-on archive to path and returns path.
func WriteArchive(t testing.TB, path string, a *addon.AddOn, entries map[string]string) string {
	t.Helper()

	manifest, err := addon.MarshalManifest(a)
	if err != nil {
		t.Fatalf("marshalling manifest: %v", err)
	}

	all := map[string]string{addon.ManifestName: string(manifest)}
	if a.HasBundle() {
		bundle, mErr := toml.Marshal(map[string]string{a.Bundle.Prefix + ".name": a.Name})
		if mErr != nil {
			t.Fatalf("marshalling bundle: %v", mErr)
		}
		all[a.Bundle.BaseName+".toml"] = string(bundle)
	}
	for name, content := range entries {
		all[name] = content
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating archive dir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating archive: %v", err)
	}
	zw := zip.NewWriter(f)

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, cErr := zw.Create(name)
		if cErr != nil {
			t.Fatalf("adding %s: %v", name, cErr)
		}
		if _, wErr := w.Write([]byte(all[name])); wErr != nil {
			t.Fatalf("writing %s: %v", name, wErr)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing archive: %v", err)
	}
	return path
}

// Downloaded writes the archive of a into dir and returns a copy of a with
// LocalPath set and StatusDownloaded. Declared files missing from entries
// get the content "<id>:<file>".
func Downloaded(t testing.TB, dir string, a *addon.AddOn, entries map[string]string) *addon.AddOn {
	t.Helper()

	all := make(map[string]string, len(a.Files)+len(entries))
	for _, f := range a.Files {
		all[f] = a.ID + ":" + f
	}
	for name, content := range entries {
		all[name] = content
	}

	c := a.Clone()
	c.LocalPath = WriteArchive(t, filepath.Join(dir, a.ID+"-"+a.Version.String()+".zap"), a, all)
	c.Status = addon.StatusDownloaded
	return c
}
