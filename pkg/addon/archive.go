// SPDX-License-Identifier: MPL-2.0

package addon

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	// ManifestName is the archive entry describing the add-on.
	ManifestName = "addon.toml"

	// maxManifestBytes bounds manifest and message bundle reads (1 MB).
	maxManifestBytes = 1 << 20
)

var (
	// ErrMalformedManifest is returned when an archive lacks a readable manifest.
	ErrMalformedManifest = errors.New("malformed add-on manifest")
	// ErrEntryNotFound is returned when an archive does not contain a requested entry.
	ErrEntryNotFound = errors.New("entry not found in add-on archive")

	//nolint:gochecknoglobals // Recognized archive extensions.
	archiveExtensions = []string{".zap", ".zip"}
)

// Archive is an opened add-on archive.
type Archive struct {
	path    string
	addOn   *AddOn
	zr      *zip.ReadCloser
	entries map[string]*zip.File
}

// OpenArchive opens the archive at p and decodes its manifest. The returned
// add-on has LocalPath set to p and StatusDownloaded.
func OpenArchive(p string) (*Archive, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("opening add-on archive %s: %w", p, err)
	}

	ar := &Archive{path: p, zr: zr, entries: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		ar.entries[path.Clean(f.Name)] = f
	}

	data, err := ar.readAll(ManifestName)
	if err != nil {
		_ = zr.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedManifest, p, err)
	}

	var doc addOnDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		_ = zr.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedManifest, p, err)
	}
	if doc.ID == "" {
		_ = zr.Close()
		return nil, fmt.Errorf("%w: %s: missing id", ErrMalformedManifest, p)
	}

	a, err := doc.toAddOn()
	if err != nil {
		_ = zr.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedManifest, p, err)
	}
	a.LocalPath = p
	a.Status = StatusDownloaded
	ar.addOn = a
	return ar, nil
}

// ReadManifest opens the archive at p just long enough to decode its manifest.
func ReadManifest(p string) (*AddOn, error) {
	ar, err := OpenArchive(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ar.Close() }() // read-only archive

	return ar.AddOn(), nil
}

// IsArchive reports whether p looks like an add-on archive: a recognized
// extension and a decodable manifest.
func IsArchive(p string) bool {
	if !IsArchiveName(p) {
		return false
	}
	_, err := ReadManifest(p)
	return err == nil
}

// IsArchiveName reports whether name has a recognized archive extension.
func IsArchiveName(name string) bool {
	return slices.Contains(archiveExtensions, strings.ToLower(filepath.Ext(name)))
}

// AddOn returns a copy of the add-on described by the manifest.
func (ar *Archive) AddOn() *AddOn {
	return ar.addOn.Clone()
}

// Path returns the archive location.
func (ar *Archive) Path() string { return ar.path }

// Has reports whether the archive contains name.
func (ar *Archive) Has(name string) bool {
	_, ok := ar.entries[path.Clean(name)]
	return ok
}

// Open opens the named entry.
func (ar *Archive) Open(name string) (io.ReadCloser, error) {
	f, ok := ar.entries[path.Clean(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return f.Open()
}

// Messages decodes the message bundle baseName.toml into a flat key/value map.
func (ar *Archive) Messages(baseName string) (map[string]string, error) {
	data, err := ar.readAll(baseName + ".toml")
	if err != nil {
		return nil, err
	}
	var messages map[string]string
	if err := toml.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decoding message bundle %s: %w", baseName, err)
	}
	return messages, nil
}

// Close releases the underlying file.
func (ar *Archive) Close() error {
	return ar.zr.Close()
}

func (ar *Archive) readAll(name string) ([]byte, error) {
	rc, err := ar.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }() // read-only entry

	return io.ReadAll(io.LimitReader(rc, maxManifestBytes))
}

// MarshalManifest renders the manifest of a in TOML.
func MarshalManifest(a *AddOn) ([]byte, error) {
	return toml.Marshal(fromAddOn(a))
}
