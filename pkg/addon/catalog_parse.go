// SPDX-License-Identifier: MPL-2.0

package addon

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invowk/addonctl/pkg/cueutil"
)

// ErrMalformedCatalog is returned when catalog bytes cannot be parsed or
// violate the catalog schema.
var ErrMalformedCatalog = errors.New("malformed catalog")

//go:embed catalog_schema.cue
var catalogSchema []byte

type (
	catalogDoc struct {
		Release *releaseDoc `json:"release,omitempty"`
		AddOns  []addOnDoc  `json:"addons"`
	}

	releaseDoc struct {
		Version string `json:"version"`
		File    string `json:"file"`
		URL     string `json:"url"`
		Size    int64  `json:"size"`
		Hash    string `json:"hash,omitempty"`
		Notes   string `json:"notes,omitempty"`
	}

	dependencyDoc struct {
		ID      string `json:"id" toml:"id"`
		Version string `json:"version,omitempty" toml:"version,omitempty"`
	}

	bundleDoc struct {
		BaseName string `json:"basename" toml:"basename"`
		Prefix   string `json:"prefix,omitempty" toml:"prefix,omitempty"`
	}

	// addOnDoc is the wire form shared by catalogs (JSON/CUE) and archive
	// manifests (TOML).
	addOnDoc struct {
		ID           string          `json:"id" toml:"id"`
		Name         string          `json:"name,omitempty" toml:"name,omitempty"`
		Description  string          `json:"description,omitempty" toml:"description,omitempty"`
		Author       string          `json:"author,omitempty" toml:"author,omitempty"`
		Version      string          `json:"version" toml:"version"`
		FileVersion  int             `json:"file_version" toml:"file_version"`
		Maturity     string          `json:"maturity" toml:"maturity"`
		NotBefore    string          `json:"not_before,omitempty" toml:"not_before,omitempty"`
		NotFrom      string          `json:"not_from,omitempty" toml:"not_from,omitempty"`
		Dependencies []dependencyDoc `json:"dependencies,omitempty" toml:"dependencies,omitempty"`
		Files        []string        `json:"files,omitempty" toml:"files,omitempty"`
		Extensions   []string        `json:"extensions,omitempty" toml:"extensions,omitempty"`
		AscanRules   []string        `json:"ascanrules,omitempty" toml:"ascanrules,omitempty"`
		PscanRules   []string        `json:"pscanrules,omitempty" toml:"pscanrules,omitempty"`
		Bundle       *bundleDoc      `json:"bundle,omitempty" toml:"bundle,omitempty"`
		URL          string          `json:"url,omitempty" toml:"-"`
		Size         int64           `json:"size,omitempty" toml:"-"`
		Hash         string          `json:"hash,omitempty" toml:"-"`
	}
)

// ParseCatalog parses a remote catalog. Every entry gets StatusAvailable.
// Any failure wraps ErrMalformedCatalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	res, err := cueutil.ParseAndDecode[catalogDoc](catalogSchema, data, "#Catalog",
		cueutil.WithFilename("catalog"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCatalog, err)
	}

	doc := res.Value
	addOns := make([]*AddOn, 0, len(doc.AddOns))
	for i := range doc.AddOns {
		a, convErr := doc.AddOns[i].toAddOn()
		if convErr != nil {
			return nil, fmt.Errorf("%w: addons[%d]: %w", ErrMalformedCatalog, i, convErr)
		}
		a.Status = StatusAvailable
		addOns = append(addOns, a)
	}

	c, err := NewCatalog(addOns...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCatalog, err)
	}

	if doc.Release != nil {
		v, vErr := ParseVersion(doc.Release.Version)
		if vErr != nil {
			return nil, fmt.Errorf("%w: release: %w", ErrMalformedCatalog, vErr)
		}
		c.release = &Release{
			Version:  v,
			FileName: doc.Release.File,
			URL:      doc.Release.URL,
			Size:     doc.Release.Size,
			Hash:     doc.Release.Hash,
			Notes:    doc.Release.Notes,
		}
	}
	return c, nil
}

// MarshalCatalog renders c in the catalog wire format. The output is JSON,
// which ParseCatalog accepts.
func MarshalCatalog(c *Catalog) ([]byte, error) {
	doc := catalogDoc{AddOns: make([]addOnDoc, 0, c.Len())}
	for _, a := range c.AddOns() {
		doc.AddOns = append(doc.AddOns, fromAddOn(a))
	}
	if r := c.Release(); r != nil {
		doc.Release = &releaseDoc{
			Version: r.Version.String(),
			File:    r.FileName,
			URL:     r.URL,
			Size:    r.Size,
			Hash:    r.Hash,
			Notes:   r.Notes,
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}

func (d *addOnDoc) toAddOn() (*AddOn, error) {
	v, err := ParseVersion(d.Version)
	if err != nil {
		return nil, fmt.Errorf("add-on %s: %w", d.ID, err)
	}

	a := &AddOn{
		ID:               d.ID,
		Name:             d.Name,
		Description:      d.Description,
		Author:           d.Author,
		Version:          v,
		FileVersion:      d.FileVersion,
		Maturity:         Maturity(d.Maturity),
		Files:            d.Files,
		Extensions:       d.Extensions,
		ActiveScanRules:  d.AscanRules,
		PassiveScanRules: d.PscanRules,
		URL:              d.URL,
		Size:             d.Size,
		Hash:             d.Hash,
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	if a.Maturity == "" {
		a.Maturity = MaturityRelease
	}
	if !a.Maturity.IsValid() {
		return nil, fmt.Errorf("add-on %s: unknown maturity %q", d.ID, d.Maturity)
	}
	if d.NotBefore != "" {
		if a.NotBefore, err = ParseVersion(d.NotBefore); err != nil {
			return nil, fmt.Errorf("add-on %s: not_before: %w", d.ID, err)
		}
	}
	if d.NotFrom != "" {
		if a.NotFrom, err = ParseVersion(d.NotFrom); err != nil {
			return nil, fmt.Errorf("add-on %s: not_from: %w", d.ID, err)
		}
	}
	for _, dd := range d.Dependencies {
		r, rErr := ParseRange(dd.Version)
		if rErr != nil {
			return nil, fmt.Errorf("add-on %s: dependency %s: %w", d.ID, dd.ID, rErr)
		}
		a.Dependencies = append(a.Dependencies, Dependency{ID: dd.ID, Range: r})
	}
	if d.Bundle != nil {
		a.Bundle = BundleDescriptor{BaseName: d.Bundle.BaseName, Prefix: d.Bundle.Prefix}
	}
	return a, nil
}

func fromAddOn(a *AddOn) addOnDoc {
	d := addOnDoc{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		Author:      a.Author,
		Version:     a.Version.String(),
		FileVersion: a.FileVersion,
		Maturity:    string(a.Maturity),
		Files:       a.Files,
		Extensions:  a.Extensions,
		AscanRules:  a.ActiveScanRules,
		PscanRules:  a.PassiveScanRules,
		URL:         a.URL,
		Size:        a.Size,
		Hash:        a.Hash,
	}
	if a.NotBefore != nil {
		d.NotBefore = a.NotBefore.String()
	}
	if a.NotFrom != nil {
		d.NotFrom = a.NotFrom.String()
	}
	for _, dep := range a.Dependencies {
		d.Dependencies = append(d.Dependencies, dependencyDoc{ID: dep.ID, Version: dep.Range.String()})
	}
	if a.HasBundle() {
		d.Bundle = &bundleDoc{BaseName: a.Bundle.BaseName, Prefix: a.Bundle.Prefix}
	}
	return d
}
