// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"errors"

	"github.com/invowk/addonctl/pkg/addon"
)

type (
	// BundleLoader looks up the messages of an add-on's resource bundle.
	BundleLoader interface {
		Load(a *addon.AddOn) (map[string]string, error)
	}

	// ArchiveBundles reads <BaseName>.toml from the add-on archive.
	ArchiveBundles struct{}
)

// Load implements BundleLoader.
func (ArchiveBundles) Load(a *addon.AddOn) (map[string]string, error) {
	if a.LocalPath == "" {
		return nil, errors.New("add-on archive is not available locally")
	}
	ar, err := addon.OpenArchive(a.LocalPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ar.Close() }() // read-only

	return ar.Messages(a.Bundle.BaseName)
}
