// SPDX-License-Identifier: MPL-2.0

// Package addon holds the in-memory model of add-ons: versions and version
// ranges, installation status, the immutable Catalog of known add-ons and the
// Store that publishes catalogs by whole-reference replacement.
//
// Remote catalogs are CUE documents (plain JSON is accepted) validated against
// an embedded schema. Add-on archives are zip files carrying an addon.toml
// manifest next to the files and message bundles they install.
package addon
