// SPDX-License-Identifier: MPL-2.0

// Package testutil holds helpers shared by addonctl tests: a manually
// advanced clock and environment isolation for code that resolves
// per-user directories.
//
// Add-on fixtures (manifests, archives, catalogs) live in the addontest
// subpackage.
package testutil
