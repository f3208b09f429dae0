// SPDX-License-Identifier: MPL-2.0

// Package lifecycle installs and removes the components of add-ons against a
// host: resource bundles, files under the managed root, extensions, and
// active and passive scan rules.
//
// Installation runs its steps in a fixed order and logs non-fatal failures.
// Removal runs the steps in reverse and reports an aggregate result; an
// extension that cannot be unloaded leaves the add-on soft-uninstalled.
// Apply executes a whole change-set, item by item, and collects the outcomes
// in a Report instead of failing mid-batch.
package lifecycle
