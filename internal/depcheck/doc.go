// SPDX-License-Identifier: MPL-2.0

// Package depcheck computes the change-set needed to install, update or
// uninstall add-ons: which add-ons must be installed, which are replaced by
// newer versions, and which installed add-ons must go because something they
// depend on is removed or replaced by a version they do not accept.
//
// Compute is a pure function of its Input. It never touches the file system
// or the registries, and calling it twice with the same Input yields the same
// ChangeSet.
package depcheck
