// SPDX-License-Identifier: MPL-2.0

// Package update coordinates catalog checks and add-on updates: it fetches
// the latest remote catalog, compares the host release, plans change-sets
// with the dependency checker, downloads archives through the download
// manager and installs them with the lifecycle orchestrator once they have
// been validated.
package update
