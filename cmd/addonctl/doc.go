// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the CLI commands for addonctl.
//
// The root command wires configuration, the host environment, the download
// manager and the update coordinator into an App; each subcommand keeps its
// logic in a run function that takes explicit parameters so it can be tested
// without Cobra.
package cmd
