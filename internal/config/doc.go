// SPDX-License-Identifier: MPL-2.0

// Package config handles addonctl configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/addonctl/config.cue (or XDG equivalent on Linux,
// ~/Library/Application Support/addonctl/config.cue on macOS, %APPDATA%\addonctl\config.cue
// on Windows). Every key may be overridden through an ADDONCTL_ environment variable, with
// dots replaced by underscores (ADDONCTL_DOWNLOADS_WORKERS).
//
// The file is validated against the embedded #Config schema (config_schema.cue) before it
// is merged over the defaults.
package config
