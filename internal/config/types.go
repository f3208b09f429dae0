// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invowk/addonctl/internal/download"
	"github.com/invowk/addonctl/internal/fetch"
	"github.com/invowk/addonctl/pkg/addon"
)

const (
	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"

	// DefaultHostVersion is assumed when no host version is configured.
	DefaultHostVersion HostVersion = "1.0.0"
	// DefaultPollInterval is the default download supervision period.
	DefaultPollInterval = 100 * time.Millisecond
)

var (
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidHostVersion is returned when the host version does not parse.
	ErrInvalidHostVersion = errors.New("invalid host version")
	// ErrInvalidCatalogURL is returned when a catalog URL is not an https URL.
	ErrInvalidCatalogURL = errors.New("invalid catalog URL")
	// ErrInvalidDirPath is returned when a DirPath value is whitespace-only.
	ErrInvalidDirPath = errors.New("invalid directory path")
	// ErrInvalidDownloadsConfig is the sentinel error wrapped by InvalidDownloadsConfigError.
	ErrInvalidDownloadsConfig = errors.New("invalid downloads config")
	// ErrInvalidUIConfig is the sentinel error wrapped by InvalidUIConfigError.
	ErrInvalidUIConfig = errors.New("invalid UI config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	// It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// HostVersion is the version of the host application add-ons are
	// installed into.
	HostVersion string

	// InvalidHostVersionError is returned when a HostVersion does not parse.
	InvalidHostVersionError struct {
		Value HostVersion
		Err   error
	}

	// CatalogURL is the location of a remote add-on catalog. Only https URLs
	// are accepted.
	CatalogURL string

	// InvalidCatalogURLError is returned when a CatalogURL is rejected.
	InvalidCatalogURLError struct {
		Value CatalogURL
		Err   error
	}

	// DirPath is a filesystem directory or file path. The zero value means
	// "use the default location".
	DirPath string

	// InvalidDirPathError is returned when a DirPath value is non-empty but
	// whitespace-only.
	InvalidDirPathError struct {
		Value DirPath
	}

	// InvalidDownloadsConfigError is returned when a DownloadsConfig has invalid fields.
	InvalidDownloadsConfigError struct {
		FieldErrors []error
	}

	// InvalidUIConfigError is returned when a UIConfig has invalid fields.
	// It wraps ErrInvalidUIConfig for errors.Is() compatibility and collects
	// field-level validation errors.
	InvalidUIConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// HostVersion is the running host version add-ons are checked against.
		HostVersion HostVersion `json:"host_version" mapstructure:"host_version"`
		// ManagedRoot is the directory add-on files are installed into.
		ManagedRoot DirPath `json:"managed_root" mapstructure:"managed_root"`
		// ArchiveDir receives downloaded archives and the catalog snapshot.
		ArchiveDir DirPath `json:"archive_dir" mapstructure:"archive_dir"`
		// LedgerPath is the sqlite journal of installs and downloads.
		LedgerPath DirPath `json:"ledger_path" mapstructure:"ledger_path"`
		// CatalogURLs are tried in order until one yields a catalog.
		CatalogURLs []CatalogURL `json:"catalog_urls" mapstructure:"catalog_urls"`

		// CheckOnStart fetches the catalog whenever a command starts.
		CheckOnStart        bool `json:"check_on_start" mapstructure:"check_on_start"`
		CheckAddOnUpdates   bool `json:"check_addon_updates" mapstructure:"check_addon_updates"`
		InstallAddOnUpdates bool `json:"install_addon_updates" mapstructure:"install_addon_updates"`
		InstallScanRules    bool `json:"install_scan_rules" mapstructure:"install_scan_rules"`
		ReportAlpha         bool `json:"report_alpha" mapstructure:"report_alpha"`
		ReportBeta          bool `json:"report_beta" mapstructure:"report_beta"`
		ReportRelease       bool `json:"report_release" mapstructure:"report_release"`
		DownloadNewRelease  bool `json:"download_new_release" mapstructure:"download_new_release"`

		// Downloads tunes the download manager.
		Downloads DownloadsConfig `json:"downloads" mapstructure:"downloads"`
		// UI configures the user interface
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// DownloadsConfig configures the download manager.
	DownloadsConfig struct {
		Workers      int           `json:"workers" mapstructure:"workers"`
		PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// ColorScheme sets the color scheme
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		// Verbose enables debug logging
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}
)

// Version parses the host version.
func (v HostVersion) Version() (*addon.Version, error) {
	parsed, err := addon.ParseVersion(string(v))
	if err != nil {
		return nil, &InvalidHostVersionError{Value: v, Err: err}
	}
	return parsed, nil
}

// IsValid returns whether the HostVersion parses.
func (v HostVersion) IsValid() (bool, []error) {
	if _, err := v.Version(); err != nil {
		return false, []error{err}
	}
	return true, nil
}

// Error implements the error interface for InvalidHostVersionError.
func (e *InvalidHostVersionError) Error() string {
	return fmt.Sprintf("invalid host version %q: %v", e.Value, e.Err)
}

// Unwrap returns the sentinel and the parse error.
func (e *InvalidHostVersionError) Unwrap() []error { return []error{ErrInvalidHostVersion, e.Err} }

// IsValid returns whether the CatalogURL is an https URL with a host.
func (u CatalogURL) IsValid() (bool, []error) {
	if err := fetch.CheckSecure(string(u)); err != nil {
		return false, []error{&InvalidCatalogURLError{Value: u, Err: err}}
	}
	return true, nil
}

// Error implements the error interface for InvalidCatalogURLError.
func (e *InvalidCatalogURLError) Error() string {
	return fmt.Sprintf("invalid catalog URL: %v", e.Err)
}

// Unwrap returns the sentinel and the classification from the fetch package.
func (e *InvalidCatalogURLError) Unwrap() []error { return []error{ErrInvalidCatalogURL, e.Err} }

// String returns the string representation of the DirPath.
func (p DirPath) String() string { return string(p) }

// IsValid returns whether the DirPath is valid. The zero value is valid.
func (p DirPath) IsValid() (bool, []error) {
	if p == "" {
		return true, nil
	}
	if strings.TrimSpace(string(p)) == "" {
		return false, []error{&InvalidDirPathError{Value: p}}
	}
	return true, nil
}

// Error implements the error interface for InvalidDirPathError.
func (e *InvalidDirPathError) Error() string {
	return fmt.Sprintf("invalid path %q: non-empty value must not be whitespace-only", e.Value)
}

// Unwrap returns ErrInvalidDirPath for errors.Is() compatibility.
func (e *InvalidDirPathError) Unwrap() error { return ErrInvalidDirPath }

// IsValid returns whether the DownloadsConfig has a usable worker count and
// poll interval.
func (c DownloadsConfig) IsValid() (bool, []error) {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("downloads.workers must be at least 1, got %d", c.Workers))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("downloads.poll_interval must be positive, got %s", c.PollInterval))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidDownloadsConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidDownloadsConfigError.
func (e *InvalidDownloadsConfigError) Error() string {
	return fmt.Sprintf("invalid downloads config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidDownloadsConfig for errors.Is() compatibility.
func (e *InvalidDownloadsConfigError) Unwrap() error { return ErrInvalidDownloadsConfig }

// IsValid returns whether the UIConfig has valid fields.
// It delegates to ColorScheme.IsValid(); bool fields need no validation.
func (c UIConfig) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.ColorScheme.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidUIConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidUIConfigError.
func (e *InvalidUIConfigError) Error() string {
	return fmt.Sprintf("invalid UI config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidUIConfig for errors.Is() compatibility.
func (e *InvalidUIConfigError) Unwrap() error { return ErrInvalidUIConfig }

// IsValid returns whether the Config has valid fields.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.HostVersion.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	for _, p := range []DirPath{c.ManagedRoot, c.ArchiveDir, c.LedgerPath} {
		if valid, fieldErrs := p.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	for _, u := range c.CatalogURLs {
		if valid, fieldErrs := u.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if valid, fieldErrs := c.Downloads.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.UI.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns the sentinel and every field error, so errors.Is matches
// the sentinels of individual fields too.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// Error implements the error interface for InvalidColorSchemeError.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error {
	return ErrInvalidColorScheme
}

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// IsValid returns whether the ColorScheme is one of the defined color schemes,
// and a list of validation errors if it is not.
func (cs ColorScheme) IsValid() (bool, []error) {
	switch cs {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: cs}}
	}
}

// URLs returns the catalog URLs as plain strings.
func (c *Config) URLs() []string {
	out := make([]string, len(c.CatalogURLs))
	for i, u := range c.CatalogURLs {
		out[i] = string(u)
	}
	return out
}

// DefaultConfig returns the default configuration. Empty paths are resolved
// against the data directory by ResolvePaths.
func DefaultConfig() *Config {
	return &Config{
		HostVersion:       DefaultHostVersion,
		CatalogURLs:       []CatalogURL{},
		CheckAddOnUpdates: true,
		ReportRelease:     true,
		Downloads: DownloadsConfig{
			Workers:      download.DefaultWorkers,
			PollInterval: DefaultPollInterval,
		},
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
			Verbose:     false,
		},
	}
}
