// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	"github.com/invowk/addonctl/internal/issue"
	"github.com/invowk/addonctl/pkg/cueutil"
)

const (
	// AppName is the application name.
	AppName = "addonctl"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes the environment variables overriding config keys.
	EnvPrefix = "ADDONCTL"
)

//go:embed config_schema.cue
var configSchema string

type (
	// userDir describes where a per-user directory lives on each platform.
	userDir struct {
		windowsEnv, windowsFallback string
		xdgEnv                      string
		homeRelative                []string
	}
)

var (
	configUserDir = userDir{
		windowsEnv:      "APPDATA",
		windowsFallback: "Roaming",
		xdgEnv:          "XDG_CONFIG_HOME",
		homeRelative:    []string{".config"},
	}
	dataUserDir = userDir{
		windowsEnv:      "LOCALAPPDATA",
		windowsFallback: "Local",
		xdgEnv:          "XDG_DATA_HOME",
		homeRelative:    []string{".local", "share"},
	}
)

// resolve returns the addonctl subdirectory of d for the running platform.
// macOS keeps both kinds under ~/Library/Application Support.
func (d userDir) resolve() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv(d.windowsEnv)
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", d.windowsFallback)
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, "Library", "Application Support")
	default:
		base = os.Getenv(d.xdgEnv)
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			base = filepath.Join(append([]string{home}, d.homeRelative...)...)
		}
	}
	return filepath.Join(base, AppName), nil
}

// ConfigDir returns the directory holding config.cue: %APPDATA% on Windows,
// ~/Library/Application Support on macOS and $XDG_CONFIG_HOME (defaulting
// to ~/.config) elsewhere.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}
	return configUserDir.resolve()
}

// DataDir returns the directory holding the managed root, the archive
// directory and the ledger when they are not configured: %LOCALAPPDATA% on
// Windows, ~/Library/Application Support on macOS and $XDG_DATA_HOME
// (defaulting to ~/.local/share) elsewhere.
func DataDir() (string, error) {
	if dataDirOverride != "" {
		return dataDirOverride, nil
	}
	return dataUserDir.resolve()
}

// ResolvePaths fills the empty managed root, archive directory and ledger
// path with locations under DataDir.
func (c *Config) ResolvePaths() error {
	if c.ManagedRoot != "" && c.ArchiveDir != "" && c.LedgerPath != "" {
		return nil
	}
	dir, err := DataDir()
	if err != nil {
		return err
	}
	if c.ManagedRoot == "" {
		c.ManagedRoot = DirPath(filepath.Join(dir, "root"))
	}
	if c.ArchiveDir == "" {
		c.ArchiveDir = DirPath(filepath.Join(dir, "archives"))
	}
	if c.LedgerPath == "" {
		c.LedgerPath = DirPath(filepath.Join(dir, "ledger.db"))
	}
	return nil
}

// loadWithOptions performs option-driven config loading without mutating
// package-level cache state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""

	// If a custom config file path is set via --config, use it exclusively.
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithIssue(issue.ConfigLoadFailedId).
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Check that the file exists and is readable").
				WithSuggestion("Use 'addonctl config show' to see the default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		if err := loadCUEIntoViper(v, opts.ConfigFilePath); err != nil {
			return nil, "", invalidFileError(opts.ConfigFilePath, err)
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}

		cuePath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
		if fileExists(cuePath) {
			if err := loadCUEIntoViper(v, cuePath); err != nil {
				return nil, "", invalidFileError(cuePath, err)
			}
			resolvedPath = cuePath
		}
		// If no config file found, use defaults (no error)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithIssue(issue.ConfigLoadFailedId).
			WithResource(resolvedPath).
			WithSuggestion("Catalog URLs must use https").
			WithSuggestion("Check the ADDONCTL_* environment variables for stray values").
			Wrap(errs[0]).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("host_version", string(defaults.HostVersion))
	v.SetDefault("managed_root", string(defaults.ManagedRoot))
	v.SetDefault("archive_dir", string(defaults.ArchiveDir))
	v.SetDefault("ledger_path", string(defaults.LedgerPath))
	v.SetDefault("catalog_urls", defaults.URLs())
	v.SetDefault("check_on_start", defaults.CheckOnStart)
	v.SetDefault("check_addon_updates", defaults.CheckAddOnUpdates)
	v.SetDefault("install_addon_updates", defaults.InstallAddOnUpdates)
	v.SetDefault("install_scan_rules", defaults.InstallScanRules)
	v.SetDefault("report_alpha", defaults.ReportAlpha)
	v.SetDefault("report_beta", defaults.ReportBeta)
	v.SetDefault("report_release", defaults.ReportRelease)
	v.SetDefault("download_new_release", defaults.DownloadNewRelease)
	v.SetDefault("downloads.workers", defaults.Downloads.Workers)
	v.SetDefault("downloads.poll_interval", defaults.Downloads.PollInterval)
	v.SetDefault("ui.color_scheme", string(defaults.UI.ColorScheme))
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
}

func invalidFileError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithIssue(issue.ConfigLoadFailedId).
		WithResource(path).
		WithSuggestion("Check that the file contains valid CUE syntax").
		WithSuggestion("Verify the configuration values match the expected schema").
		WithSuggestion("See 'addonctl config --help' for configuration options").
		Wrap(err).
		BuildError()
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper validates a CUE file against #Config and merges it into v
// as a map, so unset keys keep their defaults and env overrides still apply.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return err
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return cueutil.FormatError(userValue.Err(), path)
	}

	// Unify with schema to validate against #Config definition
	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return cueutil.FormatError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}

	// Merge into Viper (preserves defaults, allows env overrides)
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig creates a default config file if it doesn't exist and
// returns its path.
func CreateDefaultConfig() (string, error) {
	cfgDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, nil
	}
	return cfgPath, writeConfig(cfgPath, DefaultConfig())
}

// Save writes cfg to the config file in the config directory.
func Save(cfg *Config) error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}
	return writeConfig(filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt), cfg)
}

func writeConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// addonctl configuration file\n\n")

	fmt.Fprintf(&sb, "host_version: %q\n", cfg.HostVersion)
	if cfg.ManagedRoot != "" {
		fmt.Fprintf(&sb, "managed_root: %q\n", cfg.ManagedRoot)
	}
	if cfg.ArchiveDir != "" {
		fmt.Fprintf(&sb, "archive_dir: %q\n", cfg.ArchiveDir)
	}
	if cfg.LedgerPath != "" {
		fmt.Fprintf(&sb, "ledger_path: %q\n", cfg.LedgerPath)
	}

	sb.WriteString("\ncatalog_urls: [")
	for i, u := range cfg.CatalogURLs {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q", u)
	}
	sb.WriteString("]\n\n")

	fmt.Fprintf(&sb, "check_on_start: %v\n", cfg.CheckOnStart)
	fmt.Fprintf(&sb, "check_addon_updates: %v\n", cfg.CheckAddOnUpdates)
	fmt.Fprintf(&sb, "install_addon_updates: %v\n", cfg.InstallAddOnUpdates)
	fmt.Fprintf(&sb, "install_scan_rules: %v\n", cfg.InstallScanRules)
	fmt.Fprintf(&sb, "report_alpha: %v\n", cfg.ReportAlpha)
	fmt.Fprintf(&sb, "report_beta: %v\n", cfg.ReportBeta)
	fmt.Fprintf(&sb, "report_release: %v\n", cfg.ReportRelease)
	fmt.Fprintf(&sb, "download_new_release: %v\n", cfg.DownloadNewRelease)

	sb.WriteString("\ndownloads: {\n")
	fmt.Fprintf(&sb, "\tworkers: %d\n", cfg.Downloads.Workers)
	fmt.Fprintf(&sb, "\tpoll_interval: %q\n", cfg.Downloads.PollInterval.String())
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", cfg.UI.ColorScheme)
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}
