// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/invowk/addonctl/internal/config"
)

// newConfigCommand creates the `addonctl config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage addonctl configuration",
		Long: `Manage addonctl configuration.

Configuration is stored in:
  - Linux: ~/.config/addonctl/config.cue
  - macOS: ~/Library/Application Support/addonctl/config.cue
  - Windows: %APPDATA%\addonctl\config.cue

Every key can be overridden with an ADDONCTL_ environment variable, for
example ADDONCTL_INSTALL_ADDON_UPDATES=true or ADDONCTL_DOWNLOADS_WORKERS=8.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return reportConfigError(cmd, app, showConfig(cmd.Context(), app, cmd.OutOrStdout()))
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return reportConfigError(cmd, app, initConfig(cmd.OutOrStdout()))
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return reportConfigError(cmd, app, showConfigPath(cmd.OutOrStdout()))
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.loadConfig(cmd.Context())
			if err != nil {
				return reportConfigError(cmd, app, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func reportConfigError(cmd *cobra.Command, app *App, err error) error {
	if err == nil {
		return nil
	}
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	printError(app.stderr, err, app.verbose, "auto")
	return &ExitError{Code: classifyExitCode(err), Err: err}
}

func showConfig(ctx context.Context, app *App, w io.Writer) error {
	cfg, cfgPath, err := app.loadConfig(ctx)
	if err != nil {
		return err
	}

	keyStyle := CmdStyle
	valueStyle := SuccessStyle
	kv := func(key string, value any) {
		fmt.Fprintf(w, "%s: %s\n", keyStyle.Render(key), valueStyle.Render(fmt.Sprint(value)))
	}

	fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(w)
	if cfgPath != "" {
		fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("Config file"), cfgPath)
	} else {
		fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(w)

	kv("host_version", cfg.HostVersion)
	kv("managed_root", cfg.ManagedRoot)
	kv("archive_dir", cfg.ArchiveDir)
	kv("ledger_path", cfg.LedgerPath)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", keyStyle.Render("catalog_urls"))
	if len(cfg.CatalogURLs) == 0 {
		fmt.Fprintf(w, "  %s\n", SubtitleStyle.Render("(none configured)"))
	}
	for _, u := range cfg.CatalogURLs {
		fmt.Fprintf(w, "  - %s\n", valueStyle.Render(string(u)))
	}

	fmt.Fprintln(w)
	kv("check_on_start", cfg.CheckOnStart)
	kv("check_addon_updates", cfg.CheckAddOnUpdates)
	kv("install_addon_updates", cfg.InstallAddOnUpdates)
	kv("install_scan_rules", cfg.InstallScanRules)
	kv("report_alpha", cfg.ReportAlpha)
	kv("report_beta", cfg.ReportBeta)
	kv("report_release", cfg.ReportRelease)
	kv("download_new_release", cfg.DownloadNewRelease)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", keyStyle.Render("downloads"))
	fmt.Fprintf(w, "  workers: %s\n", valueStyle.Render(fmt.Sprint(cfg.Downloads.Workers)))
	fmt.Fprintf(w, "  poll_interval: %s\n", valueStyle.Render(cfg.Downloads.PollInterval.String()))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", keyStyle.Render("ui"))
	fmt.Fprintf(w, "  color_scheme: %s\n", valueStyle.Render(cfg.UI.ColorScheme.String()))
	fmt.Fprintf(w, "  verbose: %s\n", valueStyle.Render(fmt.Sprint(cfg.UI.Verbose)))
	return nil
}

func initConfig(w io.Writer) error {
	path, err := config.CreateDefaultConfig()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render("Configuration file:"), path)
	return nil
}

func showConfigPath(w io.Writer) error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, filepath.Join(cfgDir, config.ConfigFileName+"."+config.ConfigFileExt))
	return nil
}
