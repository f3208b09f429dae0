// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "addonctl",
		Short: "Install, update and remove host add-ons",
		Long: TitleStyle.Render("addonctl") + SubtitleStyle.Render(" - add-on lifecycle manager") + `

addonctl fetches the add-on catalog, resolves dependencies between
add-ons, downloads and verifies their archives, and installs or removes
their files and components under the managed root.

` + SubtitleStyle.Render("Examples:") + `
  addonctl check                 Look for host and add-on updates
  addonctl install ascanrules    Install an add-on and its dependencies
  addonctl install ./my.zap      Install an add-on archive from disk
  addonctl update                Update every installed add-on
  addonctl uninstall ascanrules  Remove an add-on
  addonctl list --remote         Show the published add-ons`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default is $HOME/.config/addonctl/config.cue)")

	rootCmd.AddCommand(
		newCheckCommand(app),
		newInstallCommand(app),
		newUninstallCommand(app),
		newUpdateCommand(app),
		newListCommand(app),
		newHistoryCommand(app),
		newConfigCommand(app),
	)
	return rootCmd
}

// Execute runs the CLI. This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// runSession opens a session, runs fn against it and turns failures into
// an ExitError after printing them.
func runSession(cmd *cobra.Command, app *App, fn func(ctx context.Context, s *session) error) error {
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	ctx := cmd.Context()
	s, err := app.open(ctx)
	if err != nil {
		printError(app.stderr, err, app.verbose, "auto")
		return &ExitError{Code: classifyExitCode(err), Err: err}
	}
	defer s.Close()

	if err := fn(ctx, s); err != nil {
		printError(app.stderr, err, s.verbose, s.cfg.UI.ColorScheme.String())
		return &ExitError{Code: classifyExitCode(err), Err: err}
	}
	return nil
}
