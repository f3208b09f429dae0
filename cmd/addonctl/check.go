// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// checkParams bundles the flags of the check command.
type checkParams struct {
	stdout          io.Writer
	downloadRelease bool
}

func newCheckCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check for host and add-on updates",
		Long: `Fetch the add-on catalog and report what changed since the last check.

The host release is checked first. Add-on updates are then checked, and
installed automatically when install_addon_updates (or install_scan_rules
for scan rule add-ons) is set in the configuration. Finally the add-ons
published since the last check are listed, filtered by the report_alpha,
report_beta and report_release settings.`,
		Example: `  # Report available updates
  addonctl check

  # Also download a newer host release
  addonctl check --download-release`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := checkParams{stdout: cmd.OutOrStdout()}
			p.downloadRelease, _ = cmd.Flags().GetBool("download-release")
			return runSession(cmd, app, func(ctx context.Context, s *session) error {
				return runCheck(ctx, s, p)
			})
		},
	}
	cmd.Flags().Bool("download-release", false, "download a newer host release into the archive directory")
	return cmd
}

// runCheck processes the latest catalog and waits for the downloads it
// started.
func runCheck(ctx context.Context, s *session, p checkParams) error {
	remote, err := s.latest(ctx)
	if err != nil {
		return err
	}

	res, err := s.coord.OnLatest(ctx, remote)
	if err != nil {
		return actionable("check for updates", "", err)
	}
	if res.HostUpdate != nil && p.downloadRelease && !s.cfg.DownloadNewRelease {
		if err := s.coord.DownloadRelease(res.HostUpdate); err != nil {
			return actionable("download host release", res.HostUpdate.Release.Version.String(), err)
		}
	}

	waited, err := s.wait(ctx)
	if err != nil {
		return err
	}
	if failed := errors.Join(res.Report.Err(), waited.Err()); failed != nil {
		return actionable("install add-on updates", "", failed)
	}

	if res.HostUpdate == nil && (res.Updates == nil || res.Updates.IsEmpty()) && len(res.NewAddOns) == 0 {
		fmt.Fprintln(p.stdout, SuccessStyle.Render("Everything is up to date."))
	}
	return nil
}
