// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/addonctl/internal/depcheck"
	"github.com/invowk/addonctl/internal/lifecycle"
	"github.com/invowk/addonctl/pkg/addon"
)

// changeParams bundles the I/O and flags shared by install, uninstall and
// update.
type changeParams struct {
	stdout io.Writer
	stdin  io.Reader
	args   []string
	yes    bool
}

func newChangeParams(cmd *cobra.Command, args []string) changeParams {
	yes, _ := cmd.Flags().GetBool("yes")
	return changeParams{
		stdout: cmd.OutOrStdout(),
		stdin:  cmd.InOrStdin(),
		args:   args,
		yes:    yes,
	}
}

func newInstallCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <addon-id|archive>...",
		Short: "Install add-ons and their dependencies",
		Long: `Install add-ons from the catalog, or add-on archives from disk.

Missing dependencies are installed first. Archives are downloaded into the
archive directory and verified against the catalog before anything is
installed; an archive that fails verification is never installed.`,
		Example: `  # Install from the catalog
  addonctl install ascanrules pscanrules

  # Install an archive from disk
  addonctl install ./custom-1.0.0.zap`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newChangeParams(cmd, args)
			return runSession(cmd, app, func(ctx context.Context, s *session) error {
				return runInstall(ctx, s, p)
			})
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "skip confirmation prompts")
	return cmd
}

// runInstall installs local archives first, then the catalog add-ons named
// in p.args.
func runInstall(ctx context.Context, s *session, p changeParams) error {
	var ids []string
	for _, arg := range p.args {
		if !isLocalArchive(arg) {
			ids = append(ids, arg)
			continue
		}
		report, err := s.coord.InstallLocal(ctx, arg)
		if err == nil {
			var waited *lifecycle.Report
			waited, err = s.wait(ctx)
			if err == nil {
				err = errors.Join(report.Err(), waited.Err())
			}
		}
		if err != nil {
			return actionable("install add-on", arg, err)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	remote, err := s.latest(ctx)
	if err != nil {
		return err
	}
	resource := strings.Join(ids, ", ")
	cs, err := s.coord.PlanInstall(remote, ids, false)
	if err != nil {
		return actionable("install add-on", resource, err)
	}
	if cs.IsEmpty() {
		fmt.Fprintln(p.stdout, SuccessStyle.Render("Nothing to install."))
		return nil
	}

	fmt.Fprint(p.stdout, renderPlan(cs))
	if cs.NeedsConfirmation() {
		if err := confirmChanges(p); err != nil {
			return err
		}
		if cs, err = s.coord.PlanInstall(remote, ids, true); err != nil {
			return actionable("install add-on", resource, err)
		}
	}
	return actionable("install add-on", resource, apply(ctx, s, cs))
}

// apply applies cs and waits for its downloads to be installed.
func apply(ctx context.Context, s *session, cs *depcheck.ChangeSet) error {
	report, err := s.coord.ApplyChanges(ctx, cs)
	if err != nil {
		return err
	}
	waited, err := s.wait(ctx)
	if err != nil {
		return err
	}
	return errors.Join(report.Err(), waited.Err())
}

// confirmChanges asks before a change-set that removes add-ons nobody named
// or needs a newer host. --yes answers for the user.
func confirmChanges(p changeParams) error {
	if p.yes {
		return nil
	}
	ok, err := confirm(p.stdin, p.stdout, "Apply these changes?", false)
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	return nil
}

// isLocalArchive reports whether arg names an add-on archive on disk.
func isLocalArchive(arg string) bool {
	if !addon.IsArchiveName(arg) {
		return false
	}
	info, err := os.Stat(arg)
	return err == nil && !info.IsDir()
}
