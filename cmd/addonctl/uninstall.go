// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newUninstallCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall <addon-id>...",
		Short: "Uninstall add-ons",
		Long: `Uninstall add-ons and remove their files from the managed root.

Installed add-ons that depend on the named ones are uninstalled as well,
after confirmation. Files that other installed add-ons declare are kept.`,
		Example: `  addonctl uninstall ascanrules
  addonctl uninstall --yes commonlib`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newChangeParams(cmd, args)
			return runSession(cmd, app, func(ctx context.Context, s *session) error {
				return runUninstall(ctx, s, p)
			})
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "skip confirmation prompts")
	return cmd
}

// runUninstall removes the add-ons named in p.args and, once confirmed,
// their installed dependents.
func runUninstall(ctx context.Context, s *session, p changeParams) error {
	resource := strings.Join(p.args, ", ")
	cs, err := s.coord.PlanUninstall(p.args, false)
	if err != nil {
		return actionable("uninstall add-on", resource, err)
	}

	fmt.Fprint(p.stdout, renderPlan(cs))
	if cs.NeedsConfirmation() {
		fmt.Fprintln(p.stdout, WarningStyle.Render("Installed add-ons depending on "+resource+" will be uninstalled too."))
		if err := confirmChanges(p); err != nil {
			return err
		}
		if cs, err = s.coord.PlanUninstall(p.args, true); err != nil {
			return actionable("uninstall add-on", resource, err)
		}
	}
	return actionable("uninstall add-on", resource, apply(ctx, s, cs))
}
