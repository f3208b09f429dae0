// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newUpdateCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update installed add-ons",
		Long: `Update every installed add-on that has a newer version in the catalog.

Updates that would leave installed add-ons without an acceptable
dependency are held back unless confirmed, in which case those add-ons
are uninstalled.`,
		Example: `  addonctl update
  addonctl update --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newChangeParams(cmd, args)
			return runSession(cmd, app, func(ctx context.Context, s *session) error {
				return runUpdate(ctx, s, p)
			})
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "skip confirmation prompts")
	return cmd
}

// runUpdate plans and applies the updates of every installed add-on.
func runUpdate(ctx context.Context, s *session, p changeParams) error {
	remote, err := s.latest(ctx)
	if err != nil {
		return err
	}
	cs, err := s.coord.PlanUpdates(remote, false)
	if err != nil {
		return actionable("update add-ons", "", err)
	}

	fmt.Fprint(p.stdout, renderPlan(cs))
	if cs.NeedsConfirmation() {
		if err := confirmChanges(p); err != nil {
			return err
		}
		if cs, err = s.coord.PlanUpdates(remote, true); err != nil {
			return actionable("update add-ons", "", err)
		}
	}
	if cs.IsEmpty() {
		fmt.Fprintln(p.stdout, SuccessStyle.Render("All add-ons are up to date."))
		return nil
	}
	return actionable("update add-ons", "", apply(ctx, s, cs))
}
