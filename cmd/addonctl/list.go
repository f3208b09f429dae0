// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/invowk/addonctl/pkg/addon"
)

type listParams struct {
	stdout io.Writer
	remote bool
}

func newListCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed or published add-ons",
		Example: `  # Installed add-ons
  addonctl list

  # Every add-on in the catalog, with the installed version
  addonctl list --remote`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := listParams{stdout: cmd.OutOrStdout()}
			p.remote, _ = cmd.Flags().GetBool("remote")
			return runSession(cmd, app, func(ctx context.Context, s *session) error {
				return runList(ctx, s, p)
			})
		},
	}
	cmd.Flags().BoolP("remote", "r", false, "list the add-ons of the catalog")
	return cmd
}

func runList(ctx context.Context, s *session, p listParams) error {
	installed := s.coord.Installed()
	if !p.remote {
		if installed.Len() == 0 {
			fmt.Fprintln(p.stdout, SubtitleStyle.Render("No add-ons installed."))
			return nil
		}
		rows := make([][]string, 0, installed.Len())
		for _, a := range installed.AddOns() {
			rows = append(rows, []string{a.ID, a.Name, a.Version.String(), a.Status.String()})
		}
		fmt.Fprintln(p.stdout, renderTable([]string{"ID", "NAME", "VERSION", "STATUS"}, rows))
		return nil
	}

	remote, err := s.latest(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, remote.Len())
	for _, a := range remote.AddOns() {
		rows = append(rows, []string{a.ID, a.Name, a.Version.String(), a.Maturity.String(), installedColumn(installed, a)})
	}
	fmt.Fprintln(p.stdout, renderTable([]string{"ID", "NAME", "VERSION", "MATURITY", "INSTALLED"}, rows))
	return nil
}

// installedColumn shows the installed version of a, flagged when the
// catalog has a newer one.
func installedColumn(installed *addon.Catalog, a *addon.AddOn) string {
	local, ok := installed.Get(a.ID)
	if !ok {
		return "-"
	}
	if a.IsNewerThan(local) {
		return local.Version.String() + " (update)"
	}
	return local.Version.String()
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(SubtitleStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}
