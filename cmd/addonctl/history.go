// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/invowk/addonctl/internal/ledger"
)

type historyParams struct {
	stdout    io.Writer
	addOnID   string
	limit     int
	downloads bool
}

func newHistoryCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the install journal",
		Long: `Show the most recent install, update and uninstall steps, newest first.
With --downloads, show the finished archive transfers instead.`,
		Example: `  addonctl history
  addonctl history --addon ascanrules --limit 10
  addonctl history --downloads`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := historyParams{stdout: cmd.OutOrStdout()}
			p.addOnID, _ = cmd.Flags().GetString("addon")
			p.limit, _ = cmd.Flags().GetInt("limit")
			p.downloads, _ = cmd.Flags().GetBool("downloads")
			return runSession(cmd, app, func(ctx context.Context, s *session) error {
				return runHistory(ctx, s.ledger, p)
			})
		},
	}
	cmd.Flags().String("addon", "", "only show steps of this add-on")
	cmd.Flags().IntP("limit", "n", ledger.DefaultHistoryLimit, "maximum number of entries")
	cmd.Flags().Bool("downloads", false, "show downloads instead of lifecycle steps")
	return cmd
}

func runHistory(ctx context.Context, l *ledger.Ledger, p historyParams) error {
	if p.downloads {
		downloads, err := l.Downloads(ctx, p.limit)
		if err != nil {
			return actionable("read install journal", "", err)
		}
		if len(downloads) == 0 {
			fmt.Fprintln(p.stdout, SubtitleStyle.Render("No downloads recorded."))
			return nil
		}
		rows := make([][]string, 0, len(downloads))
		for _, d := range downloads {
			rows = append(rows, []string{
				d.FinishedAt.Local().Format(time.DateTime),
				d.URL,
				okColumn(d.Validated),
				d.FinishedAt.Sub(d.StartedAt).Round(time.Millisecond).String(),
				d.Detail,
			})
		}
		fmt.Fprintln(p.stdout, renderTable([]string{"FINISHED", "URL", "VALID", "TOOK", "DETAIL"}, rows))
		return nil
	}

	entries, err := l.History(ctx, ledger.Filter{AddOnID: p.addOnID, Limit: p.limit})
	if err != nil {
		return actionable("read install journal", p.addOnID, err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(p.stdout, SubtitleStyle.Render("No history recorded."))
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.At.Local().Format(time.DateTime),
			e.Action,
			e.AddOnID,
			e.Version,
			e.Status.String(),
			okColumn(e.OK),
			e.Detail,
		})
	}
	fmt.Fprintln(p.stdout, renderTable([]string{"WHEN", "ACTION", "ADD-ON", "VERSION", "STATUS", "OK", "DETAIL"}, rows))
	return nil
}

func okColumn(ok bool) string {
	if ok {
		return SuccessStyle.Render("yes")
	}
	return ErrorStyle.Render("no")
}
