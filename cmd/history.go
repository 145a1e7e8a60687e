package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemasync/database"
	"github.com/ridoystarlord/schemasync/runner"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit    int
		tableArg string
		detailed bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded sync operations",
		Long: `Show the operations recorded by runs with --history, newest first.

Examples:
  schemasync history                    # Show all recorded operations
  schemasync history --limit 10         # Show the last 10
  schemasync history --table users      # Only operations on users
  schemasync history --detailed         # Include the executed SQL
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			w := cmd.OutOrStdout()
			records, err := a.newRunner(db).History(ctx, limit, tableArg)
			if errors.Is(err, database.ErrTableNotFound) {
				fmt.Fprintln(w, "📋 No sync history found (run sync with --history)")
				return nil
			}
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(w, "📋 No sync history found")
				return nil
			}

			if detailed {
				showDetailedHistory(w, records)
			} else {
				showSummaryHistory(w, records)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Limit number of records to show (0 = all)")
	cmd.Flags().StringVarP(&tableArg, "table", "t", "", "Filter by table name")
	cmd.Flags().BoolVarP(&detailed, "detailed", "d", false, "Show detailed information")
	return cmd
}

func showDetailedHistory(w io.Writer, records []runner.HistoryRecord) {
	blue := color.New(color.FgBlue, color.Bold)
	cyan := color.New(color.FgCyan)

	for i, record := range records {
		fmt.Fprintf(w, "\n%d. ", i+1)
		blue.Fprintf(w, "%s %s\n", record.Operation, record.Table)
		cyan.Fprintf(w, "   📅 Executed: %s\n", record.ExecutedAt.Format("2006-01-02 15:04:05"))
		cyan.Fprintf(w, "   ⏱️  Duration: %v\n", record.Duration)
		if record.ExecutedBy != "" {
			cyan.Fprintf(w, "   👤 User: %s\n", record.ExecutedBy)
		}
		cyan.Fprintf(w, "   🆔 Run: %s\n", record.RunID)
		if len(record.Checksum) >= 8 {
			cyan.Fprintf(w, "   🔍 Checksum: %s...\n", record.Checksum[:8])
		}
		for _, stmt := range strings.Split(record.Statements, "\n") {
			fmt.Fprintf(w, "      %s\n", stmt)
		}
	}
}

func showSummaryHistory(w io.Writer, records []runner.HistoryRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Operation", "Table", "Duration", "User", "Run", "Date"})

	var total time.Duration
	runs := map[string]bool{}
	for _, record := range records {
		user := record.ExecutedBy
		if user == "" {
			user = "N/A"
		}
		run := record.RunID
		if len(run) > 8 {
			run = run[:8]
		}
		t.AppendRow(table.Row{
			record.ID,
			record.Operation,
			record.Table,
			record.Duration.String(),
			user,
			run,
			record.ExecutedAt.Format("2006-01-02 15:04"),
		})
		total += record.Duration
		runs[record.RunID] = true
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d ops", len(records)), "", total.String(), "", fmt.Sprintf("%d runs", len(runs)), ""})
	t.Render()
}
