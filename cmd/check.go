package cmd

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemasync/introspect"
	"github.com/ridoystarlord/schemasync/runner"
)

func newCheckCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check database connectivity and show the live schema",
		Long: `Check the current state of your database.

This command will:
- Verify database connectivity
- List the live tables with their column and index counts
- Report columns whose native type has no semantic type
- Report whether the sync history table exists

Examples:
  schemasync check                    # Check current state
  schemasync check --timeout 10s      # Set custom timeout
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db, err := a.openDB(ctx)
			if err != nil {
				return fmt.Errorf("database health check failed: %w", err)
			}
			defer db.Close()

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "✅ Connected to %s database\n", db.Dialect().Name())

			live, err := introspect.Introspect(ctx, db, db.Dialect(), "")
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(w)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Table", "Columns", "Indexes", "Foreign keys"})
			names := make([]string, 0, len(live.Tables))
			for name := range live.Tables {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				spec := live.Tables[name]
				t.AppendRow(table.Row{name, len(spec.Columns), len(spec.Indexes), len(spec.ForeignKeys)})
			}
			t.Render()

			for _, warn := range live.Warnings {
				fmt.Fprintf(w, "⚠️  %v\n", warn)
			}

			if _, ok := live.Tables[runner.HistoryTable]; !ok {
				fmt.Fprintf(w, "ℹ️  %s not found (enable with --history)\n", runner.HistoryTable)
				return nil
			}
			records, err := a.newRunner(db).History(ctx, 0, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "📊 Found %d recorded operations\n", len(records))
			return nil
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "Timeout for the check")
	return cmd
}
