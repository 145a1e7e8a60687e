package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newSyncCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Apply the declarations to the database",
		Long: `Plan and apply in one step. Operations run in order on a single
connection; SQLite and PostgreSQL run each one in its own transaction.
The first failure stops the run.

Examples:
  schemasync sync
  schemasync sync --dry-run          # Print the SQL instead
  schemasync sync --history          # Record each operation
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, r, plan, err := a.plan(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			w := cmd.OutOrStdout()
			if plan.Empty() {
				fmt.Fprintln(w, "✅ Schema is up to date.")
				return nil
			}
			if dryRun {
				up, down, err := plan.SQL()
				if err != nil {
					return fmt.Errorf("generating SQL: %w", err)
				}
				printSQL(w, up, down)
				fmt.Fprintln(w, "(Dry run only. Nothing was applied.)")
				return nil
			}

			res, err := r.Apply(ctx, plan)
			green := color.New(color.FgGreen)
			yellow := color.New(color.FgYellow)
			if res != nil {
				for _, applied := range res.Applied {
					green.Fprintf(w, "  ✔ %s (%v)\n", applied.Operation, applied.Duration.Round(time.Microsecond))
				}
				for _, op := range res.Skipped {
					yellow.Fprintf(w, "  ⚠ %s already applied\n", op)
				}
			}
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			fmt.Fprintf(w, "✅ Applied %d operation(s), skipped %d (run %s)\n", len(res.Applied), len(res.Skipped), res.RunID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the SQL that would be executed without applying it")
	return cmd
}
