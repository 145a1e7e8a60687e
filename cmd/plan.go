package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemasync/generator"
)

func newPlanCmd(a *app) *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the SQL a sync would run, or save it as a plan file",
		Long: `Compare the declarations with the database and print the DDL a sync
would run, followed by its rollback. Nothing is executed.

Examples:
  schemasync plan                    # Print up and down SQL
  schemasync plan --write            # Save them under migrations_dir
  schemasync plan -s models/         # Plan from tagged Go structs
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, _, plan, err := a.plan(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			w := cmd.OutOrStdout()
			if plan.Empty() {
				fmt.Fprintln(w, "✅ No changes detected.")
				return nil
			}
			up, down, err := plan.SQL()
			if err != nil {
				return fmt.Errorf("generating SQL: %w", err)
			}

			if write {
				filename, err := generator.WriteMigrationFile(a.cfg.MigrationsDir, up, down)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "✅ Plan written:", filename)
				return nil
			}
			printSQL(w, up, down)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write a timestamped .sql file into migrations_dir")
	return cmd
}

func printSQL(w io.Writer, up, down []string) {
	fmt.Fprintln(w, "-- Up SQL --")
	for _, stmt := range up {
		fmt.Fprintln(w, stmt)
	}
	fmt.Fprintln(w, "\n-- Down SQL (Rollback) --")
	for _, stmt := range down {
		fmt.Fprintln(w, stmt)
	}
}
