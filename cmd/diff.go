package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemasync/diff"
	"github.com/ridoystarlord/schemasync/schema"
)

func newDiffCmd(a *app) *cobra.Command {
	var visual bool
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show differences between the declarations and the database",
		Long: `Show the operations a sync would apply, without SQL.

Examples:
  schemasync diff                    # One line per operation
  schemasync diff --visual           # Grouped by table, with column details
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, plan, err := a.plan(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			w := cmd.OutOrStdout()
			for _, warn := range plan.Warnings {
				color.New(color.FgYellow).Fprintf(w, "⚠ %v (ignored)\n", warn)
			}
			if plan.Empty() {
				fmt.Fprintln(w, "✅ No differences found between declarations and database")
				return nil
			}
			if visual {
				showVisualDiff(w, plan.Dialect.Name(), plan.Operations)
			} else {
				showTextDiff(w, plan.Operations)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&visual, "visual", "v", false, "group changes by table")
	return cmd
}

func opColor(t diff.OperationType) *color.Color {
	switch t {
	case diff.CreateTable, diff.AddColumn, diff.AddIndex:
		return color.New(color.FgGreen, color.Bold)
	case diff.DropColumn, diff.DropIndex, diff.DropTable:
		return color.New(color.FgRed, color.Bold)
	}
	return color.New(color.FgYellow, color.Bold)
}

func showTextDiff(w io.Writer, ops []diff.Operation) {
	for _, op := range ops {
		opColor(op.Type).Fprintf(w, "%s\n", op)
	}
	fmt.Fprintf(w, "\n📊 %d operation(s)\n", len(ops))
}

func showVisualDiff(w io.Writer, d string, ops []diff.Operation) {
	fmt.Fprintln(w, "🌳 Schema Changes")
	fmt.Fprintln(w, strings.Repeat("=", 50))

	// Group operations by table, keeping plan order
	var tables []string
	byTable := map[string][]diff.Operation{}
	for _, op := range ops {
		if _, ok := byTable[op.Table]; !ok {
			tables = append(tables, op.Table)
		}
		byTable[op.Table] = append(byTable[op.Table], op)
	}

	for _, table := range tables {
		fmt.Fprintf(w, "\n📋 %s:\n", table)
		for _, op := range byTable[table] {
			c := opColor(op.Type)
			switch op.Type {
			case diff.CreateTable:
				c.Fprintln(w, "  ➕ CREATE TABLE")
				for _, col := range op.Spec.Columns {
					fmt.Fprintf(w, "      %s %s\n", col.Name, describeColumn(d, col))
				}
			case diff.AddColumn:
				c.Fprintf(w, "  ➕ ADD %s %s\n", op.Column.Name, describeColumn(d, *op.Column))
			case diff.DropColumn:
				c.Fprintf(w, "  ❌ DROP %s\n", op.Column.Name)
			case diff.RenameColumn:
				c.Fprintf(w, "  🔤 RENAME %s → %s\n", op.Previous.Name, op.Column.Name)
			case diff.AlterColumn:
				c.Fprintf(w, "  🔄 MODIFY %s:\n", op.Column.Name)
				showColumnModifications(w, d, *op.Previous, *op.Column)
			case diff.AddIndex:
				c.Fprintf(w, "  ➕ INDEX %s (%s) %s\n", op.Index.Name, strings.Join(op.Index.Columns, ", "), op.Index.Kind)
			case diff.DropIndex:
				c.Fprintf(w, "  ❌ INDEX %s\n", op.Index.Name)
			default:
				c.Fprintf(w, "  %s\n", op)
			}
		}
	}
}

func describeColumn(d string, col schema.ColumnSpec) string {
	var b strings.Builder
	b.WriteString(col.NativeType(d).String())
	if !col.Nullable {
		b.WriteString(" NOT NULL")
	}
	if col.Default != nil {
		fmt.Fprintf(&b, " DEFAULT %s", *col.Default)
	}
	return b.String()
}

func showColumnModifications(w io.Writer, d string, prev, col schema.ColumnSpec) {
	blue := color.New(color.FgBlue)
	cyan := color.New(color.FgCyan)
	magenta := color.New(color.FgMagenta)

	if from, to := prev.NativeType(d).String(), col.NativeType(d).String(); !strings.EqualFold(from, to) {
		blue.Fprintf(w, "      📊 TYPE: %s → %s\n", from, to)
	}
	if prev.Nullable != col.Nullable {
		if col.Nullable {
			cyan.Fprintln(w, "      ✅ NOT NULL: REMOVED")
		} else {
			cyan.Fprintln(w, "      🚫 NOT NULL: ADDED")
		}
	}
	if from, to := defaultString(prev.Default), defaultString(col.Default); from != to {
		magenta.Fprintf(w, "      🔧 DEFAULT: %s → %s\n", from, to)
	}
}

func defaultString(v *string) string {
	if v == nil {
		return "NULL"
	}
	return *v
}
