package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemasync/query"
)

func newQueryCmd(a *app) *cobra.Command {
	var (
		where   string
		columns []string
		orderBy []string
		limit   int
		format  string
	)
	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "Select rows with the where mini-language",
		Long: `Select rows from a table. --where takes a JSON object in the where
mini-language: keys are "column" or "column|operator", "OR" holds a list
of alternative groups, lists become IN.

Examples:
  schemasync query users
  schemasync query users --where '{"age|>=": 18, "name|%": "an"}'
  schemasync query users --where '{"OR": [{"name": "ann"}, {"email": null}]}'
  schemasync query users -c id,name --order "name DESC" --limit 5 -f json
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sel := query.Select(args[0]).What(columns...).OrderBy(orderBy...)
			if where != "" {
				var m map[string]any
				if err := json.Unmarshal([]byte(where), &m); err != nil {
					return fmt.Errorf("--where must be a JSON object: %w", err)
				}
				opts := []query.WhereOption{query.WithLogger(a.logger)}
				if a.cfg.LegacyOperators {
					opts = append(opts, query.LegacyOperators())
				}
				w, err := query.ParseWhere(m, opts...)
				if err != nil {
					return err
				}
				sel.Where(w)
			}
			if limit > 0 {
				sel.Limit(limit)
			}

			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if stmt, params, err := sel.ToSQL(db.Dialect()); err == nil {
				a.logger.Debug("running query", "sql", stmt, "args", params)
			}
			rows, err := sel.Iterate(ctx, db)
			if err != nil {
				return err
			}
			defer rows.Close()

			cols := rows.Columns()
			var results []map[string]any
			for rows.Next() {
				results = append(results, rows.Row())
			}
			if err := rows.Err(); err != nil {
				return err
			}

			if format == "json" {
				return renderJSON(cmd.OutOrStdout(), results)
			}
			renderTable(cmd.OutOrStdout(), cols, results)
			return nil
		},
	}
	cmd.Flags().StringVarP(&where, "where", "w", "", "filter as a JSON object")
	cmd.Flags().StringSliceVarP(&columns, "columns", "c", nil, "columns to select (default all)")
	cmd.Flags().StringSliceVar(&orderBy, "order", nil, `order by, e.g. "name" or "id DESC"`)
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "maximum number of rows (0 = all)")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	return cmd
}

func renderTable(w io.Writer, cols []string, results []map[string]any) {
	if len(results) == 0 {
		fmt.Fprintln(w, "(0 rows)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(cols))
	for i, col := range cols {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, result := range results {
		row := make(table.Row, len(cols))
		for i, col := range cols {
			row[i] = formatValue(result[col])
		}
		t.AppendRow(row)
	}

	t.Render()
	fmt.Fprintf(w, "(%d rows)\n", len(results))
}

func renderJSON(w io.Writer, results []map[string]any) error {
	for _, row := range results {
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
	}
	if results == nil {
		results = []map[string]any{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
