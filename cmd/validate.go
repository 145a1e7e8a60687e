package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemasync/loader"
	"github.com/ridoystarlord/schemasync/validator"
)

var errInvalidSchema = errors.New("schema validation failed")

func newValidateCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate entity declarations",
		Long: `Validate your entity declarations without touching a database.

This command checks:
- Table, column and index names (identifier rules, reserved keywords)
- Column types (the semantic type set)
- Has-one and has-many targets
- Index, find-key and default columns
- Default values against their column type
- Foreign key cycles among the declared tables

Examples:
  schemasync validate                       # Validate schema.yaml
  schemasync validate -s models/            # Validate tagged Go structs
  schemasync validate --format json         # Output results as JSON
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := loader.Load(a.cfg.SchemaFile)
			if err != nil {
				return fmt.Errorf("failed to load declarations: %w", err)
			}
			result := validator.Validate(doc)

			w := cmd.OutOrStdout()
			if format == "json" {
				err = outputJSON(w, result)
			} else {
				outputText(w, result)
			}
			if err != nil {
				return err
			}
			if !result.Valid {
				return errInvalidSchema
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json)")
	return cmd
}

func outputJSON(w io.Writer, result *validator.ValidationResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputText(w io.Writer, result *validator.ValidationResult) {
	if result.Valid {
		color.New(color.FgGreen).Fprintln(w, "✅ Schema validation passed!")
	} else {
		color.New(color.FgRed).Fprintln(w, "❌ Schema validation failed!")
	}

	printFindings(w, "🔴 Errors", result.Errors)
	printFindings(w, "🟡 Warnings", result.Warnings)
	printFindings(w, "🔵 Info", result.Info)

	fmt.Fprintf(w, "\n📊 Summary:\n")
	fmt.Fprintf(w, "  • Errors: %d\n", len(result.Errors))
	fmt.Fprintf(w, "  • Warnings: %d\n", len(result.Warnings))
	fmt.Fprintf(w, "  • Info: %d\n", len(result.Info))

	if result.Valid {
		fmt.Fprintf(w, "\n🎉 Your declarations are valid and ready to sync!\n")
	} else {
		fmt.Fprintf(w, "\n💡 Fix the errors above before planning.\n")
	}
}

func printFindings(w io.Writer, title string, findings []validator.ValidationError) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d):\n", title, len(findings))
	for i, f := range findings {
		fmt.Fprintf(w, "  %d. ", i+1)
		if f.Line > 0 {
			fmt.Fprintf(w, "%s:%d ", f.Source, f.Line)
		}
		if f.Table != "" {
			fmt.Fprintf(w, "[%s]", f.Table)
		}
		if f.Column != "" {
			fmt.Fprintf(w, ".%s", f.Column)
		}
		if f.Index != "" {
			fmt.Fprintf(w, " (index: %s)", f.Index)
		}
		fmt.Fprintf(w, ": %s\n", f.Message)
	}
}
