package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemasync/database"
	"github.com/ridoystarlord/schemasync/dialect"
	"github.com/ridoystarlord/schemasync/schema"
)

const defaultDocsDialect = dialect.MySQL

func newDocsCmd(a *app) *cobra.Command {
	var format, output, dialectFlag string
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Generate an ERD from the declarations",
		Long: `Generate an entity relationship diagram of every declared table,
link tables included. Column types are shown for the configured dialect.

Supported formats:
  - mermaid: Mermaid ERD (markdown)
  - plantuml: PlantUML ERD

Examples:
  schemasync docs                               # Mermaid to stdout
  schemasync docs --format plantuml -o erd.puml
  schemasync docs --dialect sqlite
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := a.loadCatalog()
			if err != nil {
				return err
			}
			tables, err := catalog.Tables()
			if err != nil {
				return err
			}
			dname := dialectFlag
			if dname == "" && a.cfg.DatabaseURL != "" {
				if dname, _, err = database.ParseURL(a.cfg.DatabaseURL); err != nil {
					return err
				}
			}
			if dname == "" {
				dname = defaultDocsDialect
			}
			if _, err := dialect.Get(dname); err != nil {
				return err
			}

			var content string
			switch format {
			case "mermaid":
				content = mermaidERD(tables, dname)
			case "plantuml":
				content = plantUMLERD(tables, dname)
			default:
				return fmt.Errorf("unsupported format %q (supported: mermaid, plantuml)", format)
			}

			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), content)
				return nil
			}
			if err := os.WriteFile(output, []byte(content), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ ERD saved to:", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "mermaid", "Output format (mermaid, plantuml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&dialectFlag, "dialect", "", "dialect for column types (default: from database url, else mysql)")
	return cmd
}

// columnMarks returns the key markers of a column: PK, UK and FK.
func columnMarks(t *schema.TableSpec, c schema.ColumnSpec) []string {
	var marks []string
	for _, idx := range t.Indexes {
		if len(idx.Columns) != 1 || idx.Columns[0] != c.Name {
			continue
		}
		switch idx.Kind {
		case schema.IndexPrimary:
			marks = append(marks, "PK")
		case schema.IndexUnique:
			marks = append(marks, "UK")
		}
	}
	for _, fk := range t.ForeignKeys {
		if fk.Column == c.Name {
			marks = append(marks, "FK")
		}
	}
	return marks
}

// erdType turns a native type into a single token, as both ERD syntaxes
// split attributes on whitespace.
func erdType(c schema.ColumnSpec, dialect string) string {
	s := c.NativeType(dialect).String()
	s = strings.NewReplacer(" ", "_", "(", "_", ")", "", ",", "_").Replace(s)
	return s
}

func mermaidERD(tables []*schema.TableSpec, dialect string) string {
	var b strings.Builder
	b.WriteString("```mermaid\nerDiagram\n")
	for _, t := range tables {
		fmt.Fprintf(&b, "    %s {\n", t.Name)
		for _, c := range t.Columns {
			line := fmt.Sprintf("        %s %s", erdType(c, dialect), c.Name)
			if marks := columnMarks(t, c); len(marks) > 0 {
				line += " " + strings.Join(marks, ",")
			}
			if c.Nullable {
				line += ` "nullable"`
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("    }\n")
	}
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			fmt.Fprintf(&b, "    %s ||--o{ %s : %s\n", fk.Table, t.Name, fk.Column)
		}
	}
	b.WriteString("```\n")
	return b.String()
}

func plantUMLERD(tables []*schema.TableSpec, dialect string) string {
	var b strings.Builder
	b.WriteString("@startuml\n!theme plain\nskinparam linetype ortho\n\n")
	for _, t := range tables {
		fmt.Fprintf(&b, "entity %q {\n", t.Name)
		for _, c := range t.Columns {
			line := fmt.Sprintf("  %s : %s", c.Name, c.NativeType(dialect).String())
			for _, m := range columnMarks(t, c) {
				line += " <<" + m + ">>"
			}
			if !c.Nullable {
				line += " <<NN>>"
			}
			if c.Default != nil {
				line += fmt.Sprintf(" <<DEFAULT: %s>>", *c.Default)
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("}\n\n")
	}
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			fmt.Fprintf(&b, "%q ||--o{ %q : %q\n", fk.Table, t.Name, fk.Column)
		}
	}
	b.WriteString("@enduml\n")
	return b.String()
}
