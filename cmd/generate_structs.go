package cmd

import (
	"bytes"
	"fmt"
	"go/format"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemasync/loader"
	"github.com/ridoystarlord/schemasync/schema"
	"github.com/ridoystarlord/schemasync/types"
	"github.com/ridoystarlord/schemasync/validator"
)

func newGenerateStructsCmd(a *app) *cobra.Command {
	var outputDir, packageName string
	cmd := &cobra.Command{
		Use:   "generate-structs",
		Short: "Generate tagged Go structs from the declarations",
		Long: `Generate one Go file per entity, declaring it with schemasync struct
tags. The output directory can be used as --schema afterwards.
Has-many relations and named composite unique keys have no tag form and
are reported instead.

Examples:
  schemasync generate-structs                       # Write ./models/
  schemasync generate-structs -o internal/entities  # Custom output directory
  schemasync generate-structs -p entities           # Custom package name
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := loader.Load(a.cfg.SchemaFile)
			if err != nil {
				return err
			}
			if err := validator.Validate(doc).Err(); err != nil {
				return fmt.Errorf("invalid declarations:\n%w", err)
			}

			files, warnings, err := generateStructs(doc, packageName)
			if err != nil {
				return err
			}
			for _, warn := range warnings {
				a.logger.Warn(warn)
			}
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}
			w := cmd.OutOrStdout()
			for _, name := range slices.Sorted(maps.Keys(files)) {
				path := filepath.Join(outputDir, name)
				if err := os.WriteFile(path, files[name], 0o644); err != nil {
					return fmt.Errorf("writing %s: %w", path, err)
				}
				fmt.Fprintln(w, "✅ Generated", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", "models", "Output directory for generated structs")
	cmd.Flags().StringVarP(&packageName, "package", "p", "models", "Package name for generated structs")
	return cmd
}

type structData struct {
	Package     string
	Imports     []string
	Name        string
	Table       string
	TableMethod bool
	Fields      []fieldData
}

type fieldData struct {
	Name string
	Type string
	Tag  string
}

const modelTemplate = `// Code generated by schemasync generate-structs.

package {{.Package}}
{{if .Imports}}
import (
{{range .Imports}}	"{{.}}"
{{end}})
{{end}}
// {{.Name}} is stored in {{.Table}}.
type {{.Name}} struct {
{{range .Fields}}	{{.Name}} {{.Type}} ` + "`{{.Tag}}`" + `
{{end}}}
{{if .TableMethod}}
func ({{.Name}}) TableName() string { return {{printf "%q" .Table}} }
{{end}}`

var modelTmpl = template.Must(template.New("model").Parse(modelTemplate))

// goTypes maps a semantic type to its field type and whether the tag loader
// infers the semantic type back from that field type.
var goTypes = map[types.Semantic]struct {
	goType   string
	inferred bool
}{
	types.ID:        {"int64", false},
	types.String:    {"string", true},
	types.Text:      {"string", false},
	types.Integer:   {"int64", true},
	types.Double:    {"float64", true},
	types.Boolean:   {"bool", true},
	types.Date:      {"time.Time", false},
	types.Time:      {"string", false},
	types.Timestamp: {"time.Time", true},
	types.Datetime:  {"time.Time", false},
	types.Created:   {"time.Time", false},
	types.Modified:  {"time.Time", false},
	types.Binary:    {"[]byte", true},
	types.Hex:       {"string", false},
	types.IP4:       {"string", false},
	types.Object:    {"int64", false},
	types.Serialize: {"any", false},
	types.JSON:      {"map[string]any", true},
}

// generateStructs renders one source file per entity. The warnings list
// declarations that the tag form cannot carry.
func generateStructs(doc *loader.Document, pkg string) (map[string][]byte, []string, error) {
	files := make(map[string][]byte, len(doc.Entities))
	var warnings []string
	for i := range doc.Entities {
		e := &doc.Entities[i]
		data, warns, err := structFor(e, pkg)
		if err != nil {
			return nil, nil, fmt.Errorf("entity %s: %w", e.Name, err)
		}
		warnings = append(warnings, warns...)

		var buf bytes.Buffer
		if err := modelTmpl.Execute(&buf, data); err != nil {
			return nil, nil, fmt.Errorf("entity %s: %w", e.Name, err)
		}
		src, err := format.Source(buf.Bytes())
		if err != nil {
			return nil, nil, fmt.Errorf("entity %s: formatting generated code: %w", e.Name, err)
		}
		files[schema.ToSnakeCase(e.Name)+".go"] = src
	}
	return files, warnings, nil
}

func structFor(e *loader.EntityDef, pkg string) (structData, []string, error) {
	table := e.TableName()
	data := structData{
		Package:     pkg,
		Name:        e.Name,
		Table:       table,
		TableMethod: table != schema.TableName(e.Name),
	}
	var warnings []string

	idColumn := e.IDColumn
	if idColumn == "" {
		idColumn = "id"
	}
	columns := e.Columns
	if _, ok := e.Column(idColumn); !ok && idColumn != "id" {
		columns = append([]loader.ColumnDef{{Name: idColumn, Type: string(types.ID)}}, columns...)
	}

	// flags collects the per-column index and key parts of each tag.
	flags := map[string][]string{}
	for _, k := range e.FindKeys {
		flags[k] = append(flags[k], "find")
	}
	for _, idx := range e.Indexes {
		derived := schema.IndexName(table, idx.Columns...)
		switch {
		case idx.Unique && len(idx.Columns) == 1:
			if idx.Name != "" && idx.Name != derived {
				warnings = append(warnings, fmt.Sprintf("%s: unique key %s is renamed to %s", e.Name, idx.Name, derived))
			}
			flags[idx.Columns[0]] = append(flags[idx.Columns[0]], "unique")
		case idx.Unique:
			warnings = append(warnings, fmt.Sprintf("%s: composite unique key %s has no tag form", e.Name, idx.Name))
		case idx.Name == "" && len(idx.Columns) == 1:
			flags[idx.Columns[0]] = append(flags[idx.Columns[0]], "index")
		default:
			name := idx.Name
			if name == "" {
				name = derived
			}
			if !inFieldOrder(columns, idx.Columns) {
				warnings = append(warnings, fmt.Sprintf("%s: index %s columns are reordered to field order", e.Name, name))
			}
			for _, col := range idx.Columns {
				flags[col] = append(flags[col], "index:"+name)
			}
		}
	}
	for _, rel := range e.HasMany {
		warnings = append(warnings, fmt.Sprintf("%s: has-many %s has no tag form", e.Name, rel.Alias))
	}

	needsTime := false
	for _, c := range columns {
		t, err := types.ParseSemantic(c.Type)
		if err != nil {
			return data, nil, err
		}
		gt := goTypes[t]
		field := fieldData{Name: toPascalCase(c.Name), Type: gt.goType}

		var parts []string
		if schema.ToSnakeCase(field.Name) != c.Name {
			parts = append(parts, "column:"+c.Name)
		}
		switch {
		case c.Name == idColumn:
			parts = append(parts, "primary")
			if t != types.ID {
				parts = append(parts, "type:"+string(t))
			}
		case t == types.Object && c.References != "":
		case !gt.inferred:
			parts = append(parts, "type:"+string(t))
		}
		if c.Size > 0 {
			parts = append(parts, fmt.Sprintf("size:%d", c.Size))
		}
		if c.Nullable {
			if isPointable(gt.goType) {
				field.Type = "*" + gt.goType
			} else {
				parts = append(parts, "null")
			}
		}
		if c.Unsigned {
			parts = append(parts, "unsigned")
		}
		def := c.Default
		if v, ok := e.ColumnDefaults[c.Name]; ok {
			def = &v
		}
		if def != nil {
			if strings.ContainsAny(*def, ";`\"") {
				return data, nil, fmt.Errorf("column %s: default %q cannot be written as a tag", c.Name, *def)
			}
			parts = append(parts, "default:"+*def)
		}
		if c.Previous != "" {
			parts = append(parts, "previous:"+c.Previous)
		}
		if c.References != "" {
			parts = append(parts, "ref:"+c.References)
		}
		parts = append(parts, flags[c.Name]...)

		field.Tag = fmt.Sprintf("schemasync:%q", strings.Join(parts, ";"))
		if strings.Contains(field.Type, "time.Time") {
			needsTime = true
		}
		data.Fields = append(data.Fields, field)
	}
	if needsTime {
		data.Imports = []string{"time"}
	}
	return data, warnings, nil
}

func isPointable(goType string) bool {
	return !strings.HasPrefix(goType, "[]") && !strings.HasPrefix(goType, "map[") && goType != "any"
}

// inFieldOrder reports whether cols appear in the same relative order as
// the columns that declare them.
func inFieldOrder(columns []loader.ColumnDef, cols []string) bool {
	last := -1
	for _, col := range cols {
		pos := slices.IndexFunc(columns, func(c loader.ColumnDef) bool { return c.Name == col })
		if pos < last {
			return false
		}
		last = pos
	}
	return true
}

var initialisms = map[string]string{"Id": "ID", "Ip": "IP", "Url": "URL", "Uuid": "UUID", "Json": "JSON"}

func toPascalCase(s string) string {
	// Convert snake_case to PascalCase
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
			if v, ok := initialisms[parts[i]]; ok {
				parts[i] = v
			}
		}
	}
	return strings.Join(parts, "")
}
