package loader

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/ridoystarlord/schemasync/schema"
)

// TagName is the struct tag holding column declarations.
const TagName = "schemasync"

// TagLoader loads declarations from Go structs tagged with `schemasync`.
//
//	type User struct {
//		ID    int64  `schemasync:"primary"`
//		Name  string `schemasync:"size:64;default:anon;find"`
//		Email string `schemasync:"null;unique"`
//		Group int64  `schemasync:"ref:Group"`
//	}
//
// A method `func (User) TableName() string { return "people" }` overrides
// the derived table name.
type TagLoader struct {
	modelsDir string
}

// NewTagLoader creates a new tag loader
func NewTagLoader(modelsDir string) *TagLoader {
	return &TagLoader{
		modelsDir: modelsDir,
	}
}

// LoadTags loads declarations from every Go file under modelsDir.
func LoadTags(modelsDir string) (*Document, error) {
	return NewTagLoader(modelsDir).Load()
}

// Load loads all models from the models directory
func (tl *TagLoader) Load() (*Document, error) {
	// Check if models directory exists
	if _, err := os.Stat(tl.modelsDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("models directory '%s' does not exist", tl.modelsDir)
	}

	doc := &Document{Source: tl.modelsDir}
	err := filepath.WalkDir(tl.modelsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// Skip directories, tests and non-Go files
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		entities, err := tl.parseGoFile(path)
		if err != nil {
			return err
		}
		doc.Entities = append(doc.Entities, entities...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}
	return doc, nil
}

// parseGoFile parses a single Go file and extracts entity definitions
func (tl *TagLoader) parseGoFile(path string) ([]EntityDef, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Go file: %w", err)
	}

	tables := tableNameMethods(file)
	var entities []EntityDef
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts := spec.(*ast.TypeSpec)
			st, ok := ts.Type.(*ast.StructType)
			if !ok {
				continue
			}
			e, tagged, err := tl.parseStruct(fset, path, ts.Name.Name, st)
			if err != nil {
				return nil, err
			}
			if !tagged {
				continue
			}
			e.Table = tables[ts.Name.Name]
			entities = append(entities, e)
		}
	}
	return entities, nil
}

// parseStruct converts a tagged struct into an entity definition. It
// reports false when no field carries the tag.
func (tl *TagLoader) parseStruct(fset *token.FileSet, path, name string, st *ast.StructType) (EntityDef, bool, error) {
	e := EntityDef{Name: name, Source: path, Line: fset.Position(st.Pos()).Line}
	named := map[string]int{} // index name -> position in e.Indexes
	tagged := false

	for _, field := range st.Fields.List {
		if len(field.Names) == 0 || field.Tag == nil {
			continue // Skip embedded and untagged fields
		}
		raw, err := strconv.Unquote(field.Tag.Value)
		if err != nil {
			continue
		}
		value, ok := reflect.StructTag(raw).Lookup(TagName)
		if !ok {
			continue
		}
		tagged = true

		line := fset.Position(field.Pos()).Line
		tag, err := schema.ParseFieldTag(value)
		if err != nil {
			return e, true, &Error{Source: path, Line: line, Msg: fmt.Sprintf("%s.%s: %v", name, field.Names[0].Name, err)}
		}
		if tag.Ignore {
			continue
		}

		col := ColumnDef{
			Name:       tag.Column,
			Type:       tag.Type,
			Size:       tag.Size,
			Nullable:   tag.Nullable,
			Unsigned:   tag.Unsigned,
			Default:    tag.Default,
			Previous:   tag.Previous,
			References: tag.References,
			Line:       line,
		}
		// If no column name specified, use the field name (converted to snake_case)
		if col.Name == "" {
			col.Name = schema.ToSnakeCase(field.Names[0].Name)
		}
		if _, ptr := field.Type.(*ast.StarExpr); ptr {
			col.Nullable = true
		}

		// If no data type specified, infer from Go type
		if col.Type == "" {
			switch {
			case tag.Primary:
				col.Type = "id"
			case tag.References != "":
				col.Type = "object"
			default:
				col.Type = inferType(goType(field.Type))
			}
			if col.Type == "" {
				return e, true, &Error{Source: path, Line: line,
					Msg: fmt.Sprintf("%s.%s: cannot infer a column type from %s, add type:...", name, field.Names[0].Name, goType(field.Type))}
			}
		}
		e.Columns = append(e.Columns, col)

		if tag.Primary {
			e.IDColumn = col.Name
		}
		if tag.Find {
			e.FindKeys = append(e.FindKeys, col.Name)
		}
		if tag.Unique {
			e.Indexes = append(e.Indexes, IndexDef{Columns: []string{col.Name}, Unique: true, Line: line})
		}
		switch tag.Index {
		case "":
		case "-":
			e.Indexes = append(e.Indexes, IndexDef{Columns: []string{col.Name}, Line: line})
		default:
			// fields sharing an index name form one composite index
			if i, ok := named[tag.Index]; ok {
				e.Indexes[i].Columns = append(e.Indexes[i].Columns, col.Name)
				continue
			}
			named[tag.Index] = len(e.Indexes)
			e.Indexes = append(e.Indexes, IndexDef{Name: tag.Index, Columns: []string{col.Name}, Line: line})
		}
	}
	return e, tagged, nil
}

// tableNameMethods finds `func (T) TableName() string { return "..." }`.
func tableNameMethods(file *ast.File) map[string]string {
	out := map[string]string{}
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Name.Name != "TableName" || fn.Recv == nil || len(fn.Recv.List) != 1 || fn.Body == nil || len(fn.Body.List) != 1 {
			continue
		}
		recv := goType(fn.Recv.List[0].Type)
		ret, ok := fn.Body.List[0].(*ast.ReturnStmt)
		if !ok || len(ret.Results) != 1 {
			continue
		}
		lit, ok := ret.Results[0].(*ast.BasicLit)
		if !ok || lit.Kind != token.STRING {
			continue
		}
		if s, err := strconv.Unquote(lit.Value); err == nil {
			out[recv] = s
		}
	}
	return out
}

// goType extracts the Go type name from an ast.Expr
func goType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return goType(t.X)
	case *ast.ArrayType:
		return "[]" + goType(t.Elt)
	case *ast.MapType:
		return "map[" + goType(t.Key) + "]" + goType(t.Value)
	case *ast.SelectorExpr:
		if x, ok := t.X.(*ast.Ident); ok {
			return x.Name + "." + t.Sel.Name
		}
	}
	return ""
}

// inferType maps a Go type to a column type, or "" when there is none.
func inferType(goType string) string {
	switch goType {
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64":
		return "integer"
	case "string":
		return "string"
	case "bool":
		return "boolean"
	case "float32", "float64":
		return "double"
	case "time.Time":
		return "timestamp"
	case "[]byte", "[]uint8":
		return "binary"
	case "netip.Addr", "net.IP":
		return "ip4"
	case "json.RawMessage":
		return "json"
	}
	if strings.HasPrefix(goType, "[]") || strings.HasPrefix(goType, "map[") {
		return "json"
	}
	return ""
}
