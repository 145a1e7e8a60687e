// Package loader reads entity declarations from YAML files or from tagged
// Go structs.
package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ridoystarlord/schemasync/schema"
	"github.com/ridoystarlord/schemasync/types"
)

// Error is a declaration error at a position in its source.
type Error struct {
	Source string
	Line   int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Document is the raw, unvalidated form of a set of declarations.
type Document struct {
	Source   string
	Entities []EntityDef
}

type EntityDef struct {
	Name           string
	Table          string
	IDColumn       string
	Columns        []ColumnDef
	ColumnDefaults map[string]string
	FindKeys       []string
	Indexes        []IndexDef
	HasMany        []HasManyDef
	Source         string
	Line           int
}

type ColumnDef struct {
	Name       string
	Type       string
	Size       int
	Nullable   bool
	Unsigned   bool
	Default    *string
	Previous   string
	References string
	Line       int
}

type IndexDef struct {
	Name    string
	Columns []string
	Unique  bool
	Line    int
}

type HasManyDef struct {
	Alias      string
	Entity     string
	Link       string
	ForeignKey string
	FarKey     string
	Line       int
}

// Column returns the definition of the named column.
func (e *EntityDef) Column(name string) (ColumnDef, bool) {
	for _, c := range e.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// TableName returns the declared table, or the one derived from the name.
func (e *EntityDef) TableName() string {
	if e.Table != "" {
		return e.Table
	}
	return schema.TableName(e.Name)
}

// Build turns the definition into an entity declaration.
func (e *EntityDef) Build() (*schema.EntityDeclaration, error) {
	b := schema.NewEntity(e.Name)
	if e.Table != "" {
		b.Table(e.Table)
	}
	if e.IDColumn != "" {
		b.ID(e.IDColumn)
	}
	for _, c := range e.Columns {
		t, err := types.ParseSemantic(c.Type)
		if err != nil {
			return nil, e.errorf(c.Line, "column %s: %v", c.Name, err)
		}
		var opts []schema.ColumnOption
		if c.Size > 0 {
			opts = append(opts, schema.Size(c.Size))
		}
		if c.Nullable {
			opts = append(opts, schema.Nullable())
		}
		if c.Unsigned {
			opts = append(opts, schema.Unsigned())
		}
		if c.Default != nil {
			opts = append(opts, schema.Default(*c.Default))
		}
		if c.Previous != "" {
			opts = append(opts, schema.PreviousName(c.Previous))
		}
		b.Column(c.Name, t, opts...)
		if c.References != "" {
			b.HasOne(c.Name, c.References)
		}
	}
	for col, v := range e.ColumnDefaults {
		b.Default(col, v)
	}
	if len(e.FindKeys) > 0 {
		b.FindKeys(e.FindKeys...)
	}
	for _, idx := range e.Indexes {
		if idx.Unique {
			b.Unique(idx.Name, idx.Columns...)
		} else {
			b.Index(idx.Name, idx.Columns...)
		}
	}
	for _, rel := range e.HasMany {
		b.HasMany(rel.Alias, schema.HasMany{
			Entity:     rel.Entity,
			ForeignKey: rel.ForeignKey,
			Link:       rel.Link,
			FarKey:     rel.FarKey,
		})
	}

	decl, err := b.Build()
	if err != nil {
		return nil, &Error{Source: e.Source, Line: e.Line, Msg: err.Error(), Err: err}
	}
	return decl, nil
}

func (e *EntityDef) errorf(line int, format string, args ...any) error {
	return &Error{Source: e.Source, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// Catalog builds every entity and assembles them into a catalog.
func (d *Document) Catalog() (*schema.Catalog, error) {
	decls := make([]*schema.EntityDeclaration, 0, len(d.Entities))
	for i := range d.Entities {
		decl, err := d.Entities[i].Build()
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	c, err := schema.NewCatalog(decls...)
	if err != nil {
		return nil, &Error{Source: d.Source, Msg: err.Error(), Err: err}
	}
	return c, nil
}

// Load reads a YAML file, or every Go file under a directory.
func Load(path string) (*Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	}
	return LoadTags(path)
}
