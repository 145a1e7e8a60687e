package schema

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ridoystarlord/schemasync/types"
)

type IndexKind string

const (
	IndexPlain   IndexKind = "index"
	IndexUnique  IndexKind = "unique"
	IndexPrimary IndexKind = "primary"
)

// PrimaryIndexName is the canonical name of a primary key index. Catalogs
// name primary keys differently, so they are matched by kind.
const PrimaryIndexName = "PRIMARY"

var ErrInvalidSpec = errors.New("schema: invalid table spec")

type ColumnSpec struct {
	Name     string
	Type     types.Semantic
	Nullable bool
	Size     int
	// Default is the raw literal, nil when the column has no default.
	Default *string
	// PreviousName is a rename hint, consumed once the old column is gone.
	PreviousName  string
	Unsigned      bool
	AutoIncrement bool
	// Native is the catalog type of an introspected column, zero for
	// declared columns.
	Native types.Native
}

// NativeType returns the catalog type for introspected columns and the
// resolved registry type for declared ones.
func (c ColumnSpec) NativeType(d string) types.Native {
	if !c.Native.IsZero() {
		return c.Native
	}
	return types.Resolve(d, c.Type, c.Size, c.Unsigned)
}

type IndexSpec struct {
	Name    string
	Columns []string
	Kind    IndexKind
}

// SameStructure reports whether two indexes cover the same ordered columns
// with the same kind.
func (i IndexSpec) SameStructure(o IndexSpec) bool {
	return i.Kind == o.Kind && slices.Equal(i.Columns, o.Columns)
}

type ForeignKeyRef struct {
	Column    string
	Table     string
	RefColumn string
}

type TableSpec struct {
	Name        string
	Columns     []ColumnSpec
	Indexes     []IndexSpec
	ForeignKeys []ForeignKeyRef
}

func (t *TableSpec) Column(name string) (ColumnSpec, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

func (t *TableSpec) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

func (t *TableSpec) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Index looks an index up by name; the primary key is found by kind.
func (t *TableSpec) Index(name string) (IndexSpec, bool) {
	if name == PrimaryIndexName {
		return t.PrimaryKey()
	}
	for _, idx := range t.Indexes {
		if idx.Name == name && idx.Kind != IndexPrimary {
			return idx, true
		}
	}
	return IndexSpec{}, false
}

func (t *TableSpec) PrimaryKey() (IndexSpec, bool) {
	for _, idx := range t.Indexes {
		if idx.Kind == IndexPrimary {
			return idx, true
		}
	}
	return IndexSpec{}, false
}

// Clone returns a deep copy of t.
func (t *TableSpec) Clone() *TableSpec {
	out := &TableSpec{
		Name:        t.Name,
		Columns:     make([]ColumnSpec, len(t.Columns)),
		Indexes:     make([]IndexSpec, len(t.Indexes)),
		ForeignKeys: slices.Clone(t.ForeignKeys),
	}
	for i, c := range t.Columns {
		if c.Default != nil {
			v := *c.Default
			c.Default = &v
		}
		out.Columns[i] = c
	}
	for i, idx := range t.Indexes {
		idx.Columns = slices.Clone(idx.Columns)
		out.Indexes[i] = idx
	}
	return out
}

// Validate checks the structural invariants of a table: unique column
// names, known index and key columns, and exactly one primary key (or an
// auto-increment column acting as one).
func (t *TableSpec) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: table without name", ErrInvalidSpec)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: table %s has no columns", ErrInvalidSpec, t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	autoIncrement := 0
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: table %s has a column without name", ErrInvalidSpec, t.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: table %s declares column %s twice", ErrInvalidSpec, t.Name, c.Name)
		}
		seen[c.Name] = true
		if c.AutoIncrement {
			autoIncrement++
		}
	}
	primaries := 0
	names := map[string]bool{}
	for _, idx := range t.Indexes {
		if idx.Kind == IndexPrimary {
			primaries++
		} else {
			if names[idx.Name] {
				return fmt.Errorf("%w: table %s declares index %s twice", ErrInvalidSpec, t.Name, idx.Name)
			}
			names[idx.Name] = true
		}
		if len(idx.Columns) == 0 {
			return fmt.Errorf("%w: index %s on %s has no columns", ErrInvalidSpec, idx.Name, t.Name)
		}
		for _, col := range idx.Columns {
			if !seen[col] {
				return fmt.Errorf("%w: index %s on %s references unknown column %s", ErrInvalidSpec, idx.Name, t.Name, col)
			}
		}
	}
	for _, fk := range t.ForeignKeys {
		if !seen[fk.Column] {
			return fmt.Errorf("%w: foreign key on %s references unknown column %s", ErrInvalidSpec, t.Name, fk.Column)
		}
	}
	switch {
	case primaries > 1:
		return fmt.Errorf("%w: table %s has %d primary keys", ErrInvalidSpec, t.Name, primaries)
	case primaries == 0 && autoIncrement != 1:
		return fmt.Errorf("%w: table %s has no primary key", ErrInvalidSpec, t.Name)
	}
	return nil
}
