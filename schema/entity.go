// Package schema holds the declared and introspected shape of tables and the
// immutable entity declarations they are derived from.
package schema

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/ridoystarlord/schemasync/types"
)

var ErrInvalidDeclaration = errors.New("schema: invalid entity declaration")

// HasMany describes a multi-valued relation. Without Link, ForeignKey is a
// column of the target entity pointing back at the owner. With Link, both
// keys are columns of the link table.
type HasMany struct {
	Entity     string
	ForeignKey string
	Link       string
	FarKey     string
}

// EntityDeclaration is the immutable description of one storable entity.
// Build one with NewEntity.
type EntityDeclaration struct {
	name     string
	idColumn string
	table    *TableSpec
	findKeys []string
	hasOne   map[string]string
	hasMany  map[string]HasMany
}

func (e *EntityDeclaration) Name() string     { return e.name }
func (e *EntityDeclaration) Table() string    { return e.table.Name }
func (e *EntityDeclaration) IDColumn() string { return e.idColumn }

// Spec returns a copy of the entity's own table, without resolved foreign
// keys (see Catalog.Tables).
func (e *EntityDeclaration) Spec() *TableSpec { return e.table.Clone() }

func (e *EntityDeclaration) Column(name string) (ColumnSpec, bool) { return e.table.Column(name) }

func (e *EntityDeclaration) FindKeys() []string { return slices.Clone(e.findKeys) }

// HasOne maps columns to the entity they reference.
func (e *EntityDeclaration) HasOne() map[string]string { return maps.Clone(e.hasOne) }

// HasMany maps relation aliases to their description.
func (e *EntityDeclaration) HasMany() map[string]HasMany { return maps.Clone(e.hasMany) }

type ColumnOption func(*ColumnSpec)

func Size(n int) ColumnOption { return func(c *ColumnSpec) { c.Size = n } }

func Nullable() ColumnOption { return func(c *ColumnSpec) { c.Nullable = true } }

func Unsigned() ColumnOption { return func(c *ColumnSpec) { c.Unsigned = true } }

func Default(v string) ColumnOption {
	return func(c *ColumnSpec) { c.Default = &v }
}

// PreviousName marks the column as renamed from old.
func PreviousName(old string) ColumnOption {
	return func(c *ColumnSpec) { c.PreviousName = old }
}

// EntityBuilder accumulates a declaration. Errors are collected and
// reported by Build.
type EntityBuilder struct {
	decl     EntityDeclaration
	defaults map[string]string
	indexes  []IndexSpec
	errs     []error
}

func NewEntity(name string) *EntityBuilder {
	b := &EntityBuilder{
		decl: EntityDeclaration{
			name:     name,
			idColumn: "id",
			table:    &TableSpec{Name: TableName(name)},
			hasOne:   map[string]string{},
			hasMany:  map[string]HasMany{},
		},
		defaults: map[string]string{},
	}
	if !validIdentifier(name) {
		b.fail("invalid entity name %q", name)
	}
	return b
}

func (b *EntityBuilder) fail(format string, args ...any) {
	b.errs = append(b.errs, fmt.Errorf(format, args...))
}

func (b *EntityBuilder) Table(name string) *EntityBuilder {
	b.decl.table.Name = name
	return b
}

// ID names the identifier column. When no column of that name is declared
// an auto-increment ID column is added.
func (b *EntityBuilder) ID(column string) *EntityBuilder {
	b.decl.idColumn = column
	return b
}

func (b *EntityBuilder) Column(name string, t types.Semantic, opts ...ColumnOption) *EntityBuilder {
	if !t.Valid() {
		b.fail("column %s: unknown type %q", name, string(t))
		return b
	}
	if b.decl.table.HasColumn(name) {
		b.fail("column %s declared twice", name)
		return b
	}
	c := ColumnSpec{Name: name, Type: t}
	for _, opt := range opts {
		opt(&c)
	}
	b.decl.table.Columns = append(b.decl.table.Columns, c)
	return b
}

// Default sets a column default, as a column_defaults entry would.
func (b *EntityBuilder) Default(column, value string) *EntityBuilder {
	b.defaults[column] = value
	return b
}

func (b *EntityBuilder) FindKeys(cols ...string) *EntityBuilder {
	b.decl.findKeys = append(b.decl.findKeys, cols...)
	return b
}

// HasOne declares column as a reference to entity, adding a nullable object
// column when none is declared.
func (b *EntityBuilder) HasOne(column, entity string) *EntityBuilder {
	if !b.decl.table.HasColumn(column) {
		b.Column(column, types.Object, Nullable())
	}
	b.decl.hasOne[column] = entity
	return b
}

func (b *EntityBuilder) HasMany(alias string, rel HasMany) *EntityBuilder {
	if _, dup := b.decl.hasMany[alias]; dup {
		b.fail("has-many %s declared twice", alias)
	}
	b.decl.hasMany[alias] = rel
	return b
}

// Unique adds a unique index. An empty name derives one from the columns.
func (b *EntityBuilder) Unique(name string, cols ...string) *EntityBuilder {
	b.indexes = append(b.indexes, IndexSpec{Name: name, Columns: cols, Kind: IndexUnique})
	return b
}

// Index adds a plain index. An empty name derives one from the columns.
func (b *EntityBuilder) Index(name string, cols ...string) *EntityBuilder {
	b.indexes = append(b.indexes, IndexSpec{Name: name, Columns: cols, Kind: IndexPlain})
	return b
}

func (b *EntityBuilder) Build() (*EntityDeclaration, error) {
	d := b.decl
	t := d.table.Clone()
	errs := slices.Clone(b.errs)

	if !validIdentifier(t.Name) {
		errs = append(errs, fmt.Errorf("invalid table name %q", t.Name))
	}

	// The identifier column leads the table.
	if idCol, ok := t.Column(d.idColumn); !ok {
		id := ColumnSpec{Name: d.idColumn, Type: types.ID, AutoIncrement: true}
		t.Columns = append([]ColumnSpec{id}, t.Columns...)
	} else if idCol.Type == types.ID {
		for i := range t.Columns {
			if t.Columns[i].Name == d.idColumn {
				t.Columns[i].AutoIncrement = true
				t.Columns[i].Nullable = false
			}
		}
	}
	for _, c := range t.Columns {
		if c.Type == types.ID && c.Name != d.idColumn {
			errs = append(errs, fmt.Errorf("column %s: only the identifier column may use type id", c.Name))
		}
		if !validIdentifier(c.Name) {
			errs = append(errs, fmt.Errorf("invalid column name %q", c.Name))
		}
	}
	t.Indexes = append(t.Indexes, IndexSpec{Name: PrimaryIndexName, Columns: []string{d.idColumn}, Kind: IndexPrimary})

	for _, col := range slices.Sorted(maps.Keys(b.defaults)) {
		v := b.defaults[col]
		found := false
		for i := range t.Columns {
			if t.Columns[i].Name == col {
				t.Columns[i].Default = &v
				found = true
			}
		}
		if !found {
			errs = append(errs, fmt.Errorf("default for unknown column %s", col))
		}
	}

	for _, idx := range b.indexes {
		idx.Columns = slices.Clone(idx.Columns)
		if idx.Name == "" {
			idx.Name = IndexName(t.Name, idx.Columns...)
		}
		t.Indexes = append(t.Indexes, idx)
	}

	for column, entity := range d.hasOne {
		c, ok := t.Column(column)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("has-one %s: unknown column", column))
		case c.Type != types.Object:
			errs = append(errs, fmt.Errorf("has-one %s: column must be of type object, not %s", column, c.Type))
		case entity == "":
			errs = append(errs, fmt.Errorf("has-one %s: no target entity", column))
		}
	}

	rels := make(map[string]HasMany, len(d.hasMany))
	for alias, rel := range d.hasMany {
		if rel.Entity == "" {
			errs = append(errs, fmt.Errorf("has-many %s: no target entity", alias))
		}
		if rel.ForeignKey == "" {
			rel.ForeignKey = ToSnakeCase(d.name)
		}
		if rel.Link != "" && rel.FarKey == "" {
			rel.FarKey = ToSnakeCase(rel.Entity)
		}
		if rel.Link != "" && rel.FarKey == rel.ForeignKey {
			errs = append(errs, fmt.Errorf("has-many %s: link keys must differ", alias))
		}
		rels[alias] = rel
	}

	findKeys := slices.Clone(d.findKeys)
	if len(findKeys) == 0 {
		findKeys = []string{d.idColumn}
	}
	for _, k := range findKeys {
		if !t.HasColumn(k) {
			errs = append(errs, fmt.Errorf("find key %s: unknown column", k))
		}
	}

	if len(errs) == 0 {
		if err := t.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w %s: %w", ErrInvalidDeclaration, d.name, errors.Join(errs...))
	}

	return &EntityDeclaration{
		name:     d.name,
		idColumn: d.idColumn,
		table:    t,
		findKeys: findKeys,
		hasOne:   maps.Clone(d.hasOne),
		hasMany:  rels,
	}, nil
}

// MustBuild is like Build but panics on error. Intended for package-level
// declarations.
func (b *EntityBuilder) MustBuild() *EntityDeclaration {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

func validIdentifier(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
