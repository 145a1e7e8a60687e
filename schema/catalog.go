package schema

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/ridoystarlord/schemasync/types"
)

var ErrUnknownEntity = errors.New("schema: unknown entity")

// Catalog is an ordered set of entity declarations.
type Catalog struct {
	entities []*EntityDeclaration
	byName   map[string]*EntityDeclaration
}

func NewCatalog(decls ...*EntityDeclaration) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*EntityDeclaration, len(decls))}
	tables := map[string]string{}
	for _, d := range decls {
		if _, dup := c.byName[d.Name()]; dup {
			return nil, fmt.Errorf("%w: entity %s declared twice", ErrInvalidDeclaration, d.Name())
		}
		if other, dup := tables[d.Table()]; dup {
			return nil, fmt.Errorf("%w: entities %s and %s share table %s", ErrInvalidDeclaration, other, d.Name(), d.Table())
		}
		tables[d.Table()] = d.Name()
		c.byName[d.Name()] = d
		c.entities = append(c.entities, d)
	}
	return c, nil
}

func (c *Catalog) Entities() []*EntityDeclaration {
	out := make([]*EntityDeclaration, len(c.entities))
	copy(out, c.entities)
	return out
}

func (c *Catalog) Entity(name string) (*EntityDeclaration, bool) {
	e, ok := c.byName[name]
	return e, ok
}

// Tables returns the declared table specs in declaration order. Has-one
// references become foreign keys, and link tables of many-to-many relations
// are appended once each, after the entity tables.
func (c *Catalog) Tables() ([]*TableSpec, error) {
	out := make([]*TableSpec, 0, len(c.entities))
	byTable := map[string]*TableSpec{}
	for _, e := range c.entities {
		t := e.Spec()
		for _, col := range t.ColumnNames() {
			entity, ok := e.hasOne[col]
			if !ok {
				continue
			}
			target, ok := c.byName[entity]
			if !ok {
				return nil, fmt.Errorf("%w %s referenced by %s.%s", ErrUnknownEntity, entity, e.Name(), col)
			}
			t.ForeignKeys = append(t.ForeignKeys, ForeignKeyRef{Column: col, Table: target.Table(), RefColumn: target.IDColumn()})
		}
		out = append(out, t)
		byTable[t.Name] = t
	}

	for _, e := range c.entities {
		for _, alias := range slices.Sorted(maps.Keys(e.hasMany)) {
			rel := e.hasMany[alias]
			target, ok := c.byName[rel.Entity]
			if !ok {
				return nil, fmt.Errorf("%w %s in has-many %s.%s", ErrUnknownEntity, rel.Entity, e.Name(), alias)
			}
			if rel.Link == "" {
				continue
			}
			if _, exists := byTable[rel.Link]; exists {
				continue
			}
			link := linkTable(rel.Link, rel.ForeignKey, e, rel.FarKey, target)
			if err := link.Validate(); err != nil {
				return nil, err
			}
			out = append(out, link)
			byTable[link.Name] = link
		}
	}
	return out, nil
}

func linkTable(name, key string, owner *EntityDeclaration, farKey string, target *EntityDeclaration) *TableSpec {
	return &TableSpec{
		Name: name,
		Columns: []ColumnSpec{
			{Name: key, Type: types.Object},
			{Name: farKey, Type: types.Object},
		},
		Indexes: []IndexSpec{
			{Name: PrimaryIndexName, Columns: []string{key, farKey}, Kind: IndexPrimary},
			{Name: IndexName(name, farKey), Columns: []string{farKey}, Kind: IndexPlain},
		},
		ForeignKeys: []ForeignKeyRef{
			{Column: key, Table: owner.Table(), RefColumn: owner.IDColumn()},
			{Column: farKey, Table: target.Table(), RefColumn: target.IDColumn()},
		},
	}
}
