// Package diff compares declared table specs against the live catalog and
// plans the ordered schema operations reconciling them.
package diff

import (
	"errors"
	"math/big"
	"slices"
	"strings"

	"github.com/ridoystarlord/schemasync/schema"
	"github.com/ridoystarlord/schemasync/types"
)

type Options struct {
	// Dialect names the backend whose native types are compared.
	Dialect string
	// DropExtraColumns drops live columns that are not declared.
	DropExtraColumns bool
	// DropExtraIndexes drops live indexes that are not declared.
	DropExtraIndexes bool
}

var ErrNoDialect = errors.New("diff: no dialect")

// Plan returns the operations turning actual into declared. Tables are
// created first, ordered so referenced tables precede referencing ones;
// every other operation follows in declaration order. Live tables without
// a declaration are ignored.
func Plan(declared []*schema.TableSpec, actual map[string]*schema.TableSpec, opts Options) ([]Operation, error) {
	if opts.Dialect == "" {
		return nil, ErrNoDialect
	}

	// Partition into new and existing tables
	var created []*schema.TableSpec
	var existing []*schema.TableSpec
	for _, t := range declared {
		if _, ok := actual[t.Name]; ok {
			existing = append(existing, t)
		} else {
			created = append(created, t)
		}
	}

	order, err := DependencyGraph(created).TopologicalSort()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*schema.TableSpec, len(created))
	for _, t := range created {
		byName[t.Name] = t
	}

	var ops []Operation
	for _, name := range order {
		ops = append(ops, Operation{Type: CreateTable, Table: name, Spec: byName[name].Clone()})
	}
	for _, t := range existing {
		ops = append(ops, diffTable(t, actual[t.Name], opts)...)
	}
	return ops, nil
}

func diffTable(decl, live *schema.TableSpec, opts Options) []Operation {
	decl, live = decl.Clone(), live.Clone()
	op := func(typ OperationType) Operation {
		return Operation{Type: typ, Table: decl.Name, Spec: decl, Actual: live}
	}

	var renames, dropIdx, adds, alters, drops, addIdx []Operation
	renamed := map[string]string{} // old name -> new name

	// Columns
	for i := range decl.Columns {
		col := &decl.Columns[i]
		cur, ok := live.Column(col.Name)
		if !ok && col.PreviousName != "" && !decl.HasColumn(col.PreviousName) {
			if prev, found := live.Column(col.PreviousName); found {
				if _, consumed := renamed[prev.Name]; !consumed {
					renamed[prev.Name] = col.Name
					r := op(RenameColumn)
					r.Column, r.Previous = col, &prev
					renames = append(renames, r)
					cur, ok = prev, true
					cur.Name = col.Name
				}
			}
		}
		switch {
		case !ok:
			a := op(AddColumn)
			a.Column = col
			adds = append(adds, a)
		case cur.Type == types.Unknown:
			// unmapped live column
		case columnChanged(opts.Dialect, *col, cur):
			a := op(AlterColumn)
			prev := cur
			a.Column, a.Previous = col, &prev
			alters = append(alters, a)
		}
	}

	var dropped []string
	if opts.DropExtraColumns {
		for i := range live.Columns {
			c := &live.Columns[i]
			if decl.HasColumn(c.Name) || c.Type == types.Unknown {
				continue
			}
			if _, ok := renamed[c.Name]; ok {
				continue
			}
			d := op(DropColumn)
			d.Column = c
			drops = append(drops, d)
			dropped = append(dropped, c.Name)
		}
	}

	// Live indexes, seen through this plan's renames
	liveIdx := make([]schema.IndexSpec, len(live.Indexes))
	for i, idx := range live.Indexes {
		for j, c := range idx.Columns {
			if n, ok := renamed[c]; ok {
				idx.Columns[j] = n
			}
		}
		liveIdx[i] = idx
	}
	findLive := func(want schema.IndexSpec) (schema.IndexSpec, bool) {
		for _, idx := range liveIdx {
			if want.Kind == schema.IndexPrimary && idx.Kind == schema.IndexPrimary {
				return idx, true
			}
			if want.Kind != schema.IndexPrimary && idx.Kind != schema.IndexPrimary && idx.Name == want.Name {
				return idx, true
			}
		}
		return schema.IndexSpec{}, false
	}

	keep := map[string]bool{}
	for i := range decl.Indexes {
		idx := &decl.Indexes[i]
		cur, ok := findLive(*idx)
		if ok {
			keep[indexKey(cur)] = true
		}
		switch {
		case !ok:
			a := op(AddIndex)
			a.Index = idx
			addIdx = append(addIdx, a)
		case !idx.SameStructure(cur):
			d := op(DropIndex)
			d.Index = &cur
			dropIdx = append(dropIdx, d)
			a := op(AddIndex)
			a.Index = idx
			addIdx = append(addIdx, a)
		}
	}
	var extraIdx []schema.IndexSpec
	for _, idx := range liveIdx {
		if keep[indexKey(idx)] {
			continue
		}
		// indexes over dropped columns cannot survive the drop
		covers := slices.ContainsFunc(idx.Columns, func(c string) bool { return slices.Contains(dropped, c) })
		if opts.DropExtraIndexes || covers {
			d := op(DropIndex)
			d.Index = &idx
			dropIdx = append(dropIdx, d)
			continue
		}
		extraIdx = append(extraIdx, idx)
	}

	// What a rebuild of this table has to carry over
	var extra []schema.ColumnSpec
	for _, c := range live.Columns {
		if _, ok := renamed[c.Name]; ok || decl.HasColumn(c.Name) {
			continue
		}
		extra = append(extra, c)
	}
	for i := range alters {
		alters[i].Extra = extra
		alters[i].ExtraIndexes = extraIdx
	}
	for _, ops := range [][]Operation{dropIdx, addIdx} {
		for i := range ops {
			if ops[i].Index.Kind == schema.IndexPrimary {
				ops[i].Extra = extra
				ops[i].ExtraIndexes = extraIdx
			}
		}
	}

	return slices.Concat(renames, dropIdx, adds, alters, drops, addIdx)
}

func indexKey(idx schema.IndexSpec) string {
	if idx.Kind == schema.IndexPrimary {
		return schema.PrimaryIndexName
	}
	return "i:" + idx.Name
}

func columnChanged(d string, decl, live schema.ColumnSpec) bool {
	if !types.Equal(d, live.NativeType(d), decl.NativeType(d)) {
		return true
	}
	if decl.Nullable != live.Nullable {
		return true
	}
	if decl.Default != nil {
		if live.Default == nil || !DefaultsEqual(decl.Type, *decl.Default, *live.Default) {
			return true
		}
	}
	return false
}

// DefaultsEqual compares two default literals of a column of type t.
func DefaultsEqual(t types.Semantic, a, b string) bool {
	if a == b {
		return true
	}
	if isCurrentTimestamp(a) && isCurrentTimestamp(b) {
		return true
	}
	switch t {
	case types.Boolean:
		ba, oka := boolLiteral(a)
		bb, okb := boolLiteral(b)
		return oka && okb && ba == bb
	case types.ID, types.Integer, types.Double, types.IP4, types.Object:
		ra, oka := new(big.Rat).SetString(strings.TrimSpace(a))
		rb, okb := new(big.Rat).SetString(strings.TrimSpace(b))
		return oka && okb && ra.Cmp(rb) == 0
	}
	return false
}

func isCurrentTimestamp(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "current_timestamp", "current_timestamp()", "now()", "localtimestamp":
		return true
	}
	return false
}

func boolLiteral(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "on":
		return true, true
	case "0", "false", "f", "no", "off":
		return false, true
	}
	return false, false
}
