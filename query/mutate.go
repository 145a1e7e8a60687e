package query

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/ridoystarlord/schemasync/dialect"
)

// assignments holds column values in insertion order; a repeated column
// overwrites its value.
type assignments struct {
	columns []string
	values  map[string]any
}

func (a *assignments) set(column string, v any) {
	if a.values == nil {
		a.values = map[string]any{}
	}
	if _, ok := a.values[column]; !ok {
		a.columns = append(a.columns, column)
	}
	a.values[column] = v
}

// setAll adds a map of values, in sorted key order.
func (a *assignments) setAll(m map[string]any) {
	for _, k := range slices.Sorted(maps.Keys(m)) {
		a.set(k, m[k])
	}
}

func (a *assignments) len() int { return len(a.columns) }

// InsertBuilder builds INSERT and REPLACE statements from either explicit
// values or a nested select, never both.
type InsertBuilder struct {
	mutation
	table       string
	values      assignments
	columns     []string
	source      *SelectBuilder
	replace     bool
	lowPriority bool
	lastID      int64
	lastIDErr   error
}

func Insert(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

// InsertSelect starts an insert whose rows come from sel.
func InsertSelect(table string, sel *SelectBuilder) *InsertBuilder {
	return &InsertBuilder{table: table, source: sel}
}

// Set sets one column value.
func (b *InsertBuilder) Set(column string, v any) *InsertBuilder {
	b.values.set(column, v)
	return b
}

// Values sets several column values.
func (b *InsertBuilder) Values(m map[string]any) *InsertBuilder {
	b.values.setAll(m)
	return b
}

// Columns names the target columns filled by a nested select.
func (b *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	b.columns = append(b.columns, columns...)
	return b
}

// From sets the nested select.
func (b *InsertBuilder) From(sel *SelectBuilder) *InsertBuilder {
	b.source = sel
	return b
}

// Replace turns the statement into a REPLACE.
func (b *InsertBuilder) Replace() *InsertBuilder {
	b.replace = true
	return b
}

// LowPriority adds the LOW_PRIORITY hint where the dialect has one.
func (b *InsertBuilder) LowPriority() *InsertBuilder {
	b.lowPriority = true
	return b
}

func (b *InsertBuilder) ToSQL(d dialect.Dialect) (string, []any, error) {
	switch {
	case b.source != nil && b.values.len() > 0:
		return "", nil, semantics("insert into %s has both values and a nested select", b.table)
	case b.source == nil && b.values.len() == 0:
		return "", nil, semantics("insert into %s has no values", b.table)
	case b.replace && !d.SupportsReplace():
		return "", nil, semantics("%s has no REPLACE", d.Name())
	}

	w := newWriter(d)
	if b.replace {
		w.WriteString("REPLACE")
	} else {
		w.WriteString("INSERT")
	}
	if b.lowPriority && d.SupportsLowPriority() {
		w.WriteString(" LOW_PRIORITY")
	}
	w.WriteString(" INTO ")
	w.ident(b.table)

	if b.source != nil {
		if len(b.columns) > 0 {
			w.WriteString(" (")
			w.idents(b.columns)
			w.WriteString(")")
		}
		w.WriteString(" ")
		b.source.write(w)
		return w.result()
	}

	w.WriteString(" (")
	w.idents(b.values.columns)
	w.WriteString(") VALUES (")
	for i, c := range b.values.columns {
		if i > 0 {
			w.WriteString(", ")
		}
		w.value(b.values.values[c])
	}
	w.WriteString(")")
	return w.result()
}

// Exec runs the statement and records the affected rows and, where the
// driver reports one, the generated id.
func (b *InsertBuilder) Exec(ctx context.Context, conn Conn) error {
	res, err := b.exec(ctx, conn, b.ToSQL)
	if err != nil {
		return err
	}
	b.lastID, b.lastIDErr = res.LastInsertId()
	return nil
}

// LastInsertID returns the id generated by the executed insert.
func (b *InsertBuilder) LastInsertID() (int64, error) {
	if !b.executed {
		return 0, semantics("insert id read before execution")
	}
	return b.lastID, b.lastIDErr
}

// UpdateBuilder builds UPDATE statements.
type UpdateBuilder struct {
	mutation
	table       string
	values      assignments
	where       *Where
	lowPriority bool
	errs        []error
}

func Update(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table, where: AllOf()}
}

func (b *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	b.values.set(column, v)
	return b
}

func (b *UpdateBuilder) Values(m map[string]any) *UpdateBuilder {
	b.values.setAll(m)
	return b
}

func (b *UpdateBuilder) Where(nodes ...Node) *UpdateBuilder {
	b.where.Add(nodes...)
	return b
}

func (b *UpdateBuilder) WhereMap(m map[string]any, opts ...WhereOption) *UpdateBuilder {
	w, err := ParseWhere(m, opts...)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.where.merge(w)
	return b
}

func (b *UpdateBuilder) LowPriority() *UpdateBuilder {
	b.lowPriority = true
	return b
}

func (b *UpdateBuilder) ToSQL(d dialect.Dialect) (string, []any, error) {
	if len(b.errs) > 0 {
		return "", nil, errors.Join(b.errs...)
	}
	if b.values.len() == 0 {
		return "", nil, semantics("update of %s sets no columns", b.table)
	}
	w := newWriter(d)
	w.WriteString("UPDATE ")
	if b.lowPriority && d.SupportsLowPriority() {
		w.WriteString("LOW_PRIORITY ")
	}
	w.ident(b.table)
	w.WriteString(" SET ")
	for i, c := range b.values.columns {
		if i > 0 {
			w.WriteString(", ")
		}
		w.ident(c)
		w.WriteString(" = ")
		w.value(b.values.values[c])
	}
	if b.where.Len() > 0 {
		w.WriteString(" WHERE ")
		w.where(b.where)
	}
	return w.result()
}

func (b *UpdateBuilder) Exec(ctx context.Context, conn Conn) error {
	_, err := b.exec(ctx, conn, b.ToSQL)
	return err
}

// DeleteBuilder builds DELETE statements.
type DeleteBuilder struct {
	mutation
	table       string
	where       *Where
	lowPriority bool
	errs        []error
}

func Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{table: table, where: AllOf()}
}

func (b *DeleteBuilder) Where(nodes ...Node) *DeleteBuilder {
	b.where.Add(nodes...)
	return b
}

func (b *DeleteBuilder) WhereMap(m map[string]any, opts ...WhereOption) *DeleteBuilder {
	w, err := ParseWhere(m, opts...)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.where.merge(w)
	return b
}

func (b *DeleteBuilder) LowPriority() *DeleteBuilder {
	b.lowPriority = true
	return b
}

func (b *DeleteBuilder) ToSQL(d dialect.Dialect) (string, []any, error) {
	if len(b.errs) > 0 {
		return "", nil, errors.Join(b.errs...)
	}
	w := newWriter(d)
	w.WriteString("DELETE ")
	if b.lowPriority && d.SupportsLowPriority() {
		w.WriteString("LOW_PRIORITY ")
	}
	w.WriteString("FROM ")
	w.ident(b.table)
	if b.where.Len() > 0 {
		w.WriteString(" WHERE ")
		w.where(b.where)
	}
	return w.result()
}

func (b *DeleteBuilder) Exec(ctx context.Context, conn Conn) error {
	_, err := b.exec(ctx, conn, b.ToSQL)
	return err
}
