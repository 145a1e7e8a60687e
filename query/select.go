package query

import (
	"context"
	"errors"
	"strings"

	"github.com/ridoystarlord/schemasync/dialect"
)

// JoinKind is the kind of a join.
type JoinKind string

const (
	Inner     JoinKind = "INNER"
	LeftOuter JoinKind = "LEFT OUTER"
)

type projection struct {
	expr  string
	alias string
}

type join struct {
	kind  JoinKind
	table string
	alias string
	on    *Where
}

type order struct {
	column string
	desc   bool
}

// SelectBuilder builds a SELECT statement. Methods mutate the builder and
// return it; misuse is recorded and reported by ToSQL.
type SelectBuilder struct {
	table    string
	alias    string
	what     []projection
	joins    []join
	where    *Where
	groupBy  []string
	orderBy  []order
	distinct bool
	limit    int
	offset   int
	errs     []error
}

// Select starts a SELECT from table. The projection defaults to "*".
func Select(table string) *SelectBuilder {
	return &SelectBuilder{table: table, where: AllOf()}
}

// As sets the alias of the base table.
func (s *SelectBuilder) As(alias string) *SelectBuilder {
	for _, j := range s.joins {
		if j.name() == alias {
			s.errs = append(s.errs, &AliasConflictError{Alias: alias})
			return s
		}
	}
	s.alias = alias
	return s
}

// What adds columns to the projection. A leading "*" marks a raw SQL
// expression ("*COUNT(*)").
func (s *SelectBuilder) What(columns ...string) *SelectBuilder {
	for _, c := range columns {
		s.what = append(s.what, projection{expr: c})
	}
	return s
}

// WhatAs adds "column AS alias" to the projection, replacing an earlier
// entry with the same alias.
func (s *SelectBuilder) WhatAs(alias, column string) *SelectBuilder {
	for i, p := range s.what {
		if p.alias == alias {
			s.what[i].expr = column
			return s
		}
	}
	s.what = append(s.what, projection{expr: column, alias: alias})
	return s
}

func (s *SelectBuilder) Distinct() *SelectBuilder {
	s.distinct = true
	return s
}

// Join joins table under alias (the table name when empty). Aliases must be
// unique among the base table and every join.
func (s *SelectBuilder) Join(kind JoinKind, table, alias string, on *Where) *SelectBuilder {
	j := join{kind: kind, table: table, alias: alias, on: on}
	name := j.name()
	if name == s.name() {
		s.errs = append(s.errs, &AliasConflictError{Alias: name})
		return s
	}
	for _, other := range s.joins {
		if other.name() == name {
			s.errs = append(s.errs, &AliasConflictError{Alias: name})
			return s
		}
	}
	if kind != Inner && kind != LeftOuter {
		s.errs = append(s.errs, semantics("unknown join kind %q", kind))
		return s
	}
	s.joins = append(s.joins, j)
	return s
}

func (s *SelectBuilder) InnerJoin(table, alias string, on *Where) *SelectBuilder {
	return s.Join(Inner, table, alias, on)
}

func (s *SelectBuilder) LeftJoin(table, alias string, on *Where) *SelectBuilder {
	return s.Join(LeftOuter, table, alias, on)
}

// Where ANDs nodes into the where tree.
func (s *SelectBuilder) Where(nodes ...Node) *SelectBuilder {
	s.where.Add(nodes...)
	return s
}

// WhereMap ANDs a parsed where map into the where tree.
func (s *SelectBuilder) WhereMap(m map[string]any, opts ...WhereOption) *SelectBuilder {
	w, err := ParseWhere(m, opts...)
	if err != nil {
		s.errs = append(s.errs, err)
		return s
	}
	s.where.merge(w)
	return s
}

func (s *SelectBuilder) GroupBy(columns ...string) *SelectBuilder {
	s.groupBy = append(s.groupBy, columns...)
	return s
}

// OrderBy adds sort columns; a column may end in " ASC" or " DESC".
func (s *SelectBuilder) OrderBy(columns ...string) *SelectBuilder {
	for _, c := range columns {
		o := order{column: strings.TrimSpace(c)}
		if name, dir, ok := strings.Cut(o.column, " "); ok {
			switch strings.ToUpper(strings.TrimSpace(dir)) {
			case "DESC":
				o = order{column: name, desc: true}
			case "ASC":
				o = order{column: name}
			default:
				s.errs = append(s.errs, semantics("invalid order by %q", c))
				continue
			}
		}
		s.orderBy = append(s.orderBy, o)
	}
	return s
}

func (s *SelectBuilder) Limit(n int) *SelectBuilder {
	s.limit = n
	return s
}

func (s *SelectBuilder) Offset(n int) *SelectBuilder {
	s.offset = n
	return s
}

// ToSQL renders the statement for d.
func (s *SelectBuilder) ToSQL(d dialect.Dialect) (string, []any, error) {
	w := newWriter(d)
	s.write(w)
	return w.result()
}

func (s *SelectBuilder) write(w *writer) {
	if len(s.errs) > 0 {
		w.fail(errors.Join(s.errs...))
		return
	}
	w.WriteString("SELECT ")
	if s.distinct {
		w.WriteString("DISTINCT ")
	}
	if len(s.what) == 0 {
		w.WriteString("*")
	}
	for i, p := range s.what {
		if i > 0 {
			w.WriteString(", ")
		}
		if expr, raw := strings.CutPrefix(p.expr, "*"); raw && expr != "" {
			w.WriteString(expr)
		} else {
			w.ident(p.expr)
		}
		if p.alias != "" {
			w.WriteString(" AS ")
			w.ident(p.alias)
		}
	}

	w.WriteString(" FROM ")
	w.ident(s.table)
	if s.alias != "" {
		w.WriteString(" AS ")
		w.ident(s.alias)
	}
	for _, j := range s.joins {
		w.WriteString(" " + string(j.kind) + " JOIN ")
		w.ident(j.table)
		if j.alias != "" {
			w.WriteString(" AS ")
			w.ident(j.alias)
		}
		if j.on.Len() > 0 {
			w.WriteString(" ON ")
			w.where(j.on)
		}
	}
	if s.where.Len() > 0 {
		w.WriteString(" WHERE ")
		w.where(s.where)
	}
	if len(s.groupBy) > 0 {
		w.WriteString(" GROUP BY ")
		w.idents(s.groupBy)
	}
	for i, o := range s.orderBy {
		if i == 0 {
			w.WriteString(" ORDER BY ")
		} else {
			w.WriteString(", ")
		}
		w.ident(o.column)
		if o.desc {
			w.WriteString(" DESC")
		}
	}
	w.limit(s.limit, s.offset)
}

// Iterate runs the query and returns a lazy, forward-only row iterator.
func (s *SelectBuilder) Iterate(ctx context.Context, conn Conn) (*Rows, error) {
	query, args, err := s.ToSQL(conn.Dialect())
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, execError(conn, query, args, err)
	}
	return newRows(conn, rows, query, args)
}

// All runs the query and collects every row.
func (s *SelectBuilder) All(ctx context.Context, conn Conn) ([]map[string]any, error) {
	rows, err := s.Iterate(ctx, conn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		out = append(out, rows.Row())
	}
	return out, rows.Err()
}

func (s *SelectBuilder) name() string {
	if s.alias != "" {
		return s.alias
	}
	return s.table
}

func (j join) name() string {
	if j.alias != "" {
		return j.alias
	}
	return j.table
}
