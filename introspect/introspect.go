// Package introspect reads the live catalog of a database into table specs.
// It never modifies the database.
package introspect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ridoystarlord/schemasync/dialect"
	"github.com/ridoystarlord/schemasync/schema"
	"github.com/ridoystarlord/schemasync/types"
)

var ErrConnectionFailure = errors.New("introspect: connection failure")

// ConnectionFailure wraps a failed catalog query.
type ConnectionFailure struct {
	Dialect string
	Table   string
	Err     error
}

func (e *ConnectionFailure) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("introspect: reading %s catalog for table %s: %v", e.Dialect, e.Table, e.Err)
	}
	return fmt.Sprintf("introspect: reading %s catalog: %v", e.Dialect, e.Err)
}

func (e *ConnectionFailure) Is(err error) bool { return err == ErrConnectionFailure }

func (e *ConnectionFailure) Unwrap() error { return e.Err }

// UnmappableColumnError reports a live column whose native type has no
// semantic type. The column is kept with types.Unknown and skipped by the
// differ.
type UnmappableColumnError struct {
	Table  string
	Column string
	Native string
}

func (e *UnmappableColumnError) Error() string {
	return fmt.Sprintf("introspect: column %s.%s has unmappable type %q", e.Table, e.Column, e.Native)
}

// Result is the live catalog.
type Result struct {
	Tables   map[string]*schema.TableSpec
	Warnings []*UnmappableColumnError
}

// Querier is the read side of a connection.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// rawColumn is a column as the catalog reports it.
type rawColumn struct {
	name          string
	native        string
	nullable      bool
	def           *string
	autoIncrement bool
}

type catalog interface {
	tables(ctx context.Context, pattern string) ([]string, error)
	columns(ctx context.Context, table string) ([]rawColumn, error)
	indexes(ctx context.Context, table string) ([]schema.IndexSpec, error)
	foreignKeys(ctx context.Context, table string) ([]schema.ForeignKeyRef, error)
}

// Introspect reads the tables whose names match the SQL LIKE pattern (all
// tables when empty).
func Introspect(ctx context.Context, q Querier, d dialect.Dialect, pattern string) (*Result, error) {
	if pattern == "" {
		pattern = "%"
	}
	var c catalog
	switch d.Name() {
	case dialect.MySQL:
		c = mysqlCatalog{q}
	case dialect.SQLite:
		c = &sqliteCatalog{q: q}
	case dialect.Postgres:
		c = postgresCatalog{q}
	default:
		return nil, fmt.Errorf("introspect: unsupported dialect %q", d.Name())
	}

	names, err := c.tables(ctx, pattern)
	if err != nil {
		return nil, &ConnectionFailure{Dialect: d.Name(), Err: err}
	}

	res := &Result{Tables: make(map[string]*schema.TableSpec, len(names))}
	for _, name := range names {
		t, warnings, err := readTable(ctx, c, d.Name(), name)
		if err != nil {
			return nil, &ConnectionFailure{Dialect: d.Name(), Table: name, Err: err}
		}
		res.Tables[name] = t
		res.Warnings = append(res.Warnings, warnings...)
	}
	return res, nil
}

func readTable(ctx context.Context, c catalog, d, name string) (*schema.TableSpec, []*UnmappableColumnError, error) {
	raw, err := c.columns(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("columns: %w", err)
	}
	indexes, err := c.indexes(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("indexes: %w", err)
	}
	fks, err := c.foreignKeys(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("foreign keys: %w", err)
	}

	t := &schema.TableSpec{Name: name, Indexes: indexes, ForeignKeys: fks}
	var warnings []*UnmappableColumnError
	for _, rc := range raw {
		col, ok := mapColumn(d, rc)
		if !ok {
			warnings = append(warnings, &UnmappableColumnError{Table: name, Column: rc.name, Native: rc.native})
		}
		t.Columns = append(t.Columns, col)
	}
	return t, warnings, nil
}

// mapColumn reverse-maps a catalog column. It reports false when the native
// type has no semantic type.
func mapColumn(d string, rc rawColumn) (schema.ColumnSpec, bool) {
	native := types.Parse(d, rc.native)
	col := schema.ColumnSpec{
		Name:          rc.name,
		Nullable:      rc.nullable,
		Size:          native.Size,
		Unsigned:      native.Unsigned,
		AutoIncrement: rc.autoIncrement,
		Native:        native,
	}
	if !rc.autoIncrement {
		col.Default = normalizeDefault(d, rc.def)
	}
	t, ok := types.SemanticOf(d, native)
	if !ok {
		return col, false
	}
	if rc.autoIncrement && t == types.Integer {
		t = types.ID
	}
	col.Type = t
	return col, true
}

var castSuffix = regexp.MustCompile(`::[a-z][a-z ]*(\(\d+\))?(\[\])?$`)

// normalizeDefault removes quoting and casts from a catalog default so it
// compares with declared literals.
func normalizeDefault(d string, def *string) *string {
	if def == nil {
		return nil
	}
	s := strings.TrimSpace(*def)
	if d == dialect.Postgres {
		if strings.HasPrefix(s, "nextval(") {
			return nil
		}
		for castSuffix.MatchString(s) {
			s = castSuffix.ReplaceAllString(s, "")
		}
		// negative numbers come back as ('-1')
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			s = s[1 : len(s)-1]
		}
	}
	switch strings.ToLower(s) {
	case "null":
		return nil
	case "current_timestamp", "current_timestamp()", "now()", "localtimestamp":
		s = "CURRENT_TIMESTAMP"
	case "true":
		s = "1"
	case "false":
		s = "0"
	}
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return &s
}

// collect runs a catalog query and scans every row before returning, so
// no result set stays open across queries on a single connection.
func collect[T any](ctx context.Context, q Querier, scan func(*sql.Rows) (T, error), query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// groupIndexes folds (index, column) rows ordered by index and position
// into index specs.
func groupIndexes(rows []indexRow) []schema.IndexSpec {
	var out []schema.IndexSpec
	for _, r := range rows {
		if n := len(out); n > 0 && out[n-1].Name == r.name {
			out[n-1].Columns = append(out[n-1].Columns, r.column)
			continue
		}
		out = append(out, schema.IndexSpec{Name: r.name, Columns: []string{r.column}, Kind: r.kind})
	}
	return out
}

type indexRow struct {
	name   string
	column string
	kind   schema.IndexKind
}
