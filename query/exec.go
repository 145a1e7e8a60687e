package query

import (
	"context"
	"database/sql"

	"github.com/ridoystarlord/schemasync/dialect"
)

// ExecQuerier wraps the standard Exec and Query methods.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn executes statements rendered for its dialect.
type Conn interface {
	ExecQuerier
	Dialect() dialect.Dialect
}

// Classifier is implemented by connections that map driver errors to
// portable sentinels. Execution failures pass through it when available.
type Classifier interface {
	Classify(err error) error
}

type boundConn struct {
	ExecQuerier
	d dialect.Dialect
}

func (c boundConn) Dialect() dialect.Dialect { return c.d }

// On binds an ExecQuerier (a *sql.DB, *sql.Conn or *sql.Tx) to a dialect.
func On(d dialect.Dialect, eq ExecQuerier) Conn {
	return boundConn{ExecQuerier: eq, d: d}
}

func execError(conn Conn, query string, args []any, err error) error {
	if c, ok := conn.(Classifier); ok {
		err = c.Classify(err)
	}
	return &ExecError{SQL: query, Args: args, Err: err}
}

// mutation holds the affected-rows count of an executed statement.
type mutation struct {
	executed bool
	affected int64
}

// AffectedRows returns the row count reported by the connection. It is an
// ErrSemantics error before the statement was executed.
func (m *mutation) AffectedRows() (int64, error) {
	if !m.executed {
		return 0, semantics("affected rows read before execution")
	}
	return m.affected, nil
}

func (m *mutation) exec(ctx context.Context, conn Conn, render func(dialect.Dialect) (string, []any, error)) (sql.Result, error) {
	if m.executed {
		return nil, semantics("statement already executed")
	}
	query, args, err := render(conn.Dialect())
	if err != nil {
		return nil, err
	}
	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, execError(conn, query, args, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, execError(conn, query, args, err)
	}
	m.executed, m.affected = true, n
	return res, nil
}

// Rows is a lazy, forward-only iterator over column-keyed rows. It cannot
// be restarted; run the query again to re-read.
type Rows struct {
	conn    Conn
	rows    *sql.Rows
	sql     string
	args    []any
	columns []string
	row     map[string]any
	err     error
	closed  bool
}

func newRows(conn Conn, rows *sql.Rows, query string, args []any) (*Rows, error) {
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, execError(conn, query, args, err)
	}
	return &Rows{conn: conn, rows: rows, sql: query, args: args, columns: cols}, nil
}

func (r *Rows) Columns() []string { return r.columns }

// Next advances to the next row. It returns false once the rows are
// exhausted, after an error, or after Close.
func (r *Rows) Next() bool {
	if r.closed {
		return false
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			r.err = execError(r.conn, r.sql, r.args, err)
		}
		r.Close()
		return false
	}
	values := make([]any, len(r.columns))
	ptrs := make([]any, len(r.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = execError(r.conn, r.sql, r.args, err)
		r.Close()
		return false
	}
	r.row = make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		r.row[c] = values[i]
	}
	return true
}

// Row returns the current row. Each call to Next allocates a new map, so a
// returned row may be retained.
func (r *Rows) Row() map[string]any { return r.row }

func (r *Rows) Err() error { return r.err }

func (r *Rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.row = nil
	return r.rows.Close()
}
