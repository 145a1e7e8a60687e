// Package database opens connections for the supported dialects, hands out
// scoped connections and classifies driver errors.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/ridoystarlord/schemasync/dialect"
	"github.com/ridoystarlord/schemasync/query"
)

// DriverName returns the database/sql driver registered for a dialect.
func DriverName(d dialect.Dialect) string {
	switch d.Name() {
	case dialect.Postgres:
		return "pgx"
	case dialect.SQLite:
		return "sqlite"
	}
	return "mysql"
}

// DB is a connection pool bound to its dialect.
type DB struct {
	*sql.DB
	dialect dialect.Dialect
	logger  *slog.Logger
}

type Option func(*DB)

func WithLogger(l *slog.Logger) Option {
	return func(db *DB) { db.logger = l }
}

// Open opens and pings a database.
func Open(ctx context.Context, dialectName, dsn string, opts ...Option) (*DB, error) {
	d, err := dialect.Get(dialectName)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(DriverName(d), dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s database: %w", d.Name(), err)
	}
	if d.Name() == dialect.SQLite {
		// one writer; keeps ":memory:" databases on a single connection
		sqlDB.SetMaxOpenConns(1)
	}

	// Test the connection
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	db := OpenDB(d, sqlDB, opts...)
	db.logger.Debug("database opened", "dialect", d.Name())
	return db, nil
}

// OpenDB wraps an already opened *sql.DB.
func OpenDB(d dialect.Dialect, sqlDB *sql.DB, opts ...Option) *DB {
	db := &DB{DB: sqlDB, dialect: d, logger: slog.Default()}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

func (db *DB) Dialect() dialect.Dialect { return db.dialect }

func (db *DB) Logger() *slog.Logger { return db.logger }

// Classify maps a driver error to the portable sentinels.
func (db *DB) Classify(err error) error { return Classify(db.dialect.Name(), err) }

// WithConn runs fn on a dedicated connection, released when fn returns.
func (db *DB) WithConn(ctx context.Context, fn func(*Conn) error) error {
	c, err := db.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("unable to acquire connection: %w", db.Classify(err))
	}
	defer c.Close()
	return fn(&Conn{Conn: c, dialect: db.dialect})
}

// Conn is a single connection bound to its dialect.
type Conn struct {
	*sql.Conn
	dialect dialect.Dialect
}

func (c *Conn) Dialect() dialect.Dialect { return c.dialect }

func (c *Conn) Classify(err error) error { return Classify(c.dialect.Name(), err) }

// InTx runs fn inside a transaction on c. The transaction is committed when
// fn returns nil and rolled back otherwise.
func (c *Conn) InTx(ctx context.Context, fn func(query.Conn) error) error {
	tx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", c.Classify(err))
	}
	if err := fn(&Tx{Tx: tx, dialect: c.dialect}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", c.Classify(err))
	}
	return nil
}

// Tx is a transaction bound to its dialect.
type Tx struct {
	*sql.Tx
	dialect dialect.Dialect
}

func (t *Tx) Dialect() dialect.Dialect { return t.dialect }

func (t *Tx) Classify(err error) error { return Classify(t.dialect.Name(), err) }
