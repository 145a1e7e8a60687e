package database

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ridoystarlord/schemasync/dialect"
)

var (
	// ErrDuplicateKey is returned when a write violates a unique or primary key.
	ErrDuplicateKey = errors.New("database: duplicate key")

	// ErrTableNotFound is returned when a statement references a missing table.
	ErrTableNotFound = errors.New("database: table not found")

	// ErrAlreadyExists is returned for DDL whose effect is already present:
	// an existing table, column, index or primary key, or a dropped object
	// that is already gone.
	ErrAlreadyExists = errors.New("database: already exists")

	// ErrColumnNotFound is returned when a statement references a missing
	// column. For a rename or drop it means the change is already applied.
	ErrColumnNotFound = errors.New("database: column not found")
)

// Error is a classified driver error. It matches its Kind with errors.Is
// and unwraps to the driver error.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// MySQL error numbers.
const (
	mysqlDuplicateEntry  = 1062
	mysqlNoSuchTable     = 1146
	mysqlBadField        = 1054
	mysqlTableExists     = 1050
	mysqlDuplicateColumn = 1060
	mysqlDuplicateKey    = 1061
	mysqlMultiplePrimary = 1068
	mysqlCantDropKey     = 1091
)

// PostgreSQL SQLSTATE codes.
const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
	pgUndefinedColumn = "42703"
	pgDuplicateTable  = "42P07"
	pgDuplicateColumn = "42701"
	pgDuplicateObject = "42710"
	pgInvalidTableDef = "42P16"
)

// Classify maps a driver error of the given dialect to ErrDuplicateKey,
// ErrTableNotFound, ErrColumnNotFound or ErrAlreadyExists. Other errors are returned as is.
func Classify(dialectName string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	if kind := kindOf(dialectName, err); kind != nil {
		return &Error{Kind: kind, Err: err}
	}
	return err
}

func kindOf(dialectName string, err error) error {
	switch dialectName {
	case dialect.MySQL:
		var e *mysql.MySQLError
		if !errors.As(err, &e) {
			return nil
		}
		switch e.Number {
		case mysqlDuplicateEntry:
			return ErrDuplicateKey
		case mysqlNoSuchTable:
			return ErrTableNotFound
		case mysqlBadField:
			return ErrColumnNotFound
		case mysqlTableExists, mysqlDuplicateColumn, mysqlDuplicateKey, mysqlMultiplePrimary, mysqlCantDropKey:
			return ErrAlreadyExists
		}

	case dialect.Postgres:
		var e *pgconn.PgError
		if !errors.As(err, &e) {
			return nil
		}
		switch e.Code {
		case pgUniqueViolation:
			return ErrDuplicateKey
		case pgUndefinedTable:
			return ErrTableNotFound
		case pgUndefinedColumn:
			return ErrColumnNotFound
		case pgDuplicateTable, pgDuplicateColumn, pgDuplicateObject, pgInvalidTableDef:
			return ErrAlreadyExists
		}

	case dialect.SQLite:
		var e *sqlite.Error
		if !errors.As(err, &e) {
			return nil
		}
		msg := e.Error()
		switch code := e.Code(); {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ErrDuplicateKey
		case code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(msg, "UNIQUE constraint failed"):
			return ErrDuplicateKey
		}
		// SQLite reports schema errors as SQLITE_ERROR; only the message
		// tells them apart
		switch {
		case strings.Contains(msg, "no such table"):
			return ErrTableNotFound
		case strings.Contains(msg, "no such column"):
			return ErrColumnNotFound
		case strings.Contains(msg, "already exists"), strings.Contains(msg, "duplicate column name"):
			return ErrAlreadyExists
		}
	}
	return nil
}
