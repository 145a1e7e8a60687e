// Package dialect names the supported SQL backends and owns the small set of
// lexical rules (identifier quoting, parameter placeholders, capability flags)
// that the DDL generator and the query builder need to lower their output.
package dialect

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect names.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Dialect describes the lexical conventions of one SQL backend.
type Dialect interface {
	// Name returns one of MySQL, SQLite or Postgres.
	Name() string
	// Quote quotes a single identifier.
	Quote(ident string) string
	// Placeholder returns the bind parameter marker for the n-th argument (1-based).
	Placeholder(n int) string
	// SupportsReplace reports whether REPLACE INTO is available.
	SupportsReplace() bool
	// SupportsLowPriority reports whether the LOW_PRIORITY modifier is available.
	SupportsLowPriority() bool
}

// Get returns the dialect registered under name. Driver-style names
// ("sqlite3", "pgx") are accepted as aliases.
func Get(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case MySQL, "mariadb":
		return mysqlDialect{}, nil
	case SQLite, "sqlite3":
		return sqliteDialect{}, nil
	case Postgres, "postgresql", "pgx":
		return postgresDialect{}, nil
	}
	return nil, fmt.Errorf("dialect: unsupported dialect %q", name)
}

// MustGet is like Get but panics on unknown names. Intended for tests and
// package-level variables.
func MustGet(name string) Dialect {
	d, err := Get(name)
	if err != nil {
		panic(err)
	}
	return d
}

// QuoteQualified quotes a possibly dotted name ("alias.column") part by
// part. The "*" wildcard is left unquoted.
func QuoteQualified(d Dialect, name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		parts[i] = d.Quote(p)
	}
	return strings.Join(parts, ".")
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return MySQL }

func (mysqlDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (mysqlDialect) Placeholder(int) string    { return "?" }
func (mysqlDialect) SupportsReplace() bool     { return true }
func (mysqlDialect) SupportsLowPriority() bool { return true }

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return SQLite }

func (sqliteDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (sqliteDialect) Placeholder(int) string    { return "?" }
func (sqliteDialect) SupportsReplace() bool     { return true }
func (sqliteDialect) SupportsLowPriority() bool { return false }

type postgresDialect struct{}

func (postgresDialect) Name() string { return Postgres }

func (postgresDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (postgresDialect) Placeholder(n int) string  { return "$" + strconv.Itoa(n) }
func (postgresDialect) SupportsReplace() bool     { return false }
func (postgresDialect) SupportsLowPriority() bool { return false }
