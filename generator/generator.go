// Package generator lowers planned schema operations to dialect SQL.
package generator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ridoystarlord/schemasync/dialect"
	"github.com/ridoystarlord/schemasync/diff"
	"github.com/ridoystarlord/schemasync/schema"
	"github.com/ridoystarlord/schemasync/types"
)

var ErrUnsupported = errors.New("generator: unsupported operation")

// Generator renders operations for one dialect. It remembers the SQLite
// tables it already rebuilt so a plan rebuilds each table at most once.
type Generator struct {
	d       dialect.Dialect
	rebuilt map[string]bool
}

func New(d dialect.Dialect) *Generator {
	return &Generator{d: d, rebuilt: map[string]bool{}}
}

// GenerateSQL converts a list of Operations into raw SQL statements.
func GenerateSQL(d dialect.Dialect, ops []diff.Operation) ([]string, error) {
	g := New(d)
	var sqlStatements []string
	for _, op := range ops {
		stmts, err := g.Generate(op)
		if err != nil {
			return nil, err
		}
		sqlStatements = append(sqlStatements, stmts...)
	}
	return sqlStatements, nil
}

// GenerateRollbackSQL converts a list of Operations into the SQL undoing them.
func GenerateRollbackSQL(d dialect.Dialect, ops []diff.Operation) ([]string, error) {
	return GenerateSQL(d, diff.Invert(ops))
}

// Generate renders a single operation. It may return no statements when
// the operation is already covered by an earlier rebuild.
func (g *Generator) Generate(op diff.Operation) ([]string, error) {
	stmts, err := g.generate(op)
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", op, err)
	}
	return stmts, nil
}

func (g *Generator) generate(op diff.Operation) ([]string, error) {
	switch op.Type {
	case diff.CreateTable:
		return g.createTable(op.Spec), nil

	case diff.DropTable:
		return []string{fmt.Sprintf("DROP TABLE IF EXISTS %s;", g.q(op.Table))}, nil

	case diff.AddColumn:
		if op.Column == nil {
			return nil, fmt.Errorf("%w: no column", ErrUnsupported)
		}
		col := *op.Column
		if !col.Nullable && col.Default == nil && g.d.Name() != dialect.MySQL {
			// existing rows need a value
			v := zeroDefault(g.d.Name(), col.Type)
			col.Default = &v
		}
		guard := ""
		if g.d.Name() == dialect.Postgres {
			guard = "IF NOT EXISTS "
		}
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s%s;", g.q(op.Table), guard, g.columnDef(col, false))}, nil

	case diff.DropColumn:
		if op.Column == nil {
			return nil, fmt.Errorf("%w: no column", ErrUnsupported)
		}
		guard := ""
		if g.d.Name() == dialect.Postgres {
			guard = "IF EXISTS "
		}
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s%s;", g.q(op.Table), guard, g.q(op.Column.Name))}, nil

	case diff.RenameColumn:
		if op.Column == nil || op.Previous == nil {
			return nil, fmt.Errorf("%w: rename without both columns", ErrUnsupported)
		}
		if g.d.Name() == dialect.MySQL {
			return []string{fmt.Sprintf("ALTER TABLE %s CHANGE COLUMN %s %s;", g.q(op.Table), g.q(op.Previous.Name), g.columnDef(*op.Column, false))}, nil
		}
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s;", g.q(op.Table), g.q(op.Previous.Name), g.q(op.Column.Name))}, nil

	case diff.AlterColumn:
		if op.Column == nil || op.Previous == nil {
			return nil, fmt.Errorf("%w: alter without both columns", ErrUnsupported)
		}
		switch g.d.Name() {
		case dialect.MySQL:
			return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s;", g.q(op.Table), g.columnDef(*op.Column, false))}, nil
		case dialect.SQLite:
			return g.rebuild(op)
		}
		return g.modifyColumn(op), nil

	case diff.AddIndex:
		if op.Index == nil {
			return nil, fmt.Errorf("%w: no index", ErrUnsupported)
		}
		if op.Index.Kind == schema.IndexPrimary {
			if g.d.Name() == dialect.SQLite {
				return g.rebuild(op)
			}
			return []string{fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s);", g.q(op.Table), g.indexColumns(op.Spec, op.Index.Columns))}, nil
		}
		return []string{g.createIndex(op.Table, op.Spec, *op.Index)}, nil

	case diff.DropIndex:
		if op.Index == nil {
			return nil, fmt.Errorf("%w: no index", ErrUnsupported)
		}
		if op.Index.Kind == schema.IndexPrimary {
			switch g.d.Name() {
			case dialect.MySQL:
				return []string{fmt.Sprintf("ALTER TABLE %s DROP PRIMARY KEY;", g.q(op.Table))}, nil
			case dialect.SQLite:
				return g.rebuild(op)
			}
			name := op.Index.Name
			if name == schema.PrimaryIndexName || name == "" {
				name = op.Table + "_pkey"
			}
			return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s;", g.q(op.Table), g.q(name))}, nil
		}
		if g.d.Name() == dialect.MySQL {
			return []string{fmt.Sprintf("DROP INDEX %s ON %s;", g.q(op.Index.Name), g.q(op.Table))}, nil
		}
		return []string{fmt.Sprintf("DROP INDEX IF EXISTS %s;", g.q(op.Index.Name))}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupported, op.Type)
}

func (g *Generator) q(ident string) string { return g.d.Quote(ident) }

func (g *Generator) createTable(t *schema.TableSpec) []string {
	return g.createTableAs(t.Name, t, nil, nil)
}

// createTableAs renders t (plus extra live columns and indexes) under name.
func (g *Generator) createTableAs(name string, t *schema.TableSpec, extra []schema.ColumnSpec, extraIdx []schema.IndexSpec) []string {
	cols := slices.Clone(t.Columns)
	for _, c := range extra {
		if !t.HasColumn(c.Name) {
			cols = append(cols, c)
		}
	}
	pk, hasPK := t.PrimaryKey()
	inlinePK := ""
	if g.d.Name() == dialect.SQLite && hasPK && len(pk.Columns) == 1 {
		if c, ok := t.Column(pk.Columns[0]); ok && c.AutoIncrement {
			inlinePK = c.Name
		}
	}

	var defs []string
	for _, c := range cols {
		defs = append(defs, g.columnDef(c, c.Name == inlinePK))
	}
	if hasPK && inlinePK == "" {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", g.indexColumns(t, pk.Columns)))
	}

	indexes := slices.Concat(t.Indexes, extraIdx)
	var after []string
	for _, idx := range indexes {
		if idx.Kind == schema.IndexPrimary {
			continue
		}
		if g.d.Name() == dialect.MySQL {
			kind := "KEY"
			if idx.Kind == schema.IndexUnique {
				kind = "UNIQUE KEY"
			}
			defs = append(defs, fmt.Sprintf("%s %s (%s)", kind, g.q(idx.Name), g.indexColumns(t, idx.Columns)))
			continue
		}
		after = append(after, g.createIndex(name, t, idx))
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", g.q(name), strings.Join(defs, ", "))
	return append([]string{stmt}, after...)
}

func (g *Generator) createIndex(table string, t *schema.TableSpec, idx schema.IndexSpec) string {
	stmt := "CREATE"
	if idx.Kind == schema.IndexUnique {
		stmt += " UNIQUE"
	}
	stmt += " INDEX"
	if g.d.Name() != dialect.MySQL {
		stmt += " IF NOT EXISTS"
	}
	return fmt.Sprintf("%s %s ON %s (%s);", stmt, g.q(idx.Name), g.q(table), g.indexColumns(t, idx.Columns))
}

func (g *Generator) indexColumns(t *schema.TableSpec, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = g.q(c)
		if g.d.Name() != dialect.MySQL || t == nil {
			continue
		}
		// MySQL cannot index TEXT and BLOB columns without a prefix length
		if col, ok := t.Column(c); ok {
			name := col.NativeType(dialect.MySQL).Name
			if strings.Contains(name, "text") || strings.Contains(name, "blob") {
				parts[i] += "(255)"
			}
		}
	}
	return strings.Join(parts, ", ")
}

// columnDef renders a column definition. inlinePK marks the SQLite rowid
// alias column.
func (g *Generator) columnDef(c schema.ColumnSpec, inlinePK bool) string {
	d := g.d.Name()
	def := g.q(c.Name) + " " + c.NativeType(d).String()

	if c.AutoIncrement && d == dialect.Postgres {
		def += " GENERATED BY DEFAULT AS IDENTITY"
	}
	switch {
	case !c.Nullable || c.AutoIncrement:
		def += " NOT NULL"
	case d == dialect.MySQL:
		def += " NULL"
	}
	if inlinePK {
		def += " PRIMARY KEY AUTOINCREMENT"
	}
	if c.Default != nil && !c.AutoIncrement {
		def += " DEFAULT " + defaultLiteral(d, c.Type, *c.Default)
	}
	if c.AutoIncrement && d == dialect.MySQL {
		def += " AUTO_INCREMENT"
	}
	return def
}

// modifyColumn renders a Postgres column alteration, one statement per
// changed attribute.
func (g *Generator) modifyColumn(op diff.Operation) []string {
	d := g.d.Name()
	col, prev := op.Column, op.Previous
	table, name := g.q(op.Table), g.q(col.Name)

	var statements []string

	// Type change
	if want := col.NativeType(d); !types.Equal(d, prev.NativeType(d), want) {
		statements = append(statements, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s;",
			table, name, want, name, want))
	}

	// NOT NULL constraint change
	if col.Nullable != prev.Nullable {
		if col.Nullable {
			statements = append(statements, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL;", table, name))
		} else {
			statements = append(statements, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL;", table, name))
		}
	}

	// Default value change
	if col.Default != nil && (prev.Default == nil || !diff.DefaultsEqual(col.Type, *col.Default, *prev.Default)) {
		statements = append(statements, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s;",
			table, name, defaultLiteral(d, col.Type, *col.Default)))
	}

	return statements
}

// rebuild recreates a SQLite table from its declared spec, copying the rows
// over. Used for changes SQLite cannot ALTER.
func (g *Generator) rebuild(op diff.Operation) ([]string, error) {
	if op.Spec == nil {
		return nil, fmt.Errorf("%w: rebuild of %s without table spec", ErrUnsupported, op.Table)
	}
	if g.rebuilt[op.Table] {
		return nil, nil
	}
	g.rebuilt[op.Table] = true

	tmp := op.Table + "__rebuild"
	var cols []string
	for _, c := range op.Spec.Columns {
		cols = append(cols, g.q(c.Name))
	}
	for _, c := range op.Extra {
		if !op.Spec.HasColumn(c.Name) {
			cols = append(cols, g.q(c.Name))
		}
	}
	list := strings.Join(cols, ", ")

	stmts := []string{fmt.Sprintf("DROP TABLE IF EXISTS %s;", g.q(tmp))}
	created := g.createTableAs(tmp, op.Spec, op.Extra, nil)
	stmts = append(stmts, created[0])
	stmts = append(stmts,
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s;", g.q(tmp), list, list, g.q(op.Table)),
		fmt.Sprintf("DROP TABLE %s;", g.q(op.Table)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s;", g.q(tmp), g.q(op.Table)),
	)
	for _, idx := range slices.Concat(op.Spec.Indexes, op.ExtraIndexes) {
		if idx.Kind != schema.IndexPrimary {
			stmts = append(stmts, g.createIndex(op.Table, op.Spec, idx))
		}
	}
	return stmts, nil
}

func defaultLiteral(d string, t types.Semantic, v string) string {
	if isCurrentTimestamp(v) {
		return "CURRENT_TIMESTAMP"
	}
	if t == types.Boolean {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "t", "yes", "on":
			if d == dialect.Postgres {
				return "TRUE"
			}
			return "1"
		case "0", "false", "f", "no", "off":
			if d == dialect.Postgres {
				return "FALSE"
			}
			return "0"
		}
	}
	if t.IsNumeric() {
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			return v
		}
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func isCurrentTimestamp(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "current_timestamp", "current_timestamp()", "now()":
		return true
	}
	return false
}

// zeroDefault is the implicit default given to NOT NULL columns added to
// tables that may already hold rows.
func zeroDefault(d string, t types.Semantic) string {
	switch {
	case t.IsNumeric():
		return "0"
	case t == types.Date:
		if d == dialect.Postgres {
			return "1970-01-01"
		}
		return types.EmptyDate
	case t == types.Time:
		return "00:00:00"
	case t.IsTemporal():
		if d == dialect.Postgres {
			return "1970-01-01 00:00:00"
		}
		return types.EmptyTimestamp
	case t == types.JSON && d == dialect.Postgres:
		return "null"
	}
	return ""
}

// WriteMigrationFile saves the SQL statements into a timestamped .sql file
// with up/down sections and returns its path.
func WriteMigrationFile(dir string, sqlStatements []string, rollbackStatements []string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating migrations folder: %w", err)
	}

	timestamp := time.Now().UTC().Format("20060102150405")
	filename := filepath.Join(dir, timestamp+"_schemasync.sql")

	var b strings.Builder
	b.WriteString("-- Migration: " + timestamp + "\n")
	b.WriteString("-- Description: Auto-generated by schemasync\n\n")

	b.WriteString("-- Up Migration\n")
	b.WriteString("-- ============\n")
	for _, stmt := range sqlStatements {
		b.WriteString(stmt + "\n")
	}

	b.WriteString("\n-- Down Migration (Rollback)\n")
	b.WriteString("-- =======================\n")
	for _, stmt := range rollbackStatements {
		b.WriteString(stmt + "\n")
	}

	if err := os.WriteFile(filename, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing migration file: %w", err)
	}
	return filename, nil
}
