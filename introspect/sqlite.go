package introspect

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ridoystarlord/schemasync/schema"
)

// sqliteCatalog reads sqlite_master and the table-valued pragmas.
type sqliteCatalog struct {
	q Querier
	// CREATE statements by table, used to spot AUTOINCREMENT
	ddl map[string]string
}

func (c *sqliteCatalog) tables(ctx context.Context, pattern string) ([]string, error) {
	type entry struct{ name, sql string }
	entries, err := collect(ctx, c.q, func(rows *sql.Rows) (entry, error) {
		var (
			e   entry
			ddl sql.NullString
		)
		err := rows.Scan(&e.name, &ddl)
		e.sql = ddl.String
		return e, err
	}, `
		SELECT name, sql
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\' AND name LIKE ?
		ORDER BY name`, pattern)
	if err != nil {
		return nil, err
	}
	c.ddl = make(map[string]string, len(entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		c.ddl[e.name] = e.sql
		names = append(names, e.name)
	}
	return names, nil
}

type sqliteColumn struct {
	rawColumn
	pk int
}

func (c *sqliteCatalog) tableInfo(ctx context.Context, table string) ([]sqliteColumn, error) {
	return collect(ctx, c.q, func(rows *sql.Rows) (sqliteColumn, error) {
		var (
			sc      sqliteColumn
			notNull int
			def     sql.NullString
		)
		if err := rows.Scan(&sc.name, &sc.native, &notNull, &def, &sc.pk); err != nil {
			return sc, err
		}
		sc.nullable = notNull == 0
		if def.Valid {
			sc.def = &def.String
		}
		return sc, nil
	}, `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, table)
}

func (c *sqliteCatalog) columns(ctx context.Context, table string) ([]rawColumn, error) {
	info, err := c.tableInfo(ctx, table)
	if err != nil {
		return nil, err
	}
	pkCount := 0
	for _, sc := range info {
		if sc.pk > 0 {
			pkCount++
		}
	}
	autoInc := strings.Contains(strings.ToUpper(c.ddl[table]), "AUTOINCREMENT")

	out := make([]rawColumn, 0, len(info))
	for _, sc := range info {
		rc := sc.rawColumn
		// only a lone INTEGER PRIMARY KEY can carry AUTOINCREMENT
		if autoInc && pkCount == 1 && sc.pk == 1 && strings.EqualFold(strings.TrimSpace(sc.native), "integer") {
			rc.autoIncrement = true
		}
		out = append(out, rc)
	}
	return out, nil
}

func (c *sqliteCatalog) indexes(ctx context.Context, table string) ([]schema.IndexSpec, error) {
	info, err := c.tableInfo(ctx, table)
	if err != nil {
		return nil, err
	}
	var out []schema.IndexSpec
	if pk := primaryColumns(info); len(pk) > 0 {
		out = append(out, schema.IndexSpec{Name: schema.PrimaryIndexName, Columns: pk, Kind: schema.IndexPrimary})
	}

	type listed struct {
		name   string
		unique bool
		origin string
	}
	list, err := collect(ctx, c.q, func(rows *sql.Rows) (listed, error) {
		var (
			l      listed
			unique int
		)
		err := rows.Scan(&l.name, &unique, &l.origin)
		l.unique = unique != 0
		return l, err
	}, `SELECT name, "unique", origin FROM pragma_index_list(?) ORDER BY name`, table)
	if err != nil {
		return nil, err
	}

	for _, l := range list {
		// constraint indexes (origin pk or u) cannot be dropped on their own
		if l.origin != "c" {
			continue
		}
		cols, err := collect(ctx, c.q, scanString, `SELECT name FROM pragma_index_info(?) ORDER BY seqno`, l.name)
		if err != nil {
			return nil, err
		}
		idx := schema.IndexSpec{Name: l.name, Columns: cols, Kind: schema.IndexPlain}
		if l.unique {
			idx.Kind = schema.IndexUnique
		}
		out = append(out, idx)
	}
	return out, nil
}

func primaryColumns(info []sqliteColumn) []string {
	var cols []string
	for pos := 1; ; pos++ {
		found := false
		for _, sc := range info {
			if sc.pk == pos {
				cols = append(cols, sc.name)
				found = true
			}
		}
		if !found {
			return cols
		}
	}
}

func (c *sqliteCatalog) foreignKeys(ctx context.Context, table string) ([]schema.ForeignKeyRef, error) {
	return collect(ctx, c.q, scanForeignKey,
		`SELECT "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, table)
}
