package introspect

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ridoystarlord/schemasync/schema"
)

// mysqlCatalog reads information_schema for the current database.
type mysqlCatalog struct{ q Querier }

func (c mysqlCatalog) tables(ctx context.Context, pattern string) ([]string, error) {
	return collect(ctx, c.q, scanString, `
		SELECT TABLE_NAME
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE' AND TABLE_NAME LIKE ?
		ORDER BY TABLE_NAME`, pattern)
}

func (c mysqlCatalog) columns(ctx context.Context, table string) ([]rawColumn, error) {
	return collect(ctx, c.q, func(rows *sql.Rows) (rawColumn, error) {
		var (
			rc       rawColumn
			nullable string
			def      sql.NullString
			extra    string
		)
		if err := rows.Scan(&rc.name, &rc.native, &nullable, &def, &extra); err != nil {
			return rc, err
		}
		rc.nullable = nullable == "YES"
		if def.Valid {
			rc.def = &def.String
		}
		rc.autoIncrement = strings.Contains(strings.ToLower(extra), "auto_increment")
		return rc, nil
	}, `
		SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT, EXTRA
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, table)
}

func (c mysqlCatalog) indexes(ctx context.Context, table string) ([]schema.IndexSpec, error) {
	rows, err := collect(ctx, c.q, func(rows *sql.Rows) (indexRow, error) {
		var (
			r         indexRow
			nonUnique int64
		)
		if err := rows.Scan(&r.name, &r.column, &nonUnique); err != nil {
			return r, err
		}
		switch {
		case r.name == schema.PrimaryIndexName:
			r.kind = schema.IndexPrimary
		case nonUnique == 0:
			r.kind = schema.IndexUnique
		default:
			r.kind = schema.IndexPlain
		}
		return r, nil
	}, `
		SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY INDEX_NAME, SEQ_IN_INDEX`, table)
	if err != nil {
		return nil, err
	}
	return groupIndexes(rows), nil
}

func (c mysqlCatalog) foreignKeys(ctx context.Context, table string) ([]schema.ForeignKeyRef, error) {
	return collect(ctx, c.q, scanForeignKey, `
		SELECT COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
		FROM information_schema.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY ORDINAL_POSITION`, table)
}

func scanString(rows *sql.Rows) (string, error) {
	var s string
	err := rows.Scan(&s)
	return s, err
}

func scanForeignKey(rows *sql.Rows) (schema.ForeignKeyRef, error) {
	var (
		fk  schema.ForeignKeyRef
		ref sql.NullString
	)
	if err := rows.Scan(&fk.Column, &fk.Table, &ref); err != nil {
		return fk, err
	}
	fk.RefColumn = ref.String
	return fk, nil
}
