package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ridoystarlord/schemasync/schema"
)

// postgresCatalog reads information_schema and pg_index for the current
// schema.
type postgresCatalog struct{ q Querier }

func (c postgresCatalog) tables(ctx context.Context, pattern string) ([]string, error) {
	return collect(ctx, c.q, scanString, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' AND table_name LIKE $1
		ORDER BY table_name`, pattern)
}

func (c postgresCatalog) columns(ctx context.Context, table string) ([]rawColumn, error) {
	return collect(ctx, c.q, func(rows *sql.Rows) (rawColumn, error) {
		var (
			rc         rawColumn
			dataType   string
			maxLength  sql.NullInt64
			nullable   string
			def        sql.NullString
			isIdentity string
		)
		if err := rows.Scan(&rc.name, &dataType, &maxLength, &nullable, &def, &isIdentity); err != nil {
			return rc, err
		}
		rc.native = dataType
		if maxLength.Valid {
			rc.native = fmt.Sprintf("%s(%d)", dataType, maxLength.Int64)
		}
		rc.nullable = nullable == "YES"
		if def.Valid {
			rc.def = &def.String
		}
		rc.autoIncrement = isIdentity == "YES" || strings.HasPrefix(def.String, "nextval(")
		return rc, nil
	}, `
		SELECT column_name, data_type, character_maximum_length, is_nullable, column_default, is_identity
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, table)
}

func (c postgresCatalog) indexes(ctx context.Context, table string) ([]schema.IndexSpec, error) {
	rows, err := collect(ctx, c.q, func(rows *sql.Rows) (indexRow, error) {
		var (
			r                 indexRow
			unique, isPrimary bool
		)
		if err := rows.Scan(&r.name, &r.column, &unique, &isPrimary); err != nil {
			return r, err
		}
		switch {
		case isPrimary:
			r.kind = schema.IndexPrimary
		case unique:
			r.kind = schema.IndexUnique
		default:
			r.kind = schema.IndexPlain
		}
		return r, nil
	}, `
		SELECT ic.relname, a.attname, ix.indisunique, ix.indisprimary
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class ic ON ic.oid = ix.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE n.nspname = current_schema() AND t.relname = $1
		ORDER BY ic.relname, k.ord`, table)
	if err != nil {
		return nil, err
	}
	return groupIndexes(rows), nil
}

func (c postgresCatalog) foreignKeys(ctx context.Context, table string) ([]schema.ForeignKeyRef, error) {
	return collect(ctx, c.q, scanForeignKey, `
		SELECT kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = current_schema() AND tc.table_name = $1
		ORDER BY kcu.ordinal_position`, table)
}
