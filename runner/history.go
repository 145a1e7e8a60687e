package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ridoystarlord/schemasync/diff"
	"github.com/ridoystarlord/schemasync/query"
	"github.com/ridoystarlord/schemasync/schema"
	"github.com/ridoystarlord/schemasync/types"
)

const HistoryTable = "schema_sync_history"

// HistoryEntity declares the history table. It is synchronized by the same
// engine as the application's own entities.
var HistoryEntity = schema.NewEntity("SchemaSyncHistory").
	Table(HistoryTable).
	Column("run_id", types.String, schema.Size(36)).
	Column("operation", types.String, schema.Size(32)).
	Column("table_name", types.String, schema.Size(64)).
	Column("statements", types.Text).
	Column("checksum", types.String, schema.Size(64)).
	Column("executed_by", types.String, schema.Size(64)).
	Column("duration_ms", types.Integer).
	Column("executed_at", types.Timestamp).
	Index("", "run_id").
	MustBuild()

// HistoryRecord is one applied operation.
type HistoryRecord struct {
	ID         int64
	RunID      string
	Operation  string
	Table      string
	Statements string
	Checksum   string
	ExecutedBy string
	Duration   time.Duration
	ExecutedAt time.Time
}

func (r *Runner) record(ctx context.Context, conn query.Conn, runID string, op diff.Operation, stmts []string, elapsed time.Duration) error {
	row, err := HistoryEntity.ToStorage(map[string]any{
		"run_id":      runID,
		"operation":   string(op.Type),
		"table_name":  op.Table,
		"statements":  strings.Join(stmts, "\n"),
		"checksum":    calculateChecksum(stmts),
		"executed_by": r.opts.ExecutedBy,
		"duration_ms": elapsed.Milliseconds(),
		"executed_at": time.Now(),
	})
	if err != nil {
		return err
	}
	if err := query.Insert(HistoryTable).Values(row).Exec(ctx, conn); err != nil {
		return fmt.Errorf("recording %s: %w", op, err)
	}
	return nil
}

// History returns the most recent history records, newest first. A limit
// of zero returns all of them; table filters on the affected table.
func (r *Runner) History(ctx context.Context, limit int, table string) ([]HistoryRecord, error) {
	sel := query.Select(HistoryTable).OrderBy("id DESC")
	if table != "" {
		sel.Where(query.Eq("table_name", table))
	}
	if limit > 0 {
		sel.Limit(limit)
	}
	rows, err := sel.All(ctx, r.db)
	if err != nil {
		return nil, fmt.Errorf("query sync history: %w", err)
	}

	records := make([]HistoryRecord, 0, len(rows))
	for _, raw := range rows {
		m, err := HistoryEntity.FromStorage(raw)
		if err != nil {
			return nil, fmt.Errorf("scan sync history: %w", err)
		}
		rec := HistoryRecord{
			RunID:      asString(m["run_id"]),
			Operation:  asString(m["operation"]),
			Table:      asString(m["table_name"]),
			Statements: asString(m["statements"]),
			Checksum:   asString(m["checksum"]),
			ExecutedBy: asString(m["executed_by"]),
		}
		if id, ok := m["id"].(int64); ok {
			rec.ID = id
		}
		if ms, ok := m["duration_ms"].(int64); ok {
			rec.Duration = time.Duration(ms) * time.Millisecond
		}
		if ts, ok := m["executed_at"].(time.Time); ok {
			rec.ExecutedAt = ts
		}
		records = append(records, rec)
	}
	return records, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
