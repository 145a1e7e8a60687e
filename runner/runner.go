// Package runner synchronizes a database with a catalog of entity
// declarations: it introspects, plans and applies the schema operations.
package runner

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os/user"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ridoystarlord/schemasync/database"
	"github.com/ridoystarlord/schemasync/dialect"
	"github.com/ridoystarlord/schemasync/diff"
	"github.com/ridoystarlord/schemasync/generator"
	"github.com/ridoystarlord/schemasync/introspect"
	"github.com/ridoystarlord/schemasync/query"
	"github.com/ridoystarlord/schemasync/schema"
)

// Options tune planning and applying.
type Options struct {
	// DropExtraColumns and DropExtraIndexes drop live columns and indexes
	// that are not declared.
	DropExtraColumns bool
	DropExtraIndexes bool

	// TolerateApplied skips operations that fail because their effect is
	// already present, so concurrent synchronizers converge. A rename or
	// drop whose source column is gone counts as applied.
	TolerateApplied bool

	// History records every applied operation in schema_sync_history.
	History bool

	// ExecutedBy is recorded in the history; defaults to the OS user.
	ExecutedBy string

	Logger *slog.Logger
}

// Runner synchronizes one database.
type Runner struct {
	db     *database.DB
	opts   Options
	logger *slog.Logger
}

func New(db *database.DB, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = db.Logger()
	}
	if opts.ExecutedBy == "" {
		opts.ExecutedBy = getCurrentUser()
	}
	return &Runner{db: db, opts: opts, logger: opts.Logger}
}

// Plan is the ordered list of operations a sync would apply.
type Plan struct {
	Dialect    dialect.Dialect
	Operations []diff.Operation
	Warnings   []*introspect.UnmappableColumnError
}

func (p *Plan) Empty() bool { return p == nil || len(p.Operations) == 0 }

// SQL renders the plan and its rollback.
func (p *Plan) SQL() (up, down []string, err error) {
	if up, err = generator.GenerateSQL(p.Dialect, p.Operations); err != nil {
		return nil, nil, err
	}
	if down, err = generator.GenerateRollbackSQL(p.Dialect, p.Operations); err != nil {
		return nil, nil, err
	}
	return up, down, nil
}

// Plan introspects the database and diffs it against the catalog.
func (r *Runner) Plan(ctx context.Context, c *schema.Catalog) (*Plan, error) {
	declared, err := c.Tables()
	if err != nil {
		return nil, fmt.Errorf("resolve catalog: %w", err)
	}
	if r.opts.History {
		declared = append(declared, HistoryEntity.Spec())
	}

	live, err := introspect.Introspect(ctx, r.db, r.db.Dialect(), "")
	if err != nil {
		return nil, err
	}
	for _, w := range live.Warnings {
		r.logger.Warn("skipping column with unmappable type",
			"table", w.Table, "column", w.Column, "native", w.Native)
	}

	ops, err := diff.Plan(declared, live.Tables, diff.Options{
		Dialect:          r.db.Dialect().Name(),
		DropExtraColumns: r.opts.DropExtraColumns,
		DropExtraIndexes: r.opts.DropExtraIndexes,
	})
	if err != nil {
		return nil, err
	}
	if r.opts.History {
		// the history table must exist before the first record is written
		slices.SortStableFunc(ops, func(a, b diff.Operation) int {
			return boolRank(b.Table == HistoryTable) - boolRank(a.Table == HistoryTable)
		})
	}

	r.logger.Debug("planned schema operations", "operations", len(ops), "warnings", len(live.Warnings))
	return &Plan{Dialect: r.db.Dialect(), Operations: ops, Warnings: live.Warnings}, nil
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ApplyError reports the operation a sync stopped at.
type ApplyError struct {
	Operation diff.Operation
	Statement string
	Err       error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply %s: %v", e.Operation, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Applied is one executed operation.
type Applied struct {
	Operation  diff.Operation
	Statements []string
	Duration   time.Duration
}

// Result summarizes a run.
type Result struct {
	RunID   string
	Applied []Applied
	// Skipped lists operations tolerated as already applied.
	Skipped []diff.Operation
}

// Apply executes the plan in order on a single connection and stops at the
// first failure. On SQLite and PostgreSQL every operation runs in its own
// transaction.
func (r *Runner) Apply(ctx context.Context, plan *Plan) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	if plan.Empty() {
		r.logger.Info("schema is up to date")
		return res, nil
	}

	d := r.db.Dialect()
	g := generator.New(d)
	err := r.db.WithConn(ctx, func(c *database.Conn) error {
		for _, op := range plan.Operations {
			stmts, err := g.Generate(op)
			if err != nil {
				return &ApplyError{Operation: op, Err: err}
			}
			if len(stmts) == 0 {
				// covered by an earlier rebuild of the same table
				continue
			}

			start := time.Now()
			run := func(conn query.Conn) error {
				for _, stmt := range stmts {
					if _, err := conn.ExecContext(ctx, stmt); err != nil {
						return &ApplyError{Operation: op, Statement: stmt, Err: c.Classify(err)}
					}
				}
				if r.opts.History {
					return r.record(ctx, conn, res.RunID, op, stmts, time.Since(start))
				}
				return nil
			}

			if d.Name() == dialect.MySQL {
				err = run(c)
			} else {
				err = c.InTx(ctx, run)
			}
			if err != nil {
				if r.opts.TolerateApplied && alreadyApplied(op, err) {
					r.logger.Warn("operation already applied, skipping", "operation", op.String(), "error", err)
					res.Skipped = append(res.Skipped, op)
					continue
				}
				return err
			}

			elapsed := time.Since(start)
			r.logger.Info("applied operation", "operation", op.String(), "statements", len(stmts), "duration", elapsed)
			res.Applied = append(res.Applied, Applied{Operation: op, Statements: stmts, Duration: elapsed})
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	r.logger.Info("schema synchronized", "run_id", res.RunID, "applied", len(res.Applied), "skipped", len(res.Skipped))
	return res, nil
}

func alreadyApplied(op diff.Operation, err error) bool {
	if errors.Is(err, database.ErrAlreadyExists) {
		return true
	}
	switch op.Type {
	case diff.RenameColumn, diff.DropColumn:
		return errors.Is(err, database.ErrColumnNotFound)
	}
	return false
}

// Sync plans and applies in one call.
func (r *Runner) Sync(ctx context.Context, c *schema.Catalog) (*Result, error) {
	plan, err := r.Plan(ctx, c)
	if err != nil {
		return nil, err
	}
	return r.Apply(ctx, plan)
}

func getCurrentUser() string {
	currentUser, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return currentUser.Username
}

func calculateChecksum(stmts []string) string {
	hash := sha256.Sum256([]byte(strings.Join(stmts, "\n")))
	return fmt.Sprintf("%x", hash)
}
