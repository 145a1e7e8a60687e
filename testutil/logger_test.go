package testutil

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	testing.TB
	lines []string
}

func (r *recorder) Helper() {}

func (r *recorder) Log(args ...any) { r.lines = append(r.lines, fmt.Sprint(args...)) }

func TestLevelLogger(t *testing.T) {
	rec := &recorder{TB: t}
	logger := NewLevelLogger(rec, slog.LevelWarn)
	logger.Info("planning", "tables", 3)
	logger.Warn("operation already applied", "table", "users")

	require.Len(t, rec.lines, 1)
	assert.Contains(t, rec.lines[0], `level=WARN msg="operation already applied" table=users`)
	assert.NotContains(t, rec.lines[0], "\n")
}

func TestTestLoggerIsDebug(t *testing.T) {
	rec := &recorder{TB: t}
	NewTestLogger(rec).Debug("catalog query", "dialect", "sqlite")

	require.Len(t, rec.lines, 1)
	assert.Contains(t, rec.lines[0], `msg="catalog query" dialect=sqlite`)
}
