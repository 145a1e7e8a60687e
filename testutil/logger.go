// Package testutil holds helpers shared by the package tests.
package testutil

import (
	"log/slog"
	"strings"
	"testing"
)

// NewTestLogger returns a debug level logger that writes to t.Log, so
// engine logs show up next to the failing test (or with -v).
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return NewLevelLogger(t, slog.LevelDebug)
}

// NewLevelLogger is NewTestLogger with a minimum level.
func NewLevelLogger(t testing.TB, level slog.Leveler) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(tbWriter{t}, &slog.HandlerOptions{Level: level}))
}

type tbWriter struct {
	t testing.TB
}

func (w tbWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
