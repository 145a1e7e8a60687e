package query

import (
	"errors"
	"fmt"
)

var (
	// ErrAliasConflict is returned when two tables of a select share an alias.
	ErrAliasConflict = errors.New("query: alias conflict")

	// ErrSemantics is returned for builder misuse: both values and a nested
	// select on an insert, reading affected rows before execution, a REPLACE
	// on a dialect without one, malformed where input.
	ErrSemantics = errors.New("query: semantics")

	// ErrUnknownOperator is returned for comparison operators outside the
	// allow-list.
	ErrUnknownOperator = errors.New("query: unknown operator")
)

// AliasConflictError names the alias that was added twice.
type AliasConflictError struct {
	Alias string
}

func (e *AliasConflictError) Error() string {
	return fmt.Sprintf("query: same alias %q added twice", e.Alias)
}

func (e *AliasConflictError) Is(err error) bool { return err == ErrAliasConflict }

// OperatorError names the rejected operator and the key it came from.
type OperatorError struct {
	Column   string
	Operator string
}

func (e *OperatorError) Error() string {
	return fmt.Sprintf("query: unknown operator %q for column %q", e.Operator, e.Column)
}

func (e *OperatorError) Is(err error) bool { return err == ErrUnknownOperator }

// ExecError wraps a failed statement with its SQL and bound values.
type ExecError struct {
	SQL  string
	Args []any
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("query: executing %q with %v: %v", e.SQL, e.Args, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

func semantics(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSemantics, fmt.Sprintf(format, args...))
}
