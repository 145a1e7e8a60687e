// Package query builds SELECT, INSERT, UPDATE and DELETE statements, parses
// the where key mini-language and executes statements against a connection.
package query

import (
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"
)

// Conjunction joins the nodes of a Where.
type Conjunction string

const (
	And Conjunction = "AND"
	Or  Conjunction = "OR"
)

// OrKey is the reserved where key introducing a disjunction group.
const OrKey = "OR"

// KeySeparator splits a where key into column and operator.
const KeySeparator = "|"

// Node is an element of a where tree: a Clause, a Raw fragment or a nested
// *Where.
type Node interface {
	node()
}

// Clause compares a column with a value. Values are always bound, except a
// Col value which renders as a column reference.
type Clause struct {
	Column   string
	Operator string
	Value    any
	// RawColumn renders Column verbatim (a SQL expression) instead of quoting it.
	RawColumn bool
}

// Raw is a literal SQL fragment. "?" marks in SQL are bound to Args in
// order and rewritten to the dialect's placeholders.
type Raw struct {
	SQL  string
	Args []any
}

// Col is a value referring to another column, as in join conditions.
type Col string

// Where is a conjunction or disjunction of nodes.
type Where struct {
	conj  Conjunction
	nodes []Node
}

func (Clause) node() {}
func (Raw) node()    {}
func (*Where) node() {}

// Cond builds a Clause. The operator is checked when the clause is rendered.
func Cond(column, operator string, value any) Clause {
	return Clause{Column: column, Operator: operator, Value: value}
}

func Eq(column string, value any) Clause { return Cond(column, "=", value) }

// Expr builds a Raw fragment.
func Expr(sql string, args ...any) Raw { return Raw{SQL: sql, Args: args} }

// AllOf joins nodes with AND.
func AllOf(nodes ...Node) *Where { return &Where{conj: And, nodes: nodes} }

// AnyOf joins nodes with OR.
func AnyOf(nodes ...Node) *Where { return &Where{conj: Or, nodes: nodes} }

func (w *Where) Add(nodes ...Node) *Where {
	w.nodes = append(w.nodes, nodes...)
	return w
}

// merge adds other to w, inlining its nodes when both are conjunctions.
func (w *Where) merge(other *Where) {
	if other.Conjunction() == And && w.Conjunction() == And {
		w.nodes = append(w.nodes, other.nodes...)
		return
	}
	w.nodes = append(w.nodes, other)
}

func (w *Where) Conjunction() Conjunction {
	if w.conj == "" {
		return And
	}
	return w.conj
}

func (w *Where) Nodes() []Node { return slices.Clone(w.nodes) }

func (w *Where) Len() int {
	if w == nil {
		return 0
	}
	return len(w.nodes)
}

// Operators accepted in where keys and clauses, after normalization.
var operators = map[string]bool{
	"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"LIKE": true, "NOT LIKE": true, "IN": true, "NOT IN": true,
	// contains shorthands
	"%": true, "!%": true,
}

// NormalizeOperator upper-cases and collapses an operator and reports
// whether it is allowed. "<>" is read as "!=".
func NormalizeOperator(op string) (string, bool) {
	s := strings.ToUpper(strings.Join(strings.Fields(op), " "))
	if s == "<>" {
		s = "!="
	}
	return s, operators[s]
}

// ParseWhereKey splits a where key into column and operator. A key without
// separator compares with "=".
func ParseWhereKey(key string) (column, op string) {
	column, op, found := strings.Cut(key, KeySeparator)
	column, op = strings.TrimSpace(column), strings.TrimSpace(op)
	if !found || op == "" {
		op = "="
	}
	return column, op
}

type whereConfig struct {
	legacy bool
	logger *slog.Logger
}

type WhereOption func(*whereConfig)

// LegacyOperators makes unknown operators fall back to "=" with a logged
// warning instead of failing. Existing call sites written against the
// permissive operator handling can opt in while they are migrated.
func LegacyOperators() WhereOption {
	return func(c *whereConfig) { c.legacy = true }
}

// WithLogger sets the logger used for legacy operator warnings.
func WithLogger(l *slog.Logger) WhereOption {
	return func(c *whereConfig) { c.logger = l }
}

var columnPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ParseWhere builds a where tree from the key/value mini-language. Keys are
// "column" or "column|operator"; a leading "*" marks the column as a raw
// SQL expression. The key "OR" takes a []map[string]any (each element an
// AND group) or a map[string]any (each entry a disjunct). Slice values
// compare with IN, nil values with IS NULL. Keys are visited in sorted
// order so the SQL is deterministic.
func ParseWhere(m map[string]any, opts ...WhereOption) (*Where, error) {
	cfg := whereConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	nodes, err := cfg.parseGroup(m)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 1 {
		if w, ok := nodes[0].(*Where); ok {
			return w, nil
		}
	}
	return AllOf(nodes...), nil
}

func (c *whereConfig) parseGroup(m map[string]any) ([]Node, error) {
	var nodes []Node
	for _, key := range slices.Sorted(maps.Keys(m)) {
		v := m[key]
		if key == OrKey {
			or, err := c.parseOr(v)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, or)
			continue
		}
		clause, err := c.parseClause(key, v)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, clause)
	}
	return nodes, nil
}

func (c *whereConfig) parseOr(v any) (*Where, error) {
	or := AnyOf()
	switch groups := v.(type) {
	case []map[string]any:
		for _, g := range groups {
			if err := c.addGroup(or, g); err != nil {
				return nil, err
			}
		}
	case []any:
		for _, item := range groups {
			g, ok := item.(map[string]any)
			if !ok {
				return nil, semantics("OR group must be a map, got %T", item)
			}
			if err := c.addGroup(or, g); err != nil {
				return nil, err
			}
		}
	case map[string]any:
		nodes, err := c.parseGroup(groups)
		if err != nil {
			return nil, err
		}
		or.Add(nodes...)
	default:
		return nil, semantics("OR takes a list of maps or a map, got %T", v)
	}
	return or, nil
}

// addGroup adds an AND group to or, unwrapped when it holds one node.
func (c *whereConfig) addGroup(or *Where, g map[string]any) error {
	nodes, err := c.parseGroup(g)
	if err != nil {
		return err
	}
	switch len(nodes) {
	case 0:
	case 1:
		or.Add(nodes[0])
	default:
		or.Add(AllOf(nodes...))
	}
	return nil
}

func (c *whereConfig) parseClause(key string, v any) (Clause, error) {
	column, op := ParseWhereKey(key)
	raw := strings.HasPrefix(column, "*")
	if raw {
		column = strings.TrimPrefix(column, "*")
	}
	if column == "" || (!raw && !columnPattern.MatchString(column)) {
		return Clause{}, semantics("invalid where column %q", key)
	}
	norm, ok := NormalizeOperator(op)
	if !ok {
		if !c.legacy {
			return Clause{}, &OperatorError{Column: column, Operator: op}
		}
		c.logger.Warn("unknown where operator, comparing with =", "column", column, "operator", op)
		norm = "="
	}
	return Clause{Column: column, Operator: norm, Value: v, RawColumn: raw}, nil
}
