package query

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/ridoystarlord/schemasync/dialect"
)

// writer accumulates SQL text and bound arguments. Placeholders are
// numbered across nested statements.
type writer struct {
	d    dialect.Dialect
	b    strings.Builder
	args []any
	err  error
}

func newWriter(d dialect.Dialect) *writer { return &writer{d: d} }

func (w *writer) WriteString(s string) { w.b.WriteString(s) }

func (w *writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *writer) ident(name string) {
	w.b.WriteString(dialect.QuoteQualified(w.d, name))
}

func (w *writer) idents(names []string) {
	for i, n := range names {
		if i > 0 {
			w.b.WriteString(", ")
		}
		w.ident(n)
	}
}

func (w *writer) arg(v any) {
	w.args = append(w.args, v)
	w.b.WriteString(w.d.Placeholder(len(w.args)))
}

// value renders a bound value, a column reference, a raw fragment or a
// subquery.
func (w *writer) value(v any) {
	switch v := v.(type) {
	case Col:
		w.ident(string(v))
	case Raw:
		w.raw(v)
	case *SelectBuilder:
		w.b.WriteString("(")
		v.write(w)
		w.b.WriteString(")")
	default:
		w.arg(v)
	}
}

func (w *writer) raw(r Raw) {
	n := 0
	for _, ch := range r.SQL {
		if ch != '?' {
			w.b.WriteRune(ch)
			continue
		}
		if n >= len(r.Args) {
			w.fail(semantics("raw fragment %q has more placeholders than arguments", r.SQL))
			return
		}
		w.arg(r.Args[n])
		n++
	}
	if n != len(r.Args) {
		w.fail(semantics("raw fragment %q has %d arguments for %d placeholders", r.SQL, len(r.Args), n))
	}
}

func (w *writer) where(n Node) {
	switch n := n.(type) {
	case Clause:
		w.clause(n)
	case Raw:
		w.raw(n)
	case *Where:
		conj := " " + string(n.Conjunction()) + " "
		for i, child := range n.nodes {
			if i > 0 {
				w.b.WriteString(conj)
			}
			if sub, ok := child.(*Where); ok {
				if len(sub.nodes) == 0 {
					if sub.Conjunction() == Or {
						w.b.WriteString("1=0")
					} else {
						w.b.WriteString("1=1")
					}
					continue
				}
				w.b.WriteString("(")
				w.where(sub)
				w.b.WriteString(")")
				continue
			}
			// a raw fragment may carry its own AND/OR
			if r, ok := child.(Raw); ok && len(n.nodes) > 1 {
				w.b.WriteString("(")
				w.raw(r)
				w.b.WriteString(")")
				continue
			}
			w.where(child)
		}
	default:
		w.fail(semantics("unknown where node %T", n))
	}
}

func (w *writer) clause(c Clause) {
	op, ok := NormalizeOperator(c.Operator)
	if !ok {
		w.fail(&OperatorError{Column: c.Column, Operator: c.Operator})
		return
	}
	if c.RawColumn {
		w.b.WriteString(c.Column)
	} else {
		w.ident(c.Column)
	}

	if c.Value == nil {
		switch op {
		case "=", "IN":
			w.b.WriteString(" IS NULL")
		case "!=", "NOT IN":
			w.b.WriteString(" IS NOT NULL")
		default:
			w.fail(semantics("cannot compare %s with NULL using %s", c.Column, op))
		}
		return
	}

	if list, ok := asList(c.Value); ok {
		in := ""
		switch op {
		case "=", "IN":
			in = " IN ("
		case "!=", "NOT IN":
			in = " NOT IN ("
		default:
			w.fail(semantics("cannot compare %s with a list using %s", c.Column, op))
			return
		}
		if len(list) == 0 {
			// an empty list matches missing values
			if in == " IN (" {
				w.b.WriteString(" IS NULL")
			} else {
				w.b.WriteString(" IS NOT NULL")
			}
			return
		}
		w.b.WriteString(in)
		for i, v := range list {
			if i > 0 {
				w.b.WriteString(", ")
			}
			w.value(v)
		}
		w.b.WriteString(")")
		return
	}

	switch op {
	case "%":
		w.b.WriteString(" LIKE ")
		w.arg("%" + fmt.Sprint(c.Value) + "%")
	case "!%":
		w.b.WriteString(" NOT LIKE ")
		w.arg("%" + fmt.Sprint(c.Value) + "%")
	case "IN", "NOT IN":
		w.b.WriteString(" " + op + " ")
		if _, sub := c.Value.(*SelectBuilder); sub {
			w.value(c.Value)
			return
		}
		w.b.WriteString("(")
		w.value(c.Value)
		w.b.WriteString(")")
	default:
		if _, sub := c.Value.(*SelectBuilder); sub {
			switch op {
			case "=":
				op = "IN"
			case "!=":
				op = "NOT IN"
			}
		}
		w.b.WriteString(" " + op + " ")
		w.value(c.Value)
	}
}

// asList reports whether v is a slice or array of values. Byte slices are
// single values.
func asList(v any) ([]any, bool) {
	switch v := v.(type) {
	case []byte:
		return nil, false
	case []any:
		return v, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func (w *writer) limit(limit, offset int) {
	switch {
	case limit > 0:
		w.b.WriteString(" LIMIT " + strconv.Itoa(limit))
		if offset > 0 {
			w.b.WriteString(" OFFSET " + strconv.Itoa(offset))
		}
	case offset > 0:
		switch w.d.Name() {
		case dialect.MySQL:
			w.b.WriteString(" LIMIT 18446744073709551615")
		case dialect.SQLite:
			w.b.WriteString(" LIMIT -1")
		}
		w.b.WriteString(" OFFSET " + strconv.Itoa(offset))
	}
}

func (w *writer) result() (string, []any, error) {
	if w.err != nil {
		return "", nil, w.err
	}
	return w.b.String(), w.args, nil
}
