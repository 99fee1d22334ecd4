package pushdown

import (
	"strings"

	"github.com/ajitpratap0/gridframe/pkg/metrics"
)

// Translation outcome label values
const (
	OutcomeFull = "full"
	OutcomeNone = "none"
)

// Translate converts expr into a storage filter. ok is true only when the
// whole expression translated; a partial translation is never returned, so
// callers either push the filter down and skip residual evaluation or
// evaluate expr themselves. A nil expr translates to a nil filter.
func Translate(expr Expr) (filter *Filter, ok bool) {
	if expr == nil {
		return nil, true
	}
	filter = translate(expr, false)
	if filter == nil {
		metrics.PushdownTranslations.WithLabelValues(OutcomeNone).Inc()
		return nil, false
	}
	metrics.PushdownTranslations.WithLabelValues(OutcomeFull).Inc()
	return filter, true
}

func translate(e Expr, negate bool) *Filter {
	switch n := e.(type) {
	case Not:
		return translate(n.Expr, !negate)
	case Cast:
		if !isBoolType(n.Type) {
			return nil
		}
		return translate(n.Expr, negate)
	case InList:
		return translateIn(n, negate)
	case Binary:
		return translateBinary(n, negate)
	}
	return nil
}

func translateBinary(b Binary, negate bool) *Filter {
	switch b.Op {
	case OpAnd, OpOr:
		left := translate(b.Left, negate)
		if left == nil {
			return nil
		}
		right := translate(b.Right, negate)
		if right == nil {
			return nil
		}
		// NOT (a AND b) = NOT a OR NOT b, NOT (a OR b) = NOT a AND NOT b
		op := FilterAnd
		if (b.Op == OpAnd) == negate {
			op = FilterOr
		}
		return &Filter{Op: op, Children: []*Filter{left, right}}
	case OpLike:
		return nil
	}

	if !b.Op.IsComparison() {
		return nil
	}
	col, lit, flipped, ok := columnAndLiteral(b.Left, b.Right)
	if !ok {
		return nil
	}
	op := b.Op
	if negate {
		op = op.negate()
	}
	if flipped {
		op = op.flip()
	}
	return &Filter{Op: comparisonOps[op], Column: col, Value: lit}
}

func translateIn(in InList, negate bool) *Filter {
	col, ok := column(in.Expr)
	if !ok {
		return nil
	}
	values := make([]interface{}, 0, len(in.Values))
	for _, v := range in.Values {
		lit, ok := literal(v)
		if !ok {
			return nil
		}
		values = append(values, lit)
	}
	op := FilterIn
	if in.Negated != negate {
		op = FilterNin
	}
	return &Filter{Op: op, Column: col, Values: values}
}

// columnAndLiteral matches "column op literal" and "literal op column".
func columnAndLiteral(left, right Expr) (col string, lit interface{}, flipped, ok bool) {
	if c, isCol := column(left); isCol {
		if l, isLit := literal(right); isLit {
			return c, l, false, true
		}
	}
	if c, isCol := column(right); isCol {
		if l, isLit := literal(left); isLit {
			return c, l, true, true
		}
	}
	return "", nil, false, false
}

// column matches a bare column reference. A cast column compares the
// converted value, which storage cannot do, so it stays residual.
func column(e Expr) (string, bool) {
	if c, ok := e.(Column); ok {
		return c.Name, true
	}
	return "", false
}

func isBoolType(typ string) bool {
	t := strings.ToLower(strings.TrimSpace(typ))
	return t == "bool" || t == "boolean"
}

// literal unwraps a non-NULL constant. NULL never translates: every
// comparison with it is unknown.
func literal(e Expr) (interface{}, bool) {
	switch n := e.(type) {
	case Literal:
		return n.Value, n.Value != nil
	case Cast:
		v, ok := literal(n.Expr)
		if !ok {
			return nil, false
		}
		cast, err := castValue(v, n.Type)
		return cast, err == nil && cast != nil
	}
	return nil, false
}
