// Package pushdown translates SQL-like WHERE expressions into storage
// filters. A storage reader that understands Filter can skip rows (or whole
// row groups) before they are materialized; whatever cannot be translated is
// evaluated afterwards as a residual predicate with Evaluate.
package pushdown

import (
	"fmt"
	"strings"
)

// Op is a binary operator of the expression tree
type Op string

// Binary operators
const (
	OpEq   Op = "="
	OpNe   Op = "!="
	OpLt   Op = "<"
	OpLe   Op = "<="
	OpGt   Op = ">"
	OpGe   Op = ">="
	OpAnd  Op = "AND"
	OpOr   Op = "OR"
	OpLike Op = "LIKE"
)

// IsComparison reports whether op compares two values
func (op Op) IsComparison() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// negate returns the operator of NOT (a op b)
func (op Op) negate() Op {
	switch op {
	case OpEq:
		return OpNe
	case OpNe:
		return OpEq
	case OpLt:
		return OpGe
	case OpLe:
		return OpGt
	case OpGt:
		return OpLe
	case OpGe:
		return OpLt
	}
	return op
}

// flip returns the operator with its operands swapped
func (op Op) flip() Op {
	switch op {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	}
	return op
}

// Expr is a node of a WHERE expression
type Expr interface {
	fmt.Stringer
	isExpr()
}

// Column references a column by name
type Column struct {
	Name string
}

// Literal is a constant. A nil Value is SQL NULL.
type Literal struct {
	Value interface{}
}

// Binary applies Op to two operands
type Binary struct {
	Op    Op
	Left  Expr
	Right Expr
}

// Not negates its operand
type Not struct {
	Expr Expr
}

// InList tests membership of Expr in Values
type InList struct {
	Expr    Expr
	Values  []Expr
	Negated bool
}

// IsNull tests Expr for NULL, or for NOT NULL when Negated
type IsNull struct {
	Expr    Expr
	Negated bool
}

// Cast converts Expr to the named SQL type
type Cast struct {
	Expr Expr
	Type string
}

func (Column) isExpr()  {}
func (Literal) isExpr() {}
func (Binary) isExpr()  {}
func (Not) isExpr()     {}
func (InList) isExpr()  {}
func (IsNull) isExpr()  {}
func (Cast) isExpr()    {}

func (c Column) String() string { return c.Name }

func (l Literal) String() string {
	switch v := l.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	default:
		return fmt.Sprint(v)
	}
}

func (b Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

func (n Not) String() string { return fmt.Sprintf("NOT %s", n.Expr) }

func (in InList) String() string {
	vals := make([]string, len(in.Values))
	for i, v := range in.Values {
		vals[i] = v.String()
	}
	op := "IN"
	if in.Negated {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", in.Expr, op, strings.Join(vals, ", "))
}

func (n IsNull) String() string {
	if n.Negated {
		return fmt.Sprintf("%s IS NOT NULL", n.Expr)
	}
	return fmt.Sprintf("%s IS NULL", n.Expr)
}

func (c Cast) String() string { return fmt.Sprintf("CAST(%s AS %s)", c.Expr, c.Type) }

// Col is shorthand for Column{Name: name}
func Col(name string) Expr { return Column{Name: name} }

// Lit is shorthand for Literal{Value: v}
func Lit(v interface{}) Expr { return Literal{Value: v} }

// Cmp builds a binary expression
func Cmp(op Op, left, right Expr) Expr { return Binary{Op: op, Left: left, Right: right} }

// And joins exprs with AND. It returns nil for no expressions.
func And(exprs ...Expr) Expr { return fold(OpAnd, exprs) }

// Or joins exprs with OR. It returns nil for no expressions.
func Or(exprs ...Expr) Expr { return fold(OpOr, exprs) }

func fold(op Op, exprs []Expr) Expr {
	var out Expr
	for _, e := range exprs {
		if out == nil {
			out = e
			continue
		}
		out = Binary{Op: op, Left: out, Right: e}
	}
	return out
}

// Columns returns the distinct column names referenced by e, in order of
// first appearance.
func Columns(e Expr) []string {
	var names []string
	seen := map[string]struct{}{}
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case Column:
			if _, ok := seen[n.Name]; !ok {
				seen[n.Name] = struct{}{}
				names = append(names, n.Name)
			}
		case Binary:
			walk(n.Left)
			walk(n.Right)
		case Not:
			walk(n.Expr)
		case InList:
			walk(n.Expr)
			for _, v := range n.Values {
				walk(v)
			}
		case IsNull:
			walk(n.Expr)
		case Cast:
			walk(n.Expr)
		}
	}
	if e != nil {
		walk(e)
	}
	return names
}
