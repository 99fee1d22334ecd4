package sqlsource

import (
	"strings"

	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/pushdown"
)

var sqlOps = map[pushdown.FilterOp]string{
	pushdown.FilterEq:  "=",
	pushdown.FilterNe:  "<>",
	pushdown.FilterLt:  "<",
	pushdown.FilterLte: "<=",
	pushdown.FilterGt:  ">",
	pushdown.FilterGte: ">=",
}

// RenderWhere renders f as a parameterized boolean expression. Bind
// parameters are numbered from argStart. A nil filter renders as "".
//
// NULL cells never satisfy a comparison, matching Filter.Match: a $nor
// collapses unknown to false before negating.
func RenderWhere(f *pushdown.Filter, d Dialect, argStart int) (string, []interface{}, error) {
	if f == nil {
		return "", nil, nil
	}
	r := &renderer{dialect: d, next: argStart}
	if err := r.render(f); err != nil {
		return "", nil, err
	}
	return r.sb.String(), r.args, nil
}

type renderer struct {
	dialect Dialect
	sb      strings.Builder
	args    []interface{}
	next    int
}

func (r *renderer) bind(v interface{}) {
	r.args = append(r.args, v)
	r.sb.WriteString(r.dialect.Placeholder(r.next))
	r.next++
}

func (r *renderer) render(f *pushdown.Filter) error {
	switch f.Op {
	case pushdown.FilterAnd, pushdown.FilterOr:
		if len(f.Children) == 0 {
			if f.Op == pushdown.FilterAnd {
				r.sb.WriteString("1=1")
			} else {
				r.sb.WriteString("1=0")
			}
			return nil
		}
		return r.group(f.Children, " "+strings.ToUpper(string(f.Op[1:]))+" ")
	case pushdown.FilterNor:
		if len(f.Children) == 0 {
			r.sb.WriteString("1=1")
			return nil
		}
		r.sb.WriteString("NOT COALESCE(")
		if err := r.group(f.Children, " OR "); err != nil {
			return err
		}
		r.sb.WriteString(", FALSE)")
		return nil
	case pushdown.FilterIn, pushdown.FilterNin:
		col := r.dialect.Quote(f.Column)
		if len(f.Values) == 0 {
			if f.Op == pushdown.FilterIn {
				r.sb.WriteString("1=0")
			} else {
				r.sb.WriteString(col + " IS NOT NULL")
			}
			return nil
		}
		r.sb.WriteString(col)
		if f.Op == pushdown.FilterNin {
			r.sb.WriteString(" NOT")
		}
		r.sb.WriteString(" IN (")
		for i, v := range f.Values {
			if i > 0 {
				r.sb.WriteString(", ")
			}
			r.bind(v)
		}
		r.sb.WriteString(")")
		return nil
	}

	op, ok := sqlOps[f.Op]
	if !ok {
		return errors.Newf(errors.ErrorTypeQuery, "unsupported filter operator %q", f.Op)
	}
	r.sb.WriteString(r.dialect.Quote(f.Column) + " " + op + " ")
	r.bind(f.Value)
	return nil
}

func (r *renderer) group(children []*pushdown.Filter, sep string) error {
	r.sb.WriteString("(")
	for i, c := range children {
		if i > 0 {
			r.sb.WriteString(sep)
		}
		if err := r.render(c); err != nil {
			return err
		}
	}
	r.sb.WriteString(")")
	return nil
}
