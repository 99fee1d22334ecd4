// Package query parses single-table SELECT statements and executes them
// against a Table, pushing column, filter and limit hints down to storage
// and evaluating whatever storage cannot as a residual filter.
package query

import (
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/pushdown"
)

// OrderBy is one ORDER BY term
type OrderBy struct {
	Column     string
	Descending bool
}

// Query is a parsed SELECT
type Query struct {
	SQL     string
	Table   string
	Columns []string // nil selects every column
	Where   pushdown.Expr
	OrderBy []OrderBy
	Limit   int // negative when absent
}

// Parse parses "SELECT cols FROM table [WHERE ...] [ORDER BY ...] [LIMIT n]".
func Parse(sql string) (*Query, error) {
	stmt, err := parseOne(sql)
	if err != nil {
		return nil, err
	}
	sel := stmt.GetSelectStmt()
	if sel == nil {
		return nil, errors.New(errors.ErrorTypeQuery, "only SELECT statements are supported")
	}
	if sel.Op != pg_query.SetOperation_SETOP_NONE {
		return nil, errors.New(errors.ErrorTypeQuery, "set operations are not supported")
	}
	if len(sel.GroupClause) > 0 || sel.HavingClause != nil {
		return nil, errors.New(errors.ErrorTypeQuery, "GROUP BY is not supported")
	}

	q := &Query{SQL: sql, Limit: -1}

	if len(sel.FromClause) != 1 {
		return nil, errors.New(errors.ErrorTypeQuery, "exactly one table is required")
	}
	rv := sel.FromClause[0].GetRangeVar()
	if rv == nil {
		return nil, errors.New(errors.ErrorTypeQuery, "joins and subqueries are not supported")
	}
	q.Table = rv.Relname

	for _, target := range sel.TargetList {
		rt := target.GetResTarget()
		if rt == nil || rt.Val == nil {
			continue
		}
		ref := rt.Val.GetColumnRef()
		if ref == nil {
			return nil, errors.New(errors.ErrorTypeQuery, "only column references can be selected")
		}
		name, star, err := columnRefName(ref)
		if err != nil {
			return nil, err
		}
		if star {
			q.Columns = nil
			break
		}
		q.Columns = append(q.Columns, name)
	}

	if sel.WhereClause != nil {
		q.Where, err = convertExpr(sel.WhereClause)
		if err != nil {
			return nil, err
		}
	}

	for _, node := range sel.SortClause {
		sb := node.GetSortBy()
		if sb == nil || sb.Node == nil {
			continue
		}
		ref := sb.Node.GetColumnRef()
		if ref == nil {
			return nil, errors.New(errors.ErrorTypeQuery, "ORDER BY supports columns only")
		}
		name, _, err := columnRefName(ref)
		if err != nil {
			return nil, err
		}
		q.OrderBy = append(q.OrderBy, OrderBy{Column: name, Descending: sb.SortbyDir == pg_query.SortByDir_SORTBY_DESC})
	}

	if sel.LimitCount != nil {
		c := sel.LimitCount.GetAConst()
		if c == nil || c.GetIval() == nil {
			return nil, errors.New(errors.ErrorTypeQuery, "LIMIT must be an integer constant")
		}
		q.Limit = int(c.GetIval().Ival)
	}
	return q, nil
}

// ParseWhere parses a bare boolean expression, e.g. "age > 30 AND name LIKE 'A%'".
func ParseWhere(where string) (pushdown.Expr, error) {
	q, err := Parse("SELECT * FROM t WHERE " + where)
	if err != nil {
		return nil, err
	}
	return q.Where, nil
}

func parseOne(sql string) (*pg_query.Node, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to parse SQL")
	}
	if len(result.Stmts) != 1 {
		return nil, errors.Newf(errors.ErrorTypeQuery, "expected one statement, got %d", len(result.Stmts))
	}
	return result.Stmts[0].Stmt, nil
}

// columnRefName returns the column of "col", "t.col" or "*".
func columnRefName(ref *pg_query.ColumnRef) (name string, star bool, err error) {
	if len(ref.Fields) == 0 {
		return "", false, errors.New(errors.ErrorTypeQuery, "empty column reference")
	}
	last := ref.Fields[len(ref.Fields)-1]
	if last.GetAStar() != nil {
		return "", true, nil
	}
	if s := last.GetString_(); s != nil {
		return s.Sval, false, nil
	}
	return "", false, errors.New(errors.ErrorTypeQuery, "unsupported column reference")
}

func convertExpr(node *pg_query.Node) (pushdown.Expr, error) {
	if ref := node.GetColumnRef(); ref != nil {
		name, star, err := columnRefName(ref)
		if err != nil {
			return nil, err
		}
		if star {
			return nil, errors.New(errors.ErrorTypeQuery, "* is not allowed in expressions")
		}
		return pushdown.Col(name), nil
	}
	if c := node.GetAConst(); c != nil {
		v, err := constValue(c)
		if err != nil {
			return nil, err
		}
		return pushdown.Lit(v), nil
	}
	if be := node.GetBoolExpr(); be != nil {
		return convertBool(be)
	}
	if ae := node.GetAExpr(); ae != nil {
		return convertAExpr(ae)
	}
	if tc := node.GetTypeCast(); tc != nil {
		inner, err := convertExpr(tc.Arg)
		if err != nil {
			return nil, err
		}
		return pushdown.Cast{Expr: inner, Type: typeName(tc.TypeName)}, nil
	}
	if nt := node.GetNullTest(); nt != nil {
		inner, err := convertExpr(nt.Arg)
		if err != nil {
			return nil, err
		}
		return pushdown.IsNull{Expr: inner, Negated: nt.Nulltesttype == pg_query.NullTestType_IS_NOT_NULL}, nil
	}
	return nil, errors.New(errors.ErrorTypeQuery, "unsupported expression in WHERE")
}

func convertBool(be *pg_query.BoolExpr) (pushdown.Expr, error) {
	args := make([]pushdown.Expr, 0, len(be.Args))
	for _, a := range be.Args {
		e, err := convertExpr(a)
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	switch be.Boolop {
	case pg_query.BoolExprType_AND_EXPR:
		return pushdown.And(args...), nil
	case pg_query.BoolExprType_OR_EXPR:
		return pushdown.Or(args...), nil
	case pg_query.BoolExprType_NOT_EXPR:
		if len(args) != 1 {
			return nil, errors.New(errors.ErrorTypeQuery, "NOT takes one argument")
		}
		return pushdown.Not{Expr: args[0]}, nil
	}
	return nil, errors.New(errors.ErrorTypeQuery, "unsupported boolean expression")
}

var operators = map[string]pushdown.Op{
	"=":  pushdown.OpEq,
	"<>": pushdown.OpNe,
	"!=": pushdown.OpNe,
	"<":  pushdown.OpLt,
	"<=": pushdown.OpLe,
	">":  pushdown.OpGt,
	">=": pushdown.OpGe,
}

func convertAExpr(ae *pg_query.A_Expr) (pushdown.Expr, error) {
	op := operatorName(ae)
	left, err := convertExpr(ae.Lexpr)
	if err != nil {
		return nil, err
	}

	switch ae.Kind {
	case pg_query.A_Expr_Kind_AEXPR_OP:
		bop, ok := operators[op]
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeQuery, "unsupported operator %q", op)
		}
		right, err := convertExpr(ae.Rexpr)
		if err != nil {
			return nil, err
		}
		return pushdown.Cmp(bop, left, right), nil

	case pg_query.A_Expr_Kind_AEXPR_LIKE:
		right, err := convertExpr(ae.Rexpr)
		if err != nil {
			return nil, err
		}
		like := pushdown.Cmp(pushdown.OpLike, left, right)
		if op == "!~~" {
			return pushdown.Not{Expr: like}, nil
		}
		return like, nil

	case pg_query.A_Expr_Kind_AEXPR_IN:
		list := ae.Rexpr.GetList()
		if list == nil {
			return nil, errors.New(errors.ErrorTypeQuery, "IN needs a value list")
		}
		in := pushdown.InList{Expr: left, Negated: op == "<>"}
		for _, item := range list.Items {
			v, err := convertExpr(item)
			if err != nil {
				return nil, err
			}
			in.Values = append(in.Values, v)
		}
		return in, nil

	case pg_query.A_Expr_Kind_AEXPR_BETWEEN, pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN:
		list := ae.Rexpr.GetList()
		if list == nil || len(list.Items) != 2 {
			return nil, errors.New(errors.ErrorTypeQuery, "BETWEEN needs two bounds")
		}
		lo, err := convertExpr(list.Items[0])
		if err != nil {
			return nil, err
		}
		hi, err := convertExpr(list.Items[1])
		if err != nil {
			return nil, err
		}
		between := pushdown.And(pushdown.Cmp(pushdown.OpGe, left, lo), pushdown.Cmp(pushdown.OpLe, left, hi))
		if ae.Kind == pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN {
			return pushdown.Not{Expr: between}, nil
		}
		return between, nil
	}
	return nil, errors.Newf(errors.ErrorTypeQuery, "unsupported expression kind %s", ae.Kind)
}

func operatorName(ae *pg_query.A_Expr) string {
	if len(ae.Name) == 0 {
		return ""
	}
	if s := ae.Name[len(ae.Name)-1].GetString_(); s != nil {
		return s.Sval
	}
	return ""
}

func typeName(tn *pg_query.TypeName) string {
	if tn == nil || len(tn.Names) == 0 {
		return ""
	}
	if s := tn.Names[len(tn.Names)-1].GetString_(); s != nil {
		return s.Sval
	}
	return ""
}

func constValue(c *pg_query.A_Const) (interface{}, error) {
	if c.Isnull {
		return nil, nil
	}
	if iv := c.GetIval(); iv != nil {
		return int64(iv.Ival), nil
	}
	if fv := c.GetFval(); fv != nil {
		// integers beyond int32 arrive as Float nodes
		if n, err := strconv.ParseInt(fv.Fval, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(fv.Fval, 64)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "invalid numeric constant")
		}
		return f, nil
	}
	if sv := c.GetSval(); sv != nil {
		return sv.Sval, nil
	}
	if bv := c.GetBoolval(); bv != nil {
		return bv.Boolval, nil
	}
	if bs := c.GetBsval(); bs != nil {
		return strings.TrimPrefix(bs.Bsval, "b"), nil
	}
	return nil, errors.New(errors.ErrorTypeQuery, "unsupported constant")
}
