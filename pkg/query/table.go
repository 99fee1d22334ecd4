package query

import (
	"context"
	"strings"

	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/pushdown"
)

// ScanHints narrow a table scan.
//
// Columns lists the columns the query reads; a table may omit every other
// column. A non-nil Filter must be applied exactly: rows it rejects must not
// be produced. Limit, when positive, caps the rows produced after filtering.
type ScanHints struct {
	Columns []string
	Filter  *pushdown.Filter
	Limit   int
}

// Table is a queryable data source
type Table interface {
	Columns() []dataframe.ColumnDescriptor
	Scan(ctx context.Context, hints ScanHints) (dataframe.RowProducer, error)
}

// binder resolves query identifiers to table columns. Unquoted SQL
// identifiers arrive lower-cased, so a unique case-insensitive match is
// accepted when there is no exact one.
type binder struct {
	exact map[string]struct{}
	fold  map[string][]string
}

func newBinder(cols []dataframe.ColumnDescriptor) *binder {
	b := &binder{exact: map[string]struct{}{}, fold: map[string][]string{}}
	for _, c := range cols {
		b.exact[c.Name] = struct{}{}
		key := strings.ToLower(c.Name)
		b.fold[key] = append(b.fold[key], c.Name)
	}
	return b
}

func (b *binder) column(name string) (string, error) {
	if _, ok := b.exact[name]; ok {
		return name, nil
	}
	switch cands := b.fold[strings.ToLower(name)]; len(cands) {
	case 1:
		return cands[0], nil
	case 0:
		return "", errors.UnknownColumn(name)
	default:
		return "", errors.Newf(errors.ErrorTypeQuery, "column %q is ambiguous: %s", name, strings.Join(cands, ", "))
	}
}

func (b *binder) columns(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		c, err := b.column(n)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func (b *binder) expr(e pushdown.Expr) (pushdown.Expr, error) {
	switch n := e.(type) {
	case nil:
		return nil, nil
	case pushdown.Column:
		name, err := b.column(n.Name)
		if err != nil {
			return nil, err
		}
		return pushdown.Column{Name: name}, nil
	case pushdown.Literal:
		return n, nil
	case pushdown.Binary:
		l, err := b.expr(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := b.expr(n.Right)
		if err != nil {
			return nil, err
		}
		return pushdown.Binary{Op: n.Op, Left: l, Right: r}, nil
	case pushdown.Not:
		inner, err := b.expr(n.Expr)
		if err != nil {
			return nil, err
		}
		return pushdown.Not{Expr: inner}, nil
	case pushdown.IsNull:
		inner, err := b.expr(n.Expr)
		if err != nil {
			return nil, err
		}
		return pushdown.IsNull{Expr: inner, Negated: n.Negated}, nil
	case pushdown.Cast:
		inner, err := b.expr(n.Expr)
		if err != nil {
			return nil, err
		}
		return pushdown.Cast{Expr: inner, Type: n.Type}, nil
	case pushdown.InList:
		inner, err := b.expr(n.Expr)
		if err != nil {
			return nil, err
		}
		out := pushdown.InList{Expr: inner, Negated: n.Negated, Values: make([]pushdown.Expr, len(n.Values))}
		for i, v := range n.Values {
			if out.Values[i], err = b.expr(v); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return nil, errors.Newf(errors.ErrorTypeQuery, "unsupported expression %T", e)
}
