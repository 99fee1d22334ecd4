package query

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/gridframe/pkg/config"
	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/logger"
	"github.com/ajitpratap0/gridframe/pkg/observability"
	"github.com/ajitpratap0/gridframe/pkg/pushdown"
)

// Plan describes how a query runs
type Plan struct {
	Table           string
	Columns         []string // output columns, in order
	ScanColumns     []string // columns requested from the table
	Filter          *pushdown.Filter
	FullyTranslated bool
	Residual        pushdown.Expr // evaluated after the scan, nil when pushed down
	Limit           int           // negative when unbounded
	ScanLimit       int           // limit hint passed to the table, 0 for none
	OrderBy         []OrderBy
}

// String renders a one-line plan summary
func (p *Plan) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "scan %s columns=[%s]", p.Table, strings.Join(p.ScanColumns, ","))
	if p.Filter != nil {
		fmt.Fprintf(&sb, " filter=%s", p.Filter)
	}
	fmt.Fprintf(&sb, " fully_translated=%t", p.FullyTranslated)
	if p.Residual != nil {
		fmt.Fprintf(&sb, " residual=%s", p.Residual)
	}
	if p.Limit >= 0 {
		fmt.Fprintf(&sb, " limit=%d", p.Limit)
	}
	return sb.String()
}

// Execute plans q against table and starts the scan. The returned producer
// yields projected rows whose cells still resolve lazily.
func Execute(ctx context.Context, table Table, q *Query, cfg config.QueryConfig) (dataframe.RowProducer, *Plan, error) {
	ctx, span := observability.StartSpan(ctx, "query", "execute")
	var err error
	defer func() { span.End(err) }()

	plan, err := buildPlan(table, q, cfg)
	if err != nil {
		return nil, nil, err
	}
	span.SetAttribute("table", plan.Table)
	span.SetAttribute("fully_translated", plan.FullyTranslated)

	logger.WithContext(ctx).Debug("query planned",
		zap.String("component", "query"),
		zap.String("plan", plan.String()))

	inner, err := table.Scan(ctx, ScanHints{Columns: plan.ScanColumns, Filter: plan.Filter, Limit: plan.ScanLimit})
	if err != nil {
		return nil, nil, err
	}
	return &resultProducer{inner: inner, plan: plan}, plan, nil
}

// NewFrame executes q and wraps the result in a generated frame whose schema
// is the projection. ORDER BY columns outside the projection are appended so
// a sorted view can read them.
func NewFrame(ctx context.Context, table Table, q *Query, cfg config.QueryConfig, opts ...dataframe.Option) (*dataframe.Generated, *Plan, error) {
	producer, plan, err := Execute(ctx, table, q, cfg)
	if err != nil {
		return nil, nil, err
	}
	types := make(map[string]dataframe.ColumnDescriptor)
	for _, c := range table.Columns() {
		types[c.Name] = c
	}
	names := append([]string(nil), plan.Columns...)
	for _, o := range plan.OrderBy {
		names = appendUnique(names, o.Column)
	}
	hint := make([]dataframe.ColumnDescriptor, len(names))
	for i, name := range names {
		hint[i] = types[name]
	}
	opts = append(opts, dataframe.WithSchemaHint(hint))
	return dataframe.NewGenerated(producer, opts...), plan, nil
}

func buildPlan(table Table, q *Query, cfg config.QueryConfig) (*Plan, error) {
	b := newBinder(table.Columns())

	plan := &Plan{Table: q.Table, Limit: q.Limit}
	if plan.Limit < 0 && cfg.DefaultLimit > 0 {
		plan.Limit = cfg.DefaultLimit
	}

	var err error
	if q.Columns == nil {
		plan.Columns = dataframe.ColumnNames(table.Columns())
	} else if plan.Columns, err = b.columns(q.Columns); err != nil {
		return nil, err
	}

	where, err := b.expr(q.Where)
	if err != nil {
		return nil, err
	}

	for _, o := range q.OrderBy {
		name, err := b.column(o.Column)
		if err != nil {
			return nil, err
		}
		plan.OrderBy = append(plan.OrderBy, OrderBy{Column: name, Descending: o.Descending})
	}

	if where != nil {
		if cfg.EnablePushdown {
			plan.Filter, plan.FullyTranslated = pushdown.Translate(where)
		}
		if !plan.FullyTranslated {
			plan.Residual = where
		}
	} else {
		plan.FullyTranslated = true
	}

	// a residual filter runs after the scan, so the table cannot stop early
	if plan.Residual == nil && plan.Limit >= 0 && len(plan.OrderBy) == 0 {
		plan.ScanLimit = plan.Limit
	}

	plan.ScanColumns = appendUnique(nil, plan.Columns...)
	plan.ScanColumns = appendUnique(plan.ScanColumns, pushdown.Columns(where)...)
	for _, o := range plan.OrderBy {
		plan.ScanColumns = appendUnique(plan.ScanColumns, o.Column)
	}
	return plan, nil
}

func appendUnique(dst []string, names ...string) []string {
	for _, n := range names {
		dup := false
		for _, d := range dst {
			if d == n {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, n)
		}
	}
	return dst
}

// resultProducer applies the residual filter, the projection and the limit
// to the rows of a table scan.
type resultProducer struct {
	inner    dataframe.RowProducer
	plan     *Plan
	produced int
}

func (p *resultProducer) Next(ctx context.Context) (*dataframe.LazyRow, error) {
	for {
		if p.plan.Limit >= 0 && p.produced >= p.plan.Limit && len(p.plan.OrderBy) == 0 {
			return nil, io.EOF
		}
		row, err := p.inner.Next(ctx)
		if err != nil {
			return nil, err
		}

		cells := make(map[string]dataframe.CellFunc, len(row.Cells))
		for name, fn := range row.Cells {
			cells[name] = memoize(fn)
		}

		if p.plan.Residual != nil {
			ok, err := pushdown.Evaluate(p.plan.Residual, func(column string) (interface{}, error) {
				fn, found := cells[column]
				if !found {
					return nil, nil
				}
				return fn(ctx)
			})
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}

		out := &dataframe.LazyRow{Cells: make(map[string]dataframe.CellFunc, len(p.plan.Columns)), Order: p.plan.Columns}
		for _, name := range p.plan.Columns {
			if fn, found := cells[name]; found {
				out.Cells[name] = fn
			}
		}
		// ORDER BY columns stay reachable for sorting
		for _, o := range p.plan.OrderBy {
			if fn, found := cells[o.Column]; found {
				out.Cells[o.Column] = fn
			}
		}
		p.produced++
		return out, nil
	}
}

// memoize resolves fn at most once successfully; errors are not cached so a
// later fetch may retry.
func memoize(fn dataframe.CellFunc) dataframe.CellFunc {
	var (
		mu   sync.Mutex
		done bool
		v    interface{}
	)
	return func(ctx context.Context) (interface{}, error) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return v, nil
		}
		res, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		v, done = res, true
		return v, nil
	}
}
