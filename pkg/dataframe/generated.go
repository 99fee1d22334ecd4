package dataframe

import (
	"context"
	"io"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/logger"
	"github.com/ajitpratap0/gridframe/pkg/metrics"
	"github.com/ajitpratap0/gridframe/pkg/observability"
)

// CellFunc resolves one cell of a produced row.
type CellFunc func(ctx context.Context) (interface{}, error)

// LazyRow is a produced row whose cells resolve on demand. Order lists the
// row's columns; when empty the map keys are used in sorted order.
type LazyRow struct {
	Cells map[string]CellFunc
	Order []string
}

// Columns returns the row's column names.
func (r *LazyRow) Columns() []string {
	if len(r.Order) > 0 {
		return r.Order
	}
	names := make([]string, 0, len(r.Cells))
	for name := range r.Cells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValueRow builds a LazyRow whose cells are already known.
func ValueRow(order []string, values map[string]interface{}) *LazyRow {
	cells := make(map[string]CellFunc, len(values))
	for name, v := range values {
		v := v
		cells[name] = func(context.Context) (interface{}, error) { return v, nil }
	}
	return &LazyRow{Cells: cells, Order: order}
}

// RowProducer yields rows in order and returns io.EOF when exhausted.
type RowProducer interface {
	Next(ctx context.Context) (*LazyRow, error)
}

// ProducerFunc adapts a function to RowProducer.
type ProducerFunc func(ctx context.Context) (*LazyRow, error)

// Next implements RowProducer.
func (f ProducerFunc) Next(ctx context.Context) (*LazyRow, error) { return f(ctx) }

// SliceProducer yields rows from a slice.
func SliceProducer(rows []*LazyRow) RowProducer {
	i := 0
	return ProducerFunc(func(ctx context.Context) (*LazyRow, error) {
		if i >= len(rows) {
			return nil, io.EOF
		}
		i++
		return rows[i-1], nil
	})
}

// Generated is a frame over a RowProducer of unknown length. Until the
// producer is exhausted NumRows reports the discovered rows plus a
// placeholder so a viewer can scroll past the known end.
type Generated struct {
	producer RowProducer
	opts     options
	logger   *zap.Logger
	metrics  *metrics.Collector
	events   emitter

	pull chan struct{} // one holder drives the producer

	mu      sync.RWMutex
	rows    []*LazyRow
	done    bool
	columns []ColumnDescriptor
	known   map[string]struct{}
	cache   *CellCache

	claimMu  sync.Mutex
	inflight map[*inflightRead]struct{}
}

// NewGenerated wraps producer.
func NewGenerated(producer RowProducer, opts ...Option) *Generated {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Component("generated-frame")
	}
	if o.cellConcurrency <= 0 {
		o.cellConcurrency = 1
	}

	g := &Generated{
		producer: producer,
		opts:     o,
		logger:   o.logger.With(zap.String("frame", o.name)),
		metrics:  metrics.NewCollector(o.name),
		pull:     make(chan struct{}, 1),
		inflight: make(map[*inflightRead]struct{}),
	}
	if len(o.schemaHint) > 0 {
		g.setColumns(o.schemaHint)
	}
	return g
}

func (g *Generated) setColumns(cols []ColumnDescriptor) {
	g.columns = cols
	g.known = columnSet(cols)
	g.cache = NewCellCache(ColumnNames(cols))
}

// Columns implements Frame. It is empty until a schema hint or the first row
// is available.
func (g *Generated) Columns() []ColumnDescriptor {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.columns
}

// NumRows implements Frame.
func (g *Generated) NumRows() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.numRowsLocked()
}

func (g *Generated) numRowsLocked() int {
	if g.done {
		return len(g.rows)
	}
	return len(g.rows) + g.opts.placeholder
}

// Discovered returns the number of rows produced so far.
func (g *Generated) Discovered() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rows)
}

// RowCountFinal implements Frame.
func (g *Generated) RowCountFinal() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.done
}

// Subscribe implements Frame.
func (g *Generated) Subscribe(l Listener) func() { return g.events.subscribe(l) }

// Entry implements Frame. Rows in the placeholder tail report Absent.
func (g *Generated) Entry(row int, column string) (Entry, error) {
	g.mu.RLock()
	n, discovered, cache, known := g.numRowsLocked(), len(g.rows), g.cache, g.known
	g.mu.RUnlock()

	if err := validateRow(row, n); err != nil {
		return Entry{}, err
	}
	if cache == nil {
		return Entry{}, nil
	}
	if _, ok := known[column]; !ok {
		return Entry{}, errors.UnknownColumn(column)
	}
	if row >= discovered {
		return Entry{}, nil
	}
	return cache.Get(row, column)
}

// GetCell implements Frame.
func (g *Generated) GetCell(row int, column string) (ResolvedValue, bool, error) {
	e, err := g.Entry(row, column)
	if err != nil || e.State != StateResolved {
		return ResolvedValue{}, false, err
	}
	return e.Value, true, nil
}

// GetRowNumber implements Frame. Produced rows are numbered in production
// order.
func (g *Generated) GetRowNumber(row int) (ResolvedValue, bool, error) {
	g.mu.RLock()
	n, discovered := g.numRowsLocked(), len(g.rows)
	g.mu.RUnlock()

	if err := validateRow(row, n); err != nil {
		return ResolvedValue{}, false, err
	}
	if row >= discovered {
		return ResolvedValue{}, false, nil
	}
	return Resolved(row), true, nil
}

// Fetch implements Frame. It drives the producer until RowEnd rows exist or
// the producer is done, then resolves the requested cells of the discovered
// part of the window. RowEnd beyond the discovered rows is clamped. Cells
// another Fetch is resolving are waited on, and re-claimed when that Fetch
// was cancelled, as Windowed does.
func (g *Generated) Fetch(ctx context.Context, req FetchRequest) (err error) {
	ctx = logger.WithFrame(ctx, g.opts.name)
	ctx, span := observability.StartSpan(ctx, "generated", "fetch")
	span.SetAttribute("frame", g.opts.name)
	span.SetAttribute("row_start", req.RowStart)
	span.SetAttribute("row_end", req.RowEnd)
	defer func() {
		span.End(err)
		g.metrics.FetchCall(fetchStatus(err))
	}()

	if req.RowStart < 0 || req.RowEnd < req.RowStart {
		return validateRange(req.RowStart, req.RowEnd, req.RowEnd)
	}
	if ctx.Err() != nil {
		return errors.Cancelled(ctx.Err())
	}
	if err := g.discover(ctx, req.RowEnd); err != nil {
		return err
	}

	g.mu.RLock()
	end := min(req.RowEnd, len(g.rows))
	rows := g.rows[:end]
	cache, known, done := g.cache, g.known, g.done
	g.mu.RUnlock()

	if req.RowStart > end {
		if done {
			return errors.OutOfRange("rowStart", req.RowStart, end)
		}
		return nil
	}
	if cache == nil {
		// an empty producer without a schema hint has no columns at all
		if len(req.Columns) > 0 {
			return errors.UnknownColumn(req.Columns[0])
		}
		return nil
	}
	cols, err := validateColumns(req.Columns, known)
	if err != nil {
		return err
	}

	rng := RowRange{Start: req.RowStart, End: end}
	for attempt := 1; ; attempt++ {
		waited, err := g.fetchOnce(ctx, cache, rows, rng, cols)
		if err != nil {
			return err
		}
		if !waited || attempt == maxSharedRetries || !cache.HasCancelled(rng, cols) {
			return nil
		}
		g.logger.Debug("re-resolving cells cancelled by another fetch",
			zap.Stringer("rows", rng),
			zap.Int("attempt", attempt))
	}
}

// fetchOnce claims and resolves the window once. waited reports whether it
// waited on cells claimed by other calls.
func (g *Generated) fetchOnce(ctx context.Context, cache *CellCache, rows []*LazyRow, rng RowRange, cols []string) (waited bool, err error) {
	claim, issued, waits, err := g.claim(cache, rng, cols)
	if err != nil {
		return false, err
	}

	var eg errgroup.Group
	eg.SetLimit(g.opts.cellConcurrency)
	for _, run := range claim.Runs {
		for r := run.Start; r < run.End; r++ {
			cache.SettleRowNumber(claim, r, Resolved(r))
			for _, col := range cols {
				if !claim.Has(r, col) {
					continue
				}
				r, col, lazy := r, col, rows[r]
				eg.Go(func() error {
					v, cerr := resolveCell(ctx, lazy, col)
					cache.SettleCell(claim, r, col, v, cerr)
					if cerr != nil {
						g.metrics.CellsSettled(metrics.StateFailed, 1)
					} else if v.Unavailable {
						g.metrics.CellsSettled(metrics.StateUnavailable, 1)
					} else {
						g.metrics.CellsSettled(metrics.StateResolved, 1)
					}
					return nil
				})
			}
		}
	}
	_ = eg.Wait()
	for _, rd := range issued {
		g.release(rd)
	}

	for _, run := range claim.Runs {
		g.events.emit(Event{Kind: CellsResolved, Rows: run, Columns: claim.Columns(run)})
	}

	if g.opts.waitForInflight {
		for _, rd := range waits {
			select {
			case <-rd.done:
			case <-ctx.Done():
				return len(waits) > 0, errors.Cancelled(ctx.Err())
			}
		}
	}
	if ctx.Err() != nil {
		return len(waits) > 0, errors.Cancelled(ctx.Err())
	}
	return g.opts.waitForInflight && len(waits) > 0, nil
}

// claim marks the window Pending and registers its runs, returning the runs
// of other fetches that overlap it.
func (g *Generated) claim(cache *CellCache, rng RowRange, cols []string) (*Claim, []*inflightRead, []*inflightRead, error) {
	g.claimMu.Lock()
	defer g.claimMu.Unlock()

	var waits []*inflightRead
	for rd := range g.inflight {
		if rd.rows.Start < rng.End && rng.Start < rd.rows.End {
			waits = append(waits, rd)
		}
	}

	cl, err := cache.Claim(rng, cols)
	if err != nil {
		return nil, nil, nil, err
	}
	issued := make([]*inflightRead, len(cl.Runs))
	for i, run := range cl.Runs {
		rd := &inflightRead{rows: run, done: make(chan struct{})}
		g.inflight[rd] = struct{}{}
		issued[i] = rd
	}
	return cl, issued, waits, nil
}

func (g *Generated) release(rd *inflightRead) {
	g.claimMu.Lock()
	delete(g.inflight, rd)
	g.claimMu.Unlock()
	close(rd.done)
}

func resolveCell(ctx context.Context, row *LazyRow, column string) (ResolvedValue, error) {
	fn, ok := row.Cells[column]
	if !ok {
		return Unavailable(), nil
	}
	if ctx.Err() != nil {
		return ResolvedValue{}, errors.Cancelled(ctx.Err())
	}
	v, err := fn(ctx)
	if err != nil {
		if errors.IsCancelled(err) || ctx.Err() != nil {
			return ResolvedValue{}, errors.Cancelled(err)
		}
		return ResolvedValue{}, errors.UnderlyingRead(err, "resolve cell "+column)
	}
	return Resolved(v), nil
}

// discover pulls rows until target rows exist or the producer is done.
func (g *Generated) discover(ctx context.Context, target int) error {
	select {
	case g.pull <- struct{}{}:
	case <-ctx.Done():
		return errors.Cancelled(ctx.Err())
	}
	defer func() { <-g.pull }()

	for {
		g.mu.RLock()
		have, done := len(g.rows), g.done
		g.mu.RUnlock()
		if done || have >= target {
			return nil
		}
		if ctx.Err() != nil {
			return errors.Cancelled(ctx.Err())
		}

		row, err := g.producer.Next(ctx)
		if err == io.EOF {
			g.mu.Lock()
			g.done = true
			n := len(g.rows)
			g.mu.Unlock()
			g.logger.Debug("producer exhausted", zap.Int("rows", n))
			g.events.emit(Event{Kind: RowCountChanged, NumRows: n})
			return nil
		}
		if err != nil {
			if errors.IsCancelled(err) || ctx.Err() != nil {
				return errors.Cancelled(err)
			}
			g.mu.Lock()
			g.done = true
			n := len(g.rows)
			g.mu.Unlock()
			g.logger.Error("producer failed", zap.Int("rows", n), zap.Error(err))
			g.events.emit(Event{Kind: RowCountChanged, NumRows: n})
			return errors.UnderlyingRead(err, "produce row")
		}

		g.mu.Lock()
		if g.cache == nil {
			names := row.Columns()
			cols := make([]ColumnDescriptor, len(names))
			for i, name := range names {
				cols[i] = ColumnDescriptor{Name: name, Type: ColumnTypeUnknown, Nullable: true}
			}
			g.setColumns(cols)
		}
		g.rows = append(g.rows, row)
		n := g.numRowsLocked()
		g.mu.Unlock()

		g.events.emit(Event{Kind: RowCountChanged, NumRows: n})
	}
}
