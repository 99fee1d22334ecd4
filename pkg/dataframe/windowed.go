package dataframe

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/logger"
	"github.com/ajitpratap0/gridframe/pkg/metrics"
	"github.com/ajitpratap0/gridframe/pkg/observability"
)

// Windowed is a frame over a RowReader with a known row count. Each Fetch
// claims the cells it needs, coalesces them into contiguous row runs and
// reads every run concurrently.
type Windowed struct {
	reader  RowReader
	columns []ColumnDescriptor
	known   map[string]struct{}
	numRows int
	cache   *CellCache
	opts    options
	metrics *metrics.Collector
	logger  *zap.Logger
	events  emitter

	claimMu  sync.Mutex
	inflight map[*inflightRead]struct{}
}

// inflightRead is the shared future of one issued row run.
type inflightRead struct {
	rows RowRange
	done chan struct{}
}

// NewWindowed creates a frame of numRows rows read through reader.
func NewWindowed(reader RowReader, columns []ColumnDescriptor, numRows int, opts ...Option) *Windowed {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Component("windowed-frame")
	}

	return &Windowed{
		reader:   reader,
		columns:  columns,
		known:    columnSet(columns),
		numRows:  numRows,
		cache:    NewCellCache(ColumnNames(columns)),
		opts:     o,
		metrics:  metrics.NewCollector(o.name),
		logger:   o.logger.With(zap.String("frame", o.name)),
		inflight: make(map[*inflightRead]struct{}),
	}
}

// Columns implements Frame.
func (w *Windowed) Columns() []ColumnDescriptor { return w.columns }

// NumRows implements Frame.
func (w *Windowed) NumRows() int { return w.numRows }

// RowCountFinal implements Frame. A windowed frame knows its size up front.
func (w *Windowed) RowCountFinal() bool { return true }

// Subscribe implements Frame.
func (w *Windowed) Subscribe(l Listener) func() { return w.events.subscribe(l) }

// Stats returns the cell cache counters.
func (w *Windowed) Stats() CacheStats { return w.cache.Stats() }

// GetCell implements Frame.
func (w *Windowed) GetCell(row int, column string) (ResolvedValue, bool, error) {
	e, err := w.Entry(row, column)
	if err != nil || e.State != StateResolved {
		return ResolvedValue{}, false, err
	}
	return e.Value, true, nil
}

// Entry implements Frame.
func (w *Windowed) Entry(row int, column string) (Entry, error) {
	if err := validateRow(row, w.numRows); err != nil {
		return Entry{}, err
	}
	return w.cache.Get(row, column)
}

// GetRowNumber implements Frame.
func (w *Windowed) GetRowNumber(row int) (ResolvedValue, bool, error) {
	if err := validateRow(row, w.numRows); err != nil {
		return ResolvedValue{}, false, err
	}
	e := w.cache.GetRowNumber(row)
	if e.State != StateResolved {
		return ResolvedValue{}, false, nil
	}
	return e.Value, true, nil
}

// Fetch implements Frame. It returns once every run it issued has settled,
// and, unless disabled, once overlapping runs issued by earlier calls have
// settled too. Cells left Failed(Cancelled) by such a run are claimed and
// read again, so another caller's cancellation never ends this call's window.
// Per-cell read failures are recorded in the cache and never fail the call;
// only invalid arguments and cancellation do.
func (w *Windowed) Fetch(ctx context.Context, req FetchRequest) (err error) {
	ctx = logger.WithFrame(ctx, w.opts.name)
	ctx, span := observability.StartSpan(ctx, "windowed", "fetch")
	span.SetAttribute("frame", w.opts.name)
	span.SetAttribute("row_start", req.RowStart)
	span.SetAttribute("row_end", req.RowEnd)
	defer func() {
		span.End(err)
		w.metrics.FetchCall(fetchStatus(err))
	}()

	if err := validateRange(req.RowStart, req.RowEnd, w.numRows); err != nil {
		return err
	}
	cols, err := validateColumns(req.Columns, w.known)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return errors.Cancelled(ctx.Err())
	}

	rng := RowRange{Start: req.RowStart, End: req.RowEnd}
	for attempt := 1; ; attempt++ {
		waited, err := w.fetchOnce(ctx, rng, cols)
		if err != nil {
			return err
		}
		// a read this call waited on may have been cancelled by its owner
		if !waited || attempt == maxSharedRetries || !w.cache.HasCancelled(rng, cols) {
			return nil
		}
		w.logger.Debug("re-fetching cells cancelled by another fetch",
			zap.Stringer("rows", rng),
			zap.Int("attempt", attempt))
	}
}

// maxSharedRetries bounds how often one Fetch re-claims cells whose shared
// read was cancelled by another caller.
const maxSharedRetries = 3

// fetchOnce claims and reads the window once. waited reports whether it
// waited on reads issued by other calls.
func (w *Windowed) fetchOnce(ctx context.Context, rng RowRange, cols []string) (waited bool, err error) {
	claim, issued, waits, err := w.claim(rng, cols)
	if err != nil {
		return false, err
	}
	w.logger.Debug("fetch claimed",
		zap.Int("row_start", rng.Start),
		zap.Int("row_end", rng.End),
		zap.Strings("columns", cols),
		zap.Int("runs", len(claim.Runs)),
		zap.Int("cells", claim.Cells()),
		zap.Int("awaiting", len(waits)))

	var wg sync.WaitGroup
	for i, run := range claim.Runs {
		wg.Add(1)
		go func(run RowRange, rd *inflightRead) {
			defer wg.Done()
			w.readRun(ctx, claim, run, rd)
		}(run, issued[i])
	}
	wg.Wait()

	if w.opts.waitForInflight {
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
	return w.opts.waitForInflight && len(waits) > 0, nil
}

// claim marks the window Pending and registers the issued runs. It also
// returns the runs of other fetches overlapping the window, so the caller can
// wait on them instead of reading the same cells twice.
func (w *Windowed) claim(rng RowRange, cols []string) (*Claim, []*inflightRead, []*inflightRead, error) {
	w.claimMu.Lock()
	defer w.claimMu.Unlock()

	var waits []*inflightRead
	for rd := range w.inflight {
		if rd.rows.Start < rng.End && rng.Start < rd.rows.End {
			waits = append(waits, rd)
		}
	}

	cl, err := w.cache.Claim(rng, cols)
	if err != nil {
		return nil, nil, nil, err
	}

	issued := make([]*inflightRead, len(cl.Runs))
	for i, run := range cl.Runs {
		rd := &inflightRead{rows: run, done: make(chan struct{})}
		w.inflight[rd] = struct{}{}
		issued[i] = rd
	}
	return cl, issued, waits, nil
}

func (w *Windowed) release(rd *inflightRead) {
	w.claimMu.Lock()
	delete(w.inflight, rd)
	w.claimMu.Unlock()
	close(rd.done)
}

// readRun issues one storage read and settles its cells. Every claimed cell
// leaves Pending whatever the outcome.
func (w *Windowed) readRun(ctx context.Context, cl *Claim, run RowRange, rd *inflightRead) {
	defer w.release(rd)

	cols := cl.Columns(run)
	ctx, span := observability.StartSpan(ctx, "windowed", "read")
	span.SetAttribute("row_start", run.Start)
	span.SetAttribute("row_end", run.End)
	span.SetAttribute("columns", cols)

	start := time.Now()
	rows, err := w.reader.ReadRows(ctx, run, cols)
	elapsed := time.Since(start)
	span.End(err)

	if err != nil {
		var cause error
		status := metrics.StatusError
		if errors.IsCancelled(err) || ctx.Err() != nil {
			cause = errors.Cancelled(err)
			status = metrics.StatusCancelled
			w.logger.Debug("read cancelled", zap.Stringer("rows", run))
		} else {
			cause = errors.UnderlyingRead(err, "read rows "+run.String()).
				WithDetail("columns", cols)
			w.logger.Warn("read failed", zap.Stringer("rows", run), zap.Error(err))
		}
		n := w.cache.Fail(cl, run, cause)
		w.metrics.SubRangeRead(run.Len(), elapsed, status)
		w.metrics.CellsSettled(metrics.StateFailed, n)
	} else {
		res := w.cache.Settle(cl, run, rows)
		w.metrics.SubRangeRead(run.Len(), elapsed, metrics.StatusSuccess)
		w.metrics.CellsSettled(metrics.StateResolved, res.Resolved)
		w.metrics.CellsSettled(metrics.StateUnavailable, res.Unavailable)
		if len(rows) < run.Len() {
			w.logger.Debug("short read",
				zap.Stringer("rows", run),
				zap.Int("returned", len(rows)))
		}
	}

	w.events.emit(Event{Kind: CellsResolved, Rows: run, Columns: cols})
}

func fetchStatus(err error) string {
	switch {
	case err == nil:
		return metrics.StatusSuccess
	case errors.IsCancelled(err):
		return metrics.StatusCancelled
	default:
		return metrics.StatusError
	}
}
