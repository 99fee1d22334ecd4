package dataframe

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/logger"
	"github.com/ajitpratap0/gridframe/pkg/value"
)

// SortKey orders a frame by one column.
type SortKey struct {
	Column     string
	Descending bool
}

// ParseSortKey parses "column" or "column:desc".
func ParseSortKey(s string) SortKey {
	name, dir, found := strings.Cut(s, ":")
	return SortKey{Column: name, Descending: found && strings.EqualFold(dir, "desc")}
}

// Sorted presents a source frame through a display-row permutation. The
// permutation is built from the cells the source has resolved so far; rows
// whose sort cells are not resolved yet keep their source order after every
// sorted row. It never writes to the source cache.
type Sorted struct {
	source Frame
	logger *zap.Logger
	events emitter

	sortMu sync.Mutex // serializes permutation rebuilds

	mu   sync.RWMutex
	keys []SortKey
	perm []int

	unsubscribe func()
}

// NewSorted wraps source. The frame starts unsorted.
func NewSorted(source Frame, opts ...Option) *Sorted {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Component("sorted-frame")
	}
	s := &Sorted{
		source: source,
		logger: o.logger.With(zap.String("frame", o.name)),
	}
	s.unsubscribe = source.Subscribe(s.onSourceEvent)
	return s
}

// Close detaches the adapter from its source.
func (s *Sorted) Close() {
	s.unsubscribe()
}

// Columns implements Frame.
func (s *Sorted) Columns() []ColumnDescriptor { return s.source.Columns() }

// NumRows implements Frame.
func (s *Sorted) NumRows() int { return s.source.NumRows() }

// RowCountFinal implements Frame.
func (s *Sorted) RowCountFinal() bool { return s.source.RowCountFinal() }

// Subscribe implements Frame.
func (s *Sorted) Subscribe(l Listener) func() { return s.events.subscribe(l) }

// SortKeys returns the active sort keys.
func (s *Sorted) SortKeys() []SortKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]SortKey(nil), s.keys...)
}

// SetSort replaces the sort keys and rebuilds the permutation from the
// currently resolved cells. No keys restores source order.
func (s *Sorted) SetSort(keys ...SortKey) error {
	known := columnSet(s.source.Columns())
	for _, k := range keys {
		if _, ok := known[k.Column]; !ok {
			return errors.UnknownColumn(k.Column)
		}
	}

	s.mu.Lock()
	s.keys = append([]SortKey(nil), keys...)
	s.mu.Unlock()

	s.rebuild()
	return nil
}

// Permutation returns a copy of the display-to-source mapping, or nil when
// the frame is unsorted.
func (s *Sorted) Permutation() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.perm == nil {
		return nil
	}
	return append([]int(nil), s.perm...)
}

// SourceRow maps a display row to its source row.
func (s *Sorted) SourceRow(row int) (int, error) {
	if err := validateRow(row, s.source.NumRows()); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.perm == nil || row >= len(s.perm) {
		return row, nil
	}
	return s.perm[row], nil
}

// GetCell implements Frame.
func (s *Sorted) GetCell(row int, column string) (ResolvedValue, bool, error) {
	src, err := s.SourceRow(row)
	if err != nil {
		return ResolvedValue{}, false, err
	}
	return s.source.GetCell(src, column)
}

// GetRowNumber implements Frame. It returns the source frame's row number of
// the displayed row.
func (s *Sorted) GetRowNumber(row int) (ResolvedValue, bool, error) {
	src, err := s.SourceRow(row)
	if err != nil {
		return ResolvedValue{}, false, err
	}
	return s.source.GetRowNumber(src)
}

// Entry implements Frame.
func (s *Sorted) Entry(row int, column string) (Entry, error) {
	src, err := s.SourceRow(row)
	if err != nil {
		return Entry{}, err
	}
	return s.source.Entry(src, column)
}

// Fetch implements Frame. Display rows are mapped to source rows, grouped
// into contiguous source runs and fetched concurrently.
func (s *Sorted) Fetch(ctx context.Context, req FetchRequest) error {
	s.mu.RLock()
	perm := s.perm
	s.mu.RUnlock()

	if perm == nil {
		return s.source.Fetch(ctx, req)
	}

	// a generated source clamps the range itself; mapping needs it in bounds
	end := req.RowEnd
	if n := s.source.NumRows(); end > n && !s.source.RowCountFinal() {
		end = n
	}
	if err := validateRange(req.RowStart, end, s.source.NumRows()); err != nil {
		return err
	}

	rows := make([]int, 0, end-req.RowStart)
	for r := req.RowStart; r < end; r++ {
		if r < len(perm) {
			rows = append(rows, perm[r])
		} else {
			rows = append(rows, r)
		}
	}
	sort.Ints(rows)

	g, gctx := errgroup.WithContext(ctx)
	for _, run := range groupRuns(rows) {
		run := run
		g.Go(func() error {
			return s.source.Fetch(gctx, FetchRequest{RowStart: run.Start, RowEnd: run.End, Columns: req.Columns})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return errors.Cancelled(ctx.Err())
	}
	return nil
}

// FetchSortColumns fetches the sort columns for every source row, after
// which the permutation is exact.
func (s *Sorted) FetchSortColumns(ctx context.Context) error {
	keys := s.SortKeys()
	if len(keys) == 0 {
		return nil
	}
	cols := make([]string, len(keys))
	for i, k := range keys {
		cols[i] = k.Column
	}
	return s.source.Fetch(ctx, FetchRequest{RowStart: 0, RowEnd: s.source.NumRows(), Columns: cols})
}

func (s *Sorted) onSourceEvent(ev Event) {
	keys := s.SortKeys()
	if len(keys) == 0 {
		s.events.emit(ev)
		return
	}

	switch ev.Kind {
	case RowCountChanged, RowsReordered:
		s.rebuild()
		if ev.Kind == RowCountChanged {
			s.events.emit(ev)
		}
	case CellsResolved:
		if touchesSortColumns(ev.Columns, keys) {
			s.rebuild()
		}
		// source rows map anywhere in display order
		s.events.emit(Event{
			Kind:    CellsResolved,
			Rows:    RowRange{Start: 0, End: s.source.NumRows()},
			Columns: ev.Columns,
		})
	}
}

func touchesSortColumns(cols []string, keys []SortKey) bool {
	for _, c := range cols {
		for _, k := range keys {
			if k.Column == c {
				return true
			}
		}
	}
	return false
}

type sortRow struct {
	src  int
	vals []interface{}
}

// rebuild recomputes the permutation and announces it.
func (s *Sorted) rebuild() {
	s.sortMu.Lock()
	defer s.sortMu.Unlock()

	keys := s.SortKeys()
	var perm []int
	if len(keys) > 0 {
		perm = s.permutation(keys)
	}

	s.mu.Lock()
	s.perm = perm
	s.mu.Unlock()

	s.logger.Debug("permutation rebuilt", zap.Int("rows", len(perm)), zap.Int("keys", len(keys)))
	s.events.emit(Event{Kind: RowsReordered, Rows: RowRange{Start: 0, End: s.source.NumRows()}})
}

func (s *Sorted) permutation(keys []SortKey) []int {
	n := s.source.NumRows()
	ready := make([]sortRow, 0, n)
	var waiting []int

	for r := 0; r < n; r++ {
		vals := make([]interface{}, len(keys))
		complete := true
		for i, k := range keys {
			v, ok, err := s.source.GetCell(r, k.Column)
			if err != nil || !ok || v.Unavailable {
				complete = false
				break
			}
			vals[i] = v.Value
		}
		if complete {
			ready = append(ready, sortRow{src: r, vals: vals})
		} else {
			waiting = append(waiting, r)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		for k, key := range keys {
			c := value.CompareForSort(ready[i].vals[k], ready[j].vals[k])
			if c == 0 {
				continue
			}
			if key.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	perm := make([]int, 0, n)
	for _, r := range ready {
		perm = append(perm, r.src)
	}
	return append(perm, waiting...)
}

// groupRuns turns sorted row indices into maximal contiguous runs.
func groupRuns(rows []int) []RowRange {
	var runs []RowRange
	for _, r := range rows {
		if n := len(runs); n > 0 && runs[n-1].End == r {
			runs[n-1].End++
			continue
		}
		runs = append(runs, RowRange{Start: r, End: r + 1})
	}
	return runs
}
