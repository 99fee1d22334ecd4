package dataframe

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/ajitpratap0/gridframe/pkg/errors"
)

// CellState is the lifecycle state of a cached cell
type CellState int

const (
	// StateAbsent means no fetch has been issued for the cell
	StateAbsent CellState = iota
	// StatePending means a fetch owns the cell and has not settled it
	StatePending
	// StateResolved means the cell holds its final value
	StateResolved
	// StateFailed means the last fetch for the cell failed; it may be retried
	StateFailed
)

func (s CellState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MaxRows is the number of rows a frame can address. Cache rows are 32-bit
// bitmap positions.
const MaxRows = 1 << 32

func rowAddressable(row int) bool { return row >= 0 && uint64(row) < MaxRows }

func rowLimitError(row int) error {
	return errors.Newf(errors.ErrorTypeOutOfRange, "row %d is beyond the %d addressable rows", row, uint64(MaxRows)).
		WithDetail("row", row)
}

// Entry is the cached state of one cell.
type Entry struct {
	State CellState
	Value ResolvedValue
	Err   error
}

// validTransition encodes Absent -> Pending -> {Resolved | Failed} with
// Failed -> Pending for retries. Resolved is terminal.
func validTransition(from, to CellState) bool {
	switch from {
	case StateAbsent:
		return to == StatePending
	case StatePending:
		return to == StateResolved || to == StateFailed
	case StateFailed:
		return to == StatePending
	default:
		return false
	}
}

// slot holds one column (or the row-number slot) of the cache.
type slot struct {
	pending  *roaring.Bitmap
	resolved *roaring.Bitmap
	failed   *roaring.Bitmap
	values   map[uint32]ResolvedValue
	errs     map[uint32]error
}

func newSlot() *slot {
	return &slot{
		pending:  roaring.New(),
		resolved: roaring.New(),
		failed:   roaring.New(),
		values:   make(map[uint32]ResolvedValue),
		errs:     make(map[uint32]error),
	}
}

func (s *slot) state(row uint32) CellState {
	switch {
	case s.resolved.Contains(row):
		return StateResolved
	case s.pending.Contains(row):
		return StatePending
	case s.failed.Contains(row):
		return StateFailed
	default:
		return StateAbsent
	}
}

func (s *slot) entry(row uint32) Entry {
	st := s.state(row)
	e := Entry{State: st}
	switch st {
	case StateResolved:
		e.Value = s.values[row]
	case StateFailed:
		e.Err = s.errs[row]
	}
	return e
}

// needsFetch is true for Absent and Failed cells.
func (s *slot) needsFetch(row uint32) bool {
	return !s.resolved.Contains(row) && !s.pending.Contains(row)
}

func (s *slot) apply(row uint32, e Entry) {
	s.pending.Remove(row)
	s.failed.Remove(row)
	delete(s.errs, row)
	switch e.State {
	case StatePending:
		s.pending.Add(row)
	case StateResolved:
		s.resolved.Add(row)
		s.values[row] = e.Value
	case StateFailed:
		s.failed.Add(row)
		s.errs[row] = e.Err
	}
}

// CacheStats counts cells per state across all slots.
type CacheStats struct {
	Pending  uint64
	Resolved uint64
	Failed   uint64
}

// CellCache stores the fetch state of every cell and row-number slot of a
// frame. All methods are safe for concurrent use.
type CellCache struct {
	mu         sync.RWMutex
	columns    map[string]*slot
	rowNumbers *slot
}

// NewCellCache creates a cache for the given columns.
func NewCellCache(columns []string) *CellCache {
	c := &CellCache{
		columns:    make(map[string]*slot, len(columns)),
		rowNumbers: newSlot(),
	}
	for _, name := range columns {
		c.columns[name] = newSlot()
	}
	return c
}

func (c *CellCache) column(name string) (*slot, error) {
	s, ok := c.columns[name]
	if !ok {
		return nil, errors.UnknownColumn(name)
	}
	return s, nil
}

// Get returns the entry of a cell.
func (c *CellCache) Get(row int, column string) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, err := c.column(column)
	if err != nil {
		return Entry{}, err
	}
	if !rowAddressable(row) {
		return Entry{}, rowLimitError(row)
	}
	return s.entry(uint32(row)), nil
}

// GetRowNumber returns the entry of a row-number slot.
func (c *CellCache) GetRowNumber(row int) Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !rowAddressable(row) {
		return Entry{}
	}
	return c.rowNumbers.entry(uint32(row))
}

// Set moves a cell to a new state, rejecting transitions the state machine
// does not allow.
func (c *CellCache) Set(row int, column string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.column(column)
	if err != nil {
		return err
	}
	return c.set(s, row, column, e)
}

// SetRowNumber moves a row-number slot to a new state.
func (c *CellCache) SetRowNumber(row int, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set(c.rowNumbers, row, "#row", e)
}

func (c *CellCache) set(s *slot, row int, column string, e Entry) error {
	if !rowAddressable(row) {
		return rowLimitError(row)
	}
	cur := s.state(uint32(row))
	if !validTransition(cur, e.State) {
		return errors.Newf(errors.ErrorTypeInternal, "invalid cell transition %s -> %s", cur, e.State).
			WithDetail("row", row).
			WithDetail("column", column)
	}
	s.apply(uint32(row), e)
	return nil
}

// IsFetchNeeded reports whether the row-number slot or any of the columns of
// row is Absent or Failed. Unknown columns count as needing a fetch.
func (c *CellCache) IsFetchNeeded(row int, columns []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !rowAddressable(row) {
		return true
	}
	return c.fetchNeeded(uint32(row), columns)
}

func (c *CellCache) fetchNeeded(row uint32, columns []string) bool {
	if c.rowNumbers.needsFetch(row) {
		return true
	}
	for _, name := range columns {
		s, ok := c.columns[name]
		if !ok || s.needsFetch(row) {
			return true
		}
	}
	return false
}

// IsRenderable reports whether the row-number slot and every column of row
// are Resolved.
func (c *CellCache) IsRenderable(row int, columns []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !rowAddressable(row) {
		return false
	}
	r := uint32(row)
	if !c.rowNumbers.resolved.Contains(r) {
		return false
	}
	for _, name := range columns {
		s, ok := c.columns[name]
		if !ok || !s.resolved.Contains(r) {
			return false
		}
	}
	return true
}

// HasCancelled reports whether any row-number slot or cell of columns in rng
// is Failed with a cancellation cause.
func (c *CellCache) HasCancelled(rng RowRange, columns []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	check := func(s *slot) bool {
		if s.failed.IsEmpty() {
			return false
		}
		for row := max(rng.Start, 0); row < rng.End && rowAddressable(row); row++ {
			r := uint32(row)
			if s.failed.Contains(r) && errors.IsCancelled(s.errs[r]) {
				return true
			}
		}
		return false
	}
	if check(c.rowNumbers) {
		return true
	}
	for _, name := range columns {
		if s, ok := c.columns[name]; ok && check(s) {
			return true
		}
	}
	return false
}

// Stats counts cells per state.
func (c *CellCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var st CacheStats
	add := func(s *slot) {
		st.Pending += s.pending.GetCardinality()
		st.Resolved += s.resolved.GetCardinality()
		st.Failed += s.failed.GetCardinality()
	}
	add(c.rowNumbers)
	for _, s := range c.columns {
		add(s)
	}
	return st
}

// Claim is the set of cells one fetch marked Pending. Only the owner of a
// claim settles those cells.
type Claim struct {
	// Runs are the maximal row runs containing at least one claimed cell
	Runs []RowRange

	columns    []string
	cells      map[string]*roaring.Bitmap
	rowNumbers *roaring.Bitmap
}

// Empty reports whether nothing was claimed.
func (cl *Claim) Empty() bool {
	return len(cl.Runs) == 0
}

// Columns returns the requested columns that have a claimed cell in run.
func (cl *Claim) Columns(run RowRange) []string {
	var out []string
	for _, name := range cl.columns {
		bm := cl.cells[name]
		for r := run.Start; r < run.End; r++ {
			if bm.Contains(uint32(r)) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// Has reports whether the claim owns a cell.
func (cl *Claim) Has(row int, column string) bool {
	bm, ok := cl.cells[column]
	return ok && rowAddressable(row) && bm.Contains(uint32(row))
}

// Cells returns the number of claimed cells, row-number slots included.
func (cl *Claim) Cells() int {
	n := cl.rowNumbers.GetCardinality()
	for _, bm := range cl.cells {
		n += bm.GetCardinality()
	}
	return int(n)
}

// Claim atomically finds the rows of rng that need fetching for columns,
// marks their Absent and Failed slots Pending, and groups those rows into
// maximal contiguous runs. Cells already Pending belong to another fetch and
// are left alone.
func (c *CellCache) Claim(rng RowRange, columns []string) (*Claim, error) {
	if rng.Start < 0 {
		return nil, errors.OutOfRange("rowStart", rng.Start, rng.End)
	}
	if rng.End > rng.Start && !rowAddressable(rng.End-1) {
		return nil, rowLimitError(rng.End - 1)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	slots := make([]*slot, len(columns))
	for i, name := range columns {
		s, err := c.column(name)
		if err != nil {
			return nil, err
		}
		slots[i] = s
	}

	cl := &Claim{
		columns:    append([]string(nil), columns...),
		cells:      make(map[string]*roaring.Bitmap, len(columns)),
		rowNumbers: roaring.New(),
	}
	for _, name := range columns {
		cl.cells[name] = roaring.New()
	}

	runStart := -1
	for row := rng.Start; row < rng.End; row++ {
		r := uint32(row)
		claimed := false
		if c.rowNumbers.needsFetch(r) {
			c.rowNumbers.apply(r, Entry{State: StatePending})
			cl.rowNumbers.Add(r)
			claimed = true
		}
		for i, s := range slots {
			if s.needsFetch(r) {
				s.apply(r, Entry{State: StatePending})
				cl.cells[columns[i]].Add(r)
				claimed = true
			}
		}

		switch {
		case claimed && runStart < 0:
			runStart = row
		case !claimed && runStart >= 0:
			cl.Runs = append(cl.Runs, RowRange{Start: runStart, End: row})
			runStart = -1
		}
	}
	if runStart >= 0 {
		cl.Runs = append(cl.Runs, RowRange{Start: runStart, End: rng.End})
	}
	return cl, nil
}

// SettleResult counts how the cells of a run settled.
type SettleResult struct {
	Resolved    int
	Unavailable int
	Failed      int
}

// Settle resolves the claimed cells of run from rows, which hold run's rows
// in order. Rows missing at the tail, and columns missing from a row, resolve
// as Unavailable. The whole run becomes visible at once.
func (c *CellCache) Settle(cl *Claim, run RowRange, rows []Row) SettleResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res SettleResult
	for row := run.Start; row < run.End; row++ {
		r := uint32(row)
		idx := row - run.Start
		var src *Row
		if idx < len(rows) {
			src = &rows[idx]
		}

		if cl.rowNumbers.Contains(r) {
			if src != nil {
				c.rowNumbers.apply(r, Entry{State: StateResolved, Value: Resolved(src.SourceIndex)})
			} else {
				c.rowNumbers.apply(r, Entry{State: StateResolved, Value: Unavailable()})
			}
		}

		for _, name := range cl.columns {
			if !cl.cells[name].Contains(r) {
				continue
			}
			v := Unavailable()
			if src != nil {
				if raw, ok := src.Cells[name]; ok {
					v = Resolved(raw)
				}
			}
			if v.Unavailable {
				res.Unavailable++
			} else {
				res.Resolved++
			}
			c.columns[name].apply(r, Entry{State: StateResolved, Value: v})
		}
	}
	return res
}

// SettleCell resolves or fails a single claimed cell. It is used by frames
// that resolve cells one at a time.
func (c *CellCache) SettleCell(cl *Claim, row int, column string, v ResolvedValue, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !rowAddressable(row) {
		return
	}
	r := uint32(row)
	bm, ok := cl.cells[column]
	if !ok || !bm.Contains(r) {
		return
	}
	if err != nil {
		c.columns[column].apply(r, Entry{State: StateFailed, Err: err})
		return
	}
	c.columns[column].apply(r, Entry{State: StateResolved, Value: v})
}

// SettleRowNumber resolves a claimed row-number slot.
func (c *CellCache) SettleRowNumber(cl *Claim, row int, v ResolvedValue) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !rowAddressable(row) {
		return
	}
	r := uint32(row)
	if cl.rowNumbers.Contains(r) {
		c.rowNumbers.apply(r, Entry{State: StateResolved, Value: v})
	}
}

// Fail marks every claimed cell of run Failed with err.
func (c *CellCache) Fail(cl *Claim, run RowRange, err error) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for row := run.Start; row < run.End; row++ {
		r := uint32(row)
		if cl.rowNumbers.Contains(r) {
			c.rowNumbers.apply(r, Entry{State: StateFailed, Err: err})
		}
		for _, name := range cl.columns {
			if cl.cells[name].Contains(r) {
				c.columns[name].apply(r, Entry{State: StateFailed, Err: err})
				n++
			}
		}
	}
	return n
}
