// Package byterange tracks which byte ranges of a remote object have been
// read. Ranges are kept sorted, merged and minimal so coverage queries over a
// column chunk stay cheap while a frame streams in.
package byterange

import (
	"fmt"
	"sync"

	"github.com/google/btree"
)

// Range is a half-open byte range [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

// Len returns the number of bytes in the range.
func (r Range) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Status classifies how much of a range has been downloaded.
type Status int

const (
	// StatusPending means no byte of the range has been read
	StatusPending Status = iota
	// StatusPartial means some but not all bytes have been read
	StatusPartial
	// StatusCovered means every byte has been read
	StatusCovered
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusPartial:
		return "partial"
	case StatusCovered:
		return "covered"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Tracker is a concurrency-safe set of disjoint, non-adjacent byte ranges.
type Tracker struct {
	mu      sync.RWMutex
	tree    *btree.BTreeG[Range]
	covered uint64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		tree: btree.NewG[Range](16, func(a, b Range) bool { return a.Start < b.Start }),
	}
}

// Record adds [start, end) and merges it with every stored range it overlaps
// or touches. Empty ranges are ignored.
func (t *Tracker) Record(start, end uint64) {
	if end <= start {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	merged := Range{Start: start, End: end}
	var absorbed []Range

	// A predecessor starting strictly before start can only touch us from the left.
	t.tree.DescendLessOrEqual(Range{Start: start}, func(r Range) bool {
		if r.Start < start && r.End >= start {
			absorbed = append(absorbed, r)
			merged.Start = r.Start
			if r.End > merged.End {
				merged.End = r.End
			}
		}
		return false
	})

	t.tree.AscendGreaterOrEqual(Range{Start: start}, func(r Range) bool {
		if r.Start > merged.End {
			return false
		}
		absorbed = append(absorbed, r)
		if r.End > merged.End {
			merged.End = r.End
		}
		return true
	})

	for _, r := range absorbed {
		t.tree.Delete(r)
		t.covered -= r.Len()
	}
	t.tree.ReplaceOrInsert(merged)
	t.covered += merged.Len()
}

// Coverage reports how much of [start, end) has been recorded. An empty query
// is covered.
func (t *Tracker) Coverage(start, end uint64) Status {
	if end <= start {
		return StatusCovered
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var overlap uint64
	add := func(r Range) {
		lo, hi := max(r.Start, start), min(r.End, end)
		if hi > lo {
			overlap += hi - lo
		}
	}

	t.tree.DescendLessOrEqual(Range{Start: start}, func(r Range) bool {
		if r.Start < start {
			add(r)
		}
		return false
	})
	t.tree.AscendRange(Range{Start: start}, Range{Start: end}, func(r Range) bool {
		add(r)
		return true
	})

	switch {
	case overlap == 0:
		return StatusPending
	case overlap >= end-start:
		return StatusCovered
	default:
		return StatusPartial
	}
}

// Ranges returns a sorted snapshot of the stored ranges.
func (t *Tracker) Ranges() []Range {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Range, 0, t.tree.Len())
	t.tree.Ascend(func(r Range) bool {
		out = append(out, r)
		return true
	})
	return out
}

// Len returns the number of stored (merged) ranges.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.Len()
}

// CoveredBytes returns the total number of distinct bytes recorded.
func (t *Tracker) CoveredBytes() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.covered
}
