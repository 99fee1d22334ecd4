package byterange

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/gridframe/pkg/metrics"
)

// ReaderAtSizer is a random-access byte source of known size.
type ReaderAtSizer interface {
	io.ReaderAt
	Size() int64
}

// Stats summarizes the traffic seen by a TrackedReader.
type Stats struct {
	Fetches int64
	Bytes   int64
}

// TrackedReader forwards every ReadAt to the wrapped source and records the
// bytes actually returned in a Tracker. It also satisfies io.Seeker so it can
// back readers that want an io.ReadSeeker-style handle.
type TrackedReader struct {
	src     ReaderAtSizer
	tracker *Tracker
	name    string
	onRead  func(Range, Stats)

	fetches atomic.Int64
	bytes   atomic.Int64

	mu  sync.Mutex
	pos int64
}

// Option configures a TrackedReader
type Option func(*TrackedReader)

// WithObserver registers fn to be called after every successful read.
func WithObserver(fn func(Range, Stats)) Option {
	return func(r *TrackedReader) { r.onRead = fn }
}

// WithTracker shares an existing tracker instead of creating a new one.
func WithTracker(t *Tracker) Option {
	return func(r *TrackedReader) { r.tracker = t }
}

// NewTrackedReader wraps src; name labels the byte source metrics.
func NewTrackedReader(src ReaderAtSizer, name string, opts ...Option) *TrackedReader {
	r := &TrackedReader{src: src, name: name}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracker == nil {
		r.tracker = NewTracker()
	}
	return r
}

// ReadAt implements io.ReaderAt.
func (r *TrackedReader) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.src.ReadAt(p, off)
	if n > 0 {
		rng := Range{Start: uint64(off), End: uint64(off) + uint64(n)}
		r.tracker.Record(rng.Start, rng.End)
		stats := Stats{Fetches: r.fetches.Add(1), Bytes: r.bytes.Add(int64(n))}
		metrics.ByteFetches.WithLabelValues(r.name).Inc()
		metrics.BytesFetched.WithLabelValues(r.name).Add(float64(n))
		if r.onRead != nil {
			r.onRead(rng, stats)
		}
	}
	return n, err
}

// Read implements io.Reader from the current seek position.
func (r *TrackedReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pos >= r.src.Size() {
		return 0, io.EOF
	}
	n, err := r.ReadAt(p, r.pos)
	r.pos += int64(n)
	if errors.Is(err, io.EOF) && n > 0 {
		err = nil
	}
	return n, err
}

// Seek implements io.Seeker.
func (r *TrackedReader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = r.pos + offset
	case io.SeekEnd:
		next = r.src.Size() + offset
	default:
		return 0, errors.New("byterange: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("byterange: negative position")
	}
	r.pos = next
	return next, nil
}

// Size returns the size of the wrapped source.
func (r *TrackedReader) Size() int64 {
	return r.src.Size()
}

// Tracker returns the tracker recording this reader's ranges.
func (r *TrackedReader) Tracker() *Tracker {
	return r.tracker
}

// Stats returns fetch and byte counters.
func (r *TrackedReader) Stats() Stats {
	return Stats{Fetches: r.fetches.Load(), Bytes: r.bytes.Load()}
}

// Coverage is shorthand for Tracker().Coverage.
func (r *TrackedReader) Coverage(start, end int64) Status {
	return r.tracker.Coverage(uint64(start), uint64(end))
}
