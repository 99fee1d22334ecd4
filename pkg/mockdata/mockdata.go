// Package mockdata serves a deterministic synthetic table for demos and
// tests. Reads can be slowed down and cut short to exercise loading states,
// cancellation and unavailable rows.
package mockdata

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/logger"
	"github.com/ajitpratap0/gridframe/pkg/query"
)

// DefaultRows is the size of the demo table
const DefaultRows = 10_000

// Column names
const (
	ColumnID   = "ID"
	ColumnName = "Name"
	ColumnAge  = "Age"
	ColumnUUID = "UUID"
	ColumnText = "Text"
	ColumnJSON = "JSON"
)

var schema = []dataframe.ColumnDescriptor{
	{Name: ColumnID, Type: dataframe.ColumnTypeInt},
	{Name: ColumnName, Type: dataframe.ColumnTypeString},
	{Name: ColumnAge, Type: dataframe.ColumnTypeInt},
	{Name: ColumnUUID, Type: dataframe.ColumnTypeString},
	{Name: ColumnText, Type: dataframe.ColumnTypeString},
	{Name: ColumnJSON, Type: dataframe.ColumnTypeString},
}

// uuidSpace namespaces the per-row UUIDs so they are stable across reads.
var uuidSpace = uuid.MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8")

var words = strings.Fields("lorem ipsum dolor sit amet consectetur adipiscing elit")

// Read records one ReadRows call
type Read struct {
	Rows    dataframe.RowRange
	Columns []string
	Err     error
}

// Table is the synthetic table
type Table struct {
	numRows int
	delay   time.Duration
	jitter  time.Duration
	limit   int
	logger  *zap.Logger

	mu    sync.Mutex
	reads []Read
}

// Option configures a Table
type Option func(*Table)

// WithRows sets the row count
func WithRows(n int) Option {
	return func(t *Table) { t.numRows = n }
}

// WithDelay makes every read take d plus a random share of jitter.
func WithDelay(d, jitter time.Duration) Option {
	return func(t *Table) {
		t.delay = d
		t.jitter = jitter
	}
}

// WithLimit makes rows at or past n missing from reads, as if the storage
// were shorter than its advertised row count.
func WithLimit(n int) Option {
	return func(t *Table) { t.limit = n }
}

// WithLogger replaces the component logger
func WithLogger(l *zap.Logger) Option {
	return func(t *Table) { t.logger = l }
}

// New creates the table
func New(opts ...Option) *Table {
	t := &Table{numRows: DefaultRows}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logger.Component("mockdata")
	}
	return t
}

// Columns returns the schema
func (t *Table) Columns() []dataframe.ColumnDescriptor { return schema }

// NumRows returns the advertised row count
func (t *Table) NumRows() int { return t.numRows }

// Value computes one cell
func Value(row int, column string) (interface{}, error) {
	switch column {
	case ColumnID:
		return int64(row + 1), nil
	case ColumnName:
		return fmt.Sprintf("Name%d", row), nil
	case ColumnAge:
		return int64(20 + row%80), nil
	case ColumnUUID:
		return uuid.NewSHA1(uuidSpace, []byte(fmt.Sprint(row))).String(), nil
	case ColumnText:
		return lorem(math.Abs(math.Sin(float64(row+1))), 10), nil
	case ColumnJSON:
		b, err := json.Marshal(map[string]interface{}{"row": row, "column": column})
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "encode JSON cell")
		}
		return string(b), nil
	}
	return nil, errors.UnknownColumn(column)
}

func lorem(seed float64, length int) string {
	out := make([]string, length)
	for i := range out {
		out[i] = words[int(float64(i)+seed*8)%len(words)]
	}
	s := strings.Join(out, " ")
	return strings.ToUpper(s[:1]) + s[1:]
}

// ReadRows implements dataframe.RowReader
func (t *Table) ReadRows(ctx context.Context, rng dataframe.RowRange, columns []string) ([]dataframe.Row, error) {
	rows, err := t.readRows(ctx, rng, columns)
	t.mu.Lock()
	t.reads = append(t.reads, Read{Rows: rng, Columns: append([]string(nil), columns...), Err: err})
	t.mu.Unlock()
	return rows, err
}

func (t *Table) readRows(ctx context.Context, rng dataframe.RowRange, columns []string) ([]dataframe.Row, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}

	end := rng.End
	if t.limit > 0 && end > t.limit {
		end = t.limit
	}
	rows := make([]dataframe.Row, 0, max(end-rng.Start, 0))
	for r := rng.Start; r < end; r++ {
		cells := make(map[string]interface{}, len(columns))
		for _, c := range columns {
			v, err := Value(r, c)
			if err != nil {
				return nil, err
			}
			cells[c] = v
		}
		rows = append(rows, dataframe.Row{SourceIndex: r, Cells: cells})
	}
	t.logger.Debug("rows read",
		zap.Stringer("range", rng),
		zap.Strings("columns", columns),
		zap.Int("returned", len(rows)))
	return rows, nil
}

func (t *Table) wait(ctx context.Context) error {
	d := t.delay
	if t.jitter > 0 {
		d += time.Duration(rand.Int63n(int64(t.jitter)))
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reads returns every ReadRows call so far
func (t *Table) Reads() []Read {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Read(nil), t.reads...)
}

// ResetReads clears the read log
func (t *Table) ResetReads() {
	t.mu.Lock()
	t.reads = nil
	t.mu.Unlock()
}

// NewFrame wraps the table in a windowed frame
func (t *Table) NewFrame(opts ...dataframe.Option) *dataframe.Windowed {
	return dataframe.NewWindowed(t, schema, t.numRows, opts...)
}

// Scan implements query.Table. Each produced cell resolves after the
// configured delay; the filter is checked eagerly on computed values.
func (t *Table) Scan(_ context.Context, hints query.ScanHints) (dataframe.RowProducer, error) {
	cols := hints.Columns
	if len(cols) == 0 {
		cols = dataframe.ColumnNames(schema)
	}
	for _, c := range cols {
		if _, err := Value(0, c); err != nil {
			return nil, err
		}
	}

	next, produced := 0, 0
	return dataframe.ProducerFunc(func(ctx context.Context) (*dataframe.LazyRow, error) {
		for {
			if hints.Limit > 0 && produced >= hints.Limit {
				return nil, io.EOF
			}
			if next >= t.numRows || (t.limit > 0 && next >= t.limit) {
				return nil, io.EOF
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			row := next
			next++
			if !hints.Filter.Match(func(c string) interface{} {
				v, _ := Value(row, c)
				return v
			}) {
				continue
			}
			produced++
			return t.lazyRow(row, cols), nil
		}
	}), nil
}

func (t *Table) lazyRow(row int, cols []string) *dataframe.LazyRow {
	cells := make(map[string]dataframe.CellFunc, len(cols))
	for _, c := range cols {
		c := c
		cells[c] = func(ctx context.Context) (interface{}, error) {
			if err := t.wait(ctx); err != nil {
				return nil, err
			}
			return Value(row, c)
		}
	}
	return &dataframe.LazyRow{Cells: cells, Order: cols}
}
