// Package dataframe implements windowed, cache-coherent access to large
// tabular data whose rows are fetched lazily from storage.
//
// Three frames share the Frame interface:
//   - Windowed fetches row ranges from a RowReader of known size
//   - Generated pulls rows from a RowProducer whose length is unknown
//   - Sorted presents another frame through a display-row permutation
//
// GetCell and GetRowNumber never block on I/O; they report what the cell
// cache holds. Fetch is the only blocking operation and honors context
// cancellation.
package dataframe

import (
	"context"
	"fmt"
)

// ColumnType is the logical type of a column as reported by storage
type ColumnType string

const (
	ColumnTypeString    ColumnType = "string"
	ColumnTypeInt       ColumnType = "int"
	ColumnTypeFloat     ColumnType = "float"
	ColumnTypeBool      ColumnType = "bool"
	ColumnTypeTimestamp ColumnType = "timestamp"
	ColumnTypeDate      ColumnType = "date"
	ColumnTypeBinary    ColumnType = "binary"
	ColumnTypeJSON      ColumnType = "json"
	ColumnTypeUnknown   ColumnType = "unknown"
)

// ColumnDescriptor describes one column of a frame.
type ColumnDescriptor struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// ColumnNames returns the names of cols in order.
func ColumnNames(cols []ColumnDescriptor) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// ResolvedValue is the value of a settled cell. Unavailable marks a cell for
// which storage has no data, for example a row beyond the end of a short read.
type ResolvedValue struct {
	Value       interface{}
	Unavailable bool
}

// Unavailable returns the "no data exists" value.
func Unavailable() ResolvedValue {
	return ResolvedValue{Unavailable: true}
}

// Resolved returns a value holding v.
func Resolved(v interface{}) ResolvedValue {
	return ResolvedValue{Value: v}
}

// Int returns the value as an int when it holds one.
func (v ResolvedValue) Int() (int, bool) {
	if v.Unavailable {
		return 0, false
	}
	n, ok := v.Value.(int)
	return n, ok
}

func (v ResolvedValue) String() string {
	if v.Unavailable {
		return "<unavailable>"
	}
	if v.Value == nil {
		return "NULL"
	}
	return fmt.Sprint(v.Value)
}

// RowRange is a half-open range of row indices [Start, End).
type RowRange struct {
	Start int
	End   int
}

// Len returns the number of rows in the range.
func (r RowRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

func (r RowRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Row is one row returned by storage. SourceIndex is the row's index in
// storage order; Cells holds the requested columns.
type Row struct {
	SourceIndex int
	Cells       map[string]interface{}
}

// RowReader reads rows [rng.Start, rng.End) restricted to columns. It may
// return fewer rows than requested when storage ends early; the frame marks
// the missing rows unavailable. Implementations must honor ctx.
type RowReader interface {
	ReadRows(ctx context.Context, rng RowRange, columns []string) ([]Row, error)
}

// FetchRequest asks a frame to make [RowStart, RowEnd) x Columns resolvable.
// The row-number slot of every row in the range is always fetched; an empty
// Columns list fetches only row numbers.
type FetchRequest struct {
	RowStart int
	RowEnd   int
	Columns  []string
}

// Frame is a random-access view over lazily fetched tabular data.
type Frame interface {
	// Columns returns the frame schema
	Columns() []ColumnDescriptor
	// NumRows returns the current row count
	NumRows() int
	// RowCountFinal reports whether NumRows can still change
	RowCountFinal() bool
	// GetCell returns the resolved value of a cell; ok is false until the
	// cell is resolved
	GetCell(row int, column string) (v ResolvedValue, ok bool, err error)
	// GetRowNumber returns the source row index of row as an int value, or
	// an unavailable value when storage has no such row
	GetRowNumber(row int) (v ResolvedValue, ok bool, err error)
	// Entry exposes the cache state of a cell, including pending and failed
	Entry(row int, column string) (Entry, error)
	// Fetch resolves a window of cells
	Fetch(ctx context.Context, req FetchRequest) error
	// Subscribe registers a listener; the returned func unsubscribes
	Subscribe(l Listener) (unsubscribe func())
}
