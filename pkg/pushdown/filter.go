package pushdown

import (
	"bytes"

	json "github.com/goccy/go-json"

	"github.com/ajitpratap0/gridframe/pkg/value"
)

// FilterOp is a MongoDB-style query operator
type FilterOp string

// Filter operators
const (
	FilterEq  FilterOp = "$eq"
	FilterNe  FilterOp = "$ne"
	FilterLt  FilterOp = "$lt"
	FilterLte FilterOp = "$lte"
	FilterGt  FilterOp = "$gt"
	FilterGte FilterOp = "$gte"
	FilterIn  FilterOp = "$in"
	FilterNin FilterOp = "$nin"
	FilterAnd FilterOp = "$and"
	FilterOr  FilterOp = "$or"
	FilterNor FilterOp = "$nor"
)

var comparisonOps = map[Op]FilterOp{
	OpEq: FilterEq,
	OpNe: FilterNe,
	OpLt: FilterLt,
	OpLe: FilterLte,
	OpGt: FilterGt,
	OpGe: FilterGte,
}

// IsLogical reports whether op combines child filters
func (op FilterOp) IsLogical() bool {
	return op == FilterAnd || op == FilterOr || op == FilterNor
}

// Filter is a storage-level predicate. Comparison filters use Column and
// Value, $in/$nin use Column and Values, logical filters use Children.
//
// A null cell matches no comparison, the same as SQL, so a translated
// filter selects exactly the rows its source expression selects.
type Filter struct {
	Op       FilterOp
	Column   string
	Value    interface{}
	Values   []interface{}
	Children []*Filter
}

// MarshalJSON renders the filter as a MongoDB query document, e.g.
// {"age":{"$gt":30}} or {"$and":[...]}.
func (f *Filter) MarshalJSON() ([]byte, error) {
	switch {
	case f.Op.IsLogical():
		return json.Marshal(map[string]interface{}{string(f.Op): f.Children})
	case f.Op == FilterIn || f.Op == FilterNin:
		values := f.Values
		if values == nil {
			values = []interface{}{}
		}
		return json.Marshal(map[string]interface{}{f.Column: map[string]interface{}{string(f.Op): values}})
	default:
		return json.Marshal(map[string]interface{}{f.Column: map[string]interface{}{string(f.Op): f.Value}})
	}
}

// String returns the JSON form
func (f *Filter) String() string {
	if f == nil {
		return "{}"
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "<invalid filter>"
	}
	return string(bytes.TrimSpace(b))
}

// Columns returns the distinct columns the filter reads
func (f *Filter) Columns() []string {
	var names []string
	seen := map[string]struct{}{}
	var walk func(*Filter)
	walk = func(f *Filter) {
		if f.Op.IsLogical() {
			for _, c := range f.Children {
				walk(c)
			}
			return
		}
		if _, ok := seen[f.Column]; !ok {
			seen[f.Column] = struct{}{}
			names = append(names, f.Column)
		}
	}
	if f != nil {
		walk(f)
	}
	return names
}

// Match evaluates the filter against one row. get returns the cell value of
// a column, nil for null or missing.
func (f *Filter) Match(get func(column string) interface{}) bool {
	if f == nil {
		return true
	}
	switch f.Op {
	case FilterAnd:
		for _, c := range f.Children {
			if !c.Match(get) {
				return false
			}
		}
		return true
	case FilterOr:
		for _, c := range f.Children {
			if c.Match(get) {
				return true
			}
		}
		return false
	case FilterNor:
		for _, c := range f.Children {
			if c.Match(get) {
				return false
			}
		}
		return true
	}

	v := get(f.Column)
	if v == nil {
		return false
	}
	switch f.Op {
	case FilterIn:
		return contains(f.Values, v)
	case FilterNin:
		return !contains(f.Values, v)
	}

	c, ok := value.Compare(v, f.Value)
	if !ok {
		return f.Op == FilterNe
	}
	switch f.Op {
	case FilterEq:
		return c == 0
	case FilterNe:
		return c != 0
	case FilterLt:
		return c < 0
	case FilterLte:
		return c <= 0
	case FilterGt:
		return c > 0
	case FilterGte:
		return c >= 0
	}
	return false
}

func contains(values []interface{}, v interface{}) bool {
	for _, x := range values {
		if value.Equal(v, x) {
			return true
		}
	}
	return false
}

// ColumnStats summarizes one column of a block of rows, typically a parquet
// row group.
type ColumnStats struct {
	Min       interface{}
	Max       interface{}
	HasMinMax bool
	NullCount int64
	NumValues int64
}

func (s ColumnStats) allNull() bool {
	return s.NumValues > 0 && s.NullCount >= s.NumValues
}

// MayMatch reports whether any row of a block described by stats could
// match. It only returns false when the statistics prove no row matches;
// columns without statistics never prune.
func (f *Filter) MayMatch(stats map[string]ColumnStats) bool {
	if f == nil {
		return true
	}
	switch f.Op {
	case FilterAnd:
		for _, c := range f.Children {
			if !c.MayMatch(stats) {
				return false
			}
		}
		return true
	case FilterOr:
		for _, c := range f.Children {
			if c.MayMatch(stats) {
				return true
			}
		}
		return false
	case FilterNor:
		return true
	}

	s, ok := stats[f.Column]
	if !ok {
		return true
	}
	if s.allNull() {
		return false
	}
	if !s.HasMinMax {
		return true
	}

	switch f.Op {
	case FilterIn:
		for _, v := range f.Values {
			if inBounds(s, v) {
				return true
			}
		}
		return false
	case FilterNin:
		if value.Equal(s.Min, s.Max) {
			return !contains(f.Values, s.Min)
		}
		return true
	case FilterEq:
		return inBounds(s, f.Value)
	case FilterNe:
		return !(value.Equal(s.Min, s.Max) && value.Equal(s.Min, f.Value))
	}

	bound := s.Max
	if f.Op == FilterLt || f.Op == FilterLte {
		bound = s.Min
	}
	c, comparable := value.Compare(bound, f.Value)
	if !comparable {
		return true
	}
	switch f.Op {
	case FilterLt:
		return c < 0
	case FilterLte:
		return c <= 0
	case FilterGt:
		return c > 0
	case FilterGte:
		return c >= 0
	}
	return true
}

func inBounds(s ColumnStats, v interface{}) bool {
	lo, ok := value.Compare(s.Min, v)
	if !ok {
		return true
	}
	hi, ok := value.Compare(s.Max, v)
	if !ok {
		return true
	}
	return lo <= 0 && hi >= 0
}
