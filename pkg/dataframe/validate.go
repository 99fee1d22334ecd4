package dataframe

import (
	"github.com/ajitpratap0/gridframe/pkg/errors"
)

func validateRow(row, numRows int) error {
	if row < 0 || row >= numRows {
		return errors.OutOfRange("row", row, numRows)
	}
	if !rowAddressable(row) {
		return rowLimitError(row)
	}
	return nil
}

// validateRange checks 0 <= start <= end <= numRows. Frames with an unknown
// row count clamp end before calling it.
func validateRange(start, end, numRows int) error {
	if start < 0 {
		return errors.OutOfRange("rowStart", start, numRows)
	}
	if end < start {
		return errors.Newf(errors.ErrorTypeValidation, "rowEnd %d is before rowStart %d", end, start).
			WithDetail("row_start", start).
			WithDetail("row_end", end)
	}
	if end > numRows {
		return errors.Newf(errors.ErrorTypeOutOfRange, "rowEnd %d exceeds row count %d", end, numRows).
			WithDetail("row_end", end).
			WithDetail("bound", numRows)
	}
	if end > start && !rowAddressable(end-1) {
		return rowLimitError(end - 1)
	}
	return nil
}

// validateColumns rejects unknown names and returns columns with duplicates
// removed, keeping first occurrence order.
func validateColumns(columns []string, known map[string]struct{}) ([]string, error) {
	if len(columns) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(columns))
	out := make([]string, 0, len(columns))
	for _, name := range columns {
		if _, ok := known[name]; !ok {
			return nil, errors.UnknownColumn(name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

func columnSet(cols []ColumnDescriptor) map[string]struct{} {
	set := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		set[c.Name] = struct{}{}
	}
	return set
}
