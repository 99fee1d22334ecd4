package icebergsource

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/query"
)

// Scan implements query.Table by scanning the data files one after another,
// each with row group pruning. A file written before a filter column existed
// holds only nulls for it, which match no filter, so it is skipped.
func (s *Source) Scan(_ context.Context, hints query.ScanHints) (dataframe.RowProducer, error) {
	cols := hints.Columns
	if len(cols) == 0 {
		cols = dataframe.ColumnNames(s.columns)
	}
	for _, c := range append(append([]string(nil), cols...), hints.Filter.Columns()...) {
		if _, ok := s.known[c]; !ok {
			return nil, errors.UnknownColumn(c)
		}
	}
	return &scanner{src: s, hints: hints, cols: cols}, nil
}

type scanner struct {
	src   *Source
	hints query.ScanHints
	cols  []string

	file     int
	inner    dataframe.RowProducer
	missing  []string
	produced int
}

func nullCell(context.Context) (interface{}, error) { return nil, nil }

func (sc *scanner) Next(ctx context.Context) (*dataframe.LazyRow, error) {
	for {
		if sc.hints.Limit > 0 && sc.produced >= sc.hints.Limit {
			return nil, io.EOF
		}
		if sc.inner == nil {
			if err := sc.nextFile(ctx); err != nil {
				return nil, err
			}
		}
		row, err := sc.inner.Next(ctx)
		if err == io.EOF {
			sc.inner = nil
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, c := range sc.missing {
			row.Cells[c] = nullCell
		}
		row.Order = sc.cols
		sc.produced++
		return row, nil
	}
}

// nextFile opens the scan of the next data file that may match, or returns
// io.EOF.
func (sc *scanner) nextFile(ctx context.Context) error {
	s := sc.src
	for sc.file < len(s.files) {
		f := s.files[sc.file]
		sc.file++
		if err := ctx.Err(); err != nil {
			return errors.Cancelled(err)
		}
		if f.RecordCount == 0 {
			continue
		}
		pq, err := s.file(ctx, f)
		if err != nil {
			return err
		}

		_, absent := splitColumns(pq, sc.hints.Filter.Columns())
		if len(absent) > 0 {
			s.logger.Debug("data file skipped, filter columns absent",
				zap.String("file", f.Path),
				zap.Strings("columns", absent))
			continue
		}
		present, missing := splitColumns(pq, sc.cols)
		hints := sc.hints
		hints.Columns = present
		// rows of earlier files count against the limit
		if hints.Limit > 0 {
			hints.Limit -= sc.produced
		}
		inner, err := pq.Scan(ctx, hints)
		if err != nil {
			return err
		}
		sc.inner, sc.missing = inner, missing
		return nil
	}
	return io.EOF
}
