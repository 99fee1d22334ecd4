package parquetsource

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/metrics"
	"github.com/ajitpratap0/gridframe/pkg/query"
)

// Scan implements query.Table. Row groups whose statistics rule out the
// filter are skipped without reading their data pages; the rest are read one
// at a time and filtered row by row.
func (s *Source) Scan(_ context.Context, hints query.ScanHints) (dataframe.RowProducer, error) {
	cols := hints.Columns
	if len(cols) == 0 {
		cols = dataframe.ColumnNames(s.columns)
	}
	read := append([]string(nil), cols...)
	for _, c := range hints.Filter.Columns() {
		found := false
		for _, r := range read {
			if r == c {
				found = true
				break
			}
		}
		if !found {
			read = append(read, c)
		}
	}
	if _, err := s.leafIndices(read); err != nil {
		return nil, err
	}
	return &scanner{src: s, hints: hints, cols: cols, read: read}, nil
}

type scanner struct {
	src   *Source
	hints query.ScanHints
	cols  []string // produced columns
	read  []string // produced plus filter columns

	group    int
	values   [][]interface{}
	pos      int
	produced int
}

func (sc *scanner) Next(ctx context.Context) (*dataframe.LazyRow, error) {
	for {
		if sc.hints.Limit > 0 && sc.produced >= sc.hints.Limit {
			return nil, io.EOF
		}
		if sc.values == nil || sc.pos >= len(sc.values[0]) {
			if err := sc.nextGroup(ctx); err != nil {
				return nil, err
			}
			continue
		}

		i := sc.pos
		sc.pos++
		if !sc.hints.Filter.Match(func(c string) interface{} { return sc.column(c)[i] }) {
			continue
		}

		vals := make(map[string]interface{}, len(sc.cols))
		for _, c := range sc.cols {
			vals[c] = sc.column(c)[i]
		}
		sc.produced++
		return dataframe.ValueRow(sc.cols, vals), nil
	}
}

func (sc *scanner) column(name string) []interface{} {
	for j, c := range sc.read {
		if c == name {
			return sc.values[j]
		}
	}
	return nil
}

// nextGroup loads the next row group that may match, or returns io.EOF.
func (sc *scanner) nextGroup(ctx context.Context) error {
	s := sc.src
	for sc.group < len(s.groups) {
		rg := s.groups[sc.group]
		sc.group++
		if err := ctx.Err(); err != nil {
			return errors.Cancelled(err)
		}
		if rg.NumRows == 0 {
			continue
		}
		if sc.hints.Filter != nil && !sc.hints.Filter.MayMatch(s.GroupStats(rg)) {
			metrics.RowGroupsPruned.WithLabelValues(s.name).Inc()
			s.logger.Debug("row group pruned", zap.Int("row_group", rg.Index), zap.Stringer("filter", sc.hints.Filter))
			continue
		}
		values, err := s.readGroup(ctx, rg, sc.read)
		if err != nil {
			return err
		}
		sc.values, sc.pos = values, 0
		return nil
	}
	return io.EOF
}
