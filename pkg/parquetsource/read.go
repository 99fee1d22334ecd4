package parquetsource

import (
	"context"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/logger"
	"github.com/ajitpratap0/gridframe/pkg/observability"
)

// ReadRows implements dataframe.RowReader. Every row group overlapping the
// window is read for the requested columns only, at most
// storage.max_concurrent_reads groups at a time.
func (s *Source) ReadRows(ctx context.Context, rng dataframe.RowRange, columns []string) ([]dataframe.Row, error) {
	if rng.End > s.numRows {
		rng.End = s.numRows
	}
	if rng.Start >= rng.End {
		return nil, nil
	}

	if len(columns) == 0 {
		rows := make([]dataframe.Row, 0, rng.Len())
		for r := rng.Start; r < rng.End; r++ {
			rows = append(rows, dataframe.Row{SourceIndex: r, Cells: map[string]interface{}{}})
		}
		return rows, nil
	}

	groups := s.groupsFor(rng)
	parts := make([][]dataframe.Row, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	for i, rg := range groups {
		i, rg := i, rg
		g.Go(func() error {
			cols, err := s.readGroup(gctx, rg, columns)
			if err != nil {
				return err
			}
			lo := max(rng.Start, rg.Start) - rg.Start
			hi := min(rng.End, rg.End()) - rg.Start
			part := make([]dataframe.Row, 0, hi-lo)
			for r := lo; r < hi; r++ {
				cells := make(map[string]interface{}, len(columns))
				for j, name := range columns {
					cells[name] = cols[j][r]
				}
				part = append(part, dataframe.Row{SourceIndex: rg.Start + r, Cells: cells})
			}
			parts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := make([]dataframe.Row, 0, rng.Len())
	for _, p := range parts {
		rows = append(rows, p...)
	}
	return rows, nil
}

// readGroup decodes the named columns of one row group. The result is
// indexed [column][row within group].
func (s *Source) readGroup(ctx context.Context, rg RowGroup, columns []string) (out [][]interface{}, err error) {
	leaves, err := s.leafIndices(columns)
	if err != nil {
		return nil, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	ctx, span := observability.StartSpan(ctx, "parquet", "read_row_group")
	span.SetAttribute("row_group", rg.Index)
	span.SetAttribute("columns", len(columns))
	defer func() { span.End(err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	fr, err := pqarrow.NewFileReader(s.pf, pqarrow.ArrowReadProperties{}, s.mem)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUnderlyingRead, "create arrow reader")
	}
	tbl, err := fr.ReadRowGroups(ctx, leaves, []int{rg.Index})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.UnderlyingRead(err, "read row group")
	}
	defer tbl.Release()

	out = make([][]interface{}, len(columns))
	for i, name := range columns {
		idx := tbl.Schema().FieldIndices(name)
		if len(idx) == 0 {
			return nil, errors.UnknownColumn(name)
		}
		out[i] = chunkedValues(tbl.Column(idx[0]).Data(), rg.NumRows)
	}

	s.logger.Debug("row group read",
		zap.Int("row_group", rg.Index),
		zap.Strings("columns", columns),
		zap.Duration("took", time.Since(start)),
		logger.FrameField(ctx))
	return out, nil
}

func chunkedValues(c *arrow.Chunked, n int) []interface{} {
	vals := make([]interface{}, 0, n)
	for _, chunk := range c.Chunks() {
		for i := 0; i < chunk.Len(); i++ {
			vals = append(vals, extractValue(chunk, i))
		}
	}
	return vals
}

// extractValue converts one arrow cell to a Go value. Nulls become nil.
func extractValue(arr arrow.Array, index int) interface{} {
	if arr.IsNull(index) {
		return nil
	}

	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(index)
	case *array.Int8:
		return int64(a.Value(index))
	case *array.Int16:
		return int64(a.Value(index))
	case *array.Int32:
		return int64(a.Value(index))
	case *array.Int64:
		return a.Value(index)
	case *array.Uint8:
		return int64(a.Value(index))
	case *array.Uint16:
		return int64(a.Value(index))
	case *array.Uint32:
		return int64(a.Value(index))
	case *array.Uint64:
		return a.Value(index)
	case *array.Float32:
		return float64(a.Value(index))
	case *array.Float64:
		return a.Value(index)
	case *array.String:
		return a.Value(index)
	case *array.LargeString:
		return a.Value(index)
	case *array.Binary:
		return append([]byte(nil), a.Value(index)...)
	case *array.Date32:
		return a.Value(index).ToTime().UTC()
	case *array.Date64:
		return a.Value(index).ToTime().UTC()
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(index).ToTime(unit).UTC()
	case *array.List:
		start, end := a.ValueOffsets(index)
		values := a.ListValues()
		out := make([]interface{}, 0, end-start)
		for i := start; i < end; i++ {
			out = append(out, extractValue(values, int(i)))
		}
		return out
	case *array.Struct:
		st := a.DataType().(*arrow.StructType)
		out := make(map[string]interface{}, st.NumFields())
		for i, f := range st.Fields() {
			out[f.Name] = extractValue(a.Field(i), index)
		}
		return out
	default:
		return a.ValueStr(index)
	}
}
