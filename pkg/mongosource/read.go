package mongosource

import (
	"context"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/logger"
	"github.com/ajitpratap0/gridframe/pkg/observability"
	"github.com/ajitpratap0/gridframe/pkg/query"
)

// ReadRows implements dataframe.RowReader with a sorted, skipped and
// limited find.
func (s *Source) ReadRows(ctx context.Context, rng dataframe.RowRange, columns []string) (out []dataframe.Row, err error) {
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
	if err := s.checkColumns(columns); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "mongosource", "read_window")
	span.SetAttribute("row_start", rng.Start)
	span.SetAttribute("row_end", rng.End)
	defer func() { span.End(err) }()

	cur, err := s.coll.Find(ctx, bson.D{}, s.findOptions(columns, int64(rng.Start), int64(rng.Len())))
	if err != nil {
		return nil, s.readError(ctx, err)
	}
	defer cur.Close(ctx)

	out = make([]dataframe.Row, 0, rng.Len())
	for cur.Next(ctx) {
		cells, err := decode(cur, columns)
		if err != nil {
			return nil, err
		}
		out = append(out, dataframe.Row{SourceIndex: rng.Start + len(out), Cells: cells})
	}
	if err := cur.Err(); err != nil {
		return nil, s.readError(ctx, err)
	}

	s.logger.Debug("window read", zap.Int("start", rng.Start), zap.Int("rows", len(out)), zap.Strings("columns", columns), logger.FrameField(ctx))
	return out, nil
}

// Scan implements query.Table. The filter runs on the server.
func (s *Source) Scan(_ context.Context, hints query.ScanHints) (dataframe.RowProducer, error) {
	cols := hints.Columns
	if len(cols) == 0 {
		cols = dataframe.ColumnNames(s.columns)
	}
	if err := s.checkColumns(cols); err != nil {
		return nil, err
	}
	if err := s.checkColumns(hints.Filter.Columns()); err != nil {
		return nil, err
	}
	doc, err := FilterDocument(hints.Filter)
	if err != nil {
		return nil, err
	}
	return &scanner{src: s, filter: doc, cols: cols, limit: hints.Limit}, nil
}

// scanner streams a filtered find. A cancelled scan reopens at the next
// unread document.
type scanner struct {
	src      *Source
	filter   bson.D
	cols     []string
	limit    int
	cur      *mongo.Cursor
	produced int
}

func (sc *scanner) Next(ctx context.Context) (*dataframe.LazyRow, error) {
	if sc.limit > 0 && sc.produced >= sc.limit {
		sc.close(ctx)
		return nil, io.EOF
	}
	if sc.cur == nil {
		var limit int64
		if sc.limit > 0 {
			limit = int64(sc.limit - sc.produced)
		}
		cur, err := sc.src.coll.Find(ctx, sc.filter, sc.src.findOptions(sc.cols, int64(sc.produced), limit))
		if err != nil {
			return nil, sc.src.readError(ctx, err)
		}
		sc.cur = cur
	}

	if !sc.cur.Next(ctx) {
		err := sc.cur.Err()
		sc.close(ctx)
		if err != nil {
			return nil, sc.src.readError(ctx, err)
		}
		return nil, io.EOF
	}
	cells, err := decode(sc.cur, sc.cols)
	if err != nil {
		sc.close(ctx)
		return nil, err
	}
	sc.produced++
	return dataframe.ValueRow(sc.cols, cells), nil
}

func (sc *scanner) close(ctx context.Context) {
	if sc.cur != nil {
		_ = sc.cur.Close(context.WithoutCancel(ctx))
		sc.cur = nil
	}
}

func (s *Source) findOptions(columns []string, skip, limit int64) *options.FindOptions {
	opts := options.Find().
		SetSort(bson.D{{Key: s.key, Value: 1}}).
		SetProjection(Projection(columns))
	if skip > 0 {
		opts.SetSkip(skip)
	}
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return opts
}

func (s *Source) checkColumns(columns []string) error {
	for _, c := range columns {
		found := false
		for _, d := range s.columns {
			if d.Name == c {
				found = true
				break
			}
		}
		if !found {
			return errors.UnknownColumn(c)
		}
	}
	return nil
}

func (s *Source) readError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Cancelled(ctx.Err())
	}
	s.logger.Warn("find failed", zap.Error(err))
	return errors.UnderlyingRead(err, "find in "+s.name)
}

// decode reads the current document; missing fields become nil.
func decode(cur *mongo.Cursor, columns []string) (map[string]interface{}, error) {
	var doc bson.M
	if err := cur.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUnderlyingRead, "decode document")
	}
	cells := make(map[string]interface{}, len(columns))
	for _, c := range columns {
		cells[c] = normalize(doc[c])
	}
	return cells, nil
}
