package sqlsource

import (
	"context"
	"database/sql"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/logger"
	"github.com/ajitpratap0/gridframe/pkg/observability"
	"github.com/ajitpratap0/gridframe/pkg/query"
)

// selectStmt is the one statement shape this package issues.
type selectStmt struct {
	columns []string
	where   string
	args    []interface{}
	limit   int // 0 for none
	offset  int
}

func (s *Source) build(st selectStmt) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, c := range st.columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(s.dialect.Quote(c))
	}
	sb.WriteString(" FROM " + s.dialect.Quote(s.table))
	if st.where != "" {
		sb.WriteString(" WHERE " + st.where)
	}
	sb.WriteString(" ORDER BY " + s.dialect.Quote(s.key))

	args := st.args
	n := len(args) + 1
	if st.limit > 0 {
		sb.WriteString(" LIMIT " + s.dialect.Placeholder(n))
		args = append(args, st.limit)
		n++
	} else if st.offset > 0 && s.dialect == MySQL {
		// MySQL has no OFFSET without LIMIT
		sb.WriteString(" LIMIT 18446744073709551615")
	}
	if st.offset > 0 {
		sb.WriteString(" OFFSET " + s.dialect.Placeholder(n))
		args = append(args, st.offset)
	}
	return sb.String(), args
}

// ReadRows implements dataframe.RowReader.
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
	types, err := s.types(columns)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "sqlsource", "read_window")
	span.SetAttribute("row_start", rng.Start)
	span.SetAttribute("row_end", rng.End)
	defer func() { span.End(err) }()

	stmt, args := s.build(selectStmt{columns: columns, limit: rng.Len(), offset: rng.Start})
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, s.readError(ctx, err)
	}
	defer rows.Close()

	out = make([]dataframe.Row, 0, rng.Len())
	for rows.Next() {
		vals, err := scanRow(rows, types)
		if err != nil {
			return nil, err
		}
		cells := make(map[string]interface{}, len(columns))
		for i, c := range columns {
			cells[c] = vals[i]
		}
		out = append(out, dataframe.Row{SourceIndex: rng.Start + len(out), Cells: cells})
	}
	if err := rows.Err(); err != nil {
		return nil, s.readError(ctx, err)
	}

	s.logger.Debug("window read", zap.Int("start", rng.Start), zap.Int("rows", len(out)), zap.Strings("columns", columns), logger.FrameField(ctx))
	return out, nil
}

// Scan implements query.Table. The filter is evaluated by the database.
func (s *Source) Scan(_ context.Context, hints query.ScanHints) (dataframe.RowProducer, error) {
	cols := hints.Columns
	if len(cols) == 0 {
		cols = dataframe.ColumnNames(s.columns)
	}
	types, err := s.types(cols)
	if err != nil {
		return nil, err
	}
	for _, c := range hints.Filter.Columns() {
		if _, ok := s.column(c); !ok {
			return nil, errors.UnknownColumn(c)
		}
	}
	where, args, err := RenderWhere(hints.Filter, s.dialect, 1)
	if err != nil {
		return nil, err
	}
	return &scanner{
		src:   s,
		stmt:  selectStmt{columns: cols, where: where, args: args},
		types: types,
		limit: hints.Limit,
	}, nil
}

// scanner streams a filtered scan. A cancelled scan reopens at the next
// unread row.
type scanner struct {
	src      *Source
	stmt     selectStmt
	types    []dataframe.ColumnType
	limit    int
	rows     *sql.Rows
	produced int
}

func (sc *scanner) Next(ctx context.Context) (*dataframe.LazyRow, error) {
	if sc.limit > 0 && sc.produced >= sc.limit {
		sc.close()
		return nil, io.EOF
	}
	if sc.rows == nil {
		st := sc.stmt
		st.offset = sc.produced
		if sc.limit > 0 {
			st.limit = sc.limit - sc.produced
		}
		stmt, args := sc.src.build(st)
		rows, err := sc.src.db.QueryContext(ctx, stmt, args...)
		if err != nil {
			return nil, sc.src.readError(ctx, err)
		}
		sc.rows = rows
	}

	if !sc.rows.Next() {
		err := sc.rows.Err()
		sc.close()
		if err != nil {
			return nil, sc.src.readError(ctx, err)
		}
		return nil, io.EOF
	}
	vals, err := scanRow(sc.rows, sc.types)
	if err != nil {
		sc.close()
		return nil, err
	}
	sc.produced++

	m := make(map[string]interface{}, len(vals))
	for i, c := range sc.stmt.columns {
		m[c] = vals[i]
	}
	return dataframe.ValueRow(sc.stmt.columns, m), nil
}

func (sc *scanner) close() {
	if sc.rows != nil {
		_ = sc.rows.Close()
		sc.rows = nil
	}
}

func (s *Source) types(columns []string) ([]dataframe.ColumnType, error) {
	out := make([]dataframe.ColumnType, len(columns))
	for i, name := range columns {
		c, ok := s.column(name)
		if !ok {
			return nil, errors.UnknownColumn(name)
		}
		out[i] = c.Type
	}
	return out, nil
}

func (s *Source) readError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Cancelled(ctx.Err())
	}
	s.logger.Warn("query failed", zap.Error(err))
	return errors.UnderlyingRead(err, "query "+s.table)
}

func scanRow(rows *sql.Rows, types []dataframe.ColumnType) ([]interface{}, error) {
	dest := make([]interface{}, len(types))
	ptrs := make([]interface{}, len(types))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUnderlyingRead, "scan row")
	}
	for i, v := range dest {
		dest[i] = normalize(v, types[i])
	}
	return dest, nil
}

// normalize converts driver values to the frame's value types. MySQL's text
// protocol returns most values as bytes.
func normalize(v interface{}, t dataframe.ColumnType) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		switch t {
		case dataframe.ColumnTypeBinary:
			return append([]byte(nil), x...)
		default:
			return normalize(string(x), t)
		}
	case string:
		switch t {
		case dataframe.ColumnTypeInt:
			if n, err := strconv.ParseInt(x, 10, 64); err == nil {
				return n
			}
		case dataframe.ColumnTypeFloat:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return f
			}
		case dataframe.ColumnTypeBool:
			if b, err := strconv.ParseBool(x); err == nil {
				return b
			}
		}
		return x
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.UTC()
	}
	return v
}
