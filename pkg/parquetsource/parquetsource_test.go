package parquetsource

import (
	"context"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/gridframe/pkg/byterange"
	"github.com/ajitpratap0/gridframe/pkg/config"
	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/metrics"
	"github.com/ajitpratap0/gridframe/pkg/pushdown"
	"github.com/ajitpratap0/gridframe/pkg/query"
	tu "github.com/ajitpratap0/gridframe/pkg/testutil"
)

// 100 rows in four row groups of 25
func openFixture(t *testing.T, opts ...Option) *Source {
	t.Helper()
	path := tu.WriteParquetFixture(t, 100, 25)
	opts = append([]Option{WithLogger(tu.TestLogger(t)), WithName(t.Name())}, opts...)
	src, err := OpenURI(context.Background(), path, config.NewConfig("test").Storage, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func drain(t *testing.T, p dataframe.RowProducer, column string) []interface{} {
	t.Helper()
	ctx := tu.TestContext(t)
	var out []interface{}
	for {
		row, err := p.Next(ctx)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		v, err := row.Cells[column](ctx)
		require.NoError(t, err)
		out = append(out, v)
	}
}

func TestOpenReadsFooterOnly(t *testing.T) {
	src := openFixture(t)

	assert.Equal(t, 100, src.NumRows())
	require.Len(t, src.RowGroups(), 4)
	assert.Equal(t, RowGroup{Index: 2, Start: 50, NumRows: 25}, src.RowGroups()[2])
	assert.Equal(t, []string{"id", "name", "age", "score", "active", "note"}, dataframe.ColumnNames(src.Columns()))
	assert.Equal(t, dataframe.ColumnTypeInt, src.Columns()[0].Type)
	assert.Equal(t, dataframe.ColumnTypeString, src.Columns()[1].Type)
	assert.Equal(t, dataframe.ColumnTypeFloat, src.Columns()[3].Type)
	assert.Equal(t, dataframe.ColumnTypeBool, src.Columns()[4].Type)

	footer := src.FooterRange()
	assert.Equal(t, byterange.StatusCovered, src.Reader().Tracker().Coverage(footer.Start, footer.End))
	for _, c := range src.Chunks() {
		assert.Equal(t, byterange.StatusPending, c.Status, "chunk %d/%s", c.RowGroup, c.Column)
	}
}

func TestReadRowsAcrossGroups(t *testing.T) {
	src := openFixture(t)

	rows, err := src.ReadRows(context.Background(), dataframe.RowRange{Start: 20, End: 55}, []string{"id", "note"})
	require.NoError(t, err)
	require.Len(t, rows, 35)

	for i, row := range rows {
		want := tu.FixtureRow(20 + i)
		assert.Equal(t, 20+i, row.SourceIndex)
		assert.Equal(t, want["id"], row.Cells["id"])
		assert.Equal(t, want["note"], row.Cells["note"])
		assert.NotContains(t, row.Cells, "name")
	}
	assert.Nil(t, rows[1].Cells["note"], "row 21 has a null note")
}

func TestReadRowsClampsAndRowNumbersOnly(t *testing.T) {
	src := openFixture(t)

	rows, err := src.ReadRows(context.Background(), dataframe.RowRange{Start: 95, End: 120}, []string{"age"})
	require.NoError(t, err)
	assert.Len(t, rows, 5)

	before := src.Reader().Stats()
	rows, err = src.ReadRows(context.Background(), dataframe.RowRange{Start: 0, End: 3}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 2, rows[2].SourceIndex)
	assert.Empty(t, rows[2].Cells)
	assert.Equal(t, before, src.Reader().Stats(), "row numbers need no bytes")
}

func TestReadRowsUnknownColumn(t *testing.T) {
	src := openFixture(t)

	_, err := src.ReadRows(context.Background(), dataframe.RowRange{Start: 0, End: 10}, []string{"missing"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnknownColumn))
}

func TestChunksTrackReads(t *testing.T) {
	src := openFixture(t)

	_, err := src.ReadRows(context.Background(), dataframe.RowRange{Start: 0, End: 10}, []string{"id"})
	require.NoError(t, err)

	status := map[[2]interface{}]byterange.Status{}
	for _, c := range src.Chunks() {
		status[[2]interface{}{c.RowGroup, c.Column}] = c.Status
		assert.Equal(t, "SNAPPY", c.Compression)
		assert.Equal(t, int64(25), c.NumValues)
	}
	assert.Equal(t, byterange.StatusCovered, status[[2]interface{}{0, "id"}])
	assert.Equal(t, byterange.StatusPending, status[[2]interface{}{0, "name"}])
	assert.Equal(t, byterange.StatusPending, status[[2]interface{}{1, "id"}])

	fetched, size := src.Progress()
	assert.Greater(t, fetched, uint64(0))
	assert.Less(t, int64(fetched), size)
}

func TestGroupStats(t *testing.T) {
	src := openFixture(t)

	stats := src.GroupStats(src.RowGroups()[1])
	require.Contains(t, stats, "id")
	assert.Equal(t, int64(25), stats["id"].Min)
	assert.Equal(t, int64(49), stats["id"].Max)
	assert.True(t, stats["id"].HasMinMax)
	assert.Equal(t, "Name25", stats["name"].Min)

	// every third note is null
	assert.Equal(t, int64(8), stats["note"].NullCount)
}

func TestScanPrunesRowGroups(t *testing.T) {
	src := openFixture(t)

	expr, err := query.ParseWhere("id >= 60 AND id < 70")
	require.NoError(t, err)
	filter, ok := pushdown.Translate(expr)
	require.True(t, ok)

	before := testutil.ToFloat64(metrics.RowGroupsPruned.WithLabelValues(src.Name()))
	p, err := src.Scan(context.Background(), query.ScanHints{Columns: []string{"name"}, Filter: filter})
	require.NoError(t, err)

	names := drain(t, p, "name")
	require.Len(t, names, 10)
	assert.Equal(t, "Name60", names[0])
	assert.Equal(t, "Name69", names[9])
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.RowGroupsPruned.WithLabelValues(src.Name()))-before)

	for _, c := range src.Chunks() {
		if c.RowGroup != 2 {
			assert.Equal(t, byterange.StatusPending, c.Status, "pruned group %d was downloaded", c.RowGroup)
		}
	}
}

func TestScanLimitAndProjection(t *testing.T) {
	src := openFixture(t)

	p, err := src.Scan(context.Background(), query.ScanHints{Columns: []string{"id"}, Limit: 30})
	require.NoError(t, err)
	ids := drain(t, p, "id")
	require.Len(t, ids, 30)
	assert.Equal(t, int64(29), ids[29])

	_, err = src.Scan(context.Background(), query.ScanHints{Columns: []string{"nope"}})
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnknownColumn))
}

func TestScanFiltersOnUnprojectedColumn(t *testing.T) {
	src := openFixture(t)

	filter := &pushdown.Filter{Op: pushdown.FilterEq, Column: "age", Value: int64(25)}
	p, err := src.Scan(context.Background(), query.ScanHints{Columns: []string{"id"}, Filter: filter})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(5), int64(85)}, drain(t, p, "id"))
}

func TestFrameOverParquet(t *testing.T) {
	src := openFixture(t)
	frame := src.NewFrame()

	require.NoError(t, frame.Fetch(tu.TestContext(t), dataframe.FetchRequest{
		RowStart: 48, RowEnd: 52, Columns: []string{"name", "score"},
	}))

	v, ok, err := frame.GetCell(50, "name")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Name50", v.Value)

	v, ok, err = frame.GetCell(49, "score")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 24.5, v.Value)

	_, ok, err = frame.GetCell(60, "name")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryOverParquet(t *testing.T) {
	src := openFixture(t)

	q, err := query.Parse("SELECT name FROM fixture WHERE active = true AND score < 10")
	require.NoError(t, err)
	p, plan, err := query.Execute(tu.TestContext(t), src, q, config.NewConfig("test").Query)
	require.NoError(t, err)
	assert.True(t, plan.FullyTranslated)

	names := drain(t, p, "name")
	assert.Len(t, names, 10)
	assert.Equal(t, "Name18", names[9])
}
