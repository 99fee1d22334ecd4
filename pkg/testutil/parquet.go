package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/require"
)

// FixtureSchema is the schema of the parquet fixture.
var FixtureSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "name", Type: arrow.BinaryTypes.String},
	{Name: "age", Type: arrow.PrimitiveTypes.Int64},
	{Name: "score", Type: arrow.PrimitiveTypes.Float64},
	{Name: "active", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "note", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

// FixtureRow returns the values of fixture row i keyed by column.
func FixtureRow(i int) map[string]interface{} {
	var note interface{}
	if i%3 != 0 {
		note = fmt.Sprintf("note %d", i)
	}
	return map[string]interface{}{
		"id":     int64(i),
		"name":   fmt.Sprintf("Name%d", i),
		"age":    int64(20 + i%80),
		"score":  float64(i) * 0.5,
		"active": i%2 == 0,
		"note":   note,
	}
}

// WriteParquetFixture writes numRows fixture rows into a parquet file under
// t.TempDir() with rowsPerGroup rows per row group and returns its path.
func WriteParquetFixture(t *testing.T, numRows, rowsPerGroup int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("fixture_%d_%d.parquet", numRows, rowsPerGroup))
	WriteParquetRows(t, path, 0, numRows, rowsPerGroup)
	return path
}

// WriteParquetRows writes fixture rows [start, end) to path with
// rowsPerGroup rows per row group. Missing parent directories are created.
func WriteParquetRows(t *testing.T, path string, start, end, rowsPerGroup int) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)

	pool := memory.NewGoAllocator()
	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithMaxRowGroupLength(int64(rowsPerGroup)),
		parquet.WithStats(true),
	)
	fw, err := pqarrow.NewFileWriter(FixtureSchema, f, props, pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(pool)))
	require.NoError(t, err)

	b := array.NewRecordBuilder(pool, FixtureSchema)
	defer b.Release()

	for from := start; from < end; from += rowsPerGroup {
		to := min(from+rowsPerGroup, end)
		for i := from; i < to; i++ {
			row := FixtureRow(i)
			b.Field(0).(*array.Int64Builder).Append(row["id"].(int64))
			b.Field(1).(*array.StringBuilder).Append(row["name"].(string))
			b.Field(2).(*array.Int64Builder).Append(row["age"].(int64))
			b.Field(3).(*array.Float64Builder).Append(row["score"].(float64))
			b.Field(4).(*array.BooleanBuilder).Append(row["active"].(bool))
			if note, ok := row["note"].(string); ok {
				b.Field(5).(*array.StringBuilder).Append(note)
			} else {
				b.Field(5).AppendNull()
			}
		}
		rec := b.NewRecord()
		err := fw.Write(rec)
		rec.Release()
		require.NoError(t, err)
	}

	require.NoError(t, fw.Close())
	_ = f.Close() // the writer may already have closed it
}
