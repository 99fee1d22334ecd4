package mockdata

import (
	"context"
	"io"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/pushdown"
	"github.com/ajitpratap0/gridframe/pkg/query"
	"github.com/ajitpratap0/gridframe/pkg/testutil"
)

func TestValue(t *testing.T) {
	v, err := Value(0, ColumnID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, _ = Value(99, ColumnAge)
	assert.Equal(t, int64(39), v)

	v, _ = Value(7, ColumnName)
	assert.Equal(t, "Name7", v)

	a, _ := Value(5, ColumnUUID)
	b, _ := Value(5, ColumnUUID)
	c, _ := Value(6, ColumnUUID)
	assert.Equal(t, a, b, "uuids are stable per row")
	assert.NotEqual(t, a, c)
	_, err = uuid.Parse(a.(string))
	assert.NoError(t, err)

	text, _ := Value(0, ColumnText)
	assert.Len(t, splitWords(text.(string)), 10)

	raw, _ := Value(3, ColumnJSON)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw.(string)), &decoded))
	assert.Equal(t, float64(3), decoded["row"])
	assert.Equal(t, ColumnJSON, decoded["column"])

	_, err = Value(0, "Salary")
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnknownColumn))
}

func splitWords(s string) []string {
	var out []string
	word := ""
	for _, r := range s + " " {
		if r == ' ' {
			if word != "" {
				out = append(out, word)
			}
			word = ""
			continue
		}
		word += string(r)
	}
	return out
}

func TestReadRowsHonorsLimitAndCancellation(t *testing.T) {
	tbl := New(WithRows(10), WithLimit(3), WithLogger(testutil.TestLogger(t)))
	rows, err := tbl.ReadRows(testutil.TestContext(t), dataframe.RowRange{Start: 0, End: 10}, []string{ColumnID})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 2, rows[2].SourceIndex)

	slow := New(WithDelay(time.Hour, 0), WithLogger(testutil.TestLogger(t)))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = slow.ReadRows(ctx, dataframe.RowRange{Start: 0, End: 1}, []string{ColumnID})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	reads := slow.Reads()
	require.Len(t, reads, 1)
	assert.Error(t, reads[0].Err)
}

func TestScanAppliesHints(t *testing.T) {
	ctx := testutil.TestContext(t)
	tbl := New(WithRows(200), WithLogger(testutil.TestLogger(t)))

	filter, ok := pushdown.Translate(pushdown.Cmp(pushdown.OpEq, pushdown.Col(ColumnAge), pushdown.Lit(25)))
	require.True(t, ok)

	p, err := tbl.Scan(ctx, query.ScanHints{Columns: []string{ColumnID}, Filter: filter, Limit: 2})
	require.NoError(t, err)

	var ids []interface{}
	for {
		row, err := p.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, []string{ColumnID}, row.Columns())
		v, err := row.Cells[ColumnID](ctx)
		require.NoError(t, err)
		ids = append(ids, v)
	}
	assert.Equal(t, []interface{}{int64(6), int64(86)}, ids)

	_, err = tbl.Scan(ctx, query.ScanHints{Columns: []string{"Salary"}})
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnknownColumn))
}
