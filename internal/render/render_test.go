package render

import (
	"bytes"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/gridframe/pkg/byterange"
	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/mockdata"
	"github.com/ajitpratap0/gridframe/pkg/parquetsource"
	"github.com/ajitpratap0/gridframe/pkg/testutil"
)

func TestSnapshotShowsCacheState(t *testing.T) {
	table := mockdata.New(mockdata.WithRows(10), mockdata.WithLimit(4))
	frame := table.NewFrame()
	require.NoError(t, frame.Fetch(testutil.TestContext(t), dataframe.FetchRequest{
		RowStart: 2, RowEnd: 6, Columns: []string{mockdata.ColumnName},
	}))

	g, err := Snapshot(frame, 0, 6, []string{mockdata.ColumnName, mockdata.ColumnAge})
	require.NoError(t, err)
	require.Len(t, g.Rows, 6)
	assert.Equal(t, []string{"#", mockdata.ColumnName, mockdata.ColumnAge}, g.Header)

	assert.Equal(t, []string{Pending, Pending, Pending}, g.Rows[0])
	assert.Equal(t, []string{"3", "Name2", Pending}, g.Rows[2])
	assert.Equal(t, []string{"4", "Name3", Pending}, g.Rows[3])
	assert.Equal(t, []string{Unavailable, Unavailable, Pending}, g.Rows[4])
	assert.Equal(t, map[string]interface{}{"#": 2, mockdata.ColumnName: "Name2"}, g.Values[2])
}

func TestTableAndJSON(t *testing.T) {
	g := &Grid{
		Header: []string{"#", "name"},
		Rows:   [][]string{{"1", "ada"}, {"2", Pending}},
		Values: []map[string]interface{}{{"#": 0, "name": "ada"}, {"#": 1}},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, g, "table"))
	out := buf.String()
	assert.Contains(t, out, "name")
	assert.Contains(t, out, "ada")
	assert.Contains(t, out, Pending)

	buf.Reset()
	require.NoError(t, Write(&buf, g, "json"))
	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "ada", decoded[0]["name"])
	assert.NotContains(t, decoded[1], "name")

	assert.Error(t, Write(&buf, g, "xml"))
}

func TestCoverageGrid(t *testing.T) {
	chunks := []parquetsource.Chunk{
		{RowGroup: 0, Column: "a", Status: byterange.StatusCovered},
		{RowGroup: 0, Column: "b", Status: byterange.StatusPending},
		{RowGroup: 1, Column: "a", Status: byterange.StatusPartial},
		{RowGroup: 1, Column: "b", Status: byterange.StatusPending},
	}

	var buf bytes.Buffer
	CoverageGrid(&buf, []string{"a", "b"}, chunks)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "rg 0 │█·│", lines[0])
	assert.Equal(t, "rg 1 │▒·│", lines[1])
}

func TestBytes(t *testing.T) {
	assert.Equal(t, "512 B", Bytes(512))
	assert.Equal(t, "1.5 KiB", Bytes(1536))
	assert.Equal(t, "2.0 MiB", Bytes(2*1024*1024))
}
