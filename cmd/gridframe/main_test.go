package main

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/gridframe/pkg/compression"
	"github.com/ajitpratap0/gridframe/pkg/config"
	"github.com/ajitpratap0/gridframe/pkg/testutil"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(testutil.TestContext(t)), out.String())
	return out.String()
}

func TestVersion(t *testing.T) {
	out := run(t, "version")
	assert.Contains(t, out, "Gridframe v"+version)
	assert.Contains(t, out, "Go version:")
}

func TestViewMock(t *testing.T) {
	out := run(t, "view", "mock://?rows=50", "--start", "2", "--end", "5", "--columns", "ID,Name")
	assert.Contains(t, out, "Name2")
	assert.Contains(t, out, "Name4")
	assert.NotContains(t, out, "Name5")
	assert.Contains(t, out, "rows 2-5 of 50")
}

func TestViewJSON(t *testing.T) {
	out := run(t, "view", "mock://?rows=50", "--end", "3", "--columns", "ID,Name", "--format", "json")

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "Name0", rows[0]["Name"])
	assert.Equal(t, float64(1), rows[0]["ID"])
	assert.Equal(t, float64(2), rows[2]["#"])
}

func TestViewSorted(t *testing.T) {
	out := run(t, "view", "mock://?rows=10", "--end", "2", "--columns", "ID,Name", "--sort", "ID:desc")
	assert.Contains(t, out, "Name9")
	assert.Contains(t, out, "Name8")
	assert.Less(t, strings.Index(out, "Name9"), strings.Index(out, "Name8"))
	assert.NotContains(t, out, "Name0")
}

func TestViewUnknownColumn(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"view", "mock://?rows=5", "--columns", "missing"})
	assert.Error(t, cmd.ExecuteContext(testutil.TestContext(t)))
}

func TestQueryMock(t *testing.T) {
	out := run(t, "query", "mock://?rows=50", "SELECT Name FROM demo WHERE ID <= 3", "--explain")
	assert.Contains(t, out, "plan: scan demo")
	assert.Contains(t, out, "Name0")
	assert.Contains(t, out, "Name2")
	assert.NotContains(t, out, "Name3")
	assert.Contains(t, out, "3 of 3 rows")
}

func TestQueryOrderByLimit(t *testing.T) {
	out := run(t, "query", "mock://?rows=50", "SELECT Name FROM demo WHERE ID <= 5 ORDER BY ID DESC LIMIT 2")
	assert.Contains(t, out, "Name4")
	assert.Contains(t, out, "Name3")
	assert.NotContains(t, out, "Name2")
	assert.Less(t, strings.Index(out, "Name4"), strings.Index(out, "Name3"))
}

func TestInspectParquet(t *testing.T) {
	path := testutil.WriteParquetFixture(t, 100, 25)

	out := run(t, "inspect", path, "--window", "0:10", "--columns", "id")
	assert.Contains(t, out, "rows: 100")
	assert.Contains(t, out, "row groups: 4")
	assert.Contains(t, out, "rg 0 │█·····│")
	assert.Contains(t, out, "rg 3 │······│")
	assert.Contains(t, out, "downloaded")
}

func TestInspectMock(t *testing.T) {
	out := run(t, "inspect", "mock://?rows=7")
	assert.Contains(t, out, "rows: 7")
	assert.NotContains(t, out, "row groups")
}

func TestInspectIceberg(t *testing.T) {
	root := testutil.WriteIcebergTable(t)

	out := run(t, "inspect", "iceberg+"+root)
	assert.Contains(t, out, "rows: 100")
	assert.Contains(t, out, "version: v2")
	assert.Contains(t, out, "snapshot: 2 (")
	assert.Contains(t, out, "data files: 2")
	assert.Contains(t, out, "* 2")
	assert.NotContains(t, out, "* 1")
}

func TestViewIcebergSnapshot(t *testing.T) {
	root := testutil.WriteIcebergTable(t)

	out := run(t, "view", "iceberg+"+root+"?snapshot=1", "--end", "5", "--columns", "id")
	assert.Contains(t, out, "rows 0-5 of 60")

	out = run(t, "view", filepath.Join(root, "metadata", "v1.metadata.json"), "--end", "5", "--columns", "id")
	assert.Contains(t, out, "rows 0-5 of 60")

	out = run(t, "view", "iceberg+"+root, "--start", "95", "--end", "100", "--columns", "id,region")
	assert.Contains(t, out, "rows 95-100 of 100")
}

func TestParseWindow(t *testing.T) {
	rng, err := parseWindow("5:15")
	require.NoError(t, err)
	assert.Equal(t, 5, rng.Start)
	assert.Equal(t, 15, rng.End)

	for _, bad := range []string{"", "5", "a:b", "10:5", "-1:3"} {
		_, err := parseWindow(bad)
		assert.Error(t, err, bad)
	}
}

func TestDemo(t *testing.T) {
	out := run(t, "demo", "--rows", "200", "--limit", "150", "--window", "10", "--step", "40",
		"--scrolls", "4", "--delay", "0s", "--interval", "1ms")
	assert.Contains(t, out, "Name120")
	assert.Contains(t, out, "windows:")
	assert.Contains(t, out, "cells:")
}

func TestExportCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.jsonl.zst")
	out := run(t, "export", "mock://?rows=10&limit=8", "--columns", "ID,Name", "--batch", "3", "--out", path)
	assert.Contains(t, out, "wrote 10 rows (zstd")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r, err := compression.NewReader(f, compression.Zstd)
	require.NoError(t, err)
	defer r.Close()

	var rows []map[string]interface{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var row map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &row))
		rows = append(rows, row)
	}
	require.NoError(t, sc.Err())
	require.Len(t, rows, 10)
	assert.Equal(t, "Name0", rows[0]["Name"])
	assert.Equal(t, "Name7", rows[7]["Name"])
	assert.Nil(t, rows[9]["Name"])
}

func TestExportStdoutSorted(t *testing.T) {
	out := run(t, "export", "mock://?rows=5", "--columns", "ID", "--sort", "ID:desc")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, `{"ID":5}`, lines[0])
	assert.Equal(t, `{"ID":1}`, lines[4])
}

func TestRedactURI(t *testing.T) {
	assert.Equal(t, "postgres://app:xxxxx@db:5432/shop?table=orders", redactURI("postgres://app:secret@db:5432/shop?table=orders"))
	assert.Equal(t, "s3://bucket/events.parquet", redactURI("s3://bucket/events.parquet"))
	assert.Equal(t, "/data/events.parquet", redactURI("/data/events.parquet"))
}

func TestConfigWritesEffectiveSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridframe.yaml")
	out := run(t, "config", path, "--max-concurrent-reads", "3", "--pushdown=false")
	assert.Contains(t, out, "configuration written to "+path)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Storage.MaxConcurrentReads)
	assert.False(t, cfg.Query.EnablePushdown)
	assert.Equal(t, "warn", cfg.Observability.LogLevel)
}
