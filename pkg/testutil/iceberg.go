package testutil

import (
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"
	"github.com/stretchr/testify/require"
)

// IcebergTableLocation is the location recorded in fixture metadata. The
// fixture itself lives under t.TempDir().
const IcebergTableLocation = "s3://warehouse/db/events"

const (
	manifestListSchema = `{"type":"record","name":"manifest_file","fields":[
		{"name":"manifest_path","type":"string"},
		{"name":"manifest_length","type":"long"},
		{"name":"partition_spec_id","type":"int"},
		{"name":"content","type":"int"},
		{"name":"added_snapshot_id","type":["null","long"]}]}`

	manifestSchema = `{"type":"record","name":"manifest_entry","fields":[
		{"name":"status","type":"int"},
		{"name":"snapshot_id","type":["null","long"]},
		{"name":"data_file","type":{"type":"record","name":"r2","fields":[
			{"name":"content","type":"int"},
			{"name":"file_path","type":"string"},
			{"name":"file_format","type":"string"},
			{"name":"record_count","type":"long"},
			{"name":"file_size_in_bytes","type":"long"}]}}]}`
)

// IcebergDataFile is a manifest entry of the fixture. Rows [Start, End) of
// the parquet fixture are written to data/Name when End > Start.
type IcebergDataFile struct {
	Name       string
	Start, End int
	Status     int32 // 0 existing, 1 added, 2 deleted
	Content    int32 // 0 data, 1 position deletes
}

func writeOCF(t *testing.T, path, schema string, records ...map[string]interface{}) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: f, Schema: schema})
	require.NoError(t, err)
	data := make([]interface{}, len(records))
	for i, r := range records {
		data[i] = r
	}
	require.NoError(t, w.Append(data))
}

// WriteIcebergManifest writes the data files and a manifest listing them
// under root/metadata, and returns the manifest path as recorded in a
// manifest list.
func WriteIcebergManifest(t *testing.T, root, name string, snapshotID int64, files ...IcebergDataFile) string {
	t.Helper()
	var entries []map[string]interface{}
	for _, f := range files {
		if f.End > f.Start {
			WriteParquetRows(t, filepath.Join(root, "data", f.Name), f.Start, f.End, 25)
		}
		entries = append(entries, map[string]interface{}{
			"status":      f.Status,
			"snapshot_id": goavro.Union("long", snapshotID),
			"data_file": map[string]interface{}{
				"content":            f.Content,
				"file_path":          IcebergTableLocation + "/data/" + f.Name,
				"file_format":        "PARQUET",
				"record_count":       int64(f.End - f.Start),
				"file_size_in_bytes": int64(0),
			},
		})
	}
	writeOCF(t, filepath.Join(root, "metadata", name), manifestSchema, entries...)
	return IcebergTableLocation + "/metadata/" + name
}

// WriteIcebergManifestList writes a manifest list of content 0 (data) or 1
// (deletes) manifests and returns its recorded path.
func WriteIcebergManifestList(t *testing.T, root, name string, snapshotID int64, content int32, manifests ...string) string {
	t.Helper()
	var entries []map[string]interface{}
	for _, m := range manifests {
		entries = append(entries, map[string]interface{}{
			"manifest_path":     m,
			"manifest_length":   int64(0),
			"partition_spec_id": int32(0),
			"content":           content,
			"added_snapshot_id": goavro.Union("long", snapshotID),
		})
	}
	writeOCF(t, filepath.Join(root, "metadata", name), manifestListSchema, entries...)
	return IcebergTableLocation + "/metadata/" + name
}

// IcebergField builds a schema field of a primitive type
func IcebergField(id int, name, typ string, required bool) map[string]interface{} {
	return map[string]interface{}{"id": id, "name": name, "type": typ, "required": required}
}

// WriteIcebergMetadata writes root/metadata/<version>.metadata.json
func WriteIcebergMetadata(t *testing.T, root, version string, md map[string]interface{}) {
	t.Helper()
	b, err := json.Marshal(md)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "metadata"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "metadata", version+".metadata.json"), b, 0o644))
}

// WriteIcebergTable builds a two-version table named "events" and returns
// its root. Snapshot 1 appends fixture rows 0-59 in a.parquet. Snapshot 2
// adds rows 60-99 in b.parquet and a "region" column that no file stores.
func WriteIcebergTable(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "events")

	m1 := WriteIcebergManifest(t, root, "m1.avro", 1, IcebergDataFile{Name: "a.parquet", Start: 0, End: 60, Status: 1})
	m2 := WriteIcebergManifest(t, root, "m2.avro", 2,
		IcebergDataFile{Name: "gone.parquet", Status: 2},
		IcebergDataFile{Name: "b.parquet", Start: 60, End: 100, Status: 1})
	list1 := WriteIcebergManifestList(t, root, "snap-1.avro", 1, 0, m1)
	list2 := WriteIcebergManifestList(t, root, "snap-2.avro", 2, 0, m1, m2)

	base := []interface{}{
		IcebergField(1, "id", "long", true),
		IcebergField(2, "name", "string", true),
		IcebergField(3, "age", "long", false),
		IcebergField(4, "score", "double", false),
		IcebergField(5, "active", "boolean", false),
		IcebergField(6, "note", "string", false),
	}
	schema0 := map[string]interface{}{"type": "struct", "schema-id": 0, "fields": base}
	schema1 := map[string]interface{}{"type": "struct", "schema-id": 1, "fields": append(append([]interface{}(nil), base...),
		IcebergField(7, "region", "string", false))}
	snap1 := map[string]interface{}{
		"snapshot-id": 1, "sequence-number": 1, "timestamp-ms": 1700000000000, "manifest-list": list1,
		"summary": map[string]string{"operation": "append", "total-records": "60"}, "schema-id": 0,
	}
	snap2 := map[string]interface{}{
		"snapshot-id": 2, "parent-snapshot-id": 1, "sequence-number": 2, "timestamp-ms": 1700000100000, "manifest-list": list2,
		"summary": map[string]string{"operation": "append", "total-records": "100"}, "schema-id": 1,
	}

	WriteIcebergMetadata(t, root, "v1", map[string]interface{}{
		"format-version": 2, "table-uuid": "9c12d441-03fe-4693-9a96-a0705ddf69c1", "location": IcebergTableLocation,
		"current-schema-id": 0, "schemas": []interface{}{schema0},
		"current-snapshot-id": 1, "snapshots": []interface{}{snap1},
	})
	WriteIcebergMetadata(t, root, "v2", map[string]interface{}{
		"format-version": 2, "table-uuid": "9c12d441-03fe-4693-9a96-a0705ddf69c1", "location": IcebergTableLocation,
		"current-schema-id": 1, "schemas": []interface{}{schema0, schema1},
		"current-snapshot-id": 2, "snapshots": []interface{}{snap1, snap2},
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, "metadata", "version-hint.text"), []byte("2\n"), 0o644))
	return root
}
