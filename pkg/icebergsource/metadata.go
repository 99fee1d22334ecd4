// Package icebergsource reads Apache Iceberg tables kept as a metadata
// directory next to their parquet data files. One snapshot of the table is
// flattened into a single row space, data files in manifest order, and each
// file is read through parquetsource.
package icebergsource

import (
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
)

// TableMetadata is the content of a vN.metadata.json file.
type TableMetadata struct {
	FormatVersion     int               `json:"format-version"`
	TableUUID         uuid.UUID         `json:"table-uuid"`
	Location          string            `json:"location"`
	LastUpdatedMs     int64             `json:"last-updated-ms"`
	CurrentSchemaID   int               `json:"current-schema-id"`
	Schemas           []Schema          `json:"schemas"`
	Schema            *Schema           `json:"schema,omitempty"` // format v1
	CurrentSnapshotID *int64            `json:"current-snapshot-id,omitempty"`
	Snapshots         []Snapshot        `json:"snapshots"`
	Properties        map[string]string `json:"properties,omitempty"`
}

// Snapshot is one committed state of the table.
type Snapshot struct {
	SnapshotID       int64             `json:"snapshot-id"`
	ParentSnapshotID *int64            `json:"parent-snapshot-id,omitempty"`
	SequenceNumber   int64             `json:"sequence-number"`
	TimestampMs      int64             `json:"timestamp-ms"`
	ManifestList     string            `json:"manifest-list"`
	Summary          map[string]string `json:"summary"`
	SchemaID         *int              `json:"schema-id,omitempty"`
}

// Time returns the commit time
func (s Snapshot) Time() time.Time { return time.UnixMilli(s.TimestampMs).UTC() }

// Operation returns the summary operation (append, overwrite, delete, ...)
func (s Snapshot) Operation() string { return s.Summary["operation"] }

// TotalRecords returns the row count the writer recorded in the summary.
// It counts rows of live data files before row-level deletes.
func (s Snapshot) TotalRecords() (int64, bool) {
	n, err := strconv.ParseInt(s.Summary["total-records"], 10, 64)
	return n, err == nil
}

// Schema is a table schema version
type Schema struct {
	SchemaID int     `json:"schema-id"`
	Fields   []Field `json:"fields"`
}

// Field is a top-level schema field. Type is a primitive name such as
// "long" or "decimal(10,2)", or an object for nested types.
type Field struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Required bool            `json:"required"`
	Type     json.RawMessage `json:"type"`
	Doc      string          `json:"doc,omitempty"`
}

// TypeName returns the primitive type name, or struct, list or map.
func (f Field) TypeName() string {
	var name string
	if err := json.Unmarshal(f.Type, &name); err == nil {
		return name
	}
	var nested struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(f.Type, &nested); err == nil {
		return nested.Type
	}
	return ""
}

// ParseMetadata decodes a table metadata file.
func ParseMetadata(data []byte) (*TableMetadata, error) {
	var md TableMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUnderlyingRead, "decode table metadata")
	}
	if md.FormatVersion < 1 || md.FormatVersion > 3 {
		return nil, errors.Newf(errors.ErrorTypeValidation, "unsupported iceberg format version %d", md.FormatVersion)
	}
	return &md, nil
}

// SchemaByID returns the schema with the given id.
func (md *TableMetadata) SchemaByID(id int) (Schema, bool) {
	for _, s := range md.Schemas {
		if s.SchemaID == id {
			return s, true
		}
	}
	if md.Schema != nil && md.Schema.SchemaID == id {
		return *md.Schema, true
	}
	return Schema{}, false
}

// CurrentSchema returns the schema new snapshots are written with.
func (md *TableMetadata) CurrentSchema() (Schema, error) {
	if s, ok := md.SchemaByID(md.CurrentSchemaID); ok {
		return s, nil
	}
	if md.Schema != nil && len(md.Schemas) == 0 {
		return *md.Schema, nil
	}
	return Schema{}, errors.Newf(errors.ErrorTypeValidation, "current schema %d not found in metadata", md.CurrentSchemaID)
}

// SnapshotByID returns the snapshot with the given id.
func (md *TableMetadata) SnapshotByID(id int64) (Snapshot, bool) {
	for _, s := range md.Snapshots {
		if s.SnapshotID == id {
			return s, true
		}
	}
	return Snapshot{}, false
}

// LatestSnapshot returns the current snapshot, or the last one listed when
// the metadata names none.
func (md *TableMetadata) LatestSnapshot() (Snapshot, bool) {
	if md.CurrentSnapshotID != nil && *md.CurrentSnapshotID >= 0 {
		if s, ok := md.SnapshotByID(*md.CurrentSnapshotID); ok {
			return s, true
		}
	}
	if len(md.Snapshots) == 0 {
		return Snapshot{}, false
	}
	return md.Snapshots[len(md.Snapshots)-1], true
}

// snapshotSchema returns the schema snap was written with.
func (md *TableMetadata) snapshotSchema(snap Snapshot) (Schema, error) {
	if snap.SchemaID != nil {
		if s, ok := md.SchemaByID(*snap.SchemaID); ok {
			return s, nil
		}
	}
	return md.CurrentSchema()
}

// columnType maps an iceberg type name to a frame column type
func columnType(name string) dataframe.ColumnType {
	switch {
	case name == "boolean":
		return dataframe.ColumnTypeBool
	case name == "int" || name == "long":
		return dataframe.ColumnTypeInt
	case name == "float" || name == "double" || strings.HasPrefix(name, "decimal"):
		return dataframe.ColumnTypeFloat
	case name == "date":
		return dataframe.ColumnTypeDate
	case strings.HasPrefix(name, "timestamp"):
		return dataframe.ColumnTypeTimestamp
	case name == "string" || name == "uuid":
		return dataframe.ColumnTypeString
	case name == "binary" || strings.HasPrefix(name, "fixed"):
		return dataframe.ColumnTypeBinary
	case name == "struct" || name == "list" || name == "map":
		return dataframe.ColumnTypeJSON
	default:
		return dataframe.ColumnTypeUnknown
	}
}

func schemaColumns(s Schema) []dataframe.ColumnDescriptor {
	cols := make([]dataframe.ColumnDescriptor, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = dataframe.ColumnDescriptor{
			Name:     f.Name,
			Type:     columnType(f.TypeName()),
			Nullable: !f.Required,
		}
	}
	return cols
}
