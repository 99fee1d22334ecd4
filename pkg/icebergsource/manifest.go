package icebergsource

import (
	"bytes"
	"context"
	"strings"

	"github.com/linkedin/goavro/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/gridframe/pkg/config"
	"github.com/ajitpratap0/gridframe/pkg/errors"
)

// Manifest entry status and content values
const (
	entryDeleted = 2

	contentData = 0
)

// ManifestFile is one entry of a snapshot's manifest list
type ManifestFile struct {
	Path            string
	Content         int // 0 data, 1 deletes
	AddedSnapshotID int64
}

// DataFile is a live data file of a snapshot placed in the table's row space
type DataFile struct {
	Path        string
	Format      string
	RecordCount int64
	Start       int // first row
}

// End returns the row after the file
func (f DataFile) End() int { return f.Start + int(f.RecordCount) }

// manifestReader walks a snapshot's manifest list and manifests.
type manifestReader struct {
	storage config.StorageConfig
	loc     locator
	logger  *zap.Logger
}

// manifests reads the manifest list of snap.
func (mr *manifestReader) manifests(ctx context.Context, snap Snapshot) ([]ManifestFile, error) {
	if snap.ManifestList == "" {
		return nil, errors.Newf(errors.ErrorTypeValidation, "snapshot %d has no manifest list", snap.SnapshotID)
	}
	var out []ManifestFile
	err := mr.readOCF(ctx, snap.ManifestList, func(rec map[string]interface{}) error {
		path, ok := stringField(rec, "manifest_path")
		if !ok {
			return errors.New(errors.ErrorTypeUnderlyingRead, "manifest list entry without manifest_path")
		}
		content, _ := longField(rec, "content")
		added, _ := longField(rec, "added_snapshot_id")
		out = append(out, ManifestFile{Path: path, Content: int(content), AddedSnapshotID: added})
		return nil
	})
	return out, err
}

// dataFiles returns the live parquet data files of snap in manifest order.
// Row-level delete files are not applied, so a snapshot that has any is
// rejected rather than read with deleted rows.
func (mr *manifestReader) dataFiles(ctx context.Context, snap Snapshot, maxReads int) ([]DataFile, error) {
	manifests, err := mr.manifests(ctx, snap)
	if err != nil {
		return nil, err
	}
	mr.logger.Debug("reading manifests",
		zap.Int64("snapshot_id", snap.SnapshotID),
		zap.Int("manifests", len(manifests)))

	parts := make([][]DataFile, len(manifests))
	g, gctx := errgroup.WithContext(ctx)
	if maxReads > 0 {
		g.SetLimit(maxReads)
	}
	for i, m := range manifests {
		i, m := i, m
		g.Go(func() error {
			files, err := mr.entries(gctx, m)
			parts[i] = files
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var files []DataFile
	start := 0
	for _, part := range parts {
		for _, f := range part {
			f.Start = start
			start = f.End()
			files = append(files, f)
		}
	}
	return files, nil
}

// entries reads the live data files of one manifest.
func (mr *manifestReader) entries(ctx context.Context, m ManifestFile) ([]DataFile, error) {
	var files []DataFile
	err := mr.readOCF(ctx, m.Path, func(rec map[string]interface{}) error {
		if status, _ := longField(rec, "status"); status == entryDeleted {
			return nil
		}
		df, ok := rec["data_file"].(map[string]interface{})
		if !ok {
			return errors.Newf(errors.ErrorTypeUnderlyingRead, "manifest %s: entry without data_file", m.Path)
		}
		path, _ := stringField(df, "file_path")
		if content, _ := longField(df, "content"); content != contentData || m.Content != contentData {
			return errors.Newf(errors.ErrorTypeValidation, "row-level delete file %s is not supported", path)
		}
		format, _ := stringField(df, "file_format")
		if !strings.EqualFold(format, "parquet") {
			return errors.Newf(errors.ErrorTypeValidation, "data file %s: unsupported format %q", path, format)
		}
		count, _ := longField(df, "record_count")
		files = append(files, DataFile{Path: path, Format: strings.ToUpper(format), RecordCount: count})
		return nil
	})
	if err != nil {
		return nil, err
	}
	mr.logger.Debug("manifest read", zap.String("manifest", m.Path), zap.Int("data_files", len(files)))
	return files, nil
}

// readOCF decodes every record of an avro object container file.
func (mr *manifestReader) readOCF(ctx context.Context, path string, fn func(map[string]interface{}) error) error {
	uri := mr.loc.resolve(path)
	data, err := readAll(ctx, uri, mr.storage)
	if err != nil {
		return err
	}
	ocf, err := goavro.NewOCFReader(bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeUnderlyingRead, "open avro file "+uri)
	}
	for ocf.Scan() {
		if err := ctx.Err(); err != nil {
			return errors.Cancelled(err)
		}
		datum, err := ocf.Read()
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeUnderlyingRead, "decode avro record in "+uri)
		}
		rec, ok := datum.(map[string]interface{})
		if !ok {
			return errors.Newf(errors.ErrorTypeUnderlyingRead, "%s: expected a record, got %T", uri, datum)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := ocf.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeUnderlyingRead, "read avro file "+uri)
	}
	return nil
}

// unionValue unwraps an avro union, which decodes as {"type": value}.
func unionValue(v interface{}) interface{} {
	if m, ok := v.(map[string]interface{}); ok && len(m) == 1 {
		for _, inner := range m {
			return inner
		}
	}
	return v
}

func longField(rec map[string]interface{}, name string) (int64, bool) {
	switch n := unionValue(rec[name]).(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	}
	return 0, false
}

func stringField(rec map[string]interface{}, name string) (string, bool) {
	s, ok := unionValue(rec[name]).(string)
	return s, ok
}
