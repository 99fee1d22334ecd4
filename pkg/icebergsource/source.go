package icebergsource

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ajitpratap0/gridframe/pkg/bytesource"
	"github.com/ajitpratap0/gridframe/pkg/config"
	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/logger"
	"github.com/ajitpratap0/gridframe/pkg/observability"
	"github.com/ajitpratap0/gridframe/pkg/parquetsource"
)

// Source is one snapshot of an iceberg table. Data files are opened on
// first read and stay open until Close.
type Source struct {
	name     string
	root     string
	logger   *zap.Logger
	storage  config.StorageConfig
	loc      locator
	meta     *TableMetadata
	version  string
	snapshot Snapshot
	schema   Schema
	columns  []dataframe.ColumnDescriptor
	known    map[string]struct{}
	files    []DataFile
	numRows  int

	mu      sync.Mutex
	open    map[string]*parquetsource.Source
	opening singleflight.Group
}

type options struct {
	name        string
	logger      *zap.Logger
	storage     config.StorageConfig
	version     string
	snapshotID  int64
	hasSnapshot bool
}

// Option configures Open
type Option func(*options)

// WithName labels the source in logs and metrics
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger replaces the component logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStorageConfig applies the storage section of the configuration
func WithStorageConfig(cfg config.StorageConfig) Option {
	return func(o *options) { o.storage = cfg }
}

// WithVersion reads metadata version v ("v3") instead of the latest one
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithSnapshotID reads snapshot id instead of the current one
func WithSnapshotID(id int64) Option {
	return func(o *options) { o.snapshotID, o.hasSnapshot = id, true }
}

// Open loads the table metadata, picks a snapshot and lists its data files.
// uri is the table root, or a metadata.json file of the table.
func Open(ctx context.Context, uri string, opts ...Option) (s *Source, err error) {
	o := options{storage: config.NewConfig("iceberg").Storage}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Component("iceberg")
	}

	ctx, span := observability.StartSpan(ctx, "iceberg", "open")
	defer func() { span.End(err) }()

	root, version, direct := splitMetadataURI(uri)
	if !direct {
		root, version = uri, o.version
		if version == "" {
			versions, err := ListVersions(ctx, root, o.storage)
			if err != nil {
				return nil, err
			}
			version = versions[len(versions)-1]
		}
	}
	if o.name == "" {
		loc, err := bytesource.ParseLocation(root)
		if err != nil {
			return nil, err
		}
		o.name = loc.Name()
	}

	meta, err := LoadMetadata(ctx, root, version, o.storage)
	if err != nil {
		return nil, err
	}

	snap, ok := meta.LatestSnapshot()
	if o.hasSnapshot {
		snap, ok = meta.SnapshotByID(o.snapshotID)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeValidation, "snapshot %d not found in %s", o.snapshotID, version)
		}
	}
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "no iceberg snapshots found in %s", version)
	}
	schema, err := meta.snapshotSchema(snap)
	if err != nil {
		return nil, err
	}

	log := o.logger.With(zap.String("source", o.name))
	loc := locator{root: root, location: meta.Location}
	mr := &manifestReader{storage: o.storage, loc: loc, logger: log}
	files, err := mr.dataFiles(ctx, snap, o.storage.MaxConcurrentReads)
	if err != nil {
		return nil, err
	}

	s = &Source{
		name:     o.name,
		root:     root,
		logger:   log,
		storage:  o.storage,
		loc:      loc,
		meta:     meta,
		version:  version,
		snapshot: snap,
		schema:   schema,
		columns:  schemaColumns(schema),
		known:    make(map[string]struct{}, len(schema.Fields)),
		files:    files,
		open:     make(map[string]*parquetsource.Source),
	}
	for _, c := range s.columns {
		s.known[c.Name] = struct{}{}
	}
	if len(files) > 0 {
		s.numRows = files[len(files)-1].End()
	}
	if total, ok := snap.TotalRecords(); ok && total != int64(s.numRows) {
		log.Debug("summary row count differs from data files",
			zap.Int64("total_records", total),
			zap.Int("rows", s.numRows))
	}

	span.SetAttribute("snapshot_id", snap.SnapshotID)
	span.SetAttribute("data_files", len(files))
	span.SetAttribute("rows", s.numRows)
	log.Info("iceberg table opened",
		zap.String("version", version),
		zap.Int64("snapshot_id", snap.SnapshotID),
		zap.Int("data_files", len(files)),
		zap.Int("rows", s.numRows),
		zap.Int("columns", len(s.columns)))
	return s, nil
}

// Name returns the source label
func (s *Source) Name() string { return s.name }

// Columns returns the columns of the snapshot's schema
func (s *Source) Columns() []dataframe.ColumnDescriptor { return s.columns }

// NumRows returns the record count of the snapshot's data files
func (s *Source) NumRows() int { return s.numRows }

// Metadata returns the loaded table metadata
func (s *Source) Metadata() *TableMetadata { return s.meta }

// Version returns the metadata version the table was opened at
func (s *Source) Version() string { return s.version }

// Snapshot returns the snapshot being read
func (s *Source) Snapshot() Snapshot { return s.snapshot }

// DataFiles returns the snapshot's data files in row order
func (s *Source) DataFiles() []DataFile { return s.files }

// NewFrame wraps the source in a windowed frame
func (s *Source) NewFrame(opts ...dataframe.Option) *dataframe.Windowed {
	opts = append([]dataframe.Option{dataframe.WithName(s.name)}, opts...)
	return dataframe.NewWindowed(s, s.columns, s.numRows, opts...)
}

// Close closes every data file opened so far.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for path, f := range s.open {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.open, path)
	}
	return first
}

// ReadRows implements dataframe.RowReader. The window is split at data file
// boundaries and the files are read concurrently. Columns added to the
// schema after a file was written read as null in that file.
func (s *Source) ReadRows(ctx context.Context, rng dataframe.RowRange, columns []string) ([]dataframe.Row, error) {
	for _, c := range columns {
		if _, ok := s.known[c]; !ok {
			return nil, errors.UnknownColumn(c)
		}
	}
	if rng.End > s.numRows {
		rng.End = s.numRows
	}
	if rng.Start >= rng.End {
		return nil, nil
	}

	files := s.filesFor(rng)
	parts := make([][]dataframe.Row, len(files))
	g, gctx := errgroup.WithContext(ctx)
	if s.storage.MaxConcurrentReads > 0 {
		g.SetLimit(s.storage.MaxConcurrentReads)
	}
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			rows, err := s.readFile(gctx, f, rng, columns)
			parts[i] = rows
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := make([]dataframe.Row, 0, rng.Len())
	for i, part := range parts {
		rows = append(rows, part...)
		// rows are positional, so a short file is padded up to the next one
		if i < len(parts)-1 {
			next := files[i+1].Start
			for r := max(rng.Start, files[i].Start) + len(part); r < next; r++ {
				rows = append(rows, dataframe.Row{SourceIndex: r, Cells: map[string]interface{}{}})
			}
		}
	}
	return rows, nil
}

// readFile reads the part of rng that falls in f.
func (s *Source) readFile(ctx context.Context, f DataFile, rng dataframe.RowRange, columns []string) ([]dataframe.Row, error) {
	local := dataframe.RowRange{
		Start: max(rng.Start, f.Start) - f.Start,
		End:   min(rng.End, f.End()) - f.Start,
	}
	if len(columns) == 0 {
		rows := make([]dataframe.Row, 0, local.Len())
		for r := local.Start; r < local.End; r++ {
			rows = append(rows, dataframe.Row{SourceIndex: f.Start + r, Cells: map[string]interface{}{}})
		}
		return rows, nil
	}

	pq, err := s.file(ctx, f)
	if err != nil {
		return nil, err
	}
	present, missing := splitColumns(pq, columns)
	rows, err := pq.ReadRows(ctx, local, present)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].SourceIndex += f.Start
		for _, c := range missing {
			rows[i].Cells[c] = nil
		}
	}
	return rows, nil
}

// file returns the open parquet reader of f, opening it once.
func (s *Source) file(ctx context.Context, f DataFile) (*parquetsource.Source, error) {
	s.mu.Lock()
	pq, ok := s.open[f.Path]
	s.mu.Unlock()
	if ok {
		return pq, nil
	}

	v, err, _ := s.opening.Do(f.Path, func() (interface{}, error) {
		s.mu.Lock()
		pq, ok := s.open[f.Path]
		s.mu.Unlock()
		if ok {
			return pq, nil
		}

		uri := s.loc.resolve(f.Path)
		pq, err := parquetsource.OpenURI(ctx, uri, s.storage,
			parquetsource.WithLogger(s.logger))
		if err != nil {
			return nil, err
		}
		if pq.NumRows() != int(f.RecordCount) {
			s.logger.Warn("data file row count differs from manifest",
				zap.String("file", uri),
				zap.Int("rows", pq.NumRows()),
				zap.Int64("record_count", f.RecordCount))
		}
		s.mu.Lock()
		s.open[f.Path] = pq
		s.mu.Unlock()
		return pq, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*parquetsource.Source), nil
}

// filesFor returns the data files overlapping rng.
func (s *Source) filesFor(rng dataframe.RowRange) []DataFile {
	first := sort.Search(len(s.files), func(i int) bool { return s.files[i].End() > rng.Start })
	var out []DataFile
	for i := first; i < len(s.files) && s.files[i].Start < rng.End; i++ {
		if s.files[i].RecordCount > 0 {
			out = append(out, s.files[i])
		}
	}
	return out
}

// splitColumns separates the columns pq stores from the ones it predates.
func splitColumns(pq *parquetsource.Source, columns []string) (present, missing []string) {
	has := make(map[string]struct{}, len(pq.Columns()))
	for _, c := range pq.Columns() {
		has[c.Name] = struct{}{}
	}
	for _, c := range columns {
		if _, ok := has[c]; ok {
			present = append(present, c)
		} else {
			missing = append(missing, c)
		}
	}
	return present, missing
}
