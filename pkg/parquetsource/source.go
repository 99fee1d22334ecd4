// Package parquetsource reads parquet files through a byte-range tracked
// reader. It serves row windows to frames, scans with statistics pruning for
// queries, and reports which column chunks have been downloaded.
package parquetsource

import (
	"context"
	"io"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/metadata"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ajitpratap0/gridframe/pkg/byterange"
	"github.com/ajitpratap0/gridframe/pkg/bytesource"
	"github.com/ajitpratap0/gridframe/pkg/config"
	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/logger"
	"github.com/ajitpratap0/gridframe/pkg/observability"
)

// RowGroup locates a row group in the file's row space
type RowGroup struct {
	Index   int
	Start   int // first row
	NumRows int
}

// End returns the row after the group
func (g RowGroup) End() int { return g.Start + g.NumRows }

// Source is an open parquet file
type Source struct {
	name    string
	logger  *zap.Logger
	reader  *byterange.TrackedReader
	pf      *file.Reader
	mem     memory.Allocator
	sem     *semaphore.Weighted
	closer  io.Closer
	schema  *arrow.Schema
	columns []dataframe.ColumnDescriptor
	leaves  map[string]int
	groups  []RowGroup
	numRows int
}

type options struct {
	name     string
	logger   *zap.Logger
	storage  config.StorageConfig
	observer func(byterange.Range, byterange.Stats)
	closer   io.Closer
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

// WithObserver is called after every byte range read
func WithObserver(fn func(byterange.Range, byterange.Stats)) Option {
	return func(o *options) { o.observer = fn }
}

// withCloser closes c together with the source
func withCloser(c io.Closer) Option {
	return func(o *options) { o.closer = c }
}

// Open reads the footer of the parquet file in src.
func Open(ctx context.Context, src byterange.ReaderAtSizer, opts ...Option) (s *Source, err error) {
	o := options{name: "parquet", storage: config.NewConfig("parquet").Storage}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Component("parquet")
	}

	_, span := observability.StartSpan(ctx, "parquet", "open")
	defer func() { span.End(err) }()

	var trOpts []byterange.Option
	if o.observer != nil {
		trOpts = append(trOpts, byterange.WithObserver(o.observer))
	}
	tr := byterange.NewTrackedReader(src, o.name, trOpts...)

	pf, err := file.NewParquetReader(tr)
	if err != nil {
		return nil, errors.UnderlyingRead(err, "read parquet footer")
	}

	mem := memory.NewGoAllocator()
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		_ = pf.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeUnderlyingRead, "create arrow reader")
	}
	schema, err := fr.Schema()
	if err != nil {
		_ = pf.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeUnderlyingRead, "read arrow schema")
	}

	reads := o.storage.MaxConcurrentReads
	if reads <= 0 {
		reads = 1
	}
	s = &Source{
		name:    o.name,
		logger:  o.logger.With(zap.String("source", o.name)),
		reader:  tr,
		pf:      pf,
		mem:     mem,
		sem:     semaphore.NewWeighted(int64(reads)),
		closer:  o.closer,
		schema:  schema,
		leaves:  make(map[string]int),
	}

	md := pf.MetaData()
	for _, f := range schema.Fields() {
		leaf := md.Schema.ColumnIndexByName(f.Name)
		if leaf < 0 {
			s.logger.Debug("skipping nested column", zap.String("column", f.Name))
			continue
		}
		s.leaves[f.Name] = leaf
		s.columns = append(s.columns, dataframe.ColumnDescriptor{
			Name:     f.Name,
			Type:     columnType(f.Type),
			Nullable: f.Nullable,
		})
	}

	start := 0
	for i := 0; i < md.NumRowGroups(); i++ {
		n := int(md.RowGroup(i).NumRows())
		s.groups = append(s.groups, RowGroup{Index: i, Start: start, NumRows: n})
		start += n
	}
	s.numRows = start

	span.SetAttribute("row_groups", len(s.groups))
	span.SetAttribute("rows", s.numRows)
	s.logger.Info("parquet file opened",
		zap.Int("rows", s.numRows),
		zap.Int("row_groups", len(s.groups)),
		zap.Int("columns", len(s.columns)),
		zap.Int64("size", tr.Size()))
	return s, nil
}

// OpenURI opens the parquet file at uri through a byte source and owns it:
// closing the returned Source closes the byte source. The source is named
// after the last path element unless WithName is given.
func OpenURI(ctx context.Context, uri string, cfg config.StorageConfig, opts ...Option) (*Source, error) {
	loc, err := bytesource.ParseLocation(uri)
	if err != nil {
		return nil, err
	}
	src, err := bytesource.Open(ctx, uri, cfg)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithName(loc.Name()), WithStorageConfig(cfg)}, opts...)
	opts = append(opts, withCloser(src))
	s, err := Open(ctx, src, opts...)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return s, nil
}

// Name returns the source label
func (s *Source) Name() string { return s.name }

// Columns returns the readable top-level columns
func (s *Source) Columns() []dataframe.ColumnDescriptor { return s.columns }

// NumRows returns the row count from the footer
func (s *Source) NumRows() int { return s.numRows }

// RowGroups returns the row group layout
func (s *Source) RowGroups() []RowGroup { return s.groups }

// Metadata returns the parsed footer
func (s *Source) Metadata() *metadata.FileMetaData { return s.pf.MetaData() }

// Reader returns the tracked byte reader
func (s *Source) Reader() *byterange.TrackedReader { return s.reader }

// NewFrame wraps the source in a windowed frame
func (s *Source) NewFrame(opts ...dataframe.Option) *dataframe.Windowed {
	opts = append([]dataframe.Option{dataframe.WithName(s.name)}, opts...)
	return dataframe.NewWindowed(s, s.columns, s.numRows, opts...)
}

// Close releases the file and the underlying byte source when Open owns it.
func (s *Source) Close() error {
	err := s.pf.Close()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// groupsFor returns the row groups overlapping rng.
func (s *Source) groupsFor(rng dataframe.RowRange) []RowGroup {
	first := sort.Search(len(s.groups), func(i int) bool { return s.groups[i].End() > rng.Start })
	var out []RowGroup
	for i := first; i < len(s.groups) && s.groups[i].Start < rng.End; i++ {
		out = append(out, s.groups[i])
	}
	return out
}

func (s *Source) leafIndices(columns []string) ([]int, error) {
	idx := make([]int, len(columns))
	for i, c := range columns {
		leaf, ok := s.leaves[c]
		if !ok {
			return nil, errors.UnknownColumn(c)
		}
		idx[i] = leaf
	}
	return idx, nil
}

// columnType maps an arrow type to a frame column type
func columnType(dt arrow.DataType) dataframe.ColumnType {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return dataframe.ColumnTypeInt
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64, arrow.DECIMAL128, arrow.DECIMAL256:
		return dataframe.ColumnTypeFloat
	case arrow.BOOL:
		return dataframe.ColumnTypeBool
	case arrow.STRING, arrow.LARGE_STRING:
		return dataframe.ColumnTypeString
	case arrow.BINARY, arrow.LARGE_BINARY, arrow.FIXED_SIZE_BINARY:
		return dataframe.ColumnTypeBinary
	case arrow.TIMESTAMP:
		return dataframe.ColumnTypeTimestamp
	case arrow.DATE32, arrow.DATE64:
		return dataframe.ColumnTypeDate
	default:
		return dataframe.ColumnTypeUnknown
	}
}
