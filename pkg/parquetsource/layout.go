package parquetsource

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet/metadata"
	"go.uber.org/zap"

	"github.com/ajitpratap0/gridframe/pkg/byterange"
	"github.com/ajitpratap0/gridframe/pkg/pushdown"
)

// Chunk is one column chunk and how much of it has been downloaded
type Chunk struct {
	RowGroup    int
	Column      string
	Bytes       byterange.Range
	Compression string
	NumValues   int64
	Status      byterange.Status
}

// Chunks returns every column chunk of the file in row group order with its
// current download status.
func (s *Source) Chunks() []Chunk {
	md := s.pf.MetaData()
	var out []Chunk
	for _, rg := range s.groups {
		rgmd := md.RowGroup(rg.Index)
		for _, col := range s.columns {
			cc, err := rgmd.ColumnChunk(s.leaves[col.Name])
			if err != nil {
				s.logger.Warn("column chunk metadata unavailable",
					zap.Int("row_group", rg.Index), zap.String("column", col.Name), zap.Error(err))
				continue
			}
			rng := chunkRange(cc)
			out = append(out, Chunk{
				RowGroup:    rg.Index,
				Column:      col.Name,
				Bytes:       rng,
				Compression: cc.Compression().String(),
				NumValues:   cc.NumValues(),
				Status:      s.reader.Tracker().Coverage(rng.Start, rng.End),
			})
		}
	}
	return out
}

// chunkRange spans the dictionary page, when present, and the data pages.
func chunkRange(cc *metadata.ColumnChunkMetaData) byterange.Range {
	start := cc.DataPageOffset()
	if cc.HasDictionaryPage() && cc.DictionaryPageOffset() > 0 && cc.DictionaryPageOffset() < start {
		start = cc.DictionaryPageOffset()
	}
	return byterange.Range{Start: uint64(start), End: uint64(start + cc.TotalCompressedSize())}
}

// FooterRange returns the bytes of the file footer: the serialized metadata
// plus its 4-byte length and the 4-byte magic.
func (s *Source) FooterRange() byterange.Range {
	size := uint64(s.reader.Size())
	n := uint64(s.pf.MetaData().Size()) + 8
	if n > size {
		n = size
	}
	return byterange.Range{Start: size - n, End: size}
}

// Progress reports the bytes downloaded so far against the file size
func (s *Source) Progress() (fetched uint64, size int64) {
	return s.reader.Tracker().CoveredBytes(), s.reader.Size()
}

// GroupStats returns the min/max statistics of one row group keyed by
// column. Columns without statistics are omitted.
func (s *Source) GroupStats(rg RowGroup) map[string]pushdown.ColumnStats {
	rgmd := s.pf.MetaData().RowGroup(rg.Index)
	out := make(map[string]pushdown.ColumnStats, len(s.columns))
	for _, col := range s.columns {
		cc, err := rgmd.ColumnChunk(s.leaves[col.Name])
		if err != nil {
			continue
		}
		if set, err := cc.StatsSet(); err != nil || !set {
			continue
		}
		st, err := cc.Statistics()
		if err != nil || st == nil {
			continue
		}
		cs := pushdown.ColumnStats{NumValues: int64(rg.NumRows)}
		if st.HasNullCount() {
			cs.NullCount = st.NullCount()
		}
		if st.HasMinMax() {
			fields, _ := s.schema.FieldsByName(col.Name)
			cs.Min, cs.Max, cs.HasMinMax = statsBounds(st, fields)
		}
		out[col.Name] = cs
	}
	return out
}

// statsBounds converts typed statistics into comparable Go values.
func statsBounds(st metadata.TypedStatistics, fields []arrow.Field) (lo, hi interface{}, ok bool) {
	switch t := st.(type) {
	case *metadata.BooleanStatistics:
		return t.Min(), t.Max(), true
	case *metadata.Int32Statistics:
		if len(fields) > 0 && !isInteger(fields[0].Type) {
			return nil, nil, false
		}
		return int64(t.Min()), int64(t.Max()), true
	case *metadata.Int64Statistics:
		if len(fields) > 0 && !isInteger(fields[0].Type) {
			return nil, nil, false
		}
		return t.Min(), t.Max(), true
	case *metadata.Float32Statistics:
		return float64(t.Min()), float64(t.Max()), true
	case *metadata.Float64Statistics:
		return t.Min(), t.Max(), true
	case *metadata.ByteArrayStatistics:
		if len(fields) > 0 && fields[0].Type.ID() != arrow.STRING && fields[0].Type.ID() != arrow.LARGE_STRING {
			return nil, nil, false
		}
		return string(t.Min()), string(t.Max()), true
	}
	return nil, nil, false
}

// isInteger excludes physical ints that carry dates, times and decimals.
func isInteger(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return true
	}
	return false
}
