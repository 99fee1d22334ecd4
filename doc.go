// Package gridframe provides windowed, lazily fetched views over tabular data
// for interactive grids.
//
// A frame answers random-access cell reads from a cache and fetches only the
// rows and columns a viewport asks for. Every cell is Absent, Pending,
// Resolved or Failed; concurrent fetches of overlapping windows never read
// the same cell twice, and cells of a cancelled read end Failed so a later
// fetch retries them.
//
// # Packages
//
//   - pkg/dataframe: CellCache, the Windowed frame over a RowReader, the
//     Sorted adapter and the Generated frame over a RowProducer
//   - pkg/byterange: ByteRangeTracker and a tracked io.ReaderAt that records
//     which parts of a remote file were downloaded
//   - pkg/bytesource: random-access byte sources for local files, HTTP
//     ranges, S3 and GCS
//   - pkg/parquetsource: parquet files read by row group and column chunk
//   - pkg/sqlsource, pkg/mongosource: SQL tables and MongoDB collections
//   - pkg/pushdown: predicate translation to a storage filter document
//   - pkg/query: SELECT parsing and execution into a Generated frame
//   - pkg/mockdata: a deterministic synthetic table for demos and tests
//
// # Quick Start
//
//	src, err := parquetsource.OpenURI(ctx, "s3://bucket/events.parquet", cfg.Storage)
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//
//	frame := src.NewFrame(dataframe.WithFetchConfig(cfg.Fetch))
//	err = frame.Fetch(ctx, dataframe.FetchRequest{RowStart: 0, RowEnd: 50, Columns: []string{"id", "ts"}})
//	v, ok, err := frame.GetCell(10, "ts")
//
// The gridframe command wraps the same API: inspect, view, query, export
// and demo.
package gridframe
