package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/gridframe/pkg/compression"
	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/logger"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		out     string
		codec   string
		columns string
		sortBy  []string
		batch   int
	)

	cmd := &cobra.Command{
		Use:   "export <uri>",
		Short: "Write every row as JSON lines",
		Long: `Read a source window by window and write one JSON object per row. The codec
follows the output extension (.gz, .zst, .lz4, .snappy, .s2) unless
--compression is given. Rows that storage could not produce are written with
null cells.

Example:
  gridframe export s3://bucket/events.parquet --columns id,ts --out events.jsonl.zst`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logger.WithSource(cmd.Context(), redactURI(args[0]))
			if batch <= 0 {
				return errors.New(errors.ErrorTypeValidation, "batch must be positive")
			}

			alg := compression.FromPath(out)
			if codec != "" {
				var err error
				if alg, err = compression.Parse(codec); err != nil {
					return err
				}
			}

			src, err := openSource(ctx, args[0], a.cfg)
			if err != nil {
				return err
			}
			defer src.Close()
			cols, err := parseColumns(columns, src.Columns())
			if err != nil {
				return err
			}

			var frame dataframe.Frame = dataframe.NewWindowed(src, src.Columns(), src.NumRows(), frameOptions(a.cfg, args[0])...)
			if len(sortBy) > 0 {
				sorted := dataframe.NewSorted(frame)
				defer sorted.Close()
				keys := make([]dataframe.SortKey, len(sortBy))
				for i, s := range sortBy {
					keys[i] = dataframe.ParseSortKey(s)
				}
				if err := sorted.SetSort(keys...); err != nil {
					return err
				}
				if err := sorted.FetchSortColumns(ctx); err != nil {
					return err
				}
				frame = sorted
			}

			var dst io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create output")
				}
				defer f.Close()
				dst = f
			}
			buf := bufio.NewWriter(dst)
			zw, err := compression.NewWriter(buf, alg, compression.Default)
			if err != nil {
				return err
			}

			began := time.Now()
			written, failed := 0, 0
			enc := json.NewEncoder(zw)
			for start := 0; start < frame.NumRows(); start += batch {
				end := min(start+batch, frame.NumRows())
				if err := frame.Fetch(ctx, dataframe.FetchRequest{RowStart: start, RowEnd: end, Columns: cols}); err != nil {
					return err
				}
				for r := start; r < end; r++ {
					rec := make(map[string]interface{}, len(cols))
					for _, c := range cols {
						e, err := frame.Entry(r, c)
						if err != nil {
							return err
						}
						switch {
						case e.State == dataframe.StateFailed:
							failed++
							rec[c] = nil
						case e.Value.Unavailable:
							rec[c] = nil
						default:
							rec[c] = e.Value.Value
						}
					}
					if err := enc.Encode(rec); err != nil {
						return errors.Wrap(err, errors.ErrorTypeInternal, "failed to write row")
					}
					written++
				}
				a.log.Debug("batch exported", zap.Int("start", start), zap.Int("end", end))
			}
			if err := zw.Close(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, "failed to flush compressor")
			}
			if err := buf.Flush(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, "failed to flush output")
			}

			if out != "" && out != "-" {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows (%s, %d failed cells) to %s in %s\n",
					written, alg, failed, out, time.Since(began).Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file, - or empty for stdout")
	cmd.Flags().StringVar(&codec, "compression", "", "Codec: none, gzip, snappy, lz4, zstd, s2")
	cmd.Flags().StringVar(&columns, "columns", "", "Comma-separated columns (default all)")
	cmd.Flags().StringSliceVar(&sortBy, "sort", nil, "Sort key column[:desc], repeatable")
	cmd.Flags().IntVar(&batch, "batch", 1000, "Rows fetched per window")
	return cmd
}
