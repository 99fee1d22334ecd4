package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/gridframe/internal/render"
	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/logger"
	"github.com/ajitpratap0/gridframe/pkg/query"
)

// drainBatch is how many rows each producer pull asks for when a query must
// be read to the end before it can be sorted.
const drainBatch = 1024

func newQueryCmd(a *app) *cobra.Command {
	var (
		rows    int
		format  string
		explain bool
	)

	cmd := &cobra.Command{
		Use:   "query <uri> <sql>",
		Short: "Run a SELECT against a source",
		Long: `Run "SELECT cols FROM t [WHERE ...] [ORDER BY ...] [LIMIT n]" against a source.
The WHERE clause is translated to a storage filter where possible and the rest
is evaluated on the fetched rows. Rows are produced on demand, so only the
first --rows results are read unless ORDER BY needs them all.

Example:
  gridframe query data.parquet "SELECT id, name FROM t WHERE age > 30 LIMIT 10"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logger.WithSource(cmd.Context(), redactURI(args[0]))
			out := cmd.OutOrStdout()

			q, err := query.Parse(args[1])
			if err != nil {
				return err
			}
			src, err := openSource(ctx, args[0], a.cfg)
			if err != nil {
				return err
			}
			defer src.Close()

			began := time.Now()
			gen, plan, err := query.NewFrame(ctx, src, q, a.cfg.Query, frameOptions(a.cfg, q.Table)...)
			if err != nil {
				return err
			}
			if explain {
				fmt.Fprintf(out, "plan: %s\n", plan)
			}

			var frame dataframe.Frame = gen
			if len(plan.OrderBy) > 0 {
				for !gen.RowCountFinal() {
					n := gen.Discovered()
					if err := gen.Fetch(ctx, dataframe.FetchRequest{RowStart: n, RowEnd: n + drainBatch}); err != nil {
						return err
					}
				}
				sorted := dataframe.NewSorted(gen)
				defer sorted.Close()
				keys := make([]dataframe.SortKey, len(plan.OrderBy))
				for i, o := range plan.OrderBy {
					keys[i] = dataframe.SortKey{Column: o.Column, Descending: o.Descending}
				}
				if err := sorted.SetSort(keys...); err != nil {
					return err
				}
				if err := sorted.FetchSortColumns(ctx); err != nil {
					return err
				}
				frame = sorted
			}

			want := rows
			if plan.Limit >= 0 && plan.Limit < want {
				want = plan.Limit
			}
			if frame.RowCountFinal() {
				want = min(want, frame.NumRows())
			}
			if err := frame.Fetch(ctx, dataframe.FetchRequest{RowStart: 0, RowEnd: want, Columns: plan.Columns}); err != nil {
				return err
			}
			firstRows := time.Since(began)

			end := min(want, gen.Discovered())
			a.log.Debug("query window fetched",
				zap.String("plan", plan.String()),
				zap.Int("rows", end),
				zap.Duration("elapsed", firstRows))

			g, err := render.Snapshot(frame, 0, end, plan.Columns)
			if err != nil {
				return err
			}
			if err := render.Write(out, g, format); err != nil {
				return err
			}
			if format != "json" {
				more := ""
				if !frame.RowCountFinal() {
					more = "+"
				}
				fmt.Fprintf(out, "%d of %d%s rows in %s\n", end, gen.Discovered(), more, firstRows.Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&rows, "rows", 20, "Rows to fetch and print")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	cmd.Flags().BoolVar(&explain, "explain", false, "Print the query plan")
	return cmd
}
