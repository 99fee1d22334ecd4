package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/gridframe/internal/render"
	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/mockdata"
)

func newDemoCmd(a *app) *cobra.Command {
	var (
		rows, limit  int
		window, step int
		scrolls      int
		delay        time.Duration
		interval     time.Duration
		events       bool
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Scroll through a slow synthetic table",
		Long: `Scroll a viewport over a synthetic table whose reads are slow. A scroll that
arrives before the previous window loaded cancels it, the way a grid does while
the user drags the scrollbar. The last window is printed together with the
cache state.

Example:
  gridframe demo --rows 100000 --delay 200ms --interval 50ms --scrolls 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			opts := []mockdata.Option{mockdata.WithRows(rows), mockdata.WithDelay(delay, delay/2)}
			if limit > 0 {
				opts = append(opts, mockdata.WithLimit(limit))
			}
			table := mockdata.New(opts...)
			frame := table.NewFrame(frameOptions(a.cfg, "demo")...)

			if events {
				var mu sync.Mutex
				unsubscribe := frame.Subscribe(func(ev dataframe.Event) {
					mu.Lock()
					defer mu.Unlock()
					fmt.Fprintf(out, "event %s rows=%s columns=%v\n", ev.Kind, ev.Rows, ev.Columns)
				})
				defer unsubscribe()
			}

			cols := dataframe.ColumnNames(frame.Columns())
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				cancel  context.CancelFunc = func() {}
				settled int
				dropped int
			)
			start := 0
			for i := 0; i < scrolls; i++ {
				cancel()
				start = min(i*step, max(frame.NumRows()-window, 0))
				req := dataframe.FetchRequest{RowStart: start, RowEnd: min(start+window, frame.NumRows()), Columns: cols}

				var fctx context.Context
				fctx, cancel = context.WithCancel(ctx)
				wg.Add(1)
				go func(fctx context.Context) {
					defer wg.Done()
					err := frame.Fetch(fctx, req)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						settled++
					case errors.IsCancelled(err):
						dropped++
					default:
						a.log.Warn("window failed", zap.Stringer("rows", dataframe.RowRange{Start: req.RowStart, End: req.RowEnd}), zap.Error(err))
					}
				}(fctx)

				if i < scrolls-1 {
					select {
					case <-time.After(interval):
					case <-ctx.Done():
						cancel()
						wg.Wait()
						return errors.Cancelled(ctx.Err())
					}
				}
			}
			wg.Wait()
			cancel()

			// fetch the final viewport again in case the last scroll was cut short
			end := min(start+window, frame.NumRows())
			if err := frame.Fetch(ctx, dataframe.FetchRequest{RowStart: start, RowEnd: end, Columns: cols}); err != nil {
				return err
			}
			g, err := render.Snapshot(frame, start, end, cols)
			if err != nil {
				return err
			}
			render.Table(out, g)

			stats := frame.Stats()
			fmt.Fprintf(out, "windows: %d loaded, %d cancelled; reads: %d\n", settled, dropped, len(table.Reads()))
			fmt.Fprintf(out, "cells: %d resolved, %d pending, %d failed\n", stats.Resolved, stats.Pending, stats.Failed)
			return nil
		},
	}

	cmd.Flags().IntVar(&rows, "rows", mockdata.DefaultRows, "Advertised row count")
	cmd.Flags().IntVar(&limit, "limit", 0, "Rows actually stored (0 for all)")
	cmd.Flags().IntVar(&window, "window", 20, "Viewport height in rows")
	cmd.Flags().IntVar(&step, "step", 500, "Rows moved per scroll")
	cmd.Flags().IntVar(&scrolls, "scrolls", 5, "Number of scrolls")
	cmd.Flags().DurationVar(&delay, "delay", 100*time.Millisecond, "Latency of every storage read")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Millisecond, "Time between scrolls")
	cmd.Flags().BoolVar(&events, "events", false, "Print frame events")
	return cmd
}
