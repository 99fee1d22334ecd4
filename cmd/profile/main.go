// Command profile records pprof profiles of a frame workload: random
// viewport fetches over a synthetic table, a sorted view and a filtered query.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/ajitpratap0/gridframe/pkg/config"
	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/logger"
	"github.com/ajitpratap0/gridframe/pkg/mockdata"
	"github.com/ajitpratap0/gridframe/pkg/query"
)

func main() {
	var (
		duration     = flag.Duration("duration", 10*time.Second, "Profiling duration")
		outputDir    = flag.String("output", "./profiles", "Output directory for profiles")
		profileTypes = flag.String("types", "cpu,memory", "Profile types (cpu,memory,block,mutex,goroutine,all)")
		rows         = flag.Int("rows", 1_000_000, "Rows in the synthetic table")
		window       = flag.Int("window", 50, "Viewport height in rows")
		workers      = flag.Int("workers", 4, "Concurrent scrolling viewports")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -types cpu -duration 30s\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -types all -rows 100000 -workers 8\n", os.Args[0])
	}
	flag.Parse()

	if err := logger.Init(logger.Config{Level: "warn", Encoding: "console", OutputPaths: []string{"stderr"}}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	types := parseProfileTypes(*profileTypes)
	if contains(types, "block") {
		runtime.SetBlockProfileRate(1)
	}
	if contains(types, "mutex") {
		runtime.SetMutexProfileFraction(1)
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	if contains(types, "cpu") {
		path := filepath.Join(*outputDir, "cpu.prof")
		f, err := os.Create(path)
		if err != nil {
			log.Fatalf("Failed to create CPU profile: %v", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatalf("Failed to start CPU profile: %v", err)
		}
		defer pprof.StopCPUProfile()
		fmt.Printf("CPU profiling enabled, writing to: %s\n", path)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	res := runWorkload(ctx, *rows, *window, *workers)
	fmt.Printf("Fetched %d windows, %d sorted windows, %d query rows in %v\n",
		res.windows, res.sorted, res.queryRows, *duration)

	if contains(types, "memory") {
		path := filepath.Join(*outputDir, "mem.prof")
		f, err := os.Create(path)
		if err != nil {
			log.Fatalf("Failed to create memory profile: %v", err)
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatalf("Failed to write memory profile: %v", err)
		}
		fmt.Printf("Memory profile written to: %s\n", path)
	}

	for _, name := range []string{"block", "mutex", "goroutine"} {
		if contains(types, name) {
			writeProfile(name, filepath.Join(*outputDir, name+".prof"))
		}
	}
}

type result struct {
	windows   int
	sorted    int
	queryRows int
}

// runWorkload scrolls viewports until ctx expires, then sorts a slice of the
// table and drains a filtered query over it.
func runWorkload(ctx context.Context, rows, window, workers int) result {
	table := mockdata.New(mockdata.WithRows(rows))
	frame := table.NewFrame(dataframe.WithName("profile"))
	cols := dataframe.ColumnNames(frame.Columns())

	done := make(chan int, workers)
	for w := 0; w < workers; w++ {
		go func(seed int64) {
			rng := rand.New(rand.NewSource(seed))
			n := 0
			for ctx.Err() == nil {
				start := rng.Intn(max(rows-window, 1))
				req := dataframe.FetchRequest{RowStart: start, RowEnd: min(start+window, rows), Columns: cols}
				if err := frame.Fetch(ctx, req); err == nil {
					n++
				}
			}
			done <- n
		}(int64(w))
	}

	var res result
	for w := 0; w < workers; w++ {
		res.windows += <-done
	}

	// the deadline has passed; the follow-up stages get a short budget of their own
	tail, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	small := mockdata.New(mockdata.WithRows(min(rows, 10_000)))
	sorted := dataframe.NewSorted(small.NewFrame())
	defer sorted.Close()
	if err := sorted.SetSort(dataframe.SortKey{Column: mockdata.ColumnAge, Descending: true}); err == nil {
		if err := sorted.FetchSortColumns(tail); err == nil {
			for start := 0; start+window <= sorted.NumRows(); start += window {
				if sorted.Fetch(tail, dataframe.FetchRequest{RowStart: start, RowEnd: start + window, Columns: cols}) != nil {
					break
				}
				res.sorted++
			}
		}
	}

	q, err := query.Parse("SELECT ID, Name FROM profile WHERE Age > 40 AND Age < 60")
	if err != nil {
		log.Fatalf("Failed to parse query: %v", err)
	}
	producer, _, err := query.Execute(tail, small, q, config.NewConfig("profile").Query)
	if err != nil {
		log.Fatalf("Failed to execute query: %v", err)
	}
	for {
		row, err := producer.Next(tail)
		if err != nil || row == nil {
			break
		}
		res.queryRows++
	}
	return res
}

func writeProfile(profileName, filename string) {
	profile := pprof.Lookup(profileName)
	if profile == nil {
		fmt.Printf("Profile %s not found\n", profileName)
		return
	}

	f, err := os.Create(filename)
	if err != nil {
		log.Printf("Failed to create %s profile: %v", profileName, err)
		return
	}
	defer f.Close()

	if err := profile.WriteTo(f, 0); err != nil {
		log.Printf("Failed to write %s profile: %v", profileName, err)
		return
	}
	fmt.Printf("%s profile written to: %s\n", profileName, filename)
}

func parseProfileTypes(typesStr string) []string {
	if typesStr == "all" {
		return []string{"cpu", "memory", "block", "mutex", "goroutine"}
	}
	var types []string
	for _, part := range strings.Split(typesStr, ",") {
		switch part = strings.TrimSpace(part); part {
		case "mem":
			types = append(types, "memory")
		case "cpu", "memory", "block", "mutex", "goroutine":
			types = append(types, part)
		}
	}
	return types
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
