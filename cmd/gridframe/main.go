// Command gridframe inspects, views and queries tabular data through
// windowed, lazily fetched frames.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/gridframe/pkg/config"
	"github.com/ajitpratap0/gridframe/pkg/logger"
	"github.com/ajitpratap0/gridframe/pkg/observability"
)

var version = "0.1.0"

// configKeys are the settings that can come from GRIDFRAME_* variables.
var configKeys = []string{
	"fetch.row_count_placeholder",
	"fetch.cell_concurrency",
	"fetch.wait_for_inflight",
	"storage.max_concurrent_reads",
	"storage.http_timeout",
	"storage.s3.region",
	"storage.s3.endpoint",
	"storage.s3.access_key_id",
	"storage.s3.secret_access_key",
	"storage.gcs.credentials_file",
	"query.enable_pushdown",
	"query.default_limit",
	"observability.enable_metrics",
	"observability.metrics_addr",
	"observability.enable_tracing",
	"observability.tracing_sample_rate",
	"observability.log_level",
	"observability.log_encoding",
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":            "observability.log_level",
	"tracing":              "observability.enable_tracing",
	"metrics":              "observability.enable_metrics",
	"max-concurrent-reads": "storage.max_concurrent_reads",
	"pushdown":             "query.enable_pushdown",
}

// app holds what every subcommand needs after configuration is loaded.
type app struct {
	v        *viper.Viper
	cfg      *config.Config
	log      *zap.Logger
	shutdown []func(context.Context) error
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	var configFile string

	root := &cobra.Command{
		Use:   "gridframe",
		Short: "Gridframe - windowed, lazily fetched views over tabular data",
		Long: `Gridframe opens parquet files (local, HTTP, S3, GCS), SQL tables and MongoDB
collections as frames that fetch only the rows and columns you look at.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for name, key := range flagKeys {
				// unchanged flags must not mask the config file
				if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
					_ = a.v.BindPFlag(key, f)
				}
			}
			return a.init(configFile)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to a YAML configuration file")
	flags.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flags.Bool("tracing", false, "Export spans to stderr")
	flags.Bool("metrics", false, "Serve prometheus metrics while the command runs")
	flags.Int("max-concurrent-reads", runtime.NumCPU(), "Concurrent storage reads per source")
	flags.Bool("pushdown", true, "Push query filters down to storage")

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Gridframe v%s\n", version)
				fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
				fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			},
		},
		newInspectCmd(a),
		newViewCmd(a),
		newQueryCmd(a),
		newDemoCmd(a),
		newExportCmd(a),
		newConfigCmd(a),
	)
	return root
}

// init layers defaults, the config file, GRIDFRAME_* variables and flags,
// then starts logging, tracing and metrics.
func (a *app) init(configFile string) error {
	cfg := config.NewConfig("gridframe")
	cfg.Observability.LogLevel = "warn"
	if configFile != "" {
		loaded, err := config.LoadConfig(configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	a.v.SetEnvPrefix("GRIDFRAME")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range configKeys {
		_ = a.v.BindEnv(key)
	}
	if err := a.v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to apply settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Encoding:    cfg.Observability.LogEncoding,
		OutputPaths: []string{"stderr"},
	}); err != nil {
		return err
	}
	a.log = logger.Component("gridframe-cli")

	shutdown, err := observability.Initialize(cfg.Observability, version, os.Stderr)
	if err != nil {
		return err
	}
	a.shutdown = append(a.shutdown, shutdown)

	if cfg.Observability.EnableMetrics {
		a.serveMetrics(cfg.Observability.MetricsAddr)
	}
	return nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	a.log.Info("serving metrics", zap.String("addr", addr))
	a.shutdown = append(a.shutdown, srv.Shutdown)
}

func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var first error
	for _, fn := range a.shutdown {
		if err := fn(ctx); err != nil && first == nil {
			first = err
		}
	}
	a.shutdown = nil
	_ = logger.Sync()
	return first
}
