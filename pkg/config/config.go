// Package config provides the configuration system for gridframe.
// A single Config structure carries every tunable of the frame layer, the
// storage readers and the observability stack.
//
// The configuration is organized into logical sections:
//   - Fetch: row-count placeholder, cell resolution concurrency
//   - Storage: byte source and storage reader settings
//   - Query: predicate pushdown and result limits
//   - Observability: metrics, tracing, logging
//
// Example usage:
//
//	cfg := config.NewConfig("orders")
//	cfg.Storage.MaxConcurrentReads = 4
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config is the top-level configuration of a gridframe process.
type Config struct {
	// Name identifies the frame in logs and metrics
	Name string `yaml:"name" json:"name" mapstructure:"name"`

	// Fetch settings control the windowed frames
	Fetch FetchConfig `yaml:"fetch" json:"fetch" mapstructure:"fetch"`

	// Storage settings control byte sources and storage readers
	Storage StorageConfig `yaml:"storage" json:"storage" mapstructure:"storage"`

	// Query settings control the query layer
	Query QueryConfig `yaml:"query" json:"query" mapstructure:"query"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// FetchConfig contains frame-level fetch settings.
type FetchConfig struct {
	// RowCountPlaceholder is added to the discovered row count while a
	// row generator is still producing
	RowCountPlaceholder int `yaml:"row_count_placeholder" json:"row_count_placeholder" mapstructure:"row_count_placeholder"`
	// CellConcurrency bounds concurrently resolving cell thunks per fetch
	CellConcurrency int `yaml:"cell_concurrency" json:"cell_concurrency" mapstructure:"cell_concurrency"`
	// WaitForInflight makes fetch wait for overlapping reads issued by
	// other fetch calls
	WaitForInflight bool `yaml:"wait_for_inflight" json:"wait_for_inflight" mapstructure:"wait_for_inflight"`
}

// StorageConfig contains storage reader and byte source settings.
type StorageConfig struct {
	// MaxConcurrentReads bounds concurrent reads inside one storage reader
	MaxConcurrentReads int `yaml:"max_concurrent_reads" json:"max_concurrent_reads" mapstructure:"max_concurrent_reads"`
	// HTTPTimeout applies to every HTTP range request
	HTTPTimeout time.Duration `yaml:"http_timeout" json:"http_timeout" mapstructure:"http_timeout"`
	// S3 settings for s3:// locations
	S3 S3Config `yaml:"s3" json:"s3" mapstructure:"s3"`
	// GCS settings for gs:// locations
	GCS GCSConfig `yaml:"gcs" json:"gcs" mapstructure:"gcs"`
}

// S3Config contains S3 client settings.
type S3Config struct {
	// Region of the bucket
	Region string `yaml:"region" json:"region" mapstructure:"region"`
	// Endpoint overrides the service endpoint (MinIO, localstack)
	Endpoint string `yaml:"endpoint" json:"endpoint" mapstructure:"endpoint"`
	// AccessKeyID and SecretAccessKey, when set, replace the default chain
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key" mapstructure:"secret_access_key"`
}

// GCSConfig contains Google Cloud Storage client settings.
type GCSConfig struct {
	// CredentialsFile is a service account key file; empty uses ADC
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file" mapstructure:"credentials_file"`
}

// QueryConfig contains query layer settings.
type QueryConfig struct {
	// EnablePushdown passes translated filters to storage
	EnablePushdown bool `yaml:"enable_pushdown" json:"enable_pushdown" mapstructure:"enable_pushdown"`
	// DefaultLimit caps query results when the query has no LIMIT (0 = none)
	DefaultLimit int `yaml:"default_limit" json:"default_limit" mapstructure:"default_limit"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// EnableMetrics activates the prometheus endpoint
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics" mapstructure:"enable_metrics"`
	// MetricsAddr is the listen address of the metrics endpoint
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr" mapstructure:"metrics_addr"`
	// EnableTracing activates span export
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate" mapstructure:"tracing_sample_rate"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	// LogEncoding is json or console
	LogEncoding string `yaml:"log_encoding" json:"log_encoding" mapstructure:"log_encoding"`
}

// NewConfig creates a Config with sensible defaults.
//
// Example:
//
//	cfg := config.NewConfig("orders")
//	cfg.Fetch.RowCountPlaceholder = 500
func NewConfig(name string) *Config {
	return &Config{
		Name: name,
		Fetch: FetchConfig{
			RowCountPlaceholder: 100,
			CellConcurrency:     runtime.NumCPU() * 4,
			WaitForInflight:     true,
		},
		Storage: StorageConfig{
			MaxConcurrentReads: runtime.NumCPU(),
			HTTPTimeout:        30 * time.Second,
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Query: QueryConfig{
			EnablePushdown: true,
			DefaultLimit:   0,
		},
		Observability: ObservabilityConfig{
			EnableMetrics:     false,
			MetricsAddr:       ":9090",
			EnableTracing:     false,
			TracingSampleRate: 1.0,
			LogLevel:          "info",
			LogEncoding:       "console",
		},
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Fetch.RowCountPlaceholder < 0 {
		return fmt.Errorf("row_count_placeholder cannot be negative")
	}
	if c.Fetch.CellConcurrency <= 0 {
		return fmt.Errorf("cell_concurrency must be positive")
	}
	if c.Storage.MaxConcurrentReads <= 0 {
		return fmt.Errorf("max_concurrent_reads must be positive")
	}
	if c.Storage.HTTPTimeout < 0 {
		return fmt.Errorf("http_timeout cannot be negative")
	}
	if c.Query.DefaultLimit < 0 {
		return fmt.Errorf("default_limit cannot be negative")
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		return fmt.Errorf("tracing_sample_rate must be between 0 and 1")
	}
	switch c.Observability.LogEncoding {
	case "json", "console":
	default:
		return fmt.Errorf("log_encoding must be json or console, got %q", c.Observability.LogEncoding)
	}
	return nil
}

// HasStaticCredentials returns true if explicit S3 keys are configured
func (s *S3Config) HasStaticCredentials() bool {
	return s.AccessKeyID != "" && s.SecretAccessKey != ""
}
