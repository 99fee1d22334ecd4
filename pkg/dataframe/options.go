package dataframe

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/gridframe/pkg/config"
)

type options struct {
	name            string
	logger          *zap.Logger
	waitForInflight bool
	placeholder     int
	cellConcurrency int
	schemaHint      []ColumnDescriptor
}

func defaultOptions() options {
	fc := config.NewConfig("frame").Fetch
	return options{
		name:            "frame",
		waitForInflight: fc.WaitForInflight,
		placeholder:     fc.RowCountPlaceholder,
		cellConcurrency: fc.CellConcurrency,
	}
}

// Option configures a frame
type Option func(*options)

// WithName labels the frame in logs and metrics
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger replaces the component logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFetchConfig applies the fetch section of the configuration
func WithFetchConfig(fc config.FetchConfig) Option {
	return func(o *options) {
		o.waitForInflight = fc.WaitForInflight
		o.placeholder = fc.RowCountPlaceholder
		if fc.CellConcurrency > 0 {
			o.cellConcurrency = fc.CellConcurrency
		}
	}
}

// WithSchemaHint fixes the columns of a generated frame up front. A hint
// takes precedence over the columns of the first produced row.
func WithSchemaHint(cols []ColumnDescriptor) Option {
	return func(o *options) { o.schemaHint = cols }
}
