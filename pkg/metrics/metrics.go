// Package metrics provides Prometheus collectors for gridframe. Every frame,
// byte source and storage reader records into the package-level vectors
// below, labelled with its own name.
//
// # Basic Usage
//
//	c := metrics.NewCollector("orders")
//	c.FetchCall(metrics.StatusSuccess)
//	c.SubRangeRead(rows, time.Since(start), err)
//	c.CellsSettled(metrics.StateResolved, n)
//
// The vectors register with the default registry through promauto; serve
// them with promhttp.Handler().
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gridframe"

// Status label values
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Cell state label values
const (
	StateResolved    = "resolved"
	StateUnavailable = "unavailable"
	StateFailed      = "failed"
)

var (
	// FetchCalls counts Fetch calls per frame and outcome
	FetchCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frame",
			Name:      "fetch_calls_total",
			Help:      "Fetch calls by frame and outcome",
		},
		[]string{"frame", "status"},
	)

	// SubRangeReads counts storage reads issued for coalesced row runs
	SubRangeReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frame",
			Name:      "subrange_reads_total",
			Help:      "Storage reads issued per coalesced row run",
		},
		[]string{"frame", "status"},
	)

	// SubRangeRows observes the number of rows per storage read
	SubRangeRows = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "frame",
			Name:      "subrange_rows",
			Help:      "Rows requested per storage read",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"frame"},
	)

	// ReadLatency observes storage read latency
	ReadLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "frame",
			Name:      "read_duration_seconds",
			Help:      "Storage read latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"frame"},
	)

	// CellsSettled counts cells leaving the pending state
	CellsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "cells_settled_total",
			Help:      "Cells settled by final state",
		},
		[]string{"frame", "state"},
	)

	// BytesFetched counts bytes returned by byte sources
	BytesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "bytes_fetched_total",
			Help:      "Bytes read from byte sources",
		},
		[]string{"source"},
	)

	// ByteFetches counts ReadAt calls on byte sources
	ByteFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetches_total",
			Help:      "Range reads issued against byte sources",
		},
		[]string{"source"},
	)

	// PushdownTranslations counts filter translation outcomes
	PushdownTranslations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "pushdown_translations_total",
			Help:      "Predicate translations by outcome",
		},
		[]string{"outcome"},
	)

	// RowGroupsPruned counts row groups skipped using statistics
	RowGroupsPruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "row_groups_pruned_total",
			Help:      "Row groups skipped by statistics pruning",
		},
		[]string{"source"},
	)
)

// Collector records frame metrics under a fixed frame label.
type Collector struct {
	name string
}

// NewCollector creates a collector for the named frame
func NewCollector(name string) *Collector {
	return &Collector{name: name}
}

// Name returns the frame label
func (c *Collector) Name() string {
	return c.name
}

// FetchCall records one Fetch outcome
func (c *Collector) FetchCall(status string) {
	FetchCalls.WithLabelValues(c.name, status).Inc()
}

// SubRangeRead records one storage read
func (c *Collector) SubRangeRead(rows int, d time.Duration, status string) {
	SubRangeReads.WithLabelValues(c.name, status).Inc()
	SubRangeRows.WithLabelValues(c.name).Observe(float64(rows))
	ReadLatency.WithLabelValues(c.name).Observe(d.Seconds())
}

// CellsSettled records n cells settling into state
func (c *Collector) CellsSettled(state string, n int) {
	if n <= 0 {
		return
	}
	CellsSettled.WithLabelValues(c.name, state).Add(float64(n))
}
