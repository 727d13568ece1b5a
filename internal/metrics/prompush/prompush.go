// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// The shuffler is a short-lived batch tool, so a scrape endpoint makes no
// sense; collected metrics are pushed to a Pushgateway once, when the run
// flushes. All Prometheus-specific dependencies live here so the rest of the
// project depends only on metrics.Backend.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"shuffle/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	tableCounter  *prometheus.CounterVec // "shuffle_table_total"
	tableDuration *prometheus.SummaryVec // "shuffle_table_duration_seconds"
	rowCounter    *prometheus.CounterVec // "shuffle_rows_total"
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName is the Pushgateway "job" name; gatewayURL the Pushgateway base URL.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "shuffle"
	}

	reg := prometheus.NewRegistry()

	tableCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shuffle_table_total",
			Help: "Total number of tables processed, partitioned by table and outcome status.",
		},
		[]string{"table", "status"},
	)
	tableDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "shuffle_table_duration_seconds",
			Help:       "Wall time per table through validation and shuffling, partitioned by table and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"table", "status"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shuffle_rows_total",
			Help: "Rows touched by shuffle updates, partitioned by table.",
		},
		[]string{"table"},
	)

	if err := reg.Register(tableCounter); err != nil {
		return nil, fmt.Errorf("prompush: register table counter: %w", err)
	}
	if err := reg.Register(tableDuration); err != nil {
		return nil, fmt.Errorf("prompush: register table summary: %w", err)
	}
	if err := reg.Register(rowCounter); err != nil {
		return nil, fmt.Errorf("prompush: register row counter: %w", err)
	}

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		tableCounter:  tableCounter,
		tableDuration: tableDuration,
		rowCounter:    rowCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "shuffle_table_total":
		b.tableCounter.WithLabelValues(labels["table"], labels["status"]).Add(delta)
	case "shuffle_rows_total":
		b.rowCounter.WithLabelValues(labels["table"]).Add(delta)
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "shuffle_table_duration_seconds" {
		return
	}
	b.tableDuration.WithLabelValues(labels["table"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
