// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from shuffle runs.
//
// The package is intentionally minimal:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data.
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - It mirrors the storage abstraction pattern (storage.Repository /
//     storage.Register): the rest of the codebase depends only on this
//     interface while concrete metric systems live in subpackages.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordTable records the outcome of one table: a per-status counter and the
// wall time the table took through validation and shuffling.
//
// Typical statuses mirror the runner's outcome values:
//   - "shuffled"
//   - "skipped"
//   - "failed"
func RecordTable(table, status string, d time.Duration) {
	lbls := Labels{
		"table":  table,
		"status": status,
	}
	backend.IncCounter("shuffle_table_total", 1, lbls)
	backend.ObserveHistogram("shuffle_table_duration_seconds", d.Seconds(), lbls)
}

// RecordRows adds the number of rows the shuffle update touched for a table.
func RecordRows(table string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("shuffle_rows_total", float64(delta), Labels{
		"table": table,
	})
}
