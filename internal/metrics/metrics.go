// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the ingestion run.
//
// The package is intentionally minimal and opinionated:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data.
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - It mirrors the storage abstraction pattern used elsewhere in the project
//     (e.g. storage.Repository), letting the rest of the codebase depend only
//     on this interface while concrete metric systems stay in subpackages.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
// It is intentionally generic so we can plug in Prometheus, Datadog, etc.
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

// RecordJob is a convenience for the common pattern:
// measure latency + success/failure per (file, target) job.
func RecordJob(file, target string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"file":   file,
		"target": target,
		"status": status,
	}

	backend.IncCounter("zipload_jobs_total", 1, lbls)
	backend.ObserveHistogram("zipload_job_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for the given target and kind.
//
// Typical kinds mirror the job summary fields, e.g.:
//   - "inserted"
//   - "skipped"
func RecordRows(target, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("zipload_rows_total", float64(delta), Labels{
		"target": target,
		"kind":   kind,
	})
}

// RecordBatches increments a batch-level counter for the given target.
func RecordBatches(target string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("zipload_batches_total", float64(delta), Labels{
		"target": target,
	})
}
