// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// This package adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the ingestion labels (target, status, kind) onto Prometheus
//     labels.
//   - Pushing collected metrics to a Prometheus Pushgateway instance instead
//     of exposing an HTTP scrape endpoint; a batch loader has nothing to
//     scrape once it exits.
//
// The package intentionally contains all Prometheus-specific dependencies so
// the rest of the project stays decoupled from Prometheus and can swap to
// alternative backends without changes to the core pipeline.
package prompush

import (
	"fmt"

	"zipload/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	// Job-level metrics
	jobCounter  *prometheus.CounterVec // "zipload_jobs_total"
	jobDuration *prometheus.SummaryVec // "zipload_job_duration_seconds"

	// Row- and batch-level metrics
	rowCounter   *prometheus.CounterVec // "zipload_rows_total"
	batchCounter *prometheus.CounterVec // "zipload_batches_total"
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" grouping key for the whole run.
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "zipload"
	}

	reg := prometheus.NewRegistry()

	jobCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zipload_jobs_total",
			Help: "Total number of (file, target) load jobs, partitioned by target and status.",
		},
		[]string{"target", "status"},
	)
	jobDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "zipload_job_duration_seconds",
			Help:       "Duration of load jobs in seconds, partitioned by target and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"target", "status"},
	)

	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zipload_rows_total",
			Help: "Row-level counts per target and kind (inserted, skipped).",
		},
		[]string{"target", "kind"},
	)

	batchCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zipload_batches_total",
			Help: "Total number of bulk-copy batches flushed, partitioned by target.",
		},
		[]string{"target"},
	)

	if err := reg.Register(jobCounter); err != nil {
		return nil, fmt.Errorf("prompush: register job counter: %w", err)
	}
	if err := reg.Register(jobDuration); err != nil {
		return nil, fmt.Errorf("prompush: register job summary: %w", err)
	}
	if err := reg.Register(rowCounter); err != nil {
		return nil, fmt.Errorf("prompush: register row counter: %w", err)
	}
	if err := reg.Register(batchCounter); err != nil {
		return nil, fmt.Errorf("prompush: register batch counter: %w", err)
	}

	return &Backend{
		gatewayURL:   gatewayURL,
		jobName:      jobName,
		reg:          reg,
		jobCounter:   jobCounter,
		jobDuration:  jobDuration,
		rowCounter:   rowCounter,
		batchCounter: batchCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "zipload_jobs_total":
		if b.jobCounter == nil {
			return
		}
		b.jobCounter.WithLabelValues(labels["target"], labels["status"]).Add(delta)

	case "zipload_rows_total":
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues(labels["target"], labels["kind"]).Add(delta)

	case "zipload_batches_total":
		if b.batchCounter == nil {
			return
		}
		b.batchCounter.WithLabelValues(labels["target"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "zipload_job_duration_seconds" || b.jobDuration == nil {
		return
	}
	b.jobDuration.WithLabelValues(labels["target"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
