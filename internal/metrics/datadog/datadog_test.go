package datadog

import (
	"sort"
	"testing"

	"zipload/internal/metrics"

	"github.com/DataDog/datadog-go/v5/statsd"
)

func TestNewBackendRequiresAddr(t *testing.T) {
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatal("NewBackend with empty Addr: expected error, got nil")
	}
}

func TestNilClientIsSafe(t *testing.T) {
	b := &Backend{}
	b.IncCounter("zipload_jobs_total", 1, metrics.Labels{"target": "t"})
	b.ObserveHistogram("zipload_job_duration_seconds", 0.5, metrics.Labels{"target": "t"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush on nil client: %v", err)
	}
}

func TestNoOpClientAcceptsCalls(t *testing.T) {
	b := &Backend{client: &statsd.NoOpClient{}}
	b.IncCounter("zipload_rows_total", 5, metrics.Labels{"target": "pg-main", "kind": "inserted"})
	b.ObserveHistogram("zipload_job_duration_seconds", 1.25, metrics.Labels{"target": "pg-main", "status": "success"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestLabelsToTags(t *testing.T) {
	got := labelsToTags(metrics.Labels{"target": "pg-main", "status": "success"})
	sort.Strings(got)
	want := []string{"status:success", "target:pg-main"}
	if len(got) != len(want) {
		t.Fatalf("labelsToTags returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("labelsToTags returned %v, want %v", got, want)
		}
	}

	if tags := labelsToTags(nil); tags != nil {
		t.Fatalf("labelsToTags(nil) = %v, want nil", tags)
	}
}
