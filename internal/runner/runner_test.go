package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"zipload/internal/config"
	"zipload/internal/pipeline"
	"zipload/internal/storage"
)

// installRunJob swaps the pipeline entry point for a fake during one test.
func installRunJob(t *testing.T, fn func(ctx context.Context, path string, tgt config.Target, opts pipeline.Options) (pipeline.Result, error)) {
	t.Helper()
	orig := runJob
	runJob = fn
	t.Cleanup(func() { runJob = orig })
}

func makeTargets(n int) []config.Target {
	targets := make([]config.Target, n)
	for i := range targets {
		targets[i] = config.Target{
			Name:   fmt.Sprintf("t%d", i),
			Kind:   "postgres",
			DSN:    "postgres://unused",
			Table:  "tweets_raw",
			Column: "payload",
		}
	}
	return targets
}

func resolved(rt config.Runtime, numTargets int) config.Runtime {
	return rt.Resolve(numTargets)
}

func TestRunAllSucceedInParallel(t *testing.T) {
	const n = 4
	const delay = 50 * time.Millisecond

	installRunJob(t, func(ctx context.Context, path string, tgt config.Target, opts pipeline.Options) (pipeline.Result, error) {
		time.Sleep(delay)
		return pipeline.Result{Rows: 7}, nil
	})

	start := time.Now()
	s := Run(context.Background(), []string{"in.zip"}, makeTargets(n), resolved(config.Runtime{}, n))
	wall := time.Since(start)

	if !s.OK() {
		t.Fatalf("summary not OK: %+v", s)
	}
	if s.Succeeded != n {
		t.Fatalf("succeeded = %d, want %d", s.Succeeded, n)
	}
	if s.Rows != 7*n {
		t.Fatalf("rows = %d, want %d", s.Rows, 7*n)
	}
	// All targets are independent, so the default concurrency (= number of
	// targets) must run them simultaneously: wall time well under the sum.
	if wall >= n*delay {
		t.Fatalf("wall time %v not parallel (sum would be %v)", wall, n*delay)
	}
}

func TestRunFailureDoesNotAbortSiblings(t *testing.T) {
	targets := makeTargets(3)

	installRunJob(t, func(ctx context.Context, path string, tgt config.Target, opts pipeline.Options) (pipeline.Result, error) {
		if tgt.Name == "t1" {
			// Store rejected row 5; rows before it were accepted.
			return pipeline.Result{Rows: 4}, fmt.Errorf("member x: %w", storage.ErrProtocol)
		}
		return pipeline.Result{Rows: 10}, nil
	})

	s := Run(context.Background(), []string{"in.zip"}, targets, resolved(config.Runtime{}, 3))

	if s.OK() {
		t.Fatal("summary reports OK despite a failed job")
	}
	if s.Succeeded != 2 || s.Failed != 1 {
		t.Fatalf("succeeded=%d failed=%d, want 2/1", s.Succeeded, s.Failed)
	}
	for _, r := range s.Results {
		switch r.Job.Target.Name {
		case "t1":
			if r.Status != Failed {
				t.Fatalf("t1 status = %s, want failed", r.Status)
			}
			if r.Rows != 4 {
				t.Fatalf("t1 rows = %d, want 4 (rows before the rejection)", r.Rows)
			}
		default:
			if r.Status != Succeeded {
				t.Fatalf("%s status = %s, want succeeded", r.Job.Target.Name, r.Status)
			}
		}
	}
}

func TestRunCancelLeavesPendingJobs(t *testing.T) {
	const n = 4
	ctx, cancel := context.WithCancel(context.Background())

	var started atomic.Int32
	release := make(chan struct{})

	installRunJob(t, func(ctx context.Context, path string, tgt config.Target, opts pipeline.Options) (pipeline.Result, error) {
		started.Add(1)
		<-release
		return pipeline.Result{Rows: 1}, ctx.Err()
	})

	// One worker: the remaining jobs queue behind it.
	rt := resolved(config.Runtime{Concurrency: 1}, n)

	done := make(chan Summary, 1)
	go func() { done <- Run(ctx, []string{"in.zip"}, makeTargets(n), rt) }()

	// Wait for the first job to start, then cancel and release it.
	for started.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	close(release)

	s := <-done
	if s.OK() {
		t.Fatal("canceled run reports OK")
	}
	if got := int(started.Load()); got != 1 {
		t.Fatalf("%d jobs started after cancel, want 1", got)
	}
	if s.Pending != n-1 {
		t.Fatalf("pending = %d, want %d", s.Pending, n-1)
	}
}

func TestRunSameTargetSerializedByDefault(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)

	installRunJob(t, func(ctx context.Context, path string, tgt config.Target, opts pipeline.Options) (pipeline.Result, error) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return pipeline.Result{Rows: 1}, nil
	})

	// Four files into one target with plenty of workers: max_parallel
	// defaults to 1, so loads against the target never overlap.
	files := []string{"a.zip", "b.zip", "c.zip", "d.zip"}
	rt := resolved(config.Runtime{Concurrency: 4}, 1)

	s := Run(context.Background(), files, makeTargets(1), rt)
	if !s.OK() {
		t.Fatalf("summary not OK: %+v", s)
	}
	if maxSeen != 1 {
		t.Fatalf("observed %d concurrent loads on one target, want 1", maxSeen)
	}
}

func TestRunMaxParallelAllowsOverlap(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)

	installRunJob(t, func(ctx context.Context, path string, tgt config.Target, opts pipeline.Options) (pipeline.Result, error) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return pipeline.Result{Rows: 1}, nil
	})

	targets := makeTargets(1)
	targets[0].MaxParallel = 3

	files := []string{"a.zip", "b.zip", "c.zip"}
	rt := resolved(config.Runtime{Concurrency: 3}, 1)

	s := Run(context.Background(), files, targets, rt)
	if !s.OK() {
		t.Fatalf("summary not OK: %+v", s)
	}
	if maxSeen < 2 {
		t.Fatalf("max concurrent loads = %d, want >= 2 with max_parallel=3", maxSeen)
	}
}

func TestRunCrossProduct(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}

	installRunJob(t, func(ctx context.Context, path string, tgt config.Target, opts pipeline.Options) (pipeline.Result, error) {
		mu.Lock()
		seen[path+"|"+tgt.Name] = true
		mu.Unlock()
		return pipeline.Result{Rows: 1}, nil
	})

	files := []string{"a.zip", "b.zip"}
	targets := makeTargets(3)

	s := Run(context.Background(), files, targets, resolved(config.Runtime{}, 3))
	if len(s.Results) != 6 {
		t.Fatalf("results = %d, want 6", len(s.Results))
	}
	for _, f := range files {
		for _, tgt := range targets {
			if !seen[f+"|"+tgt.Name] {
				t.Fatalf("job (%s, %s) never ran", f, tgt.Name)
			}
		}
	}
}

func TestStatusString(t *testing.T) {
	for s, want := range map[Status]string{
		Pending:   "pending",
		Running:   "running",
		Succeeded: "succeeded",
		Failed:    "failed",
		Status(9): "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
