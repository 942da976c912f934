// Package runner fans (file × target) load jobs out over a bounded worker
// pool and aggregates their terminal status.
//
// Jobs are independent: no ordering is guaranteed between them and a failure
// never aborts siblings. Results flow through a channel owned by the runner
// and are merged after all workers finish, so there is no shared mutable
// accumulator.
package runner

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"zipload/internal/config"
	"zipload/internal/errkind"
	"zipload/internal/metrics"
	"zipload/internal/pipeline"
)

// Status is a job's lifecycle state. A job is terminal once Succeeded or
// Failed.
type Status int

const (
	// Pending jobs have not started; a canceled run leaves them Pending.
	Pending Status = iota
	Running
	Succeeded
	Failed
)

// String returns the status name for logs.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Job pairs one input file with one target.
type Job struct {
	File   string
	Target config.Target
}

// Result is one job's terminal record.
type Result struct {
	Job     Job
	Status  Status
	Rows    int64
	Skipped int64
	Elapsed time.Duration
	Err     error
}

// Summary aggregates a run.
type Summary struct {
	Results   []Result
	Succeeded int
	Failed    int
	Pending   int
	Rows      int64
	Skipped   int64
}

// OK reports whether every job succeeded. Partial success is a failed run:
// masking it behind a zero exit would hide data loss.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.Pending == 0 && s.Succeeded == len(s.Results)
}

// runJob is a seam for tests.
var runJob = pipeline.Run

// Run builds one job per (file, target) pair and executes them with at most
// rt.Concurrency workers. Each target additionally carries its own
// max_parallel bound, since same-target bulk-load concurrency depends on the
// store.
//
// Cancellation stops pending jobs from starting; in-flight jobs observe ctx
// through their connections and roll back. Already-committed jobs stay
// committed.
func Run(ctx context.Context, files []string, targets []config.Target, rt config.Runtime) Summary {
	jobs := make([]Job, 0, len(files)*len(targets))
	for _, f := range files {
		for _, t := range targets {
			jobs = append(jobs, Job{File: f, Target: t})
		}
	}

	opts := pipeline.Options{
		BatchSize:        rt.BatchSize,
		ChannelBuffer:    rt.ChannelBuffer,
		SkipRejectedRows: rt.OnRowError == config.OnRowErrorSkip,
		LogEvery:         rt.LogEvery,
	}

	sems := targetSemaphores(targets)
	results := make(chan Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rt.Concurrency)

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			sem := sems[job.Target.Label()]

			// A canceled run starts no further jobs; they stay Pending.
			if gctx.Err() != nil {
				results <- Result{Job: job, Status: Pending, Err: gctx.Err()}
				return nil
			}
			select {
			case <-gctx.Done():
				results <- Result{Job: job, Status: Pending, Err: gctx.Err()}
				return nil
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			log.Printf("runner: job start file=%s target=%s", job.File, job.Target.Label())
			start := time.Now()
			res, err := runJob(gctx, job.File, job.Target, opts)
			elapsed := time.Since(start)

			r := Result{
				Job:     job,
				Status:  Succeeded,
				Rows:    res.Rows,
				Skipped: res.Skipped,
				Elapsed: elapsed,
				Err:     err,
			}
			if err != nil {
				r.Status = Failed
				log.Printf("runner: job failed file=%s target=%s kind=%s rows=%d elapsed=%s err=%v",
					job.File, job.Target.Label(), errkind.Kind(err), res.Rows,
					elapsed.Truncate(time.Millisecond), err)
			} else {
				log.Printf("runner: job done file=%s target=%s rows=%d skipped=%d elapsed=%s digest=%016x",
					job.File, job.Target.Label(), res.Rows, res.Skipped,
					elapsed.Truncate(time.Millisecond), res.Digest)
			}

			metrics.RecordJob(job.File, job.Target.Label(), err, elapsed)
			metrics.RecordRows(job.Target.Label(), "inserted", res.Rows)
			metrics.RecordRows(job.Target.Label(), "skipped", res.Skipped)

			results <- r
			// Never propagate: a failed job must not cancel siblings.
			return nil
		})
	}

	_ = g.Wait()
	close(results)

	var s Summary
	for r := range results {
		s.Results = append(s.Results, r)
		s.Rows += r.Rows
		s.Skipped += r.Skipped
		switch r.Status {
		case Succeeded:
			s.Succeeded++
		case Failed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s
}

// targetSemaphores builds one counting semaphore per target label sized by
// its max_parallel knob (default 1: same-target parallelism is opt-in).
func targetSemaphores(targets []config.Target) map[string]chan struct{} {
	sems := make(map[string]chan struct{}, len(targets))
	for _, t := range targets {
		n := t.MaxParallel
		if n <= 0 {
			n = 1
		}
		sems[t.Label()] = make(chan struct{}, n)
	}
	return sems
}

// LogSummary emits the end-of-run report: aggregate counts plus one line per
// failure with its file, target, and error kind.
func LogSummary(s Summary) {
	log.Printf("runner: summary jobs=%d succeeded=%d failed=%d pending=%d rows=%d skipped=%d",
		len(s.Results), s.Succeeded, s.Failed, s.Pending, s.Rows, s.Skipped)
	for _, r := range s.Results {
		if r.Status == Succeeded {
			continue
		}
		log.Printf("runner: %s file=%s target=%s kind=%s err=%v",
			r.Status, r.Job.File, r.Job.Target.Label(), errkind.Kind(r.Err), r.Err)
	}
}
