// This file implements a generic, batched loader that drains records from a
// channel and invokes a repository's bulk insert per batch.
//
// Backends implement CopyFrom using their most efficient primitives
// (Postgres COPY, MSSQL bulk copy, multi-row INSERT); the loader stays
// backend-agnostic.
//
// Logging: on every successful flush, a concise progress line is emitted
// with running totals and instantaneous rows/sec since the previous flush.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Record is one payload line flowing from the extractor to the loader.
// Line is 1-based within the current member and used only for diagnostics.
type Record struct {
	Line int
	Text string
}

// CopyFn abstracts a backend's bulk insert capability. It mirrors
// Repository.CopyFrom and exists so tests can drive the loader without a
// Repository.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadOptions tunes one LoadBatches run.
type LoadOptions struct {
	// Column is the destination column receiving each record's text.
	Column string

	// BatchSize is the number of records per flush. Must be > 0.
	BatchSize int

	// SkipRejectedRows selects the row-error policy: false aborts the job on
	// the first batch the store rejects (default; silent partial loads are a
	// correctness hazard), true retries the failed batch row by row and
	// records each rejection via OnReject.
	SkipRejectedRows bool

	// OnReject is invoked once per skipped row (skip policy only). May be
	// nil.
	OnReject func(line int, err error)

	// LogEvery suppresses per-flush progress lines unless the running total
	// crossed a multiple of LogEvery since the previous log. Zero logs every
	// flush, matching the batch loader this replaces.
	LogEvery int
}

// LoadResult reports what a LoadBatches run moved.
type LoadResult struct {
	Inserted int64
	Skipped  int64
}

// LoadBatches drains records from in, groups them into batches, and calls
// copyFn for each non-empty batch. It returns the totals and the first fatal
// error encountered.
//
// Connection errors are always fatal regardless of policy: retrying rows
// against a dead connection only repeats the failure. Cancellation returns
// (result, ctx.Err()); rows accepted by already-flushed batches stay
// committed.
func LoadBatches(ctx context.Context, opts LoadOptions, in <-chan Record, copyFn CopyFn) (LoadResult, error) {
	if opts.BatchSize <= 0 {
		return LoadResult{}, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return LoadResult{}, fmt.Errorf("copyFn must not be nil")
	}

	var (
		res         LoadResult
		batches     int64
		batch       = make([]Record, 0, opts.BatchSize)
		rows        = make([][]any, 0, opts.BatchSize)
		start       = time.Now()
		lastFlushTS = start
		lastTotal   int64
		lastLogged  int64
	)
	columns := []string{opts.Column}

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		rows = rows[:0]
		for _, r := range batch {
			rows = append(rows, []any{r.Text})
		}

		n, err := copyFn(ctx, columns, rows)
		res.Inserted += n
		if err != nil {
			if !opts.SkipRejectedRows || errors.Is(err, ErrConnection) {
				log.Printf("loader: bulk copy failed rows=%d total=%d err=%v", len(batch), res.Inserted, err)
				batch = batch[:0]
				return err
			}
			// Skip policy: the store rejected the batch somewhere. Retry row
			// by row so good rows land and bad rows are accounted for.
			// res.Inserted already includes n; the batched attempt either
			// inserted nothing or failed atomically, so recount from zero.
			res.Inserted -= n
			if ferr := flushRowByRow(ctx, columns, batch, copyFn, &res, opts.OnReject); ferr != nil {
				batch = batch[:0]
				return ferr
			}
		}

		// Reuse allocated slice; keep capacity to avoid churn.
		batch = batch[:0]

		batches++
		if opts.LogEvery > 0 && res.Inserted-lastLogged < int64(opts.LogEvery) {
			return nil
		}
		lastLogged = res.Inserted

		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		insertedSinceLast := res.Inserted - lastTotal
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(insertedSinceLast) / sinceLast.Seconds()
		}
		log.Printf(
			"batch #%d: rps=%.0f total_inserted=%d skipped=%d elapsed=%s",
			batches, rps, res.Inserted, res.Skipped,
			now.Sub(start).Truncate(time.Millisecond),
		)
		lastFlushTS = now
		lastTotal = res.Inserted

		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return res, ctx.Err()

		case r, ok := <-in:
			if !ok {
				// Channel closed: flush remaining rows.
				if err := flush(); err != nil {
					return res, err
				}
				return res, nil
			}
			batch = append(batch, r)
			if len(batch) >= opts.BatchSize {
				if err := flush(); err != nil {
					return res, err
				}
			}
		}
	}
}

// flushRowByRow re-submits a rejected batch one row at a time. Rows the
// store accepts count as inserted; rows it rejects are skipped and reported.
// A connection error aborts immediately.
func flushRowByRow(
	ctx context.Context,
	columns []string,
	batch []Record,
	copyFn CopyFn,
	res *LoadResult,
	onReject func(line int, err error),
) error {
	for _, r := range batch {
		n, err := copyFn(ctx, columns, [][]any{{r.Text}})
		res.Inserted += n
		if err == nil {
			continue
		}
		if errors.Is(err, ErrConnection) {
			return err
		}
		res.Skipped++
		if onReject != nil {
			onReject(r.Line, fmt.Errorf("%w: %v", ErrRowRejected, err))
		}
	}
	return nil
}
