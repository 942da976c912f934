// Package pipeline wires one (file, target) load job end to end: archive
// extraction, byte sanitization, line splitting, and batched bulk copy.
//
// The stages run as a small channel pipeline inside the job. Extraction
// produces lines only as fast as the loader drains them, so peak memory is
// bounded by the batch size and channel buffer, independent of file size.
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/zeebo/xxh3"

	"zipload/internal/config"
	"zipload/internal/extract"
	"zipload/internal/sanitize"
	"zipload/internal/storage"
)

// maxLineBytes caps a single record's length. NDJSON documents in the wild
// run to megabytes; 16 MiB leaves headroom without letting one pathological
// line exhaust memory.
const maxLineBytes = 16 << 20

// Options tunes one job run. Zero values are not resolved here; callers pass
// an already-resolved runtime config.
type Options struct {
	// BatchSize is the number of records per bulk-copy flush.
	BatchSize int

	// ChannelBuffer sizes the record channel between the line splitter and
	// the loader.
	ChannelBuffer int

	// SkipRejectedRows selects the skip row-error policy instead of abort.
	SkipRejectedRows bool

	// LogEvery emits a loader progress line every N inserted records
	// (0 logs every flush).
	LogEvery int
}

// Result reports what one job moved.
type Result struct {
	// Rows is the number of records the store accepted.
	Rows int64

	// Skipped is the number of records rejected and skipped (skip policy
	// only; always 0 under abort).
	Skipped int64

	// Members is the number of archive members processed.
	Members int

	// Digest is the xxh3 hash of the sanitized payload across all members,
	// recorded for diagnostics: two runs over the same input produce the
	// same digest regardless of batching.
	Digest uint64
}

// newRepository is a seam for tests.
var newRepository = storage.New

// Run loads the file at path into the target. It opens its own store
// connection, processes every archive member in order, and returns the row
// totals. The error, if any, carries the storage or extraction sentinel that
// caused the failure.
func Run(ctx context.Context, path string, tgt config.Target, opts Options) (Result, error) {
	var res Result

	cfg := storage.Config{
		Kind:      tgt.Kind,
		DSN:       tgt.DSN,
		Table:     tgt.Table,
		Columns:   []string{tgt.Column},
		Delimiter: tgt.DelimiterByte(),
		Quote:     tgt.QuoteByte(),
	}

	repo, err := newRepository(ctx, cfg)
	if err != nil {
		return res, err
	}
	defer repo.Close()

	if tgt.AutoCreateTable {
		if err := storage.EnsureTable(ctx, cfg, repo); err != nil {
			return res, fmt.Errorf("ensure table %s: %w", tgt.Table, err)
		}
	}

	arc, err := extract.Open(ctx, path)
	if err != nil {
		return res, err
	}
	defer arc.Close()

	digest := xxh3.New()

	for {
		m, err := arc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, err
		}

		reader := sanitizedReader(m, tgt)
		reader = io.TeeReader(reader, digest)

		var (
			inserted int64
			skipped  int64
		)
		if tgt.CopyMode == "raw" {
			inserted, err = copyRaw(ctx, repo, reader)
		} else {
			inserted, skipped, err = copyRows(ctx, repo, reader, path, m.Name, tgt, opts)
		}
		res.Rows += inserted
		res.Skipped += skipped
		cerr := m.Close()
		if err != nil {
			return res, fmt.Errorf("member %s: %w", m.Name, err)
		}
		if cerr != nil {
			return res, fmt.Errorf("member %s: close: %w", m.Name, cerr)
		}

		res.Members++
		log.Printf("pipeline: member done file=%s member=%s rows=%d skipped=%d",
			path, m.Name, inserted, skipped)
	}

	res.Digest = digest.Sum64()
	return res, nil
}

// sanitizedReader applies the target's ingest filter to a member stream.
func sanitizedReader(r io.Reader, tgt config.Target) io.Reader {
	if tgt.Sanitize == "strict" {
		return sanitize.StrictReader(r, tgt.DelimiterByte(), tgt.QuoteByte())
	}
	return sanitize.Reader(r)
}

// copyRaw streams sanitized bytes straight into the store's copy protocol.
// Only backends implementing storage.StreamCopier support it; config
// validation restricts raw mode to those kinds before a job ever starts.
func copyRaw(ctx context.Context, repo storage.Repository, r io.Reader) (int64, error) {
	sc, ok := repo.(storage.StreamCopier)
	if !ok {
		return 0, fmt.Errorf("%w: backend does not support raw copy mode", storage.ErrProtocol)
	}
	return sc.CopyFromReader(ctx, r)
}

// copyRows splits the sanitized stream into lines and drives the batched
// loader. Blank lines are dropped: a trailing newline is not a record.
func copyRows(
	ctx context.Context,
	repo storage.Repository,
	r io.Reader,
	path, member string,
	tgt config.Target,
	opts Options,
) (int64, int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	records := make(chan storage.Record, opts.ChannelBuffer)
	var scanErr error

	go func() {
		defer close(records)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxLineBytes)
		line := 0
		for sc.Scan() {
			line++
			text := sc.Text()
			if len(text) == 0 {
				continue
			}
			select {
			case records <- storage.Record{Line: line, Text: text}:
			case <-ctx.Done():
				return
			}
		}
		scanErr = sc.Err()
	}()

	loadRes, err := storage.LoadBatches(ctx, storage.LoadOptions{
		Column:           tgt.Column,
		BatchSize:        opts.BatchSize,
		SkipRejectedRows: opts.SkipRejectedRows,
		LogEvery:         opts.LogEvery,
		OnReject: func(line int, rerr error) {
			log.Printf("pipeline: row rejected file=%s member=%s line=%d err=%v",
				path, member, line, rerr)
		},
	}, records, repo.CopyFrom)
	if err != nil {
		return loadRes.Inserted, loadRes.Skipped, err
	}
	// LoadBatches returned cleanly, so the channel is closed and the
	// producer has finished: scanErr is safe to read.
	if scanErr != nil {
		return loadRes.Inserted, loadRes.Skipped, scanErr
	}
	return loadRes.Inserted, loadRes.Skipped, nil
}
