package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
)

func feed(records ...Record) <-chan Record {
	ch := make(chan Record, len(records))
	for _, r := range records {
		ch <- r
	}
	close(ch)
	return ch
}

func lines(n int) []Record {
	out := make([]Record, n)
	for i := range out {
		out[i] = Record{Line: i + 1, Text: fmt.Sprintf(`{"n":%d}`, i+1)}
	}
	return out
}

// TestLoadBatches_Basic verifies rows are grouped into batches and copyFn is
// called with the expected counts, and that the total equals the sum of all
// successful copyFn returns.
func TestLoadBatches_Basic(t *testing.T) {
	var calls int
	var rowsSeen int
	copyFn := func(_ context.Context, columns []string, rows [][]any) (int64, error) {
		calls++
		rowsSeen += len(rows)
		if len(columns) != 1 || columns[0] != "payload" {
			t.Fatalf("columns = %v", columns)
		}
		return int64(len(rows)), nil
	}

	res, err := LoadBatches(context.Background(),
		LoadOptions{Column: "payload", BatchSize: 4},
		feed(lines(10)...), copyFn)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Inserted != 10 || res.Skipped != 0 {
		t.Fatalf("result = %+v", res)
	}
	if calls != 3 { // 4 + 4 + 2
		t.Fatalf("calls = %d want 3", calls)
	}
	if rowsSeen != 10 {
		t.Fatalf("rowsSeen = %d", rowsSeen)
	}
}

func TestLoadBatches_EmptyInput(t *testing.T) {
	copyFn := func(_ context.Context, _ []string, _ [][]any) (int64, error) {
		t.Fatal("copyFn must not be called for empty input")
		return 0, nil
	}
	res, err := LoadBatches(context.Background(),
		LoadOptions{Column: "payload", BatchSize: 4},
		feed(), copyFn)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Inserted != 0 {
		t.Fatalf("inserted = %d want 0", res.Inserted)
	}
}

// TestLoadBatches_AbortPolicy checks that the default policy fails the job
// at the rejecting batch while keeping the count of rows accepted before it.
func TestLoadBatches_AbortPolicy(t *testing.T) {
	var calls int
	copyFn := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		calls++
		if calls == 2 {
			return 0, fmt.Errorf("%w: malformed record", ErrProtocol)
		}
		return int64(len(rows)), nil
	}

	res, err := LoadBatches(context.Background(),
		LoadOptions{Column: "payload", BatchSize: 4},
		feed(lines(10)...), copyFn)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("want ErrProtocol, got %v", err)
	}
	if res.Inserted != 4 {
		t.Fatalf("inserted = %d want 4 (first batch only)", res.Inserted)
	}
}

// TestLoadBatches_SkipPolicy checks the row-by-row retry: good rows land,
// bad rows are counted and reported, and the job succeeds.
func TestLoadBatches_SkipPolicy(t *testing.T) {
	bad := `{"n":3}`
	copyFn := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		for _, row := range rows {
			if row[0] == bad {
				return 0, fmt.Errorf("%w: value rejected", ErrProtocol)
			}
		}
		return int64(len(rows)), nil
	}

	var rejected []int
	res, err := LoadBatches(context.Background(),
		LoadOptions{
			Column:           "payload",
			BatchSize:        4,
			SkipRejectedRows: true,
			OnReject: func(line int, err error) {
				if !errors.Is(err, ErrRowRejected) {
					t.Errorf("reject err = %v", err)
				}
				rejected = append(rejected, line)
			},
		},
		feed(lines(10)...), copyFn)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Inserted != 9 || res.Skipped != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(rejected) != 1 || rejected[0] != 3 {
		t.Fatalf("rejected lines = %v", rejected)
	}
}

// TestLoadBatches_SkipPolicyConnectionFatal ensures skip never retries past
// a lost connection.
func TestLoadBatches_SkipPolicyConnectionFatal(t *testing.T) {
	copyFn := func(_ context.Context, _ []string, _ [][]any) (int64, error) {
		return 0, fmt.Errorf("%w: refused", ErrConnection)
	}
	_, err := LoadBatches(context.Background(),
		LoadOptions{Column: "payload", BatchSize: 4, SkipRejectedRows: true},
		feed(lines(4)...), copyFn)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("want ErrConnection, got %v", err)
	}
}

func TestLoadBatches_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := make(chan Record) // never closed; cancellation must win
	var called atomic.Bool
	copyFn := func(_ context.Context, _ []string, _ [][]any) (int64, error) {
		called.Store(true)
		return 0, nil
	}

	_, err := LoadBatches(ctx, LoadOptions{Column: "payload", BatchSize: 4}, in, copyFn)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if called.Load() {
		t.Fatal("copyFn called after cancellation")
	}
}

func TestLoadBatches_BadOptions(t *testing.T) {
	if _, err := LoadBatches(context.Background(), LoadOptions{Column: "c"}, feed(), func(context.Context, []string, [][]any) (int64, error) { return 0, nil }); err == nil {
		t.Fatal("want error for batchSize<=0")
	}
	if _, err := LoadBatches(context.Background(), LoadOptions{Column: "c", BatchSize: 1}, feed(), nil); err == nil {
		t.Fatal("want error for nil copyFn")
	}
}
