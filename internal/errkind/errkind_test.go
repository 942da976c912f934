package errkind

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"zipload/internal/extract"
	"zipload/internal/storage"
)

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("open: %w", extract.ErrNotFound), "NotFound"},
		{fmt.Errorf("member x: %w", extract.ErrArchiveCorrupt), "ArchiveCorrupt"},
		{fmt.Errorf("dial: %w", storage.ErrConnection), "ConnectionError"},
		{fmt.Errorf("copy: %w", storage.ErrProtocol), "ProtocolError"},
		{fmt.Errorf("line 3: %w", storage.ErrRowRejected), "RowRejected"},
		{context.Canceled, "Canceled"},
		{context.DeadlineExceeded, "Canceled"},
		{errors.New("something else"), "Error"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestKindRowRejectedBeforeProtocol(t *testing.T) {
	// A skipped row wraps ErrRowRejected around the store's protocol error;
	// the more specific kind wins.
	err := fmt.Errorf("%w: %v", storage.ErrRowRejected, storage.ErrProtocol)
	if got := Kind(err); got != "RowRejected" {
		t.Fatalf("Kind = %q, want RowRejected", got)
	}
}
