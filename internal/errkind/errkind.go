// Package errkind maps wrapped sentinel errors onto the short kind names
// used in summaries and logs.
package errkind

import (
	"context"
	"errors"

	"zipload/internal/extract"
	"zipload/internal/storage"
)

// Kind names the taxonomy bucket err belongs to. Unrecognized errors report
// as "Error" rather than guessing.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, extract.ErrNotFound):
		return "NotFound"
	case errors.Is(err, extract.ErrArchiveCorrupt):
		return "ArchiveCorrupt"
	case errors.Is(err, storage.ErrConnection):
		return "ConnectionError"
	case errors.Is(err, storage.ErrRowRejected):
		return "RowRejected"
	case errors.Is(err, storage.ErrProtocol):
		return "ProtocolError"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Canceled"
	}
	return "Error"
}
