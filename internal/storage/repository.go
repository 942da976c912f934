// Package storage contains storage-agnostic contracts and utilities for the
// loader: the Repository interface, a kind-keyed factory registry, the error
// taxonomy shared by all backends, and a generic batched loader.
//
// Concrete backends (postgres, mssql, mysql, sqlite) live in subpackages and
// register themselves with the factory at init time; importing
// zipload/internal/storage/all (typically as a blank import in the wiring
// layer) enables every built-in backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Sentinel errors for the loading taxonomy. Backends wrap their driver
// errors with one of these so callers can classify with errors.Is without
// importing driver packages.
var (
	// ErrConnection indicates the target endpoint could not be reached or
	// the connection was lost mid-load.
	ErrConnection = errors.New("connection error")

	// ErrProtocol indicates the store rejected part of the payload (a
	// malformed record, an encoding the column cannot hold, etc.).
	ErrProtocol = errors.New("protocol error")

	// ErrRowRejected marks a single rejected row under the skip policy. It
	// is recorded, never returned, from a successful job.
	ErrRowRejected = errors.New("row rejected")
)

// Config describes one open repository. It is the storage-level projection
// of a config.Target: the factory neither reads files nor validates.
type Config struct {
	Kind      string // backend selector, e.g. "postgres"
	DSN       string
	Table     string // possibly schema-qualified relation name
	Columns   []string
	Delimiter byte // raw copy mode only
	Quote     byte // raw copy mode only
}

// Repository is a connection to one target store capable of bulk inserts.
type Repository interface {
	// CopyFrom bulk-inserts rows (aligned to columns order) using the
	// backend's most efficient primitive and returns the number of rows the
	// store reported as accepted.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)

	// Exec runs a single DDL/DML statement.
	Exec(ctx context.Context, sql string) error

	// Close releases the connection (pool).
	Close()
}

// StreamCopier is the optional raw copy capability: streaming pre-framed
// bytes straight into the store's bulk-copy command. Only backends with a
// byte-stream protocol (Postgres COPY) implement it; the pipeline falls back
// to batched CopyFrom everywhere else.
type StreamCopier interface {
	CopyFromReader(ctx context.Context, r io.Reader) (int64, error)
}

// Factory constructs a Repository for one storage kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for a storage kind. It is
// typically called from backend packages' init() functions.
func Register(kind string, fn Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = fn
}

// New opens a Repository for cfg.Kind. Unknown kinds are a configuration
// bug, reported as a plain error (the config validator catches them first
// in the CLI path).
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	fn, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no storage backend registered for kind=%q", cfg.Kind)
	}
	return fn(ctx, cfg)
}

// Kinds returns the registered backend names, for diagnostics.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}
