// This adapter wires the Postgres backend into the storage-agnostic factory
// by registering a constructor at init time. The CLI and runner obtain a
// Repository via storage.New(...) without importing this package directly.
//
// The adapter also registers a DDL bootstrapper so that callers can create
// the target relation based only on storage.Kind, without branching on the
// backend themselves.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"zipload/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

// wrappedRepo implements storage.Repository by delegating to the concrete
// *postgres.Repository while providing a Close method that calls the close
// function returned by NewRepository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

// Ensure wrappedRepo satisfies the storage contracts at compile time.
var (
	_ storage.Repository   = (*wrappedRepo)(nil)
	_ storage.StreamCopier = (*wrappedRepo)(nil)
)

// Close implements storage.Repository.Close.
func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func init() {
	// Repository factory registration.
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{
			DSN:       cfg.DSN,
			Table:     cfg.Table,
			Columns:   cfg.Columns,
			Delimiter: cfg.Delimiter,
			Quote:     cfg.Quote,
		})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})

	// DDL bootstrap: a single-text-column relation is all this loader needs.
	storage.RegisterDDL("postgres",
		func(ctx context.Context, repo storage.Repository, cfg storage.Config) error {
			ddl := fmt.Sprintf(
				"CREATE TABLE IF NOT EXISTS %s (%s TEXT)",
				pgFQN(cfg.Table),
				strings.Join(mapIdent(cfg.Columns), " TEXT, "),
			)
			if err := repo.Exec(ctx, ddl); err != nil {
				return fmt.Errorf("ensure table %s: %w", cfg.Table, err)
			}
			return nil
		})
}
