// Package sqlite implements a SQLite repository on the pure-Go modernc
// driver. It exists mostly for local smoke tests: batches run as a prepared
// INSERT inside a transaction, which is the fast path for SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"zipload/internal/storage"
)

// Config holds SQLite repository configuration. DSN is a file path or
// ":memory:".
type Config struct {
	DSN     string
	Table   string
	Columns []string
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens the database file and returns a close function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	// SQLite serializes writers; more conns just contend on the file lock.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("%w: %v", storage.ErrConnection, err)
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// CopyFrom inserts rows through a prepared statement inside a transaction.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = liteIdent(c)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		liteIdent(r.cfg.Table),
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?,", len(columns)), ","),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(err)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return 0, classify(err)
	}

	var n int64
	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return 0, fmt.Errorf("row %d: %w", i, classify(err))
		}
		n++
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// Exec implements storage.Repository.Exec for SQLite.
func (r *Repository) Exec(ctx context.Context, query string) error {
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return classify(err)
	}
	return nil
}

// Close closes the database handle.
func (r *Repository) Close() { _ = r.db.Close() }

// classify maps driver errors onto the storage taxonomy. SQLite is an
// in-process engine, so everything that is not a context error reads as a
// protocol error: there is no transport to fail.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", storage.ErrProtocol, err)
}

// liteIdent double-quote-escapes an identifier.
func liteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
