// Package mssql implements a Microsoft SQL Server repository using the
// go-mssqldb bulk copy API. Each CopyFrom call runs one bulk insert inside a
// transaction so a rejected batch rolls back cleanly.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"zipload/internal/storage"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN     string
	Table   string
	Columns []string
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a close function for
// cleanup. The DSN is validated early to fail fast on obvious mistakes, and
// the connection is pinged so unreachable endpoints surface as
// storage.ErrConnection before any job work happens.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("%w: %v", storage.ErrConnection, err)
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// CopyFrom bulk-inserts rows via the driver's CopyIn statement inside a
// transaction. It returns the number of rows the server reported copied.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(err)
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(r.cfg.Table, mssql.BulkOptions{}, columns...))
	if err != nil {
		rollback()
		return 0, classify(err)
	}

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, fmt.Errorf("bulk row %d: %w", i, classify(err))
		}
	}

	res, err := stmt.ExecContext(ctx) // flush
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, classify(err)
	}

	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// Exec implements storage.Repository.Exec for MSSQL.
func (r *Repository) Exec(ctx context.Context, query string) error {
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return classify(err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (r *Repository) Close() { _ = r.db.Close() }

// classify maps driver errors onto the storage taxonomy: server-reported
// errors become ErrProtocol, everything else that is not a context error is
// treated as a transport failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var srvErr mssql.Error
	if errors.As(err, &srvErr) {
		return fmt.Errorf("%w: %s (number %d)", storage.ErrProtocol, srvErr.Message, srvErr.Number)
	}
	return fmt.Errorf("%w: %v", storage.ErrConnection, err)
}

// msIdent quotes a single identifier segment for SQL Server.
func msIdent(id string) string { return "[" + strings.ReplaceAll(id, "]", "]]") + "]" }

// msFQN quotes a possibly schema-qualified name like "dbo.tweets_raw".
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = msIdent(p)
	}
	return strings.Join(parts, ".")
}
