// Package postgres implements a Postgres repository using pgx v5. Bulk
// inserts go through the native COPY protocol, either as driver-encoded rows
// (CopyFrom) or as a raw byte stream with configurable delimiter/quote bytes
// (CopyFromReader).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"zipload/internal/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN       string
	Table     string // fully qualified target table name, e.g. "public.tweets_raw"
	Columns   []string
	Delimiter byte // raw copy mode text-protocol delimiter
	Quote     byte // raw copy mode text-protocol quote
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a close function for
// cleanup. The connection is verified up front so unreachable endpoints fail
// fast with storage.ErrConnection.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool config: %w", err)
	}
	if pc.ConnConfig.RuntimeParams["application_name"] == "" {
		pc.ConnConfig.RuntimeParams["application_name"] = "zipload"
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("%w: %v", storage.ErrConnection, err)
	}
	closeFn := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg}, closeFn, nil
}

// CopyFrom performs a bulk insert using Postgres's native COPY FROM
// mechanism with driver-side value encoding. This is the protocol-correct
// path: pgx escapes every payload, so no byte value in the record can
// corrupt framing.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	n, err := r.pool.CopyFrom(ctx, splitFQN(r.cfg.Table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, classify(err)
	}
	return n, nil
}

// CopyFromReader streams raw pre-framed bytes into COPY FROM STDIN using the
// configured delimiter and quote bytes.
//
// The caller guarantees the stream honors the reserved-byte assumption:
// payload content must never contain the delimiter or quote byte, or rows
// corrupt silently. Sanitize in strict mode to enforce it.
func (r *Repository) CopyFromReader(ctx context.Context, src io.Reader) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, classify(err)
	}
	defer conn.Release()

	sql := fmt.Sprintf(
		"COPY %s (%s) FROM STDIN WITH (FORMAT csv, DELIMITER e'\\x%02x', QUOTE e'\\x%02x')",
		pgFQN(r.cfg.Table),
		strings.Join(mapIdent(r.cfg.Columns), ","),
		r.cfg.Delimiter,
		r.cfg.Quote,
	)

	tag, err := conn.Conn().PgConn().CopyFrom(ctx, src, sql)
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}

// Exec implements storage.Repository.Exec for Postgres.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return classify(err)
	}
	return nil
}

// Close closes the underlying pool.
func (r *Repository) Close() { r.pool.Close() }

// classify maps pgx errors onto the storage taxonomy: server-reported errors
// (malformed payload, constraint violations) become ErrProtocol, transport
// failures become ErrConnection, context errors pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Detail != "" {
			return fmt.Errorf("%w: %s: %s (%s)", storage.ErrProtocol, pgErr.Message, pgErr.Detail, pgErr.SQLState())
		}
		return fmt.Errorf("%w: %s (%s)", storage.ErrProtocol, pgErr.Message, pgErr.SQLState())
	}
	return fmt.Errorf("%w: %v", storage.ErrConnection, err)
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.tweets_raw" to
// "public"."tweets_raw". If no dot is present, returns a single quoted ident.
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
// If no dot is present, returns {"table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
