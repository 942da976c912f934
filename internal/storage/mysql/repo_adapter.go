package mysql

import (
	"context"
	"fmt"
	"strings"

	"zipload/internal/storage"
)

// newRepository is a seam for tests.
var newRepository = NewRepository

type wrappedRepo struct {
	*Repository
	closeFn func()
}

func (w *wrappedRepo) Close() { w.closeFn() }

var _ storage.Repository = (*wrappedRepo)(nil)

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		repo, closeFn, err := newRepository(ctx, Config{
			DSN:     cfg.DSN,
			Table:   cfg.Table,
			Columns: cfg.Columns,
		})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: repo, closeFn: closeFn}, nil
	})

	storage.RegisterDDL("mysql", func(ctx context.Context, repo storage.Repository, cfg storage.Config) error {
		cols := make([]string, len(cfg.Columns))
		for i, c := range cfg.Columns {
			cols[i] = myIdent(c) + " LONGTEXT"
		}
		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", myFQN(cfg.Table), strings.Join(cols, ", "))
		return repo.Exec(ctx, ddl)
	})
}
