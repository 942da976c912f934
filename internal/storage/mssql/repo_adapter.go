package mssql

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
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
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

	storage.RegisterDDL("mssql", func(ctx context.Context, repo storage.Repository, cfg storage.Config) error {
		cols := make([]string, len(cfg.Columns))
		for i, c := range cfg.Columns {
			cols[i] = msIdent(c) + " NVARCHAR(MAX)"
		}
		ddl := fmt.Sprintf(
			"IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)",
			strings.ReplaceAll(cfg.Table, "'", "''"), msFQN(cfg.Table), strings.Join(cols, ", "),
		)
		return repo.Exec(ctx, ddl)
	})
}
