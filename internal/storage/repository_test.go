package storage

import (
	"context"
	"strings"
	"testing"
)

type fakeRepo struct{ closed bool }

func (f *fakeRepo) CopyFrom(_ context.Context, _ []string, rows [][]any) (int64, error) {
	return int64(len(rows)), nil
}
func (f *fakeRepo) Exec(_ context.Context, _ string) error { return nil }
func (f *fakeRepo) Close()                                 { f.closed = true }

func TestRegistry_NewDispatchesByKind(t *testing.T) {
	Register("fake-kind", func(_ context.Context, cfg Config) (Repository, error) {
		if cfg.Table != "t" {
			t.Errorf("cfg not passed through: %+v", cfg)
		}
		return &fakeRepo{}, nil
	})

	repo, err := New(context.Background(), Config{Kind: "fake-kind", Table: "t"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	repo.Close()
}

func TestRegistry_UnknownKind(t *testing.T) {
	_, err := New(context.Background(), Config{Kind: "does-not-exist"})
	if err == nil || !strings.Contains(err.Error(), "does-not-exist") {
		t.Fatalf("want unknown-kind error, got %v", err)
	}
}

func TestDDL_EnsureTableDispatch(t *testing.T) {
	var applied bool
	RegisterDDL("fake-kind", func(_ context.Context, _ Repository, cfg Config) error {
		applied = cfg.Table == "t"
		return nil
	})

	err := EnsureTable(context.Background(), Config{Kind: "fake-kind", Table: "t"}, &fakeRepo{})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !applied {
		t.Fatal("bootstrapper not invoked with config")
	}

	if err := EnsureTable(context.Background(), Config{Kind: "no-ddl"}, &fakeRepo{}); err == nil {
		t.Fatal("want error for unregistered DDL kind")
	}
}
