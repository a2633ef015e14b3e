package core

import (
	"context"
	"path/filepath"
	"testing"

	"inmoelegance/internal/infra/persistence/memory"
	"inmoelegance/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, err := OpenPersistentStore(context.Background(), StorageOptions{Driver: StorageMemory}, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected *memory.Store, got %T", store)
	}
}

func TestOpenPersistentStoreDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inmo.db")
	store, err := OpenPersistentStore(context.Background(), StorageOptions{SQLitePath: path}, NewDefaultRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	s, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected *sqlite.Store, got %T", store)
	}
	if s.Path() != path {
		t.Fatalf("unexpected path %s", s.Path())
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	if _, err := OpenPersistentStore(context.Background(), StorageOptions{Driver: "mongo"}, nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
