package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"inmoelegance/pkg/domain"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	var created domain.Property
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var e error
		created, e = tx.CreateProperty(domain.Property{Title: "Casa en Punta Ballena", Location: "Punta Ballena", Images: []string{"https://img/1.jpg"}})
		if e != nil {
			return e
		}
		_, e = tx.CreateLead(domain.Lead{Name: "Lucía", Email: "lucia@example.com", Message: "Quiero visitarla"})
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	got, ok := reloaded.GetProperty(created.ID)
	if !ok || got.Title != created.Title || len(got.Images) != 1 {
		t.Fatalf("expected property to survive reload, got %+v", got)
	}
	if leads := reloaded.ListLeads(); len(leads) != 1 {
		t.Fatalf("expected 1 lead, got %d", len(leads))
	}
	if reloaded.Path() != path {
		t.Fatalf("unexpected path %s", reloaded.Path())
	}
}

func TestSQLiteStoreWritesEveryBucket(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateAdmin(domain.Admin{Email: "admin@example.com"})
		return e
	}); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 buckets persisted, got %d", count)
	}
}

func TestSQLiteStoreSkipsPersistOnFailure(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	boom := errors.New("boom")
	if _, err := store.RunInTransaction(context.Background(), func(domain.Transaction) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no snapshot after failed transaction, got %d rows", count)
	}
}

func TestSQLiteStorePersistsAfterCallerCancels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	var created domain.Property
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var e error
		created, e = tx.CreateProperty(domain.Property{Title: "Apartamento en Pocitos", Location: "Pocitos"})
		cancel()
		return e
	}); err != nil {
		t.Fatalf("RunInTransaction after cancel: %v", err)
	}
	_ = store.Close()

	reloaded, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if _, ok := reloaded.GetProperty(created.ID); !ok {
		t.Fatalf("expected listing %s to be durable", created.ID)
	}
}

func TestSQLiteStoreRollsBackMemoryWhenPersistFails(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateProperty(domain.Property{Title: "Casa existente"})
		return e
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_ = store.DB().Close()

	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateProperty(domain.Property{Title: "Casa nueva"})
		return e
	}); err == nil {
		t.Fatal("expected persist failure on a closed database")
	}
	got := store.ListProperties()
	if len(got) != 1 || got[0].Title != "Casa existente" {
		t.Fatalf("expected only the durable listing in memory, got %+v", got)
	}
}

func TestSQLiteStoreRejectsCorruptPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES('properties', ?)`, []byte("{not json")); err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}
	_ = store.Close()
	if _, err := NewStore(path, nil); err == nil {
		t.Fatalf("expected decode error for corrupt payload")
	}
}
