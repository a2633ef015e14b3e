package memory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"inmoelegance/internal/infra/persistence/memory"
	"inmoelegance/pkg/domain"
)

func TestMemoryStorePropertyCRUD(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()

	var created domain.Property
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateProperty(domain.Property{Title: "Loft", Location: "La Barra", Images: []string{"a.jpg"}})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps, got %+v", created)
	}
	if created.Status != domain.StatusPublished || created.Currency != domain.DefaultCurrency {
		t.Fatalf("expected defaults applied, got status=%s currency=%s", created.Status, created.Currency)
	}

	got, ok := store.GetProperty(created.ID)
	if !ok || got.Title != "Loft" {
		t.Fatalf("expected stored property, got %+v", got)
	}
	got.Images[0] = "mutated.jpg"
	again, _ := store.GetProperty(created.ID)
	if again.Images[0] != "a.jpg" {
		t.Fatalf("expected returned property to be a clone")
	}

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateProperty(created.ID, func(p *domain.Property) error {
			p.Title = "Loft con terraza"
			p.ID = "hijack"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, _ := store.GetProperty(created.ID)
	if updated.Title != "Loft con terraza" || updated.ID != created.ID {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("expected created_at preserved")
	}

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteProperty(created.ID)
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := store.GetProperty(created.ID); ok {
		t.Fatalf("expected property deleted")
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteProperty(created.ID)
	}); err == nil {
		t.Fatalf("expected delete of missing property to fail")
	}
}

func TestMemoryStoreRollbackOnError(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateProperty(domain.Property{Title: "Casa"}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(store.ListProperties()) != 0 {
		t.Fatalf("expected rollback to discard property")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block_all" }

func (blockingRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	if len(view.ListProperties()) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{Rule: "block_all", Severity: domain.SeverityBlock, Message: "blocked"}}}, nil
}

func TestMemoryStoreBlockingRule(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := memory.NewStore(engine)

	res, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateProperty(domain.Property{Title: "Casa"})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking result")
	}
	if len(store.ListProperties()) != 0 {
		t.Fatalf("expected blocked transaction not to commit")
	}
}

func TestMemoryStoreOrdering(t *testing.T) {
	store := memory.NewStore(nil)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		stamp := base.Add(time.Duration(i) * time.Hour)
		store.SetNowFunc(func() time.Time { return stamp })
		if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			_, err := tx.CreateProperty(domain.Property{Title: fmt.Sprintf("P%d", i)})
			return err
		}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	list := store.ListProperties()
	if len(list) != 3 || list[0].Title != "P2" || list[2].Title != "P0" {
		t.Fatalf("expected newest first, got %v", []string{list[0].Title, list[1].Title, list[2].Title})
	}
}

func TestMemoryStoreProfilesLeadsAdmins(t *testing.T) {
	store := memory.NewStore(nil)
	ctx := context.Background()

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.SaveProfile("", func(*domain.Profile) error { return nil }); err == nil {
			return fmt.Errorf("expected empty admin id to fail")
		}
		if _, err := tx.SaveProfile("admin-1", func(p *domain.Profile) error {
			p.DisplayName = "Ana"
			return nil
		}); err != nil {
			return err
		}
		if _, err := tx.CreateLead(domain.Lead{Name: "Juan", Email: "juan@example.com", Message: "Hola"}); err != nil {
			return err
		}
		_, err := tx.CreateAdmin(domain.Admin{Email: " Ana@Example.com "})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	profile, ok := store.GetProfile("admin-1")
	if !ok || profile.DisplayName != "Ana" || profile.ID != "admin-1" {
		t.Fatalf("unexpected profile %+v", profile)
	}
	created := profile.CreatedAt

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.SaveProfile("admin-1", func(p *domain.Profile) error {
			p.NumberPhone = "+598 99 000 000"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	profile, _ = store.GetProfile("admin-1")
	if profile.DisplayName != "Ana" || profile.NumberPhone == "" || !profile.CreatedAt.Equal(created) {
		t.Fatalf("expected merged profile update, got %+v", profile)
	}

	if leads := store.ListLeads(); len(leads) != 1 || leads[0].Name != "Juan" {
		t.Fatalf("unexpected leads %+v", leads)
	}
	admins := store.ListAdmins()
	if len(admins) != 1 || admins[0].Email != "ana@example.com" {
		t.Fatalf("expected normalized admin email, got %+v", admins)
	}
	if err := store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.FindAdminByEmail("ANA@example.com"); !ok {
			return fmt.Errorf("expected admin lookup by email")
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryStoreExportImport(t *testing.T) {
	store := memory.NewStore(nil)
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateProperty(domain.Property{Title: "Casa", Features: []string{"Piscina"}})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	snapshot := store.ExportState()

	restored := memory.NewStore(nil)
	restored.ImportState(snapshot)
	if len(restored.ListProperties()) != 1 {
		t.Fatalf("expected imported property")
	}

	legacy := memory.Snapshot{Properties: map[string]domain.Property{"old": {Base: domain.Base{ID: "old"}, Title: "Old"}}}
	restored.ImportState(legacy)
	p, ok := restored.GetProperty("old")
	if !ok || p.Status != domain.StatusPublished || p.Currency != domain.DefaultCurrency {
		t.Fatalf("expected defaults on legacy snapshot, got %+v", p)
	}
	if _, ok := (&legacy).Bucket("unknown"); ok {
		t.Fatalf("expected unknown bucket to be rejected")
	}
}
