package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"inmoelegance/internal/core"
	"inmoelegance/pkg/domain"
)

const sample = `{
  // demo agent
  "admins": [
    {
      "email": "agente@example.com",
      "password": "clave-segura",
      "profile": {"display_name": "Lucía Pérez", "number_phone": "099 123 456"},
      "properties": [
        {
          "title": "Casa en Carrasco",
          "type": "Casa",
          "operation": "Venta",
          "location": "Carrasco",
          "price": 450000,
          "status": "publicada",
          "images": ["https://img.example/1.jpg"], /* cover */
        },
        {
          "title": "Campo sin fotos",
          "type": "Campo",
          "operation": "Venta",
          "location": "Tacuarembó",
          "price": 90000,
          "status": "publicada",
        },
      ],
    },
  ],
  "leads": [
    {"name": "Ana", "email": "ana@example.com", "message": "Quiero visitar"},
  ],
}`

func TestParseAcceptsCommentsAndTrailingCommas(t *testing.T) {
	f, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"Casa en Carrasco", "Campo sin fotos"}
	var got []string
	for _, p := range f.Admins[0].Properties {
		got = append(got, p.Title)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("titles mismatch (-want +got):\n%s", diff)
	}
	if f.Admins[0].Profile == nil || f.Admins[0].Profile.DisplayName != "Lucía Pérez" {
		t.Fatalf("profile not decoded: %+v", f.Admins[0].Profile)
	}
}

func TestParseRejectsIncompleteAdmins(t *testing.T) {
	for _, raw := range []string{`{"admins": [{"email": "a@example.com"}]}`, `{"admins": [`} {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.jsonc")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadFile(path); err != nil {
		t.Fatalf("read: %v", err)
	}
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.jsonc"))
	if err == nil || !strings.Contains(err.Error(), "missing.jsonc") {
		t.Fatalf("expected error naming the file, got %v", err)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	f, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	obs, logs := observer.New(zap.InfoLevel)

	sum, err := Apply(ctx, svc, f, zap.New(obs))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if diff := cmp.Diff(Summary{Admins: 1, Properties: 2, Leads: 1}, sum); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	if n := logs.FilterMessage("seeded property has warnings").Len(); n != 1 {
		t.Fatalf("expected one warning for the listing without images, got %d", n)
	}

	admin, err := svc.Authenticate(ctx, "agente@example.com", "clave-segura")
	if err != nil {
		t.Fatalf("authenticate seeded admin: %v", err)
	}
	items, err := svc.ListPropertiesByAdmin(ctx, admin.ID)
	if err != nil || len(items) != 2 {
		t.Fatalf("expected 2 listings, got %d (%v)", len(items), err)
	}
	for _, p := range items {
		if p.Status != domain.StatusPublished {
			t.Fatalf("unexpected status %q", p.Status)
		}
	}
	profile, exists, err := svc.GetProfile(ctx, admin.ID)
	if err != nil || !exists || profile.NumberPhone != "099 123 456" {
		t.Fatalf("profile not seeded: %+v exists=%v err=%v", profile, exists, err)
	}

	sum, err = Apply(ctx, svc, f, nil)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if diff := cmp.Diff(Summary{Skipped: 1}, sum); diff != "" {
		t.Fatalf("second summary mismatch (-want +got):\n%s", diff)
	}
	leads, _ := svc.ListLeads(ctx)
	if len(leads) != 1 {
		t.Fatalf("leads duplicated: %d", len(leads))
	}
}

func TestApplyStopsOnInvalidListing(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	f := File{Admins: []Admin{{
		Email:      "agente@example.com",
		Password:   "clave-segura",
		Properties: []core.Property{{Title: ""}},
	}}}
	sum, err := Apply(context.Background(), svc, f, nil)
	if err == nil {
		t.Fatal("expected error for a listing without title")
	}
	if sum.Admins != 1 || sum.Properties != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestShippedSeedParses(t *testing.T) {
	f, err := ReadFile(filepath.Join("..", "..", "configs", "seed.jsonc"))
	if err != nil {
		t.Fatalf("read shipped seed: %v", err)
	}
	if len(f.Admins) == 0 || len(f.Admins[0].Properties) == 0 {
		t.Fatal("shipped seed should contain listings")
	}
}
