package wishlist

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"inmoelegance/pkg/domain"
)

func ids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestAddIsUniqueByID(t *testing.T) {
	s := New(0)
	if !s.Add("v1", Item{ID: "p1", Title: "Casa"}) {
		t.Fatalf("expected first add to succeed")
	}
	if s.Add("v1", Item{ID: "p1", Title: "Casa renombrada"}) {
		t.Fatalf("duplicate id must be ignored")
	}
	s.Add("v1", Item{ID: "p2"})
	s.Add("v1", Item{ID: "p3"})
	if diff := cmp.Diff([]string{"p1", "p2", "p3"}, ids(s.Items("v1"))); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	if got := s.Items("v1")[0].Title; got != "Casa" {
		t.Fatalf("first snapshot must be kept, got %q", got)
	}
	if s.Add("", Item{ID: "p1"}) || s.Add("v1", Item{}) {
		t.Fatalf("blank visitor or id must be rejected")
	}
}

func TestRemoveAndClear(t *testing.T) {
	s := New(0)
	for _, id := range []string{"p1", "p2", "p3"} {
		s.Add("v1", Item{ID: id})
	}
	s.Add("v2", Item{ID: "p1"})

	if !s.Remove("v1", "p2") || s.Remove("v1", "p2") || s.Remove("ghost", "p1") {
		t.Fatalf("unexpected remove results")
	}
	if diff := cmp.Diff([]string{"p1", "p3"}, ids(s.Items("v1"))); diff != "" {
		t.Fatalf("unexpected items (-want +got):\n%s", diff)
	}
	if !s.Contains("v1", "p3") || s.Contains("v1", "p2") {
		t.Fatalf("unexpected contains")
	}

	s.Clear("v1")
	if items := s.Items("v1"); items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", items)
	}
	if len(s.Items("v2")) != 1 {
		t.Fatalf("other visitors must be untouched")
	}
}

func TestItemsReturnsCopy(t *testing.T) {
	s := New(0)
	s.Add("v1", Item{ID: "p1"})
	items := s.Items("v1")
	items[0].ID = "mutated"
	if s.Items("v1")[0].ID != "p1" {
		t.Fatalf("Items must not expose internal state")
	}
}

func TestLeastRecentVisitorIsEvicted(t *testing.T) {
	s := New(2)
	s.Add("v1", Item{ID: "p1"})
	s.Add("v2", Item{ID: "p1"})
	_ = s.Items("v1")
	s.Add("v3", Item{ID: "p1"})
	if s.Len() != 2 {
		t.Fatalf("expected capacity to hold, got %d", s.Len())
	}
	if len(s.Items("v2")) != 0 {
		t.Fatalf("expected v2 evicted")
	}
	if len(s.Items("v1")) != 1 {
		t.Fatalf("expected recently used v1 kept")
	}
}

func TestVisitorIDCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	id := VisitorID(rec, httptest.NewRequest(http.MethodGet, "/", nil), true)
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != id || !cookies[0].HttpOnly || !cookies[0].Secure {
		t.Fatalf("expected visitor cookie, got %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: id})
	rec = httptest.NewRecorder()
	if got := VisitorID(rec, req, false); got != id {
		t.Fatalf("expected existing id reused, got %s", got)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("no cookie should be reissued")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "not-a-uuid"})
	rec = httptest.NewRecorder()
	if got := VisitorID(rec, req, false); got == "not-a-uuid" {
		t.Fatalf("malformed ids must be replaced")
	}
}

func TestItemForSnapshotsListing(t *testing.T) {
	p := domain.Property{
		Base:     domain.Base{ID: "p1"},
		Title:    "Casa",
		Location: "Montevideo",
		Price:    120000,
		Currency: "USD",
		Images:   []string{"/media/images/a.png", "/media/images/b.png"},
	}
	got := ItemFor(p)
	want := Item{ID: "p1", Title: "Casa", Location: "Montevideo", Price: 120000, Currency: "USD", Image: "/media/images/a.png"}
	if got != want {
		t.Fatalf("ItemFor = %+v, want %+v", got, want)
	}
}
