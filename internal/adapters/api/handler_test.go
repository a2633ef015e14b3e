package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"inmoelegance/internal/adapters/api"
	"inmoelegance/internal/adapters/exports"
	"inmoelegance/internal/auth"
	"inmoelegance/internal/blob"
	"inmoelegance/internal/core"
	"inmoelegance/internal/media"
	"inmoelegance/internal/wishlist"
	"inmoelegance/pkg/domain"
)

type fixture struct {
	svc      *core.Service
	sessions *auth.Sessions
	handler  http.Handler
	wishlist *wishlist.Store
}

func setup(t *testing.T) *fixture {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	sessions, err := auth.NewSessions("api-test-secret-0123456789", time.Hour)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	store := blob.NewMemory(media.DefaultMediaPath)
	worker := exports.NewWorker(svc, store, nil)
	worker.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = worker.Stop(ctx)
	})
	wl := wishlist.New(16)
	handler := api.NewHandler(api.Options{
		Service:  svc,
		Gate:     &auth.Gate{Sessions: sessions, Active: svc.AdminActive},
		Login:    auth.NewThrottle(60, 3),
		Contact:  auth.NewThrottle(60, 2),
		Wishlist: wl,
		Images:   media.NewBlobUploader(store, media.BlobOptions{}),
		Exports:  worker,
	})
	return &fixture{svc: svc, sessions: sessions, handler: handler, wishlist: wl}
}

func (f *fixture) admin(t *testing.T, email string) (core.Admin, string) {
	t.Helper()
	admin, _, err := f.svc.CreateAdmin(context.Background(), email, "clave-segura")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	token, _, err := f.sessions.Issue(admin.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return admin, token
}

func (f *fixture) listing(t *testing.T, adminID string, mutate ...func(*core.Property)) core.Property {
	t.Helper()
	p := core.Property{
		Title:     "Casa con jardín",
		Type:      domain.PropertyTypeHouse,
		Operation: domain.OperationSale,
		Location:  "Carrasco",
		Price:     300000,
		Bedrooms:  3,
		Bathrooms: 2,
		Area:      180,
		Status:    domain.StatusPublished,
		Images:    []string{"https://img.example/casa.jpg"},
	}
	for _, m := range mutate {
		m(&p)
	}
	created, _, err := f.svc.CreateProperty(context.Background(), adminID, p)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return created
}

type request struct {
	method  string
	path    string
	body    any
	token   string
	cookies []*http.Cookie
}

func (f *fixture) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	r.RemoteAddr = "192.0.2.10:4000"
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	for _, c := range req.cookies {
		r.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode %d response: %v", rec.Code, err)
	}
	return out
}

func TestSearchAndDetail(t *testing.T) {
	f := setup(t)
	admin, token := f.admin(t, "agente@example.com")
	pub := f.listing(t, admin.ID)
	hidden := f.listing(t, admin.ID, func(p *core.Property) { p.Status = domain.StatusUnpublished; p.Images = nil })

	rec := f.do(t, request{method: http.MethodGet, path: "/api/v1/properties?location=Carrasco"})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status %d: %s", rec.Code, rec.Body)
	}
	res := decode[core.SearchResult](t, rec)
	if res.Total != 1 || res.Items[0].ID != pub.ID {
		t.Fatalf("unexpected search result %+v", res)
	}

	rec = f.do(t, request{method: http.MethodGet, path: "/api/v1/properties?bedrooms=many"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid query, got %d", rec.Code)
	}

	if _, _, err := f.svc.SaveProfile(context.Background(), admin.ID, core.Profile{DisplayName: "Lucía", NumberPhone: "099"}); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	rec = f.do(t, request{method: http.MethodGet, path: "/api/v1/properties/" + pub.ID})
	detail := decode[struct {
		Property core.Property `json:"property"`
		Agent    *struct {
			DisplayName string `json:"display_name"`
		} `json:"agent"`
	}](t, rec)
	if detail.Property.ID != pub.ID || detail.Agent == nil || detail.Agent.DisplayName != "Lucía" {
		t.Fatalf("unexpected detail %+v", detail)
	}

	for _, path := range []string{"/api/v1/properties/" + hidden.ID, "/api/v1/properties/" + hidden.ID + "/similar", "/api/v1/properties/nope"} {
		if rec := f.do(t, request{method: http.MethodGet, path: path}); rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, rec.Code)
		}
	}

	// The owner still sees the unpublished listing through the admin API.
	rec = f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/properties/" + hidden.ID, token: token})
	if rec.Code != http.StatusOK {
		t.Fatalf("owner get: %d", rec.Code)
	}
}

func TestContactCreatesLeadAndThrottles(t *testing.T) {
	f := setup(t)
	rec := f.do(t, request{method: http.MethodPost, path: "/api/v1/contact", body: map[string]string{
		"name": "Ana", "email": "ana@example.com", "message": "Quiero visitar",
	}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("contact status %d: %s", rec.Code, rec.Body)
	}

	rec = f.do(t, request{method: http.MethodPost, path: "/api/v1/contact", body: map[string]string{"name": "Ana", "email": "no-mail"}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	body := decode[struct {
		Violations []domain.Violation `json:"violations"`
	}](t, rec)
	if len(body.Violations) != 2 {
		t.Fatalf("expected message and e-mail violations, got %+v", body.Violations)
	}

	rec = f.do(t, request{method: http.MethodPost, path: "/api/v1/contact", body: map[string]string{"name": "Ana"}})
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 after burst, got %d", rec.Code)
	}
}

func TestWishlistFlow(t *testing.T) {
	f := setup(t)
	admin, _ := f.admin(t, "agente@example.com")
	p := f.listing(t, admin.ID)

	rec := f.do(t, request{method: http.MethodGet, path: "/api/v1/wishlist"})
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != wishlist.CookieName {
		t.Fatalf("expected visitor cookie, got %v", cookies)
	}

	add := request{method: http.MethodPost, path: "/api/v1/wishlist", body: map[string]string{"id": p.ID}, cookies: cookies}
	if rec := f.do(t, add); rec.Code != http.StatusCreated {
		t.Fatalf("first add: %d", rec.Code)
	}
	rec = f.do(t, add)
	if rec.Code != http.StatusOK {
		t.Fatalf("second add should be a no-op, got %d", rec.Code)
	}
	items := decode[struct {
		Items []wishlist.Item `json:"items"`
	}](t, rec).Items
	if len(items) != 1 || items[0].ID != p.ID {
		t.Fatalf("unexpected items %+v", items)
	}

	if rec := f.do(t, request{method: http.MethodPost, path: "/api/v1/wishlist", body: map[string]string{"id": "missing"}, cookies: cookies}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown listing: %d", rec.Code)
	}

	rec = f.do(t, request{method: http.MethodDelete, path: "/api/v1/wishlist/" + p.ID, cookies: cookies})
	if got := decode[struct {
		Items []wishlist.Item `json:"items"`
	}](t, rec).Items; len(got) != 0 {
		t.Fatalf("remove left %+v", got)
	}

	f.do(t, add)
	f.do(t, request{method: http.MethodDelete, path: "/api/v1/wishlist", cookies: cookies})
	if f.wishlist.Len() != 0 || len(f.wishlist.Items(cookies[0].Value)) != 0 {
		t.Fatal("clear should empty the visitor list")
	}
}

func TestLoginMeLogout(t *testing.T) {
	f := setup(t)
	f.admin(t, "agente@example.com")

	rec := f.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{"email": "agente@example.com", "password": "incorrecta"}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: %d", rec.Code)
	}

	rec = f.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{"email": "AGENTE@example.com", "password": "clave-segura"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body)
	}
	if strings.Contains(rec.Body.String(), "password_hash") {
		t.Fatal("login response must not expose the password hash")
	}
	login := decode[struct {
		Token string `json:"token"`
	}](t, rec)
	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			session = c
		}
	}
	if login.Token == "" || session == nil || !session.HttpOnly {
		t.Fatalf("expected token and session cookie")
	}

	if rec := f.do(t, request{method: http.MethodGet, path: "/api/v1/auth/me", cookies: []*http.Cookie{session}}); rec.Code != http.StatusOK {
		t.Fatalf("me with cookie: %d", rec.Code)
	}
	if rec := f.do(t, request{method: http.MethodGet, path: "/api/v1/auth/me"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous me: %d", rec.Code)
	}

	rec = f.do(t, request{method: http.MethodPost, path: "/api/v1/auth/logout"})
	if rec.Code != http.StatusNoContent || rec.Result().Cookies()[0].MaxAge >= 0 {
		t.Fatalf("logout should expire the cookie")
	}

	for i := 0; i < 3; i++ {
		f.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{"email": "x@example.com", "password": "x"}})
	}
	if rec := f.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{}}); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected login throttle, got %d", rec.Code)
	}
}

func TestAdminPropertyLifecycle(t *testing.T) {
	f := setup(t)
	owner, token := f.admin(t, "owner@example.com")
	_, intruder := f.admin(t, "intruder@example.com")

	if rec := f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/properties"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous admin list: %d", rec.Code)
	}

	rec := f.do(t, request{method: http.MethodPost, path: "/api/v1/admin/properties", token: token, body: map[string]any{
		"title": "Campo en Tacuarembó", "type": "Campo", "operation": "Venta", "location": "Tacuarembó",
		"price": 90000, "status": "publicada",
	}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	created := decode[struct {
		Property core.Property `json:"property"`
		Warnings []string      `json:"warnings"`
	}](t, rec)
	if created.Property.AdminID != owner.ID || len(created.Warnings) != 1 {
		t.Fatalf("unexpected create response %+v", created)
	}
	id := created.Property.ID

	rec = f.do(t, request{method: http.MethodPost, path: "/api/v1/admin/properties", token: token, body: map[string]any{"title": ""}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid listing: %d", rec.Code)
	}
	if rec := f.do(t, request{method: http.MethodPost, path: "/api/v1/admin/properties", token: token, body: map[string]any{"bogus": 1}}); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: %d", rec.Code)
	}

	update := created.Property
	update.Price = 95000
	update.Status = ""
	rec = f.do(t, request{method: http.MethodPut, path: "/api/v1/admin/properties/" + id, token: token, body: update})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body)
	}
	if got := decode[struct {
		Property core.Property `json:"property"`
	}](t, rec).Property; got.Price != 95000 || got.Status != domain.StatusPublished {
		t.Fatalf("unexpected update %+v", got)
	}

	for _, req := range []request{
		{method: http.MethodGet, path: "/api/v1/admin/properties/" + id, token: intruder},
		{method: http.MethodPut, path: "/api/v1/admin/properties/" + id, token: intruder, body: update},
		{method: http.MethodDelete, path: "/api/v1/admin/properties/" + id, token: intruder},
		{method: http.MethodPost, path: "/api/v1/admin/properties/" + id + "/status", token: intruder},
	} {
		if rec := f.do(t, req); rec.Code != http.StatusForbidden {
			t.Fatalf("%s by intruder: %d", req.method, rec.Code)
		}
	}

	rec = f.do(t, request{method: http.MethodPost, path: "/api/v1/admin/properties/" + id + "/status", token: token})
	if got := decode[struct {
		Property core.Property `json:"property"`
	}](t, rec).Property; got.Status != domain.StatusUnpublished {
		t.Fatalf("toggle: %+v", got)
	}

	rec = f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/properties?status=baja", token: token})
	if items := decode[struct {
		Items []core.Property `json:"items"`
	}](t, rec).Items; len(items) != 1 {
		t.Fatalf("filtered list: %+v", items)
	}

	rec = f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/stats", token: token})
	if stats := decode[core.DashboardStats](t, rec); stats.Total != 1 || stats.Unpublished != 1 {
		t.Fatalf("stats: %+v", stats)
	}

	if rec := f.do(t, request{method: http.MethodDelete, path: "/api/v1/admin/properties/" + id, token: token}); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := f.do(t, request{method: http.MethodDelete, path: "/api/v1/admin/properties/" + id, token: token}); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", rec.Code)
	}
}

func TestProfileAndLeads(t *testing.T) {
	f := setup(t)
	_, token := f.admin(t, "agente@example.com")

	rec := f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/profile", token: token})
	draft := decode[struct {
		Profile core.Profile `json:"profile"`
		Exists  bool         `json:"exists"`
	}](t, rec)
	if draft.Exists || draft.Profile.Email != "agente@example.com" {
		t.Fatalf("unexpected draft %+v", draft)
	}

	rec = f.do(t, request{method: http.MethodPut, path: "/api/v1/admin/profile", token: token, body: map[string]string{"display_name": " Lucía ", "number_phone": "099 123"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("save profile: %d %s", rec.Code, rec.Body)
	}

	if _, _, err := f.svc.SubmitLead(context.Background(), core.Lead{Name: "Ana", Email: "ana@example.com", Message: "Hola"}); err != nil {
		t.Fatalf("lead: %v", err)
	}
	rec = f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/leads", token: token})
	leads := decode[struct {
		Items []core.Lead `json:"items"`
	}](t, rec).Items
	if len(leads) != 1 {
		t.Fatalf("leads: %+v", leads)
	}
	if rec := f.do(t, request{method: http.MethodDelete, path: "/api/v1/admin/leads/" + leads[0].ID, token: token}); rec.Code != http.StatusNoContent {
		t.Fatalf("delete lead: %d", rec.Code)
	}
	if rec := f.do(t, request{method: http.MethodDelete, path: "/api/v1/admin/leads/" + leads[0].ID, token: token}); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete lead: %d", rec.Code)
	}
}

func TestUpload(t *testing.T) {
	f := setup(t)
	_, token := f.admin(t, "agente@example.com")

	upload := func(name string, content []byte) *httptest.ResponseRecorder {
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		part, _ := mw.CreateFormFile("file", name)
		_, _ = part.Write(content)
		_ = mw.Close()
		r := httptest.NewRequest(http.MethodPost, "/api/v1/admin/uploads", buf)
		r.Header.Set("Content-Type", mw.FormDataContentType())
		r.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, r)
		return rec
	}

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	rec := upload("fachada.png", png)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body)
	}
	image := decode[struct {
		Image media.Image `json:"image"`
	}](t, rec).Image
	if !strings.HasPrefix(image.URL, media.DefaultMediaPath+media.KeyPrefix) || !strings.HasSuffix(image.URL, ".png") {
		t.Fatalf("unexpected image %+v", image)
	}

	if rec := upload("notas.txt", []byte("texto plano")); rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("non-image upload: %d", rec.Code)
	}
}

func TestExports(t *testing.T) {
	f := setup(t)
	owner, token := f.admin(t, "owner@example.com")
	_, intruder := f.admin(t, "intruder@example.com")
	f.listing(t, owner.ID)

	if rec := f.do(t, request{method: http.MethodPost, path: "/api/v1/admin/exports", token: token, body: map[string]any{"kind": "admins"}}); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid kind: %d", rec.Code)
	}

	rec := f.do(t, request{method: http.MethodPost, path: "/api/v1/admin/exports", token: token, body: map[string]any{"kind": "listings", "formats": []string{"csv"}}})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue: %d %s", rec.Code, rec.Body)
	}
	record := decode[struct {
		Export exports.Record `json:"export"`
	}](t, rec).Export

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/exports/" + record.ID, token: token})
		if decode[struct {
			Export exports.Record `json:"export"`
		}](t, rec).Export.Status == exports.StatusSucceeded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("export did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if rec := f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/exports/" + record.ID, token: intruder}); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign export: %d", rec.Code)
	}

	rec = f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/exports/" + record.ID + "/csv", token: token})
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("download: %d %s", rec.Code, rec.Header())
	}
	if lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n"); len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", lines)
	}
	if rec := f.do(t, request{method: http.MethodGet, path: "/api/v1/admin/exports/" + record.ID + "/json", token: token}); rec.Code != http.StatusNotFound {
		t.Fatalf("missing format: %d", rec.Code)
	}
}

func TestUnknownEndpoint(t *testing.T) {
	f := setup(t)
	rec := f.do(t, request{method: http.MethodGet, path: "/api/v1/nothing"})
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "endpoint not found") {
		t.Fatalf("unexpected %d %s", rec.Code, rec.Body)
	}
}
