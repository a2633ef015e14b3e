// Package api serves the JSON API under /api/v1.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"inmoelegance/internal/adapters/exports"
	"inmoelegance/internal/auth"
	"inmoelegance/internal/core"
	"inmoelegance/internal/media"
	"inmoelegance/internal/wishlist"
)

// Prefix is the mount point of the API.
const Prefix = "/api/v1"

const maxBodyBytes = 1 << 20

// Service is the slice of *core.Service used by the API.
type Service interface {
	SearchProperties(ctx context.Context, q core.PropertyQuery) (core.SearchResult, error)
	GetProperty(ctx context.Context, id string) (core.Property, error)
	GetPublishedProperty(ctx context.Context, id string) (core.Property, error)
	SimilarProperties(ctx context.Context, id string, limit int) ([]core.Property, error)
	CreateProperty(ctx context.Context, adminID string, input core.Property) (core.Property, core.Result, error)
	UpdateProperty(ctx context.Context, adminID, id string, input core.Property) (core.Property, core.Result, error)
	DeleteProperty(ctx context.Context, adminID, id string) (core.Result, error)
	TogglePropertyStatus(ctx context.Context, adminID, id string) (core.Property, core.Result, error)
	FilterDashboard(ctx context.Context, adminID string, filter core.DashboardFilter) ([]core.Property, error)
	DashboardStats(ctx context.Context, adminID string) (core.DashboardStats, error)
	GetProfile(ctx context.Context, adminID string) (core.Profile, bool, error)
	SaveProfile(ctx context.Context, adminID string, input core.Profile) (core.Profile, core.Result, error)
	SubmitLead(ctx context.Context, input core.Lead) (core.Lead, core.Result, error)
	ListLeads(ctx context.Context) ([]core.Lead, error)
	DeleteLead(ctx context.Context, adminID, id string) (core.Result, error)
	Authenticate(ctx context.Context, email, password string) (core.Admin, error)
	GetAdmin(ctx context.Context, id string) (core.Admin, error)
}

// Options wires the API dependencies. Images and Exports are optional; their
// routes answer 503 when unset.
type Options struct {
	Service      Service
	Gate         *auth.Gate
	Login        *auth.Throttle
	Contact      *auth.Throttle
	Wishlist     *wishlist.Store
	Images       media.Uploader
	Exports      exports.Scheduler
	Logger       *zap.Logger
	SimilarLimit int
}

// Handler routes /api/v1 requests.
type Handler struct {
	opts   Options
	logger *zap.Logger
	mux    *http.ServeMux
}

// NewHandler builds the API router.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Wishlist == nil {
		opts.Wishlist = wishlist.New(0)
	}
	h := &Handler{opts: opts, logger: logger.Named("api"), mux: http.NewServeMux()}
	h.routes()
	return h
}

func (h *Handler) routes() {
	admin := func(fn http.HandlerFunc) http.Handler { return h.opts.Gate.RequireAPI(fn) }

	h.mux.HandleFunc("GET "+Prefix+"/properties", h.handleSearch)
	h.mux.HandleFunc("GET "+Prefix+"/properties/{id}", h.handleProperty)
	h.mux.HandleFunc("GET "+Prefix+"/properties/{id}/similar", h.handleSimilar)
	h.mux.Handle("POST "+Prefix+"/contact", h.throttled(h.opts.Contact, h.handleContact))

	h.mux.HandleFunc("GET "+Prefix+"/wishlist", h.handleWishlist)
	h.mux.HandleFunc("POST "+Prefix+"/wishlist", h.handleWishlistAdd)
	h.mux.HandleFunc("DELETE "+Prefix+"/wishlist", h.handleWishlistClear)
	h.mux.HandleFunc("DELETE "+Prefix+"/wishlist/{id}", h.handleWishlistRemove)

	h.mux.Handle("POST "+Prefix+"/auth/login", h.throttled(h.opts.Login, h.handleLogin))
	h.mux.HandleFunc("POST "+Prefix+"/auth/logout", h.handleLogout)
	h.mux.Handle("GET "+Prefix+"/auth/me", admin(h.handleMe))

	h.mux.Handle("GET "+Prefix+"/admin/properties", admin(h.handleAdminList))
	h.mux.Handle("POST "+Prefix+"/admin/properties", admin(h.handleAdminCreate))
	h.mux.Handle("GET "+Prefix+"/admin/properties/{id}", admin(h.handleAdminGet))
	h.mux.Handle("PUT "+Prefix+"/admin/properties/{id}", admin(h.handleAdminUpdate))
	h.mux.Handle("DELETE "+Prefix+"/admin/properties/{id}", admin(h.handleAdminDelete))
	h.mux.Handle("POST "+Prefix+"/admin/properties/{id}/status", admin(h.handleAdminToggle))
	h.mux.Handle("GET "+Prefix+"/admin/stats", admin(h.handleStats))
	h.mux.Handle("GET "+Prefix+"/admin/profile", admin(h.handleProfileGet))
	h.mux.Handle("PUT "+Prefix+"/admin/profile", admin(h.handleProfileSave))
	h.mux.Handle("POST "+Prefix+"/admin/uploads", admin(h.handleUpload))
	h.mux.Handle("GET "+Prefix+"/admin/leads", admin(h.handleLeads))
	h.mux.Handle("DELETE "+Prefix+"/admin/leads/{id}", admin(h.handleLeadDelete))
	h.mux.Handle("POST "+Prefix+"/admin/exports", admin(h.handleExportCreate))
	h.mux.Handle("GET "+Prefix+"/admin/exports/{id}", admin(h.handleExportGet))
	h.mux.Handle("GET "+Prefix+"/admin/exports/{id}/{format}", admin(h.handleExportDownload))

	h.mux.HandleFunc(Prefix+"/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) throttled(t *auth.Throttle, next http.HandlerFunc) http.Handler {
	return t.Middleware(next, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
	}))
}

func adminID(r *http.Request) string {
	id, _ := auth.AdminID(r.Context())
	return id
}

// decodeJSON reads a single JSON document into dst. An empty body leaves dst
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// writeServiceError maps domain and adapter errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var violation core.RuleViolationError
	switch {
	case errors.As(err, &violation):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      err.Error(),
			"violations": violation.Result.Violations,
		})
	case core.IsNotFound(err), errors.Is(err, exports.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, core.ErrInvalidQuery), errors.Is(err, exports.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, media.ErrNotImage):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, media.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, exports.ErrQueueFull):
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// warnings lists non-blocking violation messages, or nil.
func warnings(res core.Result) []string {
	if len(res.Violations) == 0 {
		return nil
	}
	return res.Messages()
}
