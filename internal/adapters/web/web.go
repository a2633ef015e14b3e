// Package web serves the server-rendered public site and the admin dashboard.
package web

import (
	"context"
	"errors"
	"io/fs"
	"net/http"

	"go.uber.org/zap"

	"inmoelegance/internal/auth"
	"inmoelegance/internal/core"
	"inmoelegance/internal/media"
	"inmoelegance/internal/wishlist"
)

// Service is the slice of *core.Service rendered by the site.
type Service interface {
	SearchProperties(ctx context.Context, q core.PropertyQuery) (core.SearchResult, error)
	FeaturedProperties(ctx context.Context, limit int) ([]core.Property, error)
	SimilarProperties(ctx context.Context, id string, limit int) ([]core.Property, error)
	GetProperty(ctx context.Context, id string) (core.Property, error)
	GetPublishedProperty(ctx context.Context, id string) (core.Property, error)
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
}

// Site carries presentation settings shown on every page.
type Site struct {
	Name          string
	ContactEmail  string
	ContactPhone  string
	FeaturedLimit int
	SimilarLimit  int
}

// Options wires the site dependencies. Images is optional; without it the
// forms accept image URLs only.
type Options struct {
	Service  Service
	Gate     *auth.Gate
	Login    *auth.Throttle
	Contact  *auth.Throttle
	Wishlist *wishlist.Store
	Images   media.Uploader
	Logger   *zap.Logger
	Site     Site
}

// Handler routes the HTML pages.
type Handler struct {
	opts   Options
	logger *zap.Logger
	pages  *renderer
	mux    *http.ServeMux
}

// NewHandler parses the embedded templates and builds the router.
func NewHandler(opts Options) (*Handler, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Wishlist == nil {
		opts.Wishlist = wishlist.New(0)
	}
	if opts.Site.Name == "" {
		opts.Site.Name = "Inmobiliaria Elegance"
	}
	pages, err := newRenderer(newMarkdown())
	if err != nil {
		return nil, err
	}
	h := &Handler{opts: opts, logger: logger.Named("web"), pages: pages, mux: http.NewServeMux()}
	h.routes()
	return h, nil
}

func (h *Handler) routes() {
	gate := h.opts.Gate
	page := func(fn http.HandlerFunc) http.Handler { return gate.RequirePage(fn) }
	tooMany := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.renderError(w, r, http.StatusTooManyRequests, "Demasiados intentos. Espera un minuto y vuelve a intentarlo.")
	})
	throttled := func(t *auth.Throttle, fn http.HandlerFunc) http.Handler {
		return t.Middleware(fn, tooMany)
	}

	static, _ := fs.Sub(staticFS, "static")
	h.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	h.mux.HandleFunc("GET /{$}", h.handleHome)
	h.mux.HandleFunc("GET /propiedades", h.handleExplorer)
	h.mux.HandleFunc("GET /propiedades/{id}", h.handleDetail)
	h.mux.HandleFunc("GET /contacto", h.handleContact)
	h.mux.Handle("POST /contacto", throttled(h.opts.Contact, h.handleContactSubmit))
	h.mux.HandleFunc("GET /sobre-nosotros", h.handleAbout)
	h.mux.HandleFunc("GET /wishlist", h.handleWishlist)
	h.mux.HandleFunc("POST /wishlist/agregar", h.handleWishlistAdd)
	h.mux.HandleFunc("POST /wishlist/quitar/{id}", h.handleWishlistRemove)
	h.mux.HandleFunc("POST /wishlist/vaciar", h.handleWishlistClear)
	h.mux.HandleFunc("GET /ingreso", h.handleLogin)
	h.mux.Handle("POST /ingreso", throttled(h.opts.Login, h.handleLoginSubmit))
	h.mux.HandleFunc("POST /salir", h.handleLogout)

	h.mux.Handle("GET /dashboard", page(h.handleDashboard))
	h.mux.Handle("GET /dashboard/nueva-propiedad", page(h.handleNewProperty))
	h.mux.Handle("POST /dashboard/nueva-propiedad", page(h.handleCreateProperty))
	h.mux.Handle("GET /dashboard/editar/{id}", page(h.handleEditProperty))
	h.mux.Handle("POST /dashboard/editar/{id}", page(h.handleUpdateProperty))
	h.mux.Handle("POST /dashboard/propiedades/{id}/estado", page(h.handleToggleProperty))
	h.mux.Handle("POST /dashboard/propiedades/{id}/eliminar", page(h.handleDeleteProperty))
	h.mux.Handle("GET /dashboard/perfil", page(h.handleProfile))
	h.mux.Handle("POST /dashboard/perfil", page(h.handleProfileSave))
	h.mux.Handle("GET /dashboard/consultas", page(h.handleLeads))
	h.mux.Handle("POST /dashboard/consultas/{id}/eliminar", page(h.handleLeadDelete))

	h.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		h.renderError(w, r, http.StatusNotFound, "La página que buscas no existe.")
	})
}

// ServeHTTP resolves the optional admin session before routing so public
// pages can show the dashboard link.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.opts.Gate.Optional(h.mux).ServeHTTP(w, r)
}

// view is the data passed to every template.
type view struct {
	Title    string
	Site     Site
	AdminID  string
	Path     string
	Wishlist int
	Flash    string
	Errors   []string
	Data     any
}

func (h *Handler) newView(r *http.Request, title string, data any) view {
	adminID, _ := auth.AdminID(r.Context())
	v := view{Title: title, Site: h.opts.Site, AdminID: adminID, Path: r.URL.Path, Data: data}
	if c, err := r.Cookie(wishlist.CookieName); err == nil {
		v.Wishlist = len(h.opts.Wishlist.Items(c.Value))
	}
	return v
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, v view) {
	if err := h.pages.render(w, status, name, v); err != nil {
		h.logger.Error("render failed", zap.String("page", name), zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	v := h.newView(r, http.StatusText(status), map[string]any{"Status": status, "Message": message})
	h.render(w, r, status, "error", v)
}

// fail maps service errors to error pages.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case core.IsNotFound(err):
		h.renderError(w, r, http.StatusNotFound, "No encontramos lo que buscas.")
	case errors.Is(err, core.ErrForbidden):
		h.renderError(w, r, http.StatusForbidden, "No tienes permiso para modificar esta propiedad.")
	case errors.Is(err, core.ErrInvalidQuery):
		h.renderError(w, r, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		h.renderError(w, r, http.StatusInternalServerError, "Ocurrió un error inesperado.")
	}
}

// violations returns the blocking messages of a rule violation, or nil when
// err is not one.
func violations(err error) []string {
	var violation core.RuleViolationError
	if !errors.As(err, &violation) {
		return nil
	}
	var out []string
	for _, v := range violation.Result.Violations {
		if v.Severity == core.SeverityBlock {
			out = append(out, v.Message)
		}
	}
	return out
}

func adminID(r *http.Request) string {
	id, _ := auth.AdminID(r.Context())
	return id
}

func redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}
