package web

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"inmoelegance/internal/auth"
	"inmoelegance/internal/core"
	"inmoelegance/internal/wishlist"
	"inmoelegance/pkg/domain"
)

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	featured, err := h.opts.Service.FeaturedProperties(r.Context(), h.opts.Site.FeaturedLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "home", h.newView(r, "Inicio", map[string]any{"Featured": featured}))
}

type pageLink struct {
	Number  int
	URL     string
	Current bool
}

type explorerData struct {
	Query      core.PropertyQuery
	Values     url.Values
	Result     core.SearchResult
	Pages      []pageLink
	Types      []domain.PropertyType
	Operations []domain.Operation
	SortKeys   []core.SortKey
}

func (h *Handler) handleExplorer(w http.ResponseWriter, r *http.Request) {
	q, err := core.ParsePropertyQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.opts.Service.SearchProperties(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data := explorerData{
		Query:      q,
		Values:     q.Encode(),
		Result:     res,
		Types:      domain.PropertyTypes,
		Operations: domain.Operations,
		SortKeys:   core.SortKeys,
	}
	for n := 1; n <= res.Pages; n++ {
		values := q.Encode()
		if n > 1 {
			values.Set("page", strconv.Itoa(n))
		}
		data.Pages = append(data.Pages, pageLink{Number: n, URL: "/propiedades?" + values.Encode(), Current: n == res.Page})
	}
	h.render(w, r, http.StatusOK, "properties", h.newView(r, "Propiedades", data))
}

type detailData struct {
	Property   core.Property
	Agent      *core.Profile
	Similar    []core.Property
	InWishlist bool
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	p, err := h.opts.Service.GetPublishedProperty(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data := detailData{Property: p}
	if profile, ok, err := h.opts.Service.GetProfile(r.Context(), p.AdminID); err == nil && ok {
		data.Agent = &profile
	}
	if data.Similar, err = h.opts.Service.SimilarProperties(r.Context(), p.ID, h.opts.Site.SimilarLimit); err != nil {
		h.logger.Warn("similar listings unavailable", zap.String("property_id", p.ID), zap.Error(err))
	}
	if c, err := r.Cookie(wishlist.CookieName); err == nil {
		data.InWishlist = h.opts.Wishlist.Contains(c.Value, p.ID)
	}
	h.render(w, r, http.StatusOK, "property", h.newView(r, p.Title, data))
}

type contactForm struct {
	Name       string
	Email      string
	Phone      string
	Message    string
	PropertyID string
	Property   *core.Property
}

func (h *Handler) contactView(r *http.Request, form contactForm) view {
	if form.PropertyID != "" && form.Property == nil {
		if p, err := h.opts.Service.GetPublishedProperty(r.Context(), form.PropertyID); err == nil {
			form.Property = &p
		}
	}
	return h.newView(r, "Contacto", form)
}

func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	v := h.contactView(r, contactForm{PropertyID: r.URL.Query().Get("propiedad")})
	if r.URL.Query().Get("enviado") == "1" {
		v.Flash = "¡Gracias! Te responderemos a la brevedad."
	}
	h.render(w, r, http.StatusOK, "contact", v)
}

func (h *Handler) handleContactSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Formulario inválido.")
		return
	}
	form := contactForm{
		Name:       r.PostForm.Get("name"),
		Email:      r.PostForm.Get("email"),
		Phone:      r.PostForm.Get("phone"),
		Message:    r.PostForm.Get("message"),
		PropertyID: r.PostForm.Get("property_id"),
	}
	_, _, err := h.opts.Service.SubmitLead(r.Context(), core.Lead{
		Name:       form.Name,
		Email:      form.Email,
		Phone:      form.Phone,
		Message:    form.Message,
		PropertyID: form.PropertyID,
	})
	if msgs := violations(err); msgs != nil {
		v := h.contactView(r, form)
		v.Errors = msgs
		h.render(w, r, http.StatusUnprocessableEntity, "contact", v)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	redirect(w, r, "/contacto?enviado=1")
}

func (h *Handler) handleAbout(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "about", h.newView(r, "Sobre nosotros", nil))
}

func (h *Handler) visitor(w http.ResponseWriter, r *http.Request) string {
	return wishlist.VisitorID(w, r, h.opts.Gate.Secure)
}

func (h *Handler) handleWishlist(w http.ResponseWriter, r *http.Request) {
	items := []wishlist.Item{}
	if c, err := r.Cookie(wishlist.CookieName); err == nil {
		items = h.opts.Wishlist.Items(c.Value)
	}
	h.render(w, r, http.StatusOK, "wishlist", h.newView(r, "Favoritos", map[string]any{"Items": items}))
}

func (h *Handler) handleWishlistAdd(w http.ResponseWriter, r *http.Request) {
	visitor := h.visitor(w, r)
	id := r.FormValue("id")
	p, err := h.opts.Service.GetPublishedProperty(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.opts.Wishlist.Add(visitor, wishlist.ItemFor(p))
	redirect(w, r, auth.SafeRedirect(r.FormValue("from"), "/wishlist"))
}

func (h *Handler) handleWishlistRemove(w http.ResponseWriter, r *http.Request) {
	h.opts.Wishlist.Remove(h.visitor(w, r), r.PathValue("id"))
	redirect(w, r, auth.SafeRedirect(r.FormValue("from"), "/wishlist"))
}

func (h *Handler) handleWishlistClear(w http.ResponseWriter, r *http.Request) {
	h.opts.Wishlist.Clear(h.visitor(w, r))
	redirect(w, r, "/wishlist")
}

type loginForm struct {
	Email string
	From  string
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	from := auth.SafeRedirect(r.URL.Query().Get("from"), "/dashboard")
	if _, ok := auth.AdminID(r.Context()); ok {
		redirect(w, r, from)
		return
	}
	h.render(w, r, http.StatusOK, "login", h.newView(r, "Ingreso", loginForm{From: from}))
}

func (h *Handler) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Formulario inválido.")
		return
	}
	form := loginForm{
		Email: strings.TrimSpace(r.PostForm.Get("email")),
		From:  auth.SafeRedirect(r.PostForm.Get("from"), "/dashboard"),
	}
	admin, err := h.opts.Service.Authenticate(r.Context(), form.Email, r.PostForm.Get("password"))
	if errors.Is(err, auth.ErrInvalidCredentials) {
		v := h.newView(r, "Ingreso", form)
		v.Errors = []string{"Email o contraseña incorrectos."}
		h.render(w, r, http.StatusUnauthorized, "login", v)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	token, expires, err := h.opts.Gate.Sessions.Issue(admin.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.opts.Gate.SetSession(w, token, expires)
	redirect(w, r, form.From)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.opts.Gate.ClearSession(w)
	redirect(w, r, "/")
}
