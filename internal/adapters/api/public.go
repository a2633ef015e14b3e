package api

import (
	"net/http"
	"time"

	"inmoelegance/internal/core"
	"inmoelegance/internal/wishlist"
)

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, err := core.ParsePropertyQuery(r.URL.Query())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	res, err := h.opts.Service.SearchProperties(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type propertyResponse struct {
	Property core.Property `json:"property"`
	Agent    *agentView    `json:"agent,omitempty"`
}

// agentView is the public part of an agent profile.
type agentView struct {
	DisplayName string `json:"display_name"`
	NumberPhone string `json:"number_phone,omitempty"`
	Email       string `json:"email,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

func (h *Handler) handleProperty(w http.ResponseWriter, r *http.Request) {
	p, err := h.opts.Service.GetPublishedProperty(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	resp := propertyResponse{Property: p}
	if profile, ok, err := h.opts.Service.GetProfile(r.Context(), p.AdminID); err == nil && ok {
		resp.Agent = &agentView{
			DisplayName: profile.DisplayName,
			NumberPhone: profile.NumberPhone,
			Email:       profile.Email,
			PhotoURL:    profile.PhotoURL,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.opts.Service.GetPublishedProperty(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items, err := h.opts.Service.SimilarProperties(r.Context(), id, h.opts.SimilarLimit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type contactRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Message    string `json:"message"`
	PropertyID string `json:"property_id"`
}

func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid contact payload")
		return
	}
	lead, res, err := h.opts.Service.SubmitLead(r.Context(), core.Lead{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Message:    req.Message,
		PropertyID: req.PropertyID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"lead": lead, "warnings": warnings(res)})
}

func (h *Handler) visitor(w http.ResponseWriter, r *http.Request) string {
	secure := h.opts.Gate != nil && h.opts.Gate.Secure
	return wishlist.VisitorID(w, r, secure)
}

func (h *Handler) writeWishlist(w http.ResponseWriter, status int, visitor string) {
	writeJSON(w, status, map[string]any{"items": h.opts.Wishlist.Items(visitor)})
}

func (h *Handler) handleWishlist(w http.ResponseWriter, r *http.Request) {
	h.writeWishlist(w, http.StatusOK, h.visitor(w, r))
}

type wishlistRequest struct {
	ID string `json:"id"`
}

func (h *Handler) handleWishlistAdd(w http.ResponseWriter, r *http.Request) {
	visitor := h.visitor(w, r)
	var req wishlistRequest
	if err := decodeJSON(w, r, &req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "a listing id is required")
		return
	}
	p, err := h.opts.Service.GetPublishedProperty(r.Context(), req.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if h.opts.Wishlist.Add(visitor, wishlist.ItemFor(p)) {
		status = http.StatusCreated
	}
	h.writeWishlist(w, status, visitor)
}

func (h *Handler) handleWishlistRemove(w http.ResponseWriter, r *http.Request) {
	visitor := h.visitor(w, r)
	h.opts.Wishlist.Remove(visitor, r.PathValue("id"))
	h.writeWishlist(w, http.StatusOK, visitor)
}

func (h *Handler) handleWishlistClear(w http.ResponseWriter, r *http.Request) {
	visitor := h.visitor(w, r)
	h.opts.Wishlist.Clear(visitor)
	h.writeWishlist(w, http.StatusOK, visitor)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// adminView omits the password hash.
type adminView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func viewAdmin(a core.Admin) adminView {
	return adminView{ID: a.ID, Email: a.Email, CreatedAt: a.CreatedAt}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid login payload")
		return
	}
	admin, err := h.opts.Service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	token, expires, err := h.opts.Gate.Sessions.Issue(admin.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.opts.Gate.SetSession(w, token, expires)
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expires,
		"admin":      viewAdmin(admin),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, _ *http.Request) {
	h.opts.Gate.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	admin, err := h.opts.Service.GetAdmin(r.Context(), adminID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"admin": viewAdmin(admin)})
}
