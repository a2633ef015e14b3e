package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CookieName is the session cookie carrying the signed token.
const CookieName = "inmo_session"

// LoginPath is where unauthenticated HTML requests are redirected.
const LoginPath = "/ingreso"

type adminKey struct{}

// WithAdminID returns a context carrying the authenticated admin id.
func WithAdminID(ctx context.Context, adminID string) context.Context {
	return context.WithValue(ctx, adminKey{}, adminID)
}

// AdminID returns the authenticated admin id stored in ctx.
func AdminID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(adminKey{}).(string)
	return id, ok && id != ""
}

// Gate authenticates requests using session tokens. Active, when set, is
// consulted so disabled or deleted admins lose access before their token
// expires.
type Gate struct {
	Sessions *Sessions
	Active   func(ctx context.Context, adminID string) bool
	Secure   bool
}

// Authenticate resolves the admin id from the session cookie or a bearer token.
func (g *Gate) Authenticate(r *http.Request) (string, bool) {
	token := bearerToken(r)
	if token == "" {
		if c, err := r.Cookie(CookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return "", false
	}
	adminID, err := g.Sessions.Verify(token)
	if err != nil {
		return "", false
	}
	if g.Active != nil && !g.Active(r.Context(), adminID) {
		return "", false
	}
	return adminID, true
}

// Optional stores the admin id in the request context when a valid session is
// present and never rejects the request.
func (g *Gate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := g.Authenticate(r); ok {
			r = r.WithContext(WithAdminID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePage redirects anonymous visitors to the login page, preserving the
// requested path in the "from" query parameter.
func (g *Gate) RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := g.Authenticate(r)
		if !ok {
			http.Redirect(w, r, LoginRedirect(r.URL), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAdminID(r.Context(), id)))
	})
}

// RequireAPI answers anonymous API calls with 401 and a JSON error body.
func (g *Gate) RequireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := g.Authenticate(r)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAdminID(r.Context(), id)))
	})
}

// SetSession writes the session cookie.
func (g *Gate) SetSession(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   g.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSession expires the session cookie.
func (g *Gate) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// LoginRedirect builds the login URL for the requested location.
func LoginRedirect(from *url.URL) string {
	target := from.Path
	if from.RawQuery != "" {
		target += "?" + from.RawQuery
	}
	return LoginPath + "?" + url.Values{"from": {target}}.Encode()
}

// SafeRedirect returns from when it is a local absolute path, else fallback.
func SafeRedirect(from, fallback string) string {
	if from == "" || !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return fallback
	}
	return from
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
