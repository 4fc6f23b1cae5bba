package middleware

import (
	"context"
	"net/http"
	"strings"
)

// Keys are static API keys. Admin keys also satisfy RequireAny.
type Keys struct {
	Public []string
	Admin  []string
}

// TokenCheck reports whether a session token is known and unexpired.
type TokenCheck func(ctx context.Context, token string) bool

// Auth guards read and write routes. Reads accept an API key or a session
// token sent in the "token" header; writes need an admin key.
type Auth struct {
	Keys   Keys
	Tokens TokenCheck
}

func readKey(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func hasKey(given string, set []string) bool {
	if given == "" {
		return false
	}
	for _, k := range set {
		if k == given {
			return true
		}
	}
	return false
}

func deny(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

func (a Auth) enabled() bool {
	return len(a.Keys.Public) > 0 || len(a.Keys.Admin) > 0
}

// RequireAny lets through a public key, an admin key or a valid token.
// With no keys configured every request passes (local dev).
func (a Auth) RequireAny() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !a.enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := readKey(r)
			if hasKey(key, a.Keys.Public) || hasKey(key, a.Keys.Admin) {
				next.ServeHTTP(w, r)
				return
			}
			if tok := strings.TrimSpace(r.Header.Get("token")); tok != "" && a.Tokens != nil && a.Tokens(r.Context(), tok) {
				next.ServeHTTP(w, r)
				return
			}
			deny(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

// RequireAdmin only permits admin keys. Without admin keys configured it
// allows everything.
func (a Auth) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(a.Keys.Admin) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := readKey(r)
			switch {
			case hasKey(key, a.Keys.Admin):
				next.ServeHTTP(w, r)
			case key == "":
				deny(w, http.StatusUnauthorized, "unauthorized")
			default:
				deny(w, http.StatusForbidden, "forbidden")
			}
		})
	}
}

// IsAdmin reports whether r carries an admin key. Without admin keys
// configured every caller is treated as admin, matching RequireAdmin.
func (a Auth) IsAdmin(r *http.Request) bool {
	if len(a.Keys.Admin) == 0 {
		return true
	}
	return hasKey(readKey(r), a.Keys.Admin)
}
