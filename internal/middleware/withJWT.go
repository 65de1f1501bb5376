// Package middleware provides the HTTP middleware of the shortener: token
// authentication, subnet filtering, access logging and gzip.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/atinyakov/shortlinks/internal/app/service"
)

// ContextKey is a custom type used for keys in the context.
type ContextKey string

const (
	// UserIDKey is the key used to store and retrieve the user ID from the context.
	UserIDKey ContextKey = "userID"
	// AdminKey holds true when the caller's token carries the admin flag.
	AdminKey ContextKey = "admin"
)

const tokenCookie = "token"

// InjectUserID adds the user ID to the request context.
func InjectUserID(req *http.Request, userID string, admin bool) *http.Request {
	ctx := context.WithValue(req.Context(), UserIDKey, userID)
	ctx = context.WithValue(ctx, AdminKey, admin)
	return req.WithContext(ctx)
}

// UserID returns the authenticated caller, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok && id != ""
}

func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(AdminKey).(bool)
	return admin
}

func bearer(r *http.Request) string {
	if c, err := r.Cookie(tokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// WithJWT authenticates the caller from the "token" cookie or an
// Authorization bearer header. A caller without a token becomes a new
// anonymous user and receives a cookie; a bad token is rejected.
func WithJWT(auth service.AuthIface) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearer(r)

			if raw == "" {
				tokenString, generatedID, err := auth.BuildJWTString()
				if err != nil {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     tokenCookie,
					Value:    tokenString,
					Expires:  time.Now().Add(service.TokenExp),
					HttpOnly: true,
					Path:     "/",
				})

				next.ServeHTTP(w, InjectUserID(r, generatedID, false))
				return
			}

			claims, err := auth.ParseRawJWT(raw)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, InjectUserID(r, claims.UserID, claims.Admin))
		})
	}
}

// RequireAdmin lets through only callers whose token has the admin flag.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
