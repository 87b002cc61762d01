package middleware

import (
	"context"
	"net/http"
	"strings"

	jwtinfra "github.com/go-auth-api/internal/infrastructure/jwt"
)

type contextKey string

const (
	UsernameKey contextKey = "username"
	TokenKey    contextKey = "token"
)

// SessionCookie is the cookie carrying the session token for browser
// clients. Login sets it, logout expires it, and BearerToken falls back
// to it.
const SessionCookie = "access_token"

// SessionReader is the slice of the session cache the middleware needs.
type SessionReader interface {
	Get(ctx context.Context, username string) (string, error)
}

// TokenVerifier verifies a signed session token and returns its claims.
type TokenVerifier interface {
	Verify(tokenStr string) (*jwtinfra.Claims, error)
}

// Auth returns middleware that validates the presented session token.
// A signature check alone is not enough: the token must also be the exact
// value the cache currently holds for that username, so tokens superseded
// by a later login are rejected even before they expire.
func Auth(verifier TokenVerifier, sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := BearerToken(r)
			if tokenStr == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing session token")
				return
			}
			claims, err := verifier.Verify(tokenStr)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			cached, err := sessions.Get(r.Context(), claims.Username)
			if err != nil || cached != tokenStr {
				writeJSONError(w, http.StatusUnauthorized, "session revoked or superseded")
				return
			}
			ctx := context.WithValue(r.Context(), UsernameKey, claims.Username)
			ctx = context.WithValue(ctx, TokenKey, tokenStr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UsernameFromContext extracts the authenticated username from the request context.
func UsernameFromContext(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(UsernameKey).(string)
	return u, ok
}

// TokenFromContext extracts the presented session token from the request context.
func TokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(TokenKey).(string)
	return t, ok
}

// BearerToken pulls the session token from the Authorization header,
// falling back to the session cookie browsers carry. Handlers share this
// so header and cookie extraction cannot drift.
func BearerToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}
