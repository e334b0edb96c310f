package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/phenopolis/twofactor/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

// AccountContextKey is the key for storing validated claims in context
const AccountContextKey contextKey = "account"

// RequireAccount validates the authenticated-session token (cookie or
// Bearer header) and injects the claims into the request context.
// Remember-device tokens are rejected here: they bypass the second
// factor during login, never a signed-in session.
func RequireAccount(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				tokenString = CookieValue(r, AuthSessionCookie)
			}
			if tokenString == "" {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, "invalid or expired session", http.StatusUnauthorized)
				return
			}

			if claims.Type != models.TokenTypeAuth {
				http.Error(w, "invalid or expired session", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), AccountContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAccount injects validated claims when the request carries an
// auth token and passes the request through untouched when it does not.
// Routes that serve both mid-login and signed-in callers use this; the
// handler decides what an absent account means. Remember-device tokens
// are ignored here for the same reason RequireAccount rejects them.
func OptionalAccount(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				tokenString = CookieValue(r, AuthSessionCookie)
			}
			if tokenString != "" {
				if claims, err := tm.ValidateToken(tokenString); err == nil && claims.Type == models.TokenTypeAuth {
					r = r.WithContext(context.WithValue(r.Context(), AccountContextKey, claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccountFromContext extracts validated claims from the request context,
// or nil when the request is unauthenticated.
func AccountFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(AccountContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
