package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/mcoot/tileclaim/internal/api/apierr"
	"github.com/mcoot/tileclaim/internal/model"
)

type contextKey string

const profileContextKey contextKey = "profile_id"

// AdminTokenHeader carries the static admin token
const AdminTokenHeader = "X-Admin-Token"

// TokenVerifier resolves a bearer token to the profile it was issued for
type TokenVerifier interface {
	Verify(token string) (model.ProfileID, error)
}

// Auth creates authentication middleware
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			id, err := verifier.Verify(token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithProfileID(r.Context(), id)))
		})
	}
}

// OptionalAuth extracts the profile if a valid token is present but doesn't require it
func OptionalAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := extractToken(r); token != "" {
				if id, err := verifier.Verify(token); err == nil {
					r = r.WithContext(WithProfileID(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Admin guards operator endpoints with a static token.
// An empty configured token disables the endpoints entirely.
func Admin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := r.Header.Get(AdminTokenHeader)
			if token == "" || given == "" {
				apierr.WriteError(w, apierr.NewForbiddenError())
				return
			}
			if subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
				apierr.WriteError(w, apierr.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractToken extracts the bearer token from the request
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	// Browsers cannot set headers on EventSource or websocket requests
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	cookie, err := r.Cookie("tileclaim_token")
	if err == nil {
		return cookie.Value
	}

	return ""
}

// WithProfileID stores the authenticated profile on the context
func WithProfileID(ctx context.Context, id model.ProfileID) context.Context {
	return context.WithValue(ctx, profileContextKey, id)
}

// GetProfileID returns the authenticated profile, or "" when anonymous
func GetProfileID(ctx context.Context) model.ProfileID {
	id, _ := ctx.Value(profileContextKey).(model.ProfileID)
	return id
}

// MustGetProfileID returns the authenticated profile or panics
func MustGetProfileID(ctx context.Context) model.ProfileID {
	id := GetProfileID(ctx)
	if id == "" {
		panic("no profile in context - auth middleware not applied?")
	}
	return id
}
