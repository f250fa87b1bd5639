package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/infrastructure/logger"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// CallerContextKey is the context key for the authenticated caller
	CallerContextKey ContextKey = "caller"

	// AccountIDHeader names the caller when token auth is disabled.
	AccountIDHeader = "X-Account-ID"
)

// Authenticator turns a bearer token into a caller.
type Authenticator interface {
	Authenticate(token string) (domain.Caller, error)
}

// AuthObserver counts rejected credentials.
type AuthObserver interface {
	AuthFailed(reason string)
}

// AuthMiddleware resolves the caller of a request. With an authenticator
// the caller comes from the bearer token; without one the X-Account-ID
// header names the caller, who is treated as an admin. Requests without
// credentials pass through anonymously; invalid credentials are rejected.
func AuthMiddleware(authn Authenticator, observer AuthObserver) func(http.Handler) http.Handler {
	fail := func(w http.ResponseWriter, reason, message string) {
		if observer != nil {
			observer.AuthFailed(reason)
		}
		writeError(w, http.StatusUnauthorized, message)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				caller domain.Caller
				err    error
			)

			if authn != nil {
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					next.ServeHTTP(w, r)
					return
				}

				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || parts[0] != "Bearer" {
					fail(w, "malformed_header", "invalid authorization header format")
					return
				}

				caller, err = authn.Authenticate(parts[1])
				if err != nil {
					if errors.Is(err, domain.ErrExpiredToken) {
						fail(w, "expired_token", "token has expired")
						return
					}
					fail(w, "invalid_token", "invalid token")
					return
				}
			} else {
				id := r.Header.Get(AccountIDHeader)
				if id == "" {
					next.ServeHTTP(w, r)
					return
				}

				caller.Address, err = domain.ParseAddress(id)
				if err != nil {
					fail(w, "invalid_account_id", "invalid "+AccountIDHeader+" header")
					return
				}
				caller.Role = domain.RoleAdmin
			}

			ctx := context.WithValue(r.Context(), CallerContextKey, caller)
			ctx = logger.ContextWithCaller(ctx, caller.Address.Hex())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCaller rejects anonymous requests.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CallerFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole creates a middleware that checks for a specific role
func RequireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error())
				return
			}

			if caller.Role != role && caller.Role != domain.RoleAdmin {
				writeError(w, http.StatusForbidden, domain.ErrInsufficientRole.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CallerFromContext extracts the authenticated caller from context
func CallerFromContext(ctx context.Context) (domain.Caller, bool) {
	caller, ok := ctx.Value(CallerContextKey).(domain.Caller)
	return caller, ok
}

// WithCaller stores caller in ctx.
func WithCaller(ctx context.Context, caller domain.Caller) context.Context {
	return context.WithValue(ctx, CallerContextKey, caller)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
