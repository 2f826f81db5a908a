package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Ahmed3117/silverbook-authguard/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey contextKey = "user"
)

// SessionValidator defines the interface for checking that the session token
// in a credential still maps to an active device session
type SessionValidator interface {
	ValidateSession(ctx context.Context, userID, sessionToken string) error
}

// SessionConfig holds configuration for session validation behavior
type SessionConfig struct {
	// AllowLegacyTokens admits credentials issued before session tokens
	// existed (no session_token claim). Disable once the migration ends.
	AllowLegacyTokens bool
}

// AuthMiddleware validates JWT tokens and injects user claims into context
func AuthMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return AuthMiddlewareWithSessions(tm, nil, SessionConfig{AllowLegacyTokens: true})
}

// AuthMiddlewareWithSessions validates JWT tokens and, for capped user
// classes, checks the embedded session token against the session governor.
// A session invalidated by eviction or revocation fails closed with 401, so
// the device is forced to log in again.
func AuthMiddlewareWithSessions(tm *TokenManager, sessions SessionValidator, sessionConfig SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateToken(parts[1])
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			// Refresh tokens are only accepted by the refresh endpoint
			if claims.Type == "refresh" {
				http.Error(w, "refresh tokens cannot be used for API access", http.StatusUnauthorized)
				return
			}

			if sessions != nil && claims.UserType == models.UserTypeStudent {
				if claims.SessionToken == "" {
					if !sessionConfig.AllowLegacyTokens {
						http.Error(w, "invalid or expired token", http.StatusUnauthorized)
						return
					}
				} else if err := sessions.ValidateSession(r.Context(), claims.UserID, claims.SessionToken); err != nil {
					if errors.Is(err, models.ErrSessionInvalid) {
						http.Error(w, models.ErrSessionInvalid.Error(), http.StatusUnauthorized)
						return
					}
					// Session lookup failures deny access rather than let a
					// revoked device keep its credential working.
					http.Error(w, "unable to verify session status", http.StatusServiceUnavailable)
					return
				}
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUserType creates a middleware that enforces role-based access control
func RequireUserType(userRepo UserRepository, userType string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r)
			if claims == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			// Fetch the user so a role change applies immediately, not at
			// next token issuance
			user, err := userRepo.GetByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					http.Error(w, "user not found", http.StatusUnauthorized)
					return
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			if user.UserType != userType {
				http.Error(w, "forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// UserRepository interface for fetching user data
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}
