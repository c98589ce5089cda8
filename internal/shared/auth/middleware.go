// Package auth provides JWT authentication and actor identity for the
// dispatch core. Token issuance and session management are external; the
// core only needs an authenticated actor and its claimed role.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/djelfa-health/dispatch/internal/shared/config"
	"github.com/djelfa-health/dispatch/internal/shared/types"
)

// Role is the claimed role of an authenticated actor.
type Role string

const (
	// RoleParamedic is a field paramedic submitting and tracking cases.
	RoleParamedic Role = "paramedic"
	// RoleHospital is hospital staff managing readiness, beds and case
	// responses for one hospital.
	RoleHospital Role = "hospital"
	// RoleAdmin provisions hospital accounts.
	RoleAdmin Role = "admin"
)

type contextKey string

const actorContextKey contextKey = "actor"

// Actor is the authenticated identity extracted from JWT claims.
type Actor struct {
	ID   types.ID `json:"sub"`
	Role Role     `json:"role"`
	// HospitalID is set for hospital staff and scopes case ownership checks.
	HospitalID types.ID `json:"hospital_id,omitempty"`
}

// IsHospital reports whether the actor is staff of the given hospital.
func (a *Actor) IsHospital(hospitalID types.ID) bool {
	return a.Role == RoleHospital && a.HospitalID == hospitalID
}

// Claims extends JWT registered claims with dispatch-specific data
type Claims struct {
	jwt.RegisteredClaims
	Role       string `json:"role"`
	HospitalID string `json:"hospital_id,omitempty"`
}

// Middleware creates JWT authentication middleware
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (interface{}, error) {
				return []byte(cfg.JWTSecret), nil
			})
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims, ok := token.Claims.(*Claims)
			if !ok || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			actor := &Actor{
				ID:         types.ID(claims.Subject),
				Role:       Role(claims.Role),
				HospitalID: types.ID(claims.HospitalID),
			}

			ctx := context.WithValue(r.Context(), actorContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetActor extracts the actor from request context
func GetActor(ctx context.Context) *Actor {
	actor, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return actor
}

// WithActor returns a context carrying the given actor. Used by tests and
// by in-process callers that bypass the HTTP middleware.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// RequireRoles creates middleware that requires one of the given roles
func RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := GetActor(r.Context())
			if actor == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "insufficient permissions")
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
