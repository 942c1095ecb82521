package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/identity"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/models"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// ProfileSyncer records the caller's profile in the user directory.
type ProfileSyncer interface {
	SyncProfile(ctx context.Context, u models.User) error
}

// AuthMiddleware verifies bearer tokens issued by the identity service.
type AuthMiddleware struct {
	verifier identity.Verifier
	profiles ProfileSyncer
	logger   zerolog.Logger

	synced sync.Map // user id -> last synced models.User
}

// NewAuthMiddleware creates a new auth middleware. profiles may be nil.
func NewAuthMiddleware(verifier identity.Verifier, profiles ProfileSyncer, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		profiles: profiles,
		logger:   logger,
	}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// verified claims in the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			jsonError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			jsonError(w, http.StatusUnauthorized, "authorization header must be a bearer token")
			return
		}

		claims, err := m.verifier.Verify(r.Context(), strings.TrimSpace(token))
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		m.syncProfile(r.Context(), claims)
		setRequestUser(r.Context(), claims.UserID)

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// syncProfile upserts the caller when its claims changed since the last
// request this process saw. Failures are logged; the request goes on.
func (m *AuthMiddleware) syncProfile(ctx context.Context, claims *identity.Claims) {
	if m.profiles == nil || claims.UserID <= 0 {
		return
	}
	u := models.User{ID: claims.UserID, Username: claims.Username, Email: claims.Email}
	if prev, ok := m.synced.Load(u.ID); ok && prev.(models.User) == u {
		return
	}
	if err := m.profiles.SyncProfile(ctx, u); err != nil {
		m.logger.Warn().Err(err).Int64("user_id", u.ID).Msg("profile sync failed")
		return
	}
	m.synced.Store(u.ID, u)
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetClaimsFromContext retrieves the verified caller from the request context.
func GetClaimsFromContext(ctx context.Context) *identity.Claims {
	claims, ok := ctx.Value(ClaimsContextKey).(*identity.Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetUserIDFromContext returns the caller's user id, zero when unauthenticated.
func GetUserIDFromContext(ctx context.Context) int64 {
	if c := GetClaimsFromContext(ctx); c != nil {
		return c.UserID
	}
	return 0
}
