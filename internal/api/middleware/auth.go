package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/kiranshivaraju/sheltertrack/internal/api/response"
	"github.com/kiranshivaraju/sheltertrack/internal/apikey"
	"github.com/kiranshivaraju/sheltertrack/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// Auth resolves bearer API keys to actors and enforces scopes.
type Auth struct {
	keys store.KeyStore
}

// NewAuth creates a new Auth middleware.
func NewAuth(keys store.KeyStore) *Auth {
	return &Auth{keys: keys}
}

// Authenticate validates the Bearer token and puts the key's name (the actor),
// prefix, and scopes in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}
		if len(rawKey) < apikey.PrefixLen {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key format", nil)
			return
		}

		prefix := rawKey[:apikey.PrefixLen]
		keys, err := a.keys.GetAPIKeyByPrefix(r.Context(), prefix)
		if err != nil {
			slog.Error("api key lookup failed", "error", err, "key_prefix", prefix)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil)
			return
		}

		for _, key := range keys {
			if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)) != nil {
				continue
			}
			ctx := SetActor(r.Context(), key.Name)
			ctx = setKeyPrefix(ctx, prefix)
			ctx = SetScopes(ctx, key.Scopes)

			go a.touch(key.ID.String(), func(ctx context.Context) error {
				return a.keys.UpdateAPIKeyLastUsed(ctx, key.ID)
			})

			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid API key", nil)
	})
}

// touch records last use off the request path.
func (a *Auth) touch(keyID string, update func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := update(ctx); err != nil {
		slog.Warn("failed to update api key last_used_at", "key_id", keyID, "error", err)
	}
}

// RequireScope returns middleware that checks whether the authenticated
// API key has the specified scope.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(getScopes(r), scope) {
				next.ServeHTTP(w, r)
				return
			}
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions", nil)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
