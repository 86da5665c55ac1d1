package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/sheltertrack/internal/api/response"
	"github.com/kiranshivaraju/sheltertrack/internal/apikey"
	"github.com/kiranshivaraju/sheltertrack/pkg/models"
)

// KeyManager defines the key administration operations the handlers depend on.
type KeyManager interface {
	Create(ctx context.Context, name string, scopes []string) (*apikey.Created, error)
	List(ctx context.Context) ([]*models.APIKey, error)
	Revoke(ctx context.Context, id uuid.UUID) error
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
// The raw key appears in this response only.
func NewCreateKeyHandler(m KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name   string   `json:"name"`
			Scopes []string `json:"scopes"`
		}
		if !decode(w, r, &req) {
			return
		}

		created, err := m.Create(r.Context(), req.Name, req.Scopes)
		if err != nil {
			switch {
			case errors.Is(err, apikey.ErrInvalidName), errors.Is(err, apikey.ErrInvalidScope):
				validationError(w, err.Error())
			default:
				slog.Error("create api key", "error", err)
				internalError(w)
			}
			return
		}
		response.Created(w, created)
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/admin/keys.
func NewListKeysHandler(m KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := m.List(r.Context())
		if err != nil {
			slog.Error("list api keys", "error", err)
			internalError(w)
			return
		}
		response.Collection(w, keys, len(keys))
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(m KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			validationError(w, "keyID must be a UUID")
			return
		}
		if err := m.Revoke(r.Context(), id); err != nil {
			if errors.Is(err, apikey.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "API key not found", nil)
				return
			}
			slog.Error("revoke api key", "error", err, "key_id", id)
			internalError(w)
			return
		}
		response.NoContent(w)
	}
}
