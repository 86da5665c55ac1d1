package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/sheltertrack/internal/api/handler"
	"github.com/kiranshivaraju/sheltertrack/internal/apikey"
	"github.com/kiranshivaraju/sheltertrack/internal/store"
	"github.com/kiranshivaraju/sheltertrack/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type failingKeyManager struct {
	handler.KeyManager
}

func (failingKeyManager) List(context.Context) ([]*models.APIKey, error) {
	return nil, errors.New("db down")
}

func keyRoutes(m handler.KeyManager) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/admin/keys", handler.NewCreateKeyHandler(m))
	r.Get("/api/v1/admin/keys", handler.NewListKeysHandler(m))
	r.Delete("/api/v1/admin/keys/{keyID}", handler.NewRevokeKeyHandler(m))
	return r
}

func serve(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestKeys_CreateListRevoke(t *testing.T) {
	routes := keyRoutes(apikey.NewManager(store.NewMemoryStore(), bcrypt.MinCost))

	rec := serve(routes, http.MethodPost, "/api/v1/admin/keys", map[string]any{"name": "alice", "scopes": []string{"admin"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data struct {
			Key struct {
				ID     string   `json:"id"`
				Name   string   `json:"name"`
				Scopes []string `json:"scopes"`
			} `json:"key"`
			RawKey string `json:"raw_key"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "alice", created.Data.Key.Name)
	assert.Equal(t, []string{"admin"}, created.Data.Key.Scopes)
	assert.NotEmpty(t, created.Data.RawKey)
	assert.NotContains(t, rec.Body.String(), "key_hash")

	rec = serve(routes, http.MethodGet, "/api/v1/admin/keys", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), created.Data.RawKey)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = serve(routes, http.MethodDelete, "/api/v1/admin/keys/"+created.Data.Key.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(routes, http.MethodDelete, "/api/v1/admin/keys/"+created.Data.Key.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestKeys_CreateValidation(t *testing.T) {
	routes := keyRoutes(apikey.NewManager(store.NewMemoryStore(), bcrypt.MinCost))

	rec := serve(routes, http.MethodPost, "/api/v1/admin/keys", map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	code, _ := errorOf(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", code)

	rec = serve(routes, http.MethodPost, "/api/v1/admin/keys", map[string]any{"name": "bob", "scopes": []string{"superuser"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKeys_RevokeBadID(t *testing.T) {
	routes := keyRoutes(apikey.NewManager(store.NewMemoryStore(), bcrypt.MinCost))

	rec := serve(routes, http.MethodDelete, "/api/v1/admin/keys/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(routes, http.MethodDelete, "/api/v1/admin/keys/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestKeys_ListEmptyAndFailure(t *testing.T) {
	rec := serve(keyRoutes(apikey.NewManager(store.NewMemoryStore(), bcrypt.MinCost)), http.MethodGet, "/api/v1/admin/keys", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[],"meta":{"count":0}}`, rec.Body.String())

	rec = serve(keyRoutes(failingKeyManager{}), http.MethodGet, "/api/v1/admin/keys", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
