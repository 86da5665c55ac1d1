package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kiranshivaraju/sheltertrack/internal/animal"
	"github.com/kiranshivaraju/sheltertrack/internal/api"
	"github.com/kiranshivaraju/sheltertrack/internal/api/handler"
	mw "github.com/kiranshivaraju/sheltertrack/internal/api/middleware"
	"github.com/kiranshivaraju/sheltertrack/internal/apikey"
	"github.com/kiranshivaraju/sheltertrack/internal/catalog"
	"github.com/kiranshivaraju/sheltertrack/internal/metrics"
	"github.com/kiranshivaraju/sheltertrack/internal/store"
	"github.com/kiranshivaraju/sheltertrack/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// countingCache counts in memory and never expires.
type countingCache struct {
	counts map[string]int64
}

func (c *countingCache) Ping(context.Context) error { return nil }
func (c *countingCache) Close() error               { return nil }
func (c *countingCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.counts[key]++
	return c.counts[key], nil
}

type testServer struct {
	t        *testing.T
	router   http.Handler
	adminKey string
	userKey  string
}

func newTestServer(t *testing.T, limit int) *testServer {
	t.Helper()
	st := store.NewMemoryStore()
	keys := apikey.NewManager(st, bcrypt.MinCost)

	admin, err := keys.Create(context.Background(), "root", []string{models.ScopeAdmin})
	require.NoError(t, err)
	user, err := keys.Create(context.Background(), "alice", nil)
	require.NoError(t, err)

	rec := metrics.New()
	svc := animal.NewService(st, animal.WithObserver(rec))
	animals := handler.NewAnimals(svc)

	deps := api.Dependencies{
		Auth:              mw.NewAuth(st),
		Metrics:           rec.Handler(),
		MetricsMiddleware: rec.Middleware,
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
		SpeciesHandler:   handler.NewSpeciesHandler(catalog.Default()),
		IntakeHandler:    animals.Intake,
		ListInHandler:    animals.ListIn,
		ListOutHandler:   animals.ListOut,
		GetHandler:       animals.Get,
		EditHandler:      animals.Edit,
		MarkOutHandler:   animals.MarkOut,
		MoveHandler:      animals.Move,
		RemarkHandler:    animals.SetRemark,
		StatsHandler:     animals.Stats,
		SearchHandler:    animals.Search,
		RemoveHandler:    animals.Remove,
		ExportHandler:    animals.Export,
		ArchiveHandler:   animals.Archive,
		CreateKeyHandler: handler.NewCreateKeyHandler(keys),
		ListKeysHandler:  handler.NewListKeysHandler(keys),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(keys),
	}
	if limit > 0 {
		deps.RateLimit = mw.NewRateLimit(&countingCache{counts: map[string]int64{}}, limit)
	}

	return &testServer{t: t, router: api.NewRouter(deps), adminKey: admin.Raw, userKey: user.Raw}
}

func (ts *testServer) do(method, path, key string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)["code"].(string)
}

func intakeBody(jobID string) map[string]any {
	return map[string]any{
		"jobId":          jobID,
		"species":        "Dog",
		"destination":    "Treatment Center",
		"inchargePerson": "Dr. Rao",
		"inAt":           "2024-01-01T10:00:00Z",
	}
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	ts := newTestServer(t, 0)

	w := ts.do(http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_MetricsEndpoint_Public(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.do(http.MethodPost, "/api/v1/animals/in", ts.userKey, intakeBody("A1"))

	w := ts.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `sheltertrack_operations_total{op="intake",outcome="ok"} 1`)
	assert.Contains(t, w.Body.String(), `route="/api/v1/animals/in"`)
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	ts := newTestServer(t, 0)

	endpoints := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/animals/in"},
		{http.MethodGet, "/api/v1/animals/in"},
		{http.MethodGet, "/api/v1/animals/out"},
		{http.MethodPut, "/api/v1/animals/A1"},
		{http.MethodPost, "/api/v1/animals/out/A1"},
		{http.MethodPost, "/api/v1/animals/A1/move"},
		{http.MethodPut, "/api/v1/animals/A1/remark"},
		{http.MethodGet, "/api/v1/animals/stats"},
		{http.MethodGet, "/api/v1/animals/logs"},
		{http.MethodDelete, "/api/v1/animals/A1"},
		{http.MethodGet, "/api/v1/animals/export"},
		{http.MethodPost, "/api/v1/animals/export/archive"},
		{http.MethodGet, "/api/v1/species"},
		{http.MethodPost, "/api/v1/admin/keys"},
		{http.MethodGet, "/api/v1/admin/keys"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			w := ts.do(ep.method, ep.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "INVALID_TOKEN", errCode(t, w))
		})
	}
}

func TestRouter_AdminEndpoints_403WithoutScope(t *testing.T) {
	ts := newTestServer(t, 0)
	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/v1/animals/in", ts.userKey, intakeBody("A1")).Code)

	endpoints := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/animals/logs"},
		{http.MethodDelete, "/api/v1/animals/A1"},
		{http.MethodGet, "/api/v1/animals/export"},
		{http.MethodPost, "/api/v1/animals/export/archive"},
		{http.MethodGet, "/api/v1/admin/keys"},
		{http.MethodDelete, "/api/v1/admin/keys/00000000-0000-0000-0000-000000000000"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			w := ts.do(ep.method, ep.path, ts.userKey, nil)
			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Equal(t, "FORBIDDEN", errCode(t, w))
		})
	}

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/v1/animals/A1", ts.userKey, nil).Code)
}

func TestRouter_ActorFromKeyName(t *testing.T) {
	ts := newTestServer(t, 0)

	w := ts.do(http.MethodPost, "/api/v1/animals/in", ts.userKey, intakeBody("A1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"inBy":"alice"`)

	w = ts.do(http.MethodPost, "/api/v1/animals/out/A1", ts.adminKey, map[string]any{
		"outAt": "2024-01-03T10:00:00Z", "markOutType": "Release",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"outBy":"root"`)

	w = ts.do(http.MethodGet, "/api/v1/animals/logs?user=root", ts.adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestRouter_AdminExportAndRemove(t *testing.T) {
	ts := newTestServer(t, 0)
	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/v1/animals/in", ts.userKey, intakeBody("A1")).Code)

	w := ts.do(http.MethodGet, "/api/v1/animals/export", ts.adminKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment; filename=animal_tracking_export_"))

	w = ts.do(http.MethodPost, "/api/v1/animals/export/archive", ts.adminKey, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/api/v1/animals/A1", ts.adminKey, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/v1/animals/A1", ts.adminKey, nil).Code)
}

func TestRouter_RevokedKeyLosesAccess(t *testing.T) {
	ts := newTestServer(t, 0)

	w := ts.do(http.MethodPost, "/api/v1/admin/keys", ts.adminKey, map[string]any{"name": "temp"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Data struct {
			Key    models.APIKey `json:"key"`
			RawKey string        `json:"raw_key"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/v1/animals/stats", created.Data.RawKey, nil).Code)
	require.Equal(t, http.StatusNoContent,
		ts.do(http.MethodDelete, "/api/v1/admin/keys/"+created.Data.Key.ID.String(), ts.adminKey, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/v1/animals/stats", created.Data.RawKey, nil).Code)
}

func TestRouter_RateLimit(t *testing.T) {
	ts := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		w := ts.do(http.MethodGet, "/api/v1/animals/stats", ts.userKey, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := ts.do(http.MethodGet, "/api/v1/animals/stats", ts.userKey, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errCode(t, w))

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/v1/animals/stats", ts.adminKey, nil).Code)
}

func TestRouter_NotImplementedPlaceholder(t *testing.T) {
	st := store.NewMemoryStore()
	router := api.NewRouter(api.Dependencies{Auth: mw.NewAuth(st)})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_NotFound(t *testing.T) {
	ts := newTestServer(t, 0)

	w := ts.do(http.MethodGet, "/api/v1/nonexistent", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
