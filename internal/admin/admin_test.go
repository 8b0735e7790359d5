package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raw-labs/mxcp/internal/endpoint"
	"github.com/raw-labs/mxcp/internal/reload"
	"github.com/raw-labs/mxcp/internal/registry"
	"github.com/raw-labs/mxcp/internal/sqlsession"
)

// stubConfigProvider gives the reload controller something harmless to call
// when a test triggers a reload through the admin surface; the admin tests
// care only that POST /reload returns immediately, not that the reload
// itself succeeds.
type stubConfigProvider struct{}

func (stubConfigProvider) ResolveSessionConfig(_ context.Context) (sqlsession.Config, error) {
	return sqlsession.Config{}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ep := &endpoint.Endpoint{ID: "greet", Kind: endpoint.KindTool, Enabled: true}
	reg := registry.New(registry.NewSnapshot([]*endpoint.Endpoint{ep}, time.Now()))
	session, err := sqlsession.Open(context.Background(), sqlsession.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	rc := reload.New(stubConfigProvider{}, nil, reg, session)

	return &Server{
		Registry:    reg,
		Reload:      rc,
		Profile:     "dev",
		ProjectName: "demo",
		Mode:        ModeReadWrite,
		StartedAt:   time.Now(),
		Features:    map[string]bool{"sql_tools": true},
	}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestGetHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "ok", body["status"])
}

func TestGetStatusReportsEndpointCountsAndMode(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, string(ModeReadWrite), body["mode"])
	endpoints := body["endpoints"].(map[string]any)
	assert.Equal(t, float64(1), endpoints["tools"])
	reloadState := body["reload"].(map[string]any)
	assert.Equal(t, "never", reloadState["last_reload_status"])
}

func TestGetConfigNeverIncludesSecrets(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "demo", body["project"])
	_, hasSecrets := body["secrets"]
	assert.False(t, hasSecrets)
}

func TestPostReloadReturnsImmediately(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	rec := httptest.NewRecorder()

	start := time.Now()
	s.Router().ServeHTTP(rec, req)
	elapsed := time.Since(start)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Less(t, elapsed, time.Second, "POST /reload must not block on the drain/swap")
	body := decodeJSON(t, rec)
	assert.Equal(t, "reload_initiated", body["status"])
}
