package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewise/pricewise/internal/config"
	"github.com/pricewise/pricewise/internal/core/quota"
	apperrors "github.com/pricewise/pricewise/internal/errors"
	"github.com/pricewise/pricewise/internal/server/handlers"
)

func testConfig() config.ServerConfig {
	return config.ServerConfig{Host: "127.0.0.1", Port: 0}
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New(testConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	var body apperrors.HTTPErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if body.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected error code NOT_FOUND, got %s", body.Error.Code)
	}
}

func TestServerMountsAPIRoutes(t *testing.T) {
	api := handlers.NewAPI()
	api.Quotas = quota.NewTracker(nil)
	cfg := testConfig()
	cfg.MaxBodyBytes = 4096

	srv := New(cfg, api)
	assert.Equal(t, int64(4096), api.MaxBodyBytes)

	req := httptest.NewRequest(http.MethodGet, "/api/quotas", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/payments/webhook", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestShutdownWithoutStart(t *testing.T) {
	srv := New(testConfig(), nil)
	assert.NoError(t, srv.Shutdown(t.Context()))
}

func TestAdminEndpointRequiresToken(t *testing.T) {
	t.Setenv("PRICEWISE_ADMIN_TOKEN", "")
	srv := New(testConfig(), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/signal", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthRoutesUseGlobalManager(t *testing.T) {
	hm := handlers.InitHealthManager("9.9.9")
	srv := New(testConfig(), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/startup", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	hm.MarkStarted()
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/startup", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body handlers.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "9.9.9", body.Version)
}
