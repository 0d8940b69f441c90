package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okCheck(context.Context) error { return nil }

func failingCheck(context.Context) error { return errors.New("down") }

func serveProbe(t *testing.T, handler http.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthHandlerReturnsHealthyStatus(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("store", CheckerFunc(okCheck))

	rec := serveProbe(t, manager.HealthHandler, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "healthy", resp.Checks["store"])
}

func TestHealthHandlerFailsOnCriticalCheck(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("store", CheckerFunc(failingCheck))
	manager.RegisterAdvisory("config", CheckerFunc(okCheck))

	rec := serveProbe(t, manager.HealthHandler, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Error struct {
			Code    string                 `json:"code"`
			Details map[string]interface{} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error.Code)

	checks, ok := resp.Error.Details["checks"].(map[string]interface{})
	require.True(t, ok, "expected checks in error details")
	assert.Equal(t, "unhealthy", checks["store"])
	assert.Equal(t, "healthy", checks["config"])
}

func TestHealthHandlerDegradesOnAdvisoryFailure(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("store", CheckerFunc(okCheck))
	manager.RegisterAdvisory("config", CheckerFunc(failingCheck))

	rec := serveProbe(t, manager.HealthHandler, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unhealthy", resp.Checks["config"])
}

func TestSlowCheckReportsTimeout(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.SetCheckTimeout(10 * time.Millisecond)
	manager.RegisterChecker("store", CheckerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	results, checks := manager.runChecks(context.Background(), false)
	assert.Equal(t, "timeout", results["store"])
	assert.Equal(t, "degraded", determineOverallStatus(results, checks))
}

func TestRegisterCheckerReplacesByName(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("store", CheckerFunc(failingCheck))
	manager.RegisterChecker("store", CheckerFunc(okCheck))

	results, checks := manager.runChecks(context.Background(), false)
	assert.Len(t, checks, 1)
	assert.Equal(t, "healthy", results["store"])
}

func TestLivenessNeverRunsChecks(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("store", CheckerFunc(func(context.Context) error {
		t.Fatal("liveness must not run checks")
		return nil
	}))

	rec := serveProbe(t, manager.LivenessHandler, "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartupAndReadinessWaitForMarkStarted(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("store", CheckerFunc(okCheck))

	assert.Equal(t, http.StatusServiceUnavailable, serveProbe(t, manager.StartupHandler, "/health/startup").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serveProbe(t, manager.ReadinessHandler, "/health/ready").Code)

	manager.MarkStarted()
	assert.Equal(t, http.StatusOK, serveProbe(t, manager.StartupHandler, "/health/startup").Code)
	assert.Equal(t, http.StatusOK, serveProbe(t, manager.ReadinessHandler, "/health/ready").Code)
}

func TestReadinessIgnoresAdvisoryChecks(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("store", CheckerFunc(okCheck))
	manager.RegisterAdvisory("telemetry", CheckerFunc(failingCheck))
	manager.MarkStarted()

	assert.Equal(t, http.StatusOK, serveProbe(t, manager.ReadinessHandler, "/health/ready").Code)

	manager.RegisterChecker("store", CheckerFunc(failingCheck))
	assert.Equal(t, http.StatusServiceUnavailable, serveProbe(t, manager.ReadinessHandler, "/health/ready").Code)
}
