package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"golang.org/x/sync/errgroup"

	"github.com/pricewise/pricewise/internal/metrics"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
	statusTimeout   = "timeout"

	defaultCheckTimeout = 3 * time.Second
)

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a function to HealthChecker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

type registeredCheck struct {
	name     string
	checker  HealthChecker
	critical bool
}

// HealthManager runs registered checks for the health and probe endpoints.
// A failing critical check makes the service unhealthy and not ready. A
// failing advisory check only degrades the aggregate status.
type HealthManager struct {
	mu      sync.RWMutex
	checks  []registeredCheck
	version string
	timeout time.Duration
	started atomic.Bool
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{version: version, timeout: defaultCheckTimeout}
}

// SetCheckTimeout bounds each individual check.
func (hm *HealthManager) SetCheckTimeout(d time.Duration) {
	if d > 0 {
		hm.mu.Lock()
		hm.timeout = d
		hm.mu.Unlock()
	}
}

// RegisterChecker registers a critical check. Registering a name again
// replaces the earlier check.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.register(registeredCheck{name: name, checker: checker, critical: true})
}

// RegisterAdvisory registers a check whose failure degrades but does not fail
// the service.
func (hm *HealthManager) RegisterAdvisory(name string, checker HealthChecker) {
	hm.register(registeredCheck{name: name, checker: checker})
}

func (hm *HealthManager) register(check registeredCheck) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	for i := range hm.checks {
		if hm.checks[i].name == check.name {
			hm.checks[i] = check
			return
		}
	}
	hm.checks = append(hm.checks, check)
}

// MarkStarted flips the startup probe once initialization has finished.
func (hm *HealthManager) MarkStarted() {
	hm.started.Store(true)
}

// Started reports whether MarkStarted has been called.
func (hm *HealthManager) Started() bool {
	return hm.started.Load()
}

// runChecks executes the selected checks concurrently, each under the check
// timeout, and returns their outcomes by name.
func (hm *HealthManager) runChecks(ctx context.Context, criticalOnly bool) (map[string]string, []registeredCheck) {
	hm.mu.RLock()
	selected := make([]registeredCheck, 0, len(hm.checks))
	for _, check := range hm.checks {
		if !criticalOnly || check.critical {
			selected = append(selected, check)
		}
	}
	timeout := hm.timeout
	hm.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]string, len(selected))
		g       errgroup.Group
	)
	for _, check := range selected {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			started := time.Now()
			status := statusHealthy
			if err := check.checker.CheckHealth(checkCtx); err != nil {
				status = statusUnhealthy
				if checkCtx.Err() != nil {
					status = statusTimeout
				}
			}
			metrics.RecordHealthCheck(check.name, status, time.Since(started))

			mu.Lock()
			results[check.name] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, selected
}

// determineOverallStatus folds check outcomes into one status. Only critical
// failures are unhealthy. Timeouts and advisory failures are degraded.
func determineOverallStatus(results map[string]string, checks []registeredCheck) string {
	overall := statusHealthy
	for _, check := range checks {
		switch results[check.name] {
		case statusUnhealthy:
			if check.critical {
				return statusUnhealthy
			}
			overall = statusDegraded
		case statusTimeout, statusDegraded:
			overall = statusDegraded
		}
	}
	return overall
}

// HealthHandler reports every check.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	results, checks := hm.runChecks(r.Context(), false)
	status := determineOverallStatus(results, checks)

	if status == statusUnhealthy {
		respondWithError(w, r, healthEnvelope("aggregate health check failed", "", status, results))
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Version:   hm.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    results,
	})
}

// LivenessHandler answers as long as the process can serve requests. It
// never runs checks so a slow dependency cannot get the process restarted.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProbeResponse{Status: "alive", Timestamp: time.Now().UTC()})
}

// ReadinessHandler fails when initialization is incomplete or a critical
// check does not pass.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if !hm.Started() {
		respondWithError(w, r, healthEnvelope("service is still starting", "ready", "starting", nil))
		return
	}

	results, _ := hm.runChecks(r.Context(), true)
	for _, status := range results {
		if status != statusHealthy {
			respondWithError(w, r, healthEnvelope("readiness probe failed", "ready", statusUnhealthy, results))
			return
		}
	}

	writeJSON(w, http.StatusOK, ProbeResponse{Status: "ready", Timestamp: time.Now().UTC()})
}

// StartupHandler reports whether initialization has finished.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	if !hm.Started() {
		respondWithError(w, r, healthEnvelope("startup probe failed", "startup", "starting", nil))
		return
	}
	writeJSON(w, http.StatusOK, ProbeResponse{Status: "started", Timestamp: time.Now().UTC()})
}

func healthEnvelope(message, probe, status string, results map[string]string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", message)

	details := map[string]interface{}{"status": status}
	if len(results) > 0 {
		details["checks"] = results
	}
	if probe != "" {
		details["probe"] = probe
	}
	envelope = envelope.WithDetails(details)

	contextData := map[string]interface{}{"status": status}
	if probe != "" {
		contextData["probe"] = probe
	}
	var failing []string
	for name, result := range results {
		if result != statusHealthy {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		contextData["unhealthy_checks"] = failing
	}

	envelope, _ = envelope.WithContext(contextData)
	return envelope
}

var (
	globalMu            sync.RWMutex
	globalHealthManager *HealthManager
)

// InitHealthManager initializes the global health manager
func InitHealthManager(version string) *HealthManager {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalHealthManager = NewHealthManager(version)
	return globalHealthManager
}

// GetHealthManager returns the global health manager, creating an empty one
// reporting version "dev" when none was initialized.
func GetHealthManager() *HealthManager {
	globalMu.RLock()
	hm := globalHealthManager
	globalMu.RUnlock()
	if hm != nil {
		return hm
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalHealthManager == nil {
		globalHealthManager = NewHealthManager("dev")
	}
	return globalHealthManager
}
