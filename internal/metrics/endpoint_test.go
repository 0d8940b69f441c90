package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestEndpointPatternFallbacks(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/health", "/health/*"},
		{"/health/live", "/health/*"},
		{"/health/ready", "/health/*"},
		{"/health/startup", "/health/*"},
		{"/version", "/version"},
		{"/metrics", "/metrics"},
		{"/api/payments/verify/pay_123", "/api/payments/*"},
		{"/api/credits/user-1/purchases", "/api/credits/*"},
		{"/api/quotas", "/api/*"},
		{"/users/123", "/unknown"},
		{"/", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.expected, EndpointPattern(req))
		})
	}
}

func TestEndpointPatternPrefersChiRoute(t *testing.T) {
	var pattern string
	r := chi.NewRouter()
	r.Get("/api/credits/{userId}", func(w http.ResponseWriter, req *http.Request) {
		pattern = EndpointPattern(req)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/credits/user-42", nil))
	assert.Equal(t, "/api/credits/{userId}", pattern)
}

func TestEndpointPatternNilRequest(t *testing.T) {
	assert.Equal(t, "/unknown", EndpointPattern(nil))
}
