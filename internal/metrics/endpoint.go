package metrics

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// EndpointPattern returns a low-cardinality label for r: the chi route
// pattern when routing already happened, otherwise a prefix bucket so user
// and payment ids never become label values.
func EndpointPattern(r *http.Request) string {
	if r == nil {
		return "/unknown"
	}
	if pattern := chi.RouteContext(r.Context()).RoutePattern(); pattern != "" {
		return pattern
	}

	path := r.URL.Path
	switch path {
	case "/health", "/health/live", "/health/ready", "/health/startup":
		return "/health/*"
	case "/version", "/metrics", "/":
		return path
	}

	switch {
	case strings.HasPrefix(path, "/api/payments/"):
		return "/api/payments/*"
	case strings.HasPrefix(path, "/api/credits/"):
		return "/api/credits/*"
	case strings.HasPrefix(path, "/api/"):
		return "/api/*"
	default:
		return "/unknown"
	}
}
