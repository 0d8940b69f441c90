package server

import (
	"context"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/signals"
	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/appid"
	"github.com/pricewise/pricewise/internal/observability"
	"github.com/pricewise/pricewise/internal/server/handlers"
)

const (
	adminSignalPath = "/admin/signal"
	adminRateLimit  = 10 // requests per minute
	adminRateBurst  = 5
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	hm := handlers.GetHealthManager()
	s.router.Get("/health", hm.HealthHandler)
	s.router.Get("/health/live", hm.LivenessHandler)
	s.router.Get("/health/ready", hm.ReadinessHandler)
	s.router.Get("/health/startup", hm.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	if s.api != nil {
		s.api.Mount(s.router)
	}

	s.registerAdminEndpoint()
}

// adminToken reads {PREFIX}ADMIN_TOKEN using the discovered env prefix.
func adminToken() (token, envName string) {
	prefix := appid.Default.EnvPrefix
	if identity, _ := appid.Get(context.Background()); identity != nil && identity.EnvPrefix != "" {
		prefix = identity.EnvPrefix
	}
	envName = prefix + "ADMIN_TOKEN"
	return strings.TrimSpace(os.Getenv(envName)), envName
}

// registerAdminEndpoint exposes gofulmen's signal endpoint (reload, shutdown)
// behind a bearer token. Without a token the route does not exist.
func (s *Server) registerAdminEndpoint() {
	token, envName := adminToken()
	logger := observability.ServerLogger

	if token == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled", zap.String("env", envName))
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: token,
		RateLimit: adminRateLimit,
		RateBurst: adminRateBurst,
	})
	s.router.Post(adminSignalPath, handler.ServeHTTP)

	if logger != nil {
		logger.Warn("Admin signal endpoint enabled; keep it off the public internet",
			zap.String("path", adminSignalPath),
			zap.Int("rate_limit_per_min", adminRateLimit),
			zap.Int("rate_burst", adminRateBurst))
	}
}
