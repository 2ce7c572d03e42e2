package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"go.uber.org/zap"

	"github.com/karmalens/karmalens/internal/appid"
	"github.com/karmalens/karmalens/internal/observability"
	"github.com/karmalens/karmalens/internal/server/handlers"
)

const (
	adminRateLimit = 10
	adminRateBurst = 5
)

func (s *Server) registerRoutes(api *handlers.API) {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)

	s.router.Get("/metrics", MetricsHandler)

	if api != nil {
		s.router.Route("/api", api.Routes)
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint mounts /admin/signal when server.admin_token
// (KARMALENS_ADMIN_TOKEN) is set. The handler triggers the same shutdown and
// reload hooks as SIGTERM and SIGHUP.
func (s *Server) registerAdminEndpoint() {
	logger := observability.Logger()
	if s.cfg.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled", zap.String("env", appid.EnvKey("ADMIN_TOKEN")))
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.cfg.AdminToken,
		RateLimit: adminRateLimit,
		RateBurst: adminRateBurst,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Warn("Admin signal endpoint enabled; keep this server off the public internet",
			zap.String("path", "/admin/signal"),
			zap.Int("rate_limit_per_min", adminRateLimit),
			zap.Int("rate_burst", adminRateBurst))
	}
}
