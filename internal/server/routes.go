package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"go.uber.org/zap"

	"github.com/ossanalytics/ossanalytics/internal/observability"
	"github.com/ossanalytics/ossanalytics/internal/server/handlers"
)

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.health.HealthHandler)
	s.router.Get("/health/live", s.health.LivenessHandler)
	s.router.Get("/health/ready", s.health.ReadinessHandler)
	s.router.Get("/health/startup", s.health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	s.router.Get("/datasets", s.datasets.Index)
	s.router.Get("/datasets/*", s.datasets.File)

	s.registerAdminEndpoint()
}

// registerAdminEndpoint exposes gofulmen's signal endpoint behind a bearer
// token, rate limited to 10/min.
func (s *Server) registerAdminEndpoint() {
	logger := observability.Logger()
	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled", zap.String("path", "/admin/signal"))
	}
}
