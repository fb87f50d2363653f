package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"vton/internal/health"
	"vton/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Coordinator   Submitter
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Coordinator, cfg.HealthChecker)

	r := chi.NewRouter()
	r.Use(RecoveryMiddleware())
	r.Use(LoggingMiddleware())
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}
	r.Use(CORSMiddleware())
	r.Use(ContentTypeMiddleware())

	// Probe endpoint - no auth, load balancers poll it.
	r.Get("/ping", handler.Ping)

	// Job submission - auth required when an API key is configured.
	// /api/v1/tryon is the original route; /api/tryon the stable alias.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.APIKey))
		r.Post("/api/tryon", handler.Tryon)
		r.Post("/api/v1/tryon", handler.Tryon)
	})

	return r
}
