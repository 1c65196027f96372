package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	mw "github.com/lorrc/restaurant-relay/internal/adapters/primary/http/middleware"
	"github.com/lorrc/restaurant-relay/internal/core/domain"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
)

// RouterConfig gathers everything the HTTP surface is built from. Nil
// limiters and a nil metrics handler switch those features off.
type RouterConfig struct {
	WebSocket      *WebSocketHandler
	Events         *RelayEventsHandler
	Health         *HealthHandler
	Verifier       ports.CredentialVerifier
	AllowedOrigins []string

	RateLimiter    *mw.RateLimiter
	SubjectLimiter *mw.RateLimitBySubject

	MetricsPath    string
	MetricsHandler http.Handler

	Logger *slog.Logger
}

// NewRouter builds the chi router serving the relay.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(cfg.Logger))
	r.Use(mw.RecoveryLogger(cfg.Logger))

	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware)
	}

	// Health check endpoints (outside /api/v1 for orchestrator health paths)
	cfg.Health.RegisterRoutes(r)

	if cfg.MetricsHandler != nil {
		r.Handle(cfg.MetricsPath, cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Mounted routers run their middleware before routing, so preflight
		// requests are answered here.
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins(cfg.AllowedOrigins),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", mw.RequestIDHeader},
			ExposedHeaders: []string{mw.RequestIDHeader},
			MaxAge:         300,
		}))

		// Authentication is handled inside the upgrade handler so it can
		// read the token query parameter.
		r.Get("/ws", cfg.WebSocket.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(cfg.Verifier, cfg.Logger))
			r.Use(mw.RequireDomain(domain.DomainAdmin, cfg.Logger))
			if cfg.SubjectLimiter != nil {
				r.Use(cfg.SubjectLimiter.Middleware)
			}
			r.Route("/relay/events", cfg.Events.RegisterRoutes)
		})
	})

	return r
}

// corsOrigins turns websocket origin hosts into CORS origin patterns.
func corsOrigins(allowed []string) []string {
	if len(allowed) == 0 {
		return []string{"*"}
	}

	origins := make([]string, 0, len(allowed)*2)
	for _, host := range allowed {
		origins = append(origins, "https://"+host, "http://"+host)
	}
	return origins
}
