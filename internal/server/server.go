// Package server exposes the marketplace HTTP and WebSocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/empowa-tech/marketplace/internal/domain"
	"github.com/empowa-tech/marketplace/internal/metrics"
	"github.com/empowa-tech/marketplace/internal/server/handler"
	"github.com/empowa-tech/marketplace/internal/server/middleware"
	"github.com/empowa-tech/marketplace/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	CORSOrigins   []string
	RatePerMinute int
}

// Handlers aggregates the HTTP handlers the server registers. Optional
// handlers may be nil and their routes are then not mounted.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Listings *handler.ListingHandler
	Activity *handler.ActivityHandler
	Config   *handler.ConfigHandler
	Sales    *handler.SalesHandler
	Audit    *handler.AuditHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewRouter builds the chi router with middleware and every mounted route.
// limiter and hub may be nil.
func NewRouter(cfg Config, h Handlers, limiter domain.RateLimiter, hub *ws.Hub, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Handle("/metrics", metrics.Handler())
	if hub != nil {
		r.Get("/ws", hub.HandleWS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health.HealthCheck)
		if h.Status != nil {
			r.Get("/status", h.Status.GetStatus)
		}

		r.Group(func(r chi.Router) {
			if limiter != nil && cfg.RatePerMinute > 0 {
				r.Use(middleware.RateLimit(limiter, cfg.RatePerMinute, time.Minute, logger))
			}
			r.Use(chimw.Timeout(30 * time.Second))

			r.Post("/policy-assets/query", h.Listings.Query)
			r.Get("/policy-assets/{id}", h.Listings.GetAsset)
			r.Post("/activities", h.Activity.Create)
			r.Get("/marketplace-config", h.Config.GetMarketplaceConfig)
			if h.Audit != nil {
				r.Get("/audit", h.Audit.List)
			}
		})

		if h.Sales != nil {
			r.Post("/sales/process", h.Sales.Process)
		}
	})
	return r
}

// NewServer creates a Server serving router on cfg.Port.
func NewServer(cfg Config, router http.Handler, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      90 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
