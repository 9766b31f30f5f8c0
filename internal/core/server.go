// Package core provides the API chassis for the Devmint payments backend.
// It creates a chi router compatible with both standard HTTP (local dev) and
// AWS Lambda proxy integration, and enforces cross-cutting concerns --
// recovery, request correlation, logging -- before requests reach domain
// handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"devmint/internal/config"
)

// Server encapsulates the router and cross-cutting dependencies for the API,
// allowing injection during testing and distinct configuration per
// environment.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	// HealthProbes are the registered dependency probes for /health/ready.
	HealthProbes []HealthProbe

	// RouteRegistrars are invoked during MountRoutes to register domain
	// handler routes. This indirection avoids import cycles between core
	// and handler packages.
	RouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer initializes the router and prepares the server for route
// mounting. The caller registers domain routes via RouteRegistrars and then
// calls MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// MountRoutes applies global middleware and registers all routes. Middleware
// order: Recoverer outermost to catch all panics, then request correlation,
// then logging.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))

	s.router.Get("/health/live", s.HandleLiveness)
	s.router.Get("/health/ready", s.HandleReadiness)

	for _, registrar := range s.RouteRegistrars {
		registrar(s.router)
	}
}

// defaultRedactedHeaders lists headers whose values must never appear in
// request logs. The provider signature header is included: logging it would
// leak material an attacker could replay against a lagging clock.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Paddle-Signature",
}

// Handler returns the http.Handler for the router. Used by
// http.ListenAndServe (local) and the Lambda proxy adapter.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")
	_ = ctx
	return nil
}
