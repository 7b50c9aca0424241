// Package core provides the HTTP chassis for the billing API. It builds a chi
// router usable both behind net/http (local) and the API Gateway adapter
// (Lambda), and applies the cross-cutting concerns (panic recovery, request
// correlation, logging, authentication) before requests reach the billing
// handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"clientdesk/internal/config"
)

// Server encapsulates the dependencies of the HTTP surface so tests can
// inject fakes and each environment can wire its own.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Authenticator Authenticator
	HealthProbes  []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1. They are populated by
	// main so that core never imports the handler packages.
	V1RouteRegistrars []func(chi.Router)

	closers []func() error
	router  *chi.Mux
}

// NewServer validates the critical configuration and prepares an empty
// router. The caller mounts routes with MountRoutes once registrars are set.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	v, err := NewValidator(logger, cfg.Server.DashboardURL)
	if err != nil {
		return nil, fmt.Errorf("building validator: %w", err)
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: v,
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi.Mux for tests that mount ad-hoc routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers a resource release hook (database pool, etc.) that
// Shutdown runs in reverse registration order.
func (s *Server) OnShutdown(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Shutdown releases every registered resource and returns the joined errors.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.Logger.ErrorContext(ctx, "error releasing resource", "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("releasing server resources: %w", err)
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
