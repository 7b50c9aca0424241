package core

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"clientdesk/internal/types"
)

// defaultRequestTimeout applies when the config carries no RequestTimeout.
// Keep it below the Lambda hard timeout.
const defaultRequestTimeout = 25 * time.Second

// defaultRedactedHeaders are masked in request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
}

// MountRoutes registers the global middleware chain, the /v1 group and the
// public health check.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Get("/health", s.HandleHealth)
	s.router.Route("/v1", s.mountV1)
}

// registerGlobalMiddleware applies middleware in strict order:
//
//  1. Recoverer        outermost, catches every panic.
//  2. ContextTimeout   soft deadline ahead of the platform timeout.
//  3. RequestID        correlation id for logs and reconcile traces.
//  4. SecurityHeaders  present on every response, errors included.
//  5. RequestLogger    structured, with credentials redacted.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
}

// mountV1 registers the authenticated API. Every /v1 route requires a user
// Actor.
func (s *Server) mountV1(r chi.Router) {
	r.Use(s.AuthMiddleware)
	for _, registrar := range s.V1RouteRegistrars {
		registrar(r)
	}
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

// ContextTimeoutMiddleware sets a deadline on the request context. Handlers
// observe it through the context passed to the processor client.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware propagates the caller's X-Request-Id or mints a UUID,
// stores it via types.WithRequestID and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), requestID)))
	})
}
