package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout is the soft deadline applied to request contexts.
const defaultRequestTimeout = 29 * time.Second

// MountRoutes defines the top-level routing hierarchy: the global middleware
// chain, the v1 API group, and the unauthenticated health check.
//
// Middleware ordering (strict):
//  1. Recoverer      - catches panics; outermost to catch all failures.
//  2. ContextTimeout - sets a soft deadline on the request context.
//  3. RequestID      - generates/propagates the correlation ID.
//  4. RequestLogger  - structured logging with redacted headers.
//  5. Auth           - static bearer token, applied inside /v1 only.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.AuthMiddleware)
		r.Post("/notifications", s.HandleTriggerNotification)
		r.Post("/notifications/retry", s.HandleRetryNotification)
		r.Get("/notifications/{prID}", s.HandleGetNotification)
	})

	s.router.Get("/health", s.HandleHealth)
}

// HandleHealth reports process liveness. Unauthenticated.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{
		"status":  "ok",
		"service": s.Config.Service,
	}})
}
