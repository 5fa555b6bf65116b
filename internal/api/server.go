// Package api provides the HTTP chassis for the PR notification service.
// It creates a chi router and enforces cross-cutting concerns: panic
// recovery, request deadlines, correlation IDs, structured request logging,
// and bearer-token authentication, before requests reach the trigger handler.
package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"prtrack/internal/config"
	"prtrack/internal/external"
	"prtrack/internal/notify"
)

// Server encapsulates the API dependencies, allowing injection during
// testing and distinct configuration for different environments.
type Server struct {
	Config   *config.Config
	Notifier *notify.Notifier
	Logger   *slog.Logger

	// Publisher enables async dispatch: when set and the config asks for it,
	// accepted triggers are enqueued for the notify worker instead of being
	// processed inline.
	Publisher external.QueuePublisher

	validate *validator.Validate
	router   *chi.Mux
}

// NewServer initializes dependencies and prepares the server for route
// mounting. It performs a fail-fast check on critical configuration.
//
// The caller mounts routes (via MountRoutes) after construction; the
// separation lets tests customize route registration.
func NewServer(cfg *config.Config, notifier *notify.Notifier, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:   cfg,
		Notifier: notifier,
		Logger:   logger,
		validate: validator.New(),
		router:   chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
