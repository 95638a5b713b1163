// Package api exposes Newsly over HTTP: the scheduled and admin dispatch
// triggers, subscriber self-service, admin reads, billing and news.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/newsly/newsly/internal/auth"
	"github.com/newsly/newsly/internal/config"
)

// Deps are the collaborators the HTTP layer drives. Nil optional fields
// disable the routes or health checks that need them.
type Deps struct {
	Runner      Runner
	Newsletters Newsletters
	Subscribers Subscribers
	Billing     Billing
	News        Headlines

	DB     *sql.DB
	Redis  *redis.Client
	Broker BrokerStatus

	Verifier *auth.Verifier
	// Links verifies subscriber link tokens.
	Links *auth.Verifier
	Auth  config.AuthConfig
}

// Server represents the API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer wires the router for d.
func NewServer(cfg config.ServerConfig, d Deps) *Server {
	handler := NewRouter(cfg, d)
	return &Server{
		config:  cfg,
		handler: handler,
		server: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			// Auto and admin runs send synchronously in direct mode.
			WriteTimeout: 15 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
