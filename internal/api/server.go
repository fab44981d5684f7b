// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

// Package api serves the account lifecycle over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/internal/observability"
	"github.com/truthtribunal/tribunal/internal/token"
	"github.com/truthtribunal/tribunal/internal/upload"
)

// TokenParser validates bearer tokens.
type TokenParser interface {
	Parse(raw string) (*token.Claims, error)
}

// Deps are the collaborators of a Server. Metrics and Uploads are optional.
type Deps struct {
	Registration *auth.RegistrationService
	Auth         *auth.Service
	Lifecycle    *auth.LifecycleService
	Tokens       TokenParser
	Uploads      upload.Presigner
	Metrics      *observability.Metrics
	Logger       *slog.Logger
}

// Server is the HTTP front of the identity service.
type Server struct {
	registration *auth.RegistrationService
	auth         *auth.Service
	lifecycle    *auth.LifecycleService
	tokens       TokenParser
	uploads      upload.Presigner
	metrics      *observability.Metrics
	logger       *slog.Logger

	router     chi.Router
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a Server and builds its routes.
func NewServer(deps Deps) (*Server, error) {
	switch {
	case deps.Registration == nil:
		return nil, oops.Errorf("registration service is required")
	case deps.Auth == nil:
		return nil, oops.Errorf("auth service is required")
	case deps.Lifecycle == nil:
		return nil, oops.Errorf("lifecycle service is required")
	case deps.Tokens == nil:
		return nil, oops.Errorf("token parser is required")
	case deps.Logger == nil:
		return nil, oops.Errorf("logger is required")
	}

	s := &Server{
		registration: deps.Registration,
		auth:         deps.Auth,
		lifecycle:    deps.Lifecycle,
		tokens:       deps.Tokens,
		uploads:      deps.Uploads,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		if s.uploads != nil {
			r.Post("/uploads", s.handlePresign)
		}

		r.With(s.authenticate).Get("/me", s.handleMe)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.authenticate, s.require(auth.CapAdminConsole))
			r.Get("/requests", s.handleListPending)
			r.Get("/reporters", s.handleListApproved)
			r.Get("/users/{id}", s.handleGetApplication)
			r.Post("/approve", s.handleApprove)
			r.Post("/revoke", s.handleRevoke)
		})
	})

	return r
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background. The returned channel
// reports a serve failure and is closed when the server stops.
func (s *Server) Start(addr string) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("API_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	srv := s.httpServer
	go func() {
		defer close(errCh)
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown_api_server").Wrap(err)
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
