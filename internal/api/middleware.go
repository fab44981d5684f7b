// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/internal/logging"
)

type actorKey struct{}

// WithActor returns a context carrying the authenticated actor.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the authenticated actor, if any.
func ActorFrom(ctx context.Context) (auth.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(auth.Actor)
	return actor, ok
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// logRequests attaches the request id to the log context and records one
// log line and the request metrics per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.ContextWith(r.Context(), slog.String("request_id", middleware.GetReqID(r.Context())))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)

		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
			s.metrics.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())
		}
		s.logger.InfoContext(ctx, "http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

// authenticate requires a valid bearer token and stores the actor on the
// request context. Every failure is the 401 unauthorized class.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r.Header.Get("Authorization"))
		if raw == "" {
			writeUnauthorized(w, "missing bearer token")
			return
		}
		claims, err := s.tokens.Parse(raw)
		if err != nil {
			s.logger.DebugContext(r.Context(), "bearer token rejected", "error", err)
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		actor := auth.Actor{ID: claims.Subject, Role: auth.Role(claims.Role)}
		ctx := logging.ContextWith(r.Context(), slog.String("account_id", actor.ID))
		next.ServeHTTP(w, r.WithContext(WithActor(ctx, actor)))
	})
}

// require rejects actors whose role lacks the capability with 403.
func (s *Server) require(c auth.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				writeUnauthorized(w, "missing bearer token")
				return
			}
			if !actor.Role.Can(c) {
				writeJSON(w, http.StatusForbidden, ErrorResponse{
					Error:   WireForbidden,
					Message: "insufficient role",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
