// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

// Package control exposes the process health over the standard gRPC health
// protocol so operators and orchestrators can probe a running server.
package control

import (
	"context"
	cryptotls "crypto/tls"
	"log/slog"
	"net"
	"sync"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceAPI is the health service name reported for the HTTP API.
const ServiceAPI = "tribunal.api"

// GRPCServer serves grpc.health.v1.Health. The overall status ("") and the
// ServiceAPI status move together.
type GRPCServer struct {
	mu         sync.Mutex
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	logger     *slog.Logger
}

// NewGRPCServer creates a control server reporting NOT_SERVING until
// SetServing(true) is called.
func NewGRPCServer(logger *slog.Logger) (*GRPCServer, error) {
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	s := &GRPCServer{health: health.NewServer(), logger: logger}
	s.SetServing(false)
	return s, nil
}

// SetServing flips the reported status.
func (s *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceAPI, status)
}

// Start listens on addr and serves in the background, over TLS when
// tlsConfig is non-nil. The channel receives the serve error (nil on
// graceful stop) exactly once.
func (s *GRPCServer) Start(addr string, tlsConfig *cryptotls.Config) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil, oops.Errorf("control server is already running")
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, oops.Code("CONTROL_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener
	var opts []grpc.ServerOption
	if tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}
	s.grpcServer = grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	srv := s.grpcServer
	errCh := make(chan error, 1)
	go func() {
		err := srv.Serve(listener)
		if err != nil {
			s.logger.Error("control server error", "error", err)
		}
		errCh <- err
	}()

	s.logger.Info("control server started", "addr", listener.Addr().String(), "tls", tlsConfig != nil)
	return errCh, nil
}

// Addr returns the bound address, or "" before Start.
func (s *GRPCServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop marks every service NOT_SERVING and stops gracefully.
func (s *GRPCServer) Stop(_ context.Context) error {
	s.health.Shutdown()

	s.mu.Lock()
	srv := s.grpcServer
	s.mu.Unlock()
	if srv != nil {
		srv.GracefulStop()
	}
	return nil
}

// Check asks the control server at addr for the status of service. A nil
// tlsConfig dials in plaintext.
func Check(ctx context.Context, addr, service string, tlsConfig *cryptotls.Config) (healthpb.HealthCheckResponse_ServingStatus, error) {
	creds := insecure.NewCredentials()
	if tlsConfig != nil {
		creds = credentials.NewTLS(tlsConfig)
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, oops.Code("CONTROL_DIAL_FAILED").With("addr", addr).Wrap(err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, oops.Code("CONTROL_CHECK_FAILED").
			With("addr", addr).
			With("service", service).
			Wrap(err)
	}
	return resp.GetStatus(), nil
}
