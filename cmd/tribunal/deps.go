// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"log/slog"

	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/internal/auth/memory"
	"github.com/truthtribunal/tribunal/internal/auth/postgres"
	"github.com/truthtribunal/tribunal/internal/config"
	"github.com/truthtribunal/tribunal/internal/control"
	"github.com/truthtribunal/tribunal/internal/observability"
	"github.com/truthtribunal/tribunal/internal/store"
	"github.com/truthtribunal/tribunal/internal/upload"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// RepositoryFactory opens the account store selected by store.kind.
	// The returned func releases it.
	// Default: openRepository
	RepositoryFactory func(ctx context.Context, cfg *config.Config) (auth.AccountRepository, func(), error)

	// MigratorFactory creates the migrator used by --auto-migrate.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// PresignerFactory creates the upload presigner when uploads are enabled.
	// Default: upload.NewS3Presigner
	PresignerFactory func(ctx context.Context, cfg upload.Config) (upload.Presigner, error)

	// ControlServerFactory creates the gRPC health server.
	// Default: control.NewGRPCServer
	ControlServerFactory func(logger *slog.Logger) (ControlServer, error)

	// ObservabilityServerFactory creates the metrics server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// Ready is called with the bound API address once every server is up.
	Ready func(apiAddr string)
}

// AutoMigrator is the part of store.Migrator serve needs.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ControlServer interface wraps the methods used from control.GRPCServer.
type ControlServer interface {
	Start(addr string, tlsConfig *cryptotls.Config) (<-chan error, error)
	Stop(ctx context.Context) error
	SetServing(serving bool)
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func (d *ServeDeps) withDefaults() ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.RepositoryFactory == nil {
		out.RepositoryFactory = openRepository
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.PresignerFactory == nil {
		out.PresignerFactory = func(ctx context.Context, cfg upload.Config) (upload.Presigner, error) {
			return upload.NewS3Presigner(ctx, cfg)
		}
	}
	if out.ControlServerFactory == nil {
		out.ControlServerFactory = func(logger *slog.Logger) (ControlServer, error) {
			return control.NewGRPCServer(logger)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	return out
}

// openRepository connects to PostgreSQL or builds an in-memory store.
func openRepository(ctx context.Context, cfg *config.Config) (auth.AccountRepository, func(), error) {
	if cfg.Store.Kind == config.StoreMemory {
		return memory.NewAccountRepository(), func() {}, nil
	}
	pool, err := store.Open(ctx, cfg.Database.URL, store.OpenOptions{})
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewAccountRepository(pool), pool.Close, nil
}

func uploadConfig(c config.UploadConfig) upload.Config {
	return upload.Config{
		Bucket:        c.Bucket,
		Region:        c.Region,
		Endpoint:      c.Endpoint,
		PublicBaseURL: c.PublicBaseURL,
		AccessKey:     c.AccessKey,
		SecretKey:     c.SecretKey,
	}
}
