// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/truthtribunal/tribunal/internal/api"
	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/internal/config"
	"github.com/truthtribunal/tribunal/internal/observability"
	tribunaltls "github.com/truthtribunal/tribunal/internal/tls"
	"github.com/truthtribunal/tribunal/internal/token"
	"github.com/truthtribunal/tribunal/internal/upload"
)

const shutdownTimeout = 5 * time.Second

// AdminPasswordEnv supplies the password for --admin-email.
const AdminPasswordEnv = "TRIBUNAL_ADMIN_PASSWORD"

// serveOptions holds serve flags that are not part of the config file.
type serveOptions struct {
	autoMigrate bool
	adminEmail  string
	adminName   string
}

var serveFlagKeys = map[string]string{
	"addr":         "http.addr",
	"metrics-addr": "metrics.addr",
	"control-addr": "control.addr",
	"control-tls":  "control.tls",
	"store":        "store.kind",
	"database-url": "database.url",
}

// newServeCmd creates the serve subcommand. deps may be nil.
func newServeCmd(opts *rootOptions, deps *ServeDeps) *cobra.Command {
	sopts := &serveOptions{}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		Long: `Run the HTTP API together with the metrics and gRPC health servers.

With the postgres store, pending migrations are applied first unless
--auto-migrate=false. --admin-email creates that admin account if it does
not exist, reading the password from ` + AdminPasswordEnv + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts, serveFlagKeys)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg, slog.LevelInfo)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, cfg, sopts, deps.withDefaults(), logger)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", defaults.HTTP.Addr, "API listen address")
	flags.String("metrics-addr", defaults.Metrics.Addr, "metrics listen address (empty disables)")
	flags.String("control-addr", defaults.Control.Addr, "gRPC health listen address (empty disables)")
	flags.Bool("control-tls", defaults.Control.TLS, "serve gRPC health over TLS with a local CA")
	flags.String("store", defaults.Store.Kind, "account store (postgres or memory)")
	flags.String("database-url", "", "PostgreSQL URL (default $DATABASE_URL)")
	flags.BoolVar(&sopts.autoMigrate, "auto-migrate", true, "apply pending migrations on startup")
	flags.StringVar(&sopts.adminEmail, "admin-email", "", "ensure an admin account with this email exists")
	flags.StringVar(&sopts.adminName, "admin-name", "Administrator", "display name for --admin-email")

	return cmd
}

// services are the account services shared by serve and seed-admin.
type services struct {
	registration *auth.RegistrationService
	auth         *auth.Service
	lifecycle    *auth.LifecycleService
	tokens       *token.Signer
}

func buildServices(repo auth.AccountRepository, cfg *config.Config, logger *slog.Logger) (*services, error) {
	signer, err := token.NewSigner([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}
	hasher := auth.NewArgon2idHasher(auth.DefaultArgon2Params)

	registration, err := auth.NewRegistrationService(repo, hasher, cfg.Auth.PhoneRegion, logger)
	if err != nil {
		return nil, err
	}
	authService, err := auth.NewAuthServiceWithLogger(repo, hasher, signer, logger)
	if err != nil {
		return nil, err
	}
	lifecycle, err := auth.NewLifecycleService(repo, auth.NewYearCodeGenerator(auth.DefaultLicenseLength), cfg.Auth.LicenseAttempts, logger)
	if err != nil {
		return nil, err
	}
	return &services{registration: registration, auth: authService, lifecycle: lifecycle, tokens: signer}, nil
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, sopts *serveOptions, deps ServeDeps, logger *slog.Logger) error {
	if sopts.autoMigrate && cfg.Store.Kind == config.StorePostgres {
		if err := autoMigrate(deps, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	repo, release, err := deps.RepositoryFactory(ctx, cfg)
	if err != nil {
		return oops.Code("STORE_OPEN_FAILED").With("store", cfg.Store.Kind).Wrap(err)
	}
	defer release()

	svc, err := buildServices(repo, cfg, logger)
	if err != nil {
		return oops.Code("SERVICE_INIT_FAILED").Wrap(err)
	}
	if sopts.adminEmail != "" {
		created, err := svc.auth.EnsureAdmin(ctx, sopts.adminName, sopts.adminEmail, os.Getenv(AdminPasswordEnv))
		if err != nil {
			return oops.With("admin_email", sopts.adminEmail).Wrap(err)
		}
		logger.Info("admin account ensured", "created", created)
	}

	var uploads upload.Presigner
	if cfg.Upload.Enabled {
		presigner, err := deps.PresignerFactory(ctx, uploadConfig(cfg.Upload))
		if err != nil {
			return err
		}
		uploads = presigner
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Stopped in reverse order of start.
	var stops []func(context.Context) error
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		for _, stop := range slices.Backward(stops) {
			if err := stop(shutdownCtx); err != nil {
				logger.Warn("error stopping server", "error", err)
			}
		}
	}()

	var ready atomic.Bool

	var controlServer ControlServer
	if cfg.Control.Addr != "" {
		controlServer, err = deps.ControlServerFactory(logger)
		if err != nil {
			return oops.Code("CONTROL_INIT_FAILED").Wrap(err)
		}
		tlsConfig, err := controlServerTLS(cfg.Control)
		if err != nil {
			return err
		}
		controlErr, err := controlServer.Start(cfg.Control.Addr, tlsConfig)
		if err != nil {
			return err
		}
		stops = append(stops, controlServer.Stop)
		go monitorServerErrors(ctx, cancel, controlErr, "control-grpc", logger)
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.Load)
		obsErr, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		stops = append(stops, obsServer.Stop)
		go monitorServerErrors(ctx, cancel, obsErr, "observability", logger)
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	apiServer, err := api.NewServer(api.Deps{
		Registration: svc.registration,
		Auth:         svc.auth,
		Lifecycle:    svc.lifecycle,
		Tokens:       svc.tokens,
		Uploads:      uploads,
		Metrics:      metrics,
		Logger:       logger,
	})
	if err != nil {
		return oops.Code("API_INIT_FAILED").Wrap(err)
	}
	apiErr, err := apiServer.Start(cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	stops = append(stops, apiServer.Stop)
	go monitorServerErrors(ctx, cancel, apiErr, "api", logger)

	ready.Store(true)
	if controlServer != nil {
		controlServer.SetServing(true)
	}
	cmd.Printf("Tribunal API listening on %s\n", apiServer.Addr())
	logger.Info("tribunal ready",
		"api_addr", apiServer.Addr(),
		"store", cfg.Store.Kind,
		"uploads", uploads != nil,
	)
	if deps.Ready != nil {
		deps.Ready(apiServer.Addr())
	}

	<-ctx.Done()

	logger.Info("shutting down...")
	ready.Store(false)
	if controlServer != nil {
		controlServer.SetServing(false)
	}
	return nil
}

func autoMigrate(deps ServeDeps, databaseURL string, logger *slog.Logger) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

// monitorServerErrors cancels ctx when a server reports a serve error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}

// controlServerTLS issues the control certificates on first use. It returns
// nil when TLS is off.
func controlServerTLS(cfg config.ControlConfig) (*cryptotls.Config, error) {
	if !cfg.TLS {
		return nil, nil
	}
	if err := tribunaltls.Ensure(cfg.CertsDir); err != nil {
		return nil, oops.Code("CONTROL_INIT_FAILED").With("certs_dir", cfg.CertsDir).Wrap(err)
	}
	tlsConfig, err := tribunaltls.ServerConfig(cfg.CertsDir)
	if err != nil {
		return nil, oops.Code("CONTROL_INIT_FAILED").With("certs_dir", cfg.CertsDir).Wrap(err)
	}
	return tlsConfig, nil
}
