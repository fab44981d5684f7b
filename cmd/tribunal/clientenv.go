// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/internal/client"
	"github.com/truthtribunal/tribunal/internal/client/bus"
	"github.com/truthtribunal/tribunal/internal/client/route"
	"github.com/truthtribunal/tribunal/internal/client/session"
	"github.com/truthtribunal/tribunal/internal/config"
	"github.com/truthtribunal/tribunal/internal/xdg"
)

var clientFlagKeys = map[string]string{
	"server":     "client.server_url",
	"session-db": "client.session_db",
	"timeout":    "client.timeout",
}

func addClientFlags(cmd *cobra.Command) {
	defaults := config.Default()
	flags := cmd.PersistentFlags()
	flags.String("server", defaults.Client.ServerURL, "API base URL")
	flags.String("session-db", defaults.Client.SessionDB, "session database path")
	flags.Duration("timeout", defaults.Client.Timeout, "request timeout")
}

// terminal reports session events on the command's error stream.
type terminal struct {
	w io.Writer
}

func (t terminal) Notify(message string) {
	fmt.Fprintln(t.w, message)
}

func (t terminal) Redirect(path string) {
	if path == session.LoginPath {
		fmt.Fprintln(t.w, "Run `tribunal login` to sign in.")
		return
	}
	fmt.Fprintf(t.w, "Continue at %s\n", path)
}

// clientEnv is everything a client command works with. Close must be
// called so that queued session events are handled before exit.
type clientEnv struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *session.SQLiteStore
	guard  *session.Guard
	api    *client.Client
	routes *route.Authorizer

	cancel context.CancelFunc
	done   <-chan struct{}
}

func openClient(cmd *cobra.Command, opts *rootOptions) (*clientEnv, error) {
	cfg, err := loadConfig(cmd, opts, clientFlagKeys)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg, slog.LevelWarn)
	if err != nil {
		return nil, err
	}

	if err := xdg.EnsureDir(filepath.Dir(cfg.Client.SessionDB)); err != nil {
		return nil, err
	}
	store, err := session.OpenSQLite(cmd.Context(), cfg.Client.SessionDB)
	if err != nil {
		return nil, err
	}

	env, err := newClientEnv(cmd, cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return env, nil
}

func newClientEnv(cmd *cobra.Command, cfg *config.Config, store *session.SQLiteStore, logger *slog.Logger) (*clientEnv, error) {
	events := bus.New(logger)
	out := terminal{w: cmd.ErrOrStderr()}

	guard, err := session.NewGuard(store, events, out, out, logger)
	if err != nil {
		return nil, err
	}
	if _, err := guard.Restore(cmd.Context()); err != nil {
		return nil, err
	}
	api, err := client.New(client.Options{
		BaseURL:  cfg.Client.ServerURL,
		Timeout:  cfg.Client.Timeout,
		Sessions: guard,
		Bus:      events,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	routes, err := route.NewAuthorizer(guard, route.DefaultRules())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	return &clientEnv{
		cfg:    cfg,
		logger: logger,
		store:  store,
		guard:  guard,
		api:    api,
		routes: routes,
		cancel: cancel,
		done:   guard.Start(ctx),
	}, nil
}

// Close stops the guard after it has handled queued signals.
func (e *clientEnv) Close() error {
	e.cancel()
	<-e.done
	return e.store.Close()
}

// requireRole fails unless the stored session has role. Nothing is sent
// to the server.
func (e *clientEnv) requireRole(role auth.Role) error {
	current, ok := e.guard.Current()
	if !ok {
		return oops.Code("NOT_LOGGED_IN").Errorf("not logged in; run `tribunal login`")
	}
	if decision := e.routes.Authorize(role); !decision.Allowed {
		return oops.Code(auth.CodeForbidden).
			With("role", current.User.Role).
			Errorf("this command requires the %s role; signed in as %s", role, current.User.Role)
	}
	return nil
}

// withClient runs fn with an open client environment.
func withClient(opts *rootOptions, fn func(cmd *cobra.Command, args []string, env *clientEnv) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		env, err := openClient(cmd, opts)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := env.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()
		return fn(cmd, args, env)
	}
}
