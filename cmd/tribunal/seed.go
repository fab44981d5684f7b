// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/truthtribunal/tribunal/internal/config"
)

// Default timeout for the seed-admin command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed-admin command.
type seedConfig struct {
	name          string
	email         string
	passwordStdin bool
	timeout       time.Duration
}

// PasswordReader reads the admin password. It is swapped out in tests.
type PasswordReader func(cmd *cobra.Command, fromStdin bool) (string, error)

var seedFlagKeys = map[string]string{
	"store":        "store.kind",
	"database-url": "database.url",
}

func newSeedAdminCmd(opts *rootOptions) *cobra.Command {
	return newSeedAdminCmdWith(opts, nil, readPassword)
}

func newSeedAdminCmdWith(opts *rootOptions, deps *ServeDeps, passwords PasswordReader) *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create an administrator account",
		Long: `Create an administrator account. This command is idempotent: an existing
admin with the same email is left unchanged.

The password is prompted for on a terminal, or read from the first line of
stdin with --password-stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeedAdmin(cmd, opts, cfg, deps.withDefaults(), passwords)
		},
	}

	cmd.Flags().StringVar(&cfg.name, "name", "Administrator", "display name")
	cmd.Flags().StringVar(&cfg.email, "email", "", "admin email (required)")
	cmd.Flags().BoolVar(&cfg.passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	cmd.Flags().String("store", config.Default().Store.Kind, "account store (postgres or memory)")
	cmd.Flags().String("database-url", "", "PostgreSQL URL (default $DATABASE_URL)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runSeedAdmin(cmd *cobra.Command, opts *rootOptions, sc *seedConfig, deps ServeDeps, passwords PasswordReader) error {
	cfg, err := loadConfig(cmd, opts, seedFlagKeys)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg, slog.LevelWarn)
	if err != nil {
		return err
	}

	password, err := passwords(cmd, sc.passwordStdin)
	if err != nil {
		return err
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), sc.timeout)
	defer cancel()

	repo, release, err := deps.RepositoryFactory(ctx, cfg)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer release()

	svc, err := buildServices(repo, cfg, logger)
	if err != nil {
		return err
	}
	created, err := svc.auth.EnsureAdmin(ctx, sc.name, sc.email, password)
	if err != nil {
		return err
	}
	if created {
		cmd.Printf("Created admin %s\n", sc.email)
	} else {
		cmd.Printf("Admin %s already exists\n", sc.email)
	}
	return nil
}

// readPassword prompts without echo on a terminal and otherwise reads one
// line from the command's input.
func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !fromStdin && term.IsTerminal(int(f.Fd())) {
		cmd.PrintErr("Password: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		cmd.PrintErrln()
		if err != nil {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		return string(raw), nil
	}
	return readLine(in)
}

func readLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrapf(err, "no password on stdin")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
