// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package main

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/internal/config"
	"github.com/truthtribunal/tribunal/internal/logging"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	logFormat  string
	logLevel   string
}

var logFlagKeys = map[string]string{
	"log-format": "log.format",
	"log-level":  "log.level",
}

// NewRootCmd creates the root command for the tribunal CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tribunal",
		Short: "Tribunal - reporter registration and licensing",
		Long: `Tribunal registers reporters, lets administrators approve them with a
unique license or revoke them, and issues sessions to approved accounts.

Server commands run the API; client commands talk to it and keep the
session on disk.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/tribunal/config.yaml)")
	pf.StringVar(&opts.logFormat, "log-format", config.Default().Log.Format, "log format (json or text)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server Commands:"},
		&cobra.Group{ID: "client", Title: "Client Commands:"},
	)

	for _, sub := range []*cobra.Command{
		newServeCmd(opts, nil),
		newMigrateCmd(opts),
		newSeedAdminCmd(opts),
		newStatusCmd(opts),
	} {
		sub.GroupID = "server"
		cmd.AddCommand(sub)
	}
	for _, sub := range []*cobra.Command{
		newRegisterCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newOpenCmd(opts),
		newAdminCmd(opts),
	} {
		sub.GroupID = "client"
		cmd.AddCommand(sub)
	}

	return cmd
}

// loadConfig resolves the configuration for cmd. keys maps the command's
// own flag names to config keys; the log flags are always included.
func loadConfig(cmd *cobra.Command, opts *rootOptions, keys map[string]string) (*config.Config, error) {
	merged := maps.Clone(logFlagKeys)
	maps.Copy(merged, keys)

	cfg, err := config.Load(opts.configFile, cmd.Flags(), merged)
	if err != nil {
		return nil, oops.With("command", cmd.Name()).Wrap(err)
	}
	return cfg, nil
}

// newLogger builds the command logger. An unset level falls back to
// fallback, so client commands stay quiet unless asked.
func newLogger(w io.Writer, cfg *config.Config, fallback slog.Level) (*slog.Logger, error) {
	level := fallback
	if cfg.Log.Level != "" {
		parsed, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	return logging.Setup("tribunal", version, cfg.Log.Format, level, w), nil
}

// reportError prints err once. A rejected session was already announced
// by the session guard, so it is not repeated.
func reportError(w io.Writer, err error) {
	if auth.ErrorCode(err) == auth.CodeUnauthorized {
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return
	}
	fields, _ := oopsErr.Context()["fields"].(map[string]string)
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		fmt.Fprintf(w, "  %s: %s\n", name, fields[name])
	}
}
