// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

// Package xdg resolves XDG base directories for tribunal.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "tribunal"

func dir(env string, fallback ...string) string {
	base := os.Getenv(env)
	if base == "" {
		base = filepath.Join(append([]string{os.Getenv("HOME")}, fallback...)...)
	}
	return filepath.Join(base, appName)
}

// ConfigDir is $XDG_CONFIG_HOME/tribunal, defaulting to ~/.config/tribunal.
func ConfigDir() string { return dir("XDG_CONFIG_HOME", ".config") }

// StateDir is $XDG_STATE_HOME/tribunal, defaulting to ~/.local/state/tribunal.
func StateDir() string { return dir("XDG_STATE_HOME", ".local", "state") }

// ConfigFile is the default config file location.
func ConfigFile() string { return filepath.Join(ConfigDir(), "config.yaml") }

// SessionDB is the default location of the client session store.
func SessionDB() string { return filepath.Join(StateDir(), "session.sqlite") }

// CertsDir holds the control server CA and certificate.
func CertsDir() string { return filepath.Join(StateDir(), "certs") }

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("DIR_CREATE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
