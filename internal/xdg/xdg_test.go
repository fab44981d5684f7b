// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirs_HonorEnvironment(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_STATE_HOME", "/state")

	assert.Equal(t, "/cfg/tribunal", ConfigDir())
	assert.Equal(t, "/cfg/tribunal/config.yaml", ConfigFile())
	assert.Equal(t, "/state/tribunal", StateDir())
	assert.Equal(t, "/state/tribunal/session.sqlite", SessionDB())
	assert.Equal(t, "/state/tribunal/certs", CertsDir())
}

func TestDirs_FallBackToHome(t *testing.T) {
	t.Setenv("HOME", "/home/ada")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")

	assert.Equal(t, "/home/ada/.config/tribunal", ConfigDir())
	assert.Equal(t, "/home/ada/.local/state/tribunal", StateDir())
}

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}
