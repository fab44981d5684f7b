// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/pkg/errutil"
)

// cheapParams keeps hashing fast in tests.
var cheapParams = auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}

func TestHashPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher(cheapParams)

	t.Run("produces PHC encoded hash", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
	})

	t.Run("zero params fall back to defaults", func(t *testing.T) {
		hash, err := auth.NewArgon2idHasher(auth.Argon2Params{}).Hash("x")
		require.NoError(t, err)
		assert.Contains(t, hash, "m=65536,t=1,p=4")
	})
}

func TestVerifyPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher(cheapParams)

	t.Run("correct password verifies", func(t *testing.T) {
		hash, err := hasher.Hash("correctpassword")
		require.NoError(t, err)

		ok, err := hasher.Verify("correctpassword", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect password fails", func(t *testing.T) {
		hash, err := hasher.Hash("correctpassword")
		require.NoError(t, err)

		ok, err := hasher.Verify("wrongpassword", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("hash from other params still verifies", func(t *testing.T) {
		other := auth.NewArgon2idHasher(auth.Argon2Params{Time: 2, Memory: 2048, Threads: 2, SaltLen: 8, KeyLen: 16})
		hash, err := other.Hash("portable")
		require.NoError(t, err)

		ok, err := hasher.Verify("portable", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	malformed := []struct {
		name    string
		hash    string
		message string
	}{
		{"invalid format", "not-a-valid-hash", "invalid hash format"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported hash algorithm"},
		{"wrong version", "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported argon2 version"},
		{"invalid version format", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA", ""},
		{"invalid parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA", ""},
		{"invalid salt base64", "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA", ""},
		{"invalid key base64", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!", ""},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA", "threads value"},
	}
	for _, tt := range malformed {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hasher.Verify("password", tt.hash)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "HASH_INVALID")
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}
