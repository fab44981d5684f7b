// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/internal/auth/memory"
	"github.com/truthtribunal/tribunal/internal/auth/mocks"
	"github.com/truthtribunal/tribunal/pkg/errutil"
)

// fixture wires a service against an in-memory store with one approved
// reporter, one pending reporter and one admin.
type fixture struct {
	repo      *memory.AccountRepository
	svc       *auth.Service
	lifecycle *auth.LifecycleService
	signer    *mocks.MockTokenSigner
	approved  *auth.Account
	pending   *auth.Account
	admin     *auth.Account
	license   string
	logs      *bytes.Buffer
}

const testPassword = "correct horse"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	hasher := auth.NewArgon2idHasher(cheapParams)
	repo := memory.NewAccountRepository()
	signer := mocks.NewMockTokenSigner(t)
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	svc, err := auth.NewAuthServiceWithLogger(repo, hasher, signer, logger)
	require.NoError(t, err)
	reg, err := auth.NewRegistrationService(repo, hasher, "US", logger)
	require.NoError(t, err)
	life, err := auth.NewLifecycleService(repo, auth.NewYearCodeGenerator(8), 0, logger)
	require.NoError(t, err)

	app := validApplication()
	approved, err := reg.Submit(ctx, app)
	require.NoError(t, err)
	license, err := life.Approve(ctx, admin, approved.ID)
	require.NoError(t, err)

	app.Email = "pending@example.com"
	pending, err := reg.Submit(ctx, app)
	require.NoError(t, err)

	created, err := svc.EnsureAdmin(ctx, "Root", "root@example.com", testPassword)
	require.NoError(t, err)
	require.True(t, created)
	adm, err := repo.GetByEmail(ctx, "root@example.com")
	require.NoError(t, err)

	return &fixture{
		repo: repo, svc: svc, lifecycle: life, signer: signer,
		approved: approved, pending: pending, admin: adm,
		license: license, logs: logs,
	}
}

func TestNewAuthService_NilDependencies(t *testing.T) {
	repo := mocks.NewMockAccountRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	signer := mocks.NewMockTokenSigner(t)

	tests := []struct {
		name        string
		repo        auth.AccountRepository
		hasher      auth.PasswordHasher
		signer      auth.TokenSigner
		expectError string
	}{
		{"nil accounts repository", nil, hasher, signer, "accounts repository is required"},
		{"nil password hasher", repo, nil, signer, "password hasher is required"},
		{"nil token signer", repo, hasher, nil, "token signer is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewAuthService(tt.repo, tt.hasher, tt.signer)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestNewAuthServiceWithLogger_NilLogger(t *testing.T) {
	svc, err := auth.NewAuthServiceWithLogger(
		mocks.NewMockAccountRepository(t), mocks.NewMockPasswordHasher(t), mocks.NewMockTokenSigner(t), nil)
	require.Error(t, err)
	assert.Nil(t, svc)
	assert.Contains(t, err.Error(), "logger")
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	expires := time.Now().Add(time.Hour).UTC()

	t.Run("approved reporter with license gets session", func(t *testing.T) {
		f := newFixture(t)
		f.signer.On("Sign", f.approved.ID.String(), "reporter").Return("tok", expires, nil)

		session, err := f.svc.Login(ctx, auth.Credentials{
			Email:      "ALICE@example.com",
			Password:   testPassword,
			LicenseKey: f.license,
		})
		require.NoError(t, err)
		assert.Equal(t, "tok", session.Token)
		assert.Equal(t, expires, session.ExpiresAt)
		assert.Equal(t, f.approved.ID.String(), session.User.ID)
		assert.Equal(t, auth.RoleReporter, session.User.Role)
		assert.Equal(t, "+16502530000", session.User.Phone)
	})

	t.Run("admin logs in without license", func(t *testing.T) {
		f := newFixture(t)
		f.signer.On("Sign", f.admin.ID.String(), "admin").Return("admintok", expires, nil)

		session, err := f.svc.Login(ctx, auth.Credentials{Email: "root@example.com", Password: testPassword})
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, session.User.Role)
	})

	t.Run("admin ignores a supplied license", func(t *testing.T) {
		f := newFixture(t)
		f.signer.On("Sign", f.admin.ID.String(), "admin").Return("admintok", expires, nil)

		_, err := f.svc.Login(ctx, auth.Credentials{Email: "root@example.com", Password: testPassword, LicenseKey: "garbage"})
		require.NoError(t, err)
	})

	failures := []struct {
		name   string
		creds  func(f *fixture) auth.Credentials
		reason string
	}{
		{
			name:   "unknown email",
			creds:  func(*fixture) auth.Credentials { return auth.Credentials{Email: "nobody@example.com", Password: testPassword} },
			reason: "unknown email",
		},
		{
			name: "wrong password",
			creds: func(f *fixture) auth.Credentials {
				return auth.Credentials{Email: "alice@example.com", Password: "wrong password", LicenseKey: f.license}
			},
			reason: "password mismatch",
		},
		{
			name: "wrong license",
			creds: func(*fixture) auth.Credentials {
				return auth.Credentials{Email: "alice@example.com", Password: testPassword, LicenseKey: "2026-WRONG"}
			},
			reason: "license mismatch",
		},
		{
			name: "missing license",
			creds: func(*fixture) auth.Credentials {
				return auth.Credentials{Email: "alice@example.com", Password: testPassword}
			},
			reason: "license mismatch",
		},
		{
			name: "pending reporter",
			creds: func(f *fixture) auth.Credentials {
				return auth.Credentials{Email: "pending@example.com", Password: testPassword, LicenseKey: f.license}
			},
			reason: "reporter not approved",
		},
	}
	for _, tt := range failures {
		t.Run(tt.name+" fails uniformly", func(t *testing.T) {
			f := newFixture(t)

			session, err := f.svc.Login(ctx, tt.creds(f))
			require.Error(t, err)
			assert.Nil(t, session)
			errutil.AssertErrorCode(t, err, auth.CodeAuthFailed)
			assert.Equal(t, "invalid credentials", err.Error())
			assert.Contains(t, f.logs.String(), tt.reason)
		})
	}

	t.Run("revoked reporter cannot log in with old license", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.lifecycle.Revoke(ctx, admin, f.approved.ID))

		_, err := f.svc.Login(ctx, auth.Credentials{Email: "alice@example.com", Password: testPassword, LicenseKey: f.license})
		errutil.AssertErrorCode(t, err, auth.CodeAuthFailed)
	})

	t.Run("unknown email still runs verification", func(t *testing.T) {
		repo := mocks.NewMockAccountRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewAuthService(repo, hasher, mocks.NewMockTokenSigner(t))
		require.NoError(t, err)

		repo.On("GetByEmail", ctx, "ghost@example.com").Return(nil, auth.ErrNotFound)
		hasher.On("Verify", "pw", mock.AnythingOfType("string")).Return(false, nil)

		_, err = svc.Login(ctx, auth.Credentials{Email: "ghost@example.com", Password: "pw"})
		errutil.AssertErrorCode(t, err, auth.CodeAuthFailed)
	})

	t.Run("storage failure is not an authentication failure", func(t *testing.T) {
		repo := mocks.NewMockAccountRepository(t)
		svc, err := auth.NewAuthService(repo, mocks.NewMockPasswordHasher(t), mocks.NewMockTokenSigner(t))
		require.NoError(t, err)

		repo.On("GetByEmail", ctx, "a@example.com").Return(nil, errors.New("connection reset"))

		_, err = svc.Login(ctx, auth.Credentials{Email: "a@example.com", Password: "pw"})
		errutil.AssertErrorCode(t, err, "LOGIN_FAILED")
	})

	t.Run("signer failure surfaces", func(t *testing.T) {
		f := newFixture(t)
		f.signer.On("Sign", f.admin.ID.String(), "admin").Return("", time.Time{}, errors.New("no key"))

		_, err := f.svc.Login(ctx, auth.Credentials{Email: "root@example.com", Password: testPassword})
		errutil.AssertErrorCode(t, err, "SESSION_ISSUE_FAILED")
	})
}

func TestAuthService_Me(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.svc.Me(ctx, f.approved.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Alice Reporter", p.Name)

	_, err = f.svc.Me(ctx, "not-a-ulid")
	errutil.AssertErrorCode(t, err, auth.CodeValidation)

	_, err = f.svc.Me(ctx, auth.NewID().String())
	errutil.AssertErrorCode(t, err, auth.CodeNotFound)
}

func TestAuthService_EnsureAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.EnsureAdmin(ctx, "Root", "ROOT@example.com", testPassword)
	require.NoError(t, err)
	assert.False(t, created, "second call is a no-op")

	_, err = f.svc.EnsureAdmin(ctx, "Alice", "alice@example.com", testPassword)
	errutil.AssertErrorCode(t, err, auth.CodeDuplicateEmail)

	_, err = f.svc.EnsureAdmin(ctx, "Other", "other@example.com", "short")
	errutil.AssertErrorCode(t, err, auth.CodeValidation)
}

func TestProjection_Redacts(t *testing.T) {
	key := "2026-ABCD"
	a := &auth.Account{
		ID:                auth.NewID(),
		Role:              auth.RoleReporter,
		Name:              "Alice",
		Email:             "alice@example.com",
		PasswordHash:      "secret-hash",
		CitizenshipNumber: "12-34",
		IDCardURL:         "https://cdn.example.com/id.jpg",
		LicenseKey:        &key,
	}
	p := a.Projection()
	assert.Equal(t, a.ID.String(), p.ID)
	assert.NotContains(t, []string{p.Name, p.Email, p.Phone, p.ProfilePhotoURL}, "secret-hash")
}

func TestRole_Can(t *testing.T) {
	assert.True(t, auth.RoleReporter.Can(auth.CapReporterDesk))
	assert.False(t, auth.RoleReporter.Can(auth.CapAdminConsole))
	assert.True(t, auth.RoleAdmin.Can(auth.CapAdminConsole))
	assert.False(t, auth.RoleAdmin.Can(auth.CapReporterDesk))
	assert.False(t, auth.Role("editor").Can(auth.CapReporterDesk))

	_, err := auth.ParseRole("editor")
	errutil.AssertErrorCode(t, err, auth.CodeValidation)
	r, err := auth.ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, r)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, auth.CanTransition(auth.StatusPending, auth.StatusApproved))
	assert.True(t, auth.CanTransition(auth.StatusApproved, auth.StatusRevoked))
	assert.False(t, auth.CanTransition(auth.StatusPending, auth.StatusRevoked))
	assert.False(t, auth.CanTransition(auth.StatusRevoked, auth.StatusApproved))
	assert.False(t, auth.CanTransition(auth.StatusApproved, auth.StatusPending))
}
