// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package auth_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/internal/auth/memory"
	"github.com/truthtribunal/tribunal/internal/auth/mocks"
	"github.com/truthtribunal/tribunal/pkg/errutil"
)

var (
	admin    = auth.Actor{ID: "01HADMIN0000000000000000000", Role: auth.RoleAdmin}
	reporter = auth.Actor{ID: "01HREPORTER0000000000000000", Role: auth.RoleReporter}
)

func newLifecycle(t *testing.T, repo auth.AccountRepository, gen auth.LicenseGenerator) *auth.LifecycleService {
	t.Helper()
	if gen == nil {
		gen = auth.NewYearCodeGenerator(auth.DefaultLicenseLength)
	}
	svc, err := auth.NewLifecycleService(repo, gen, 3, discardLogger())
	require.NoError(t, err)
	return svc
}

func seedPending(t *testing.T, repo auth.AccountRepository, name, email string) *auth.Account {
	t.Helper()
	a, err := auth.NewReporterApplication(auth.Application{Name: name, Email: email}, "hash")
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), a))
	return a
}

func TestNewLifecycleService_NilDependencies(t *testing.T) {
	repo := memory.NewAccountRepository()
	gen := auth.NewYearCodeGenerator(8)

	_, err := auth.NewLifecycleService(nil, gen, 0, discardLogger())
	assert.ErrorContains(t, err, "accounts repository is required")
	_, err = auth.NewLifecycleService(repo, nil, 0, discardLogger())
	assert.ErrorContains(t, err, "license generator is required")
	_, err = auth.NewLifecycleService(repo, gen, 0, nil)
	assert.ErrorContains(t, err, "logger is required")
}

func TestLifecycleService_Approve(t *testing.T) {
	ctx := context.Background()

	t.Run("pending reporter becomes approved with license", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		svc := newLifecycle(t, repo, nil)
		a := seedPending(t, repo, "Alice", "alice@example.com")

		license, err := svc.Approve(ctx, admin, a.ID)
		require.NoError(t, err)
		assert.Regexp(t, regexp.MustCompile(`^\d{4}-[2-9A-HJ-NP-Z]{8}$`), license)

		stored, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, auth.StatusApproved, stored.Status)
		assert.Equal(t, license, stored.License())
	})

	t.Run("approving twice fails", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		svc := newLifecycle(t, repo, nil)
		a := seedPending(t, repo, "Alice", "alice@example.com")

		_, err := svc.Approve(ctx, admin, a.ID)
		require.NoError(t, err)
		_, err = svc.Approve(ctx, admin, a.ID)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidTransition)
	})

	t.Run("non-admin actor is forbidden", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		svc := newLifecycle(t, repo, nil)
		a := seedPending(t, repo, "Alice", "alice@example.com")

		_, err := svc.Approve(ctx, reporter, a.ID)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeForbidden)
	})

	t.Run("unknown account is not found", func(t *testing.T) {
		svc := newLifecycle(t, memory.NewAccountRepository(), nil)
		_, err := svc.Approve(ctx, admin, auth.NewID())
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeNotFound)
	})

	t.Run("admin accounts have no lifecycle", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		svc := newLifecycle(t, repo, nil)
		adm, err := auth.NewAdmin("Root", "root@example.com", "hash")
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, adm))

		_, err = svc.Approve(ctx, admin, adm.ID)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidTransition)
	})

	t.Run("license collision is retried with a fresh key", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		gen := mocks.NewMockLicenseGenerator(t)
		svc := newLifecycle(t, repo, gen)
		first := seedPending(t, repo, "Alice", "alice@example.com")
		second := seedPending(t, repo, "Bob", "bob@example.com")

		gen.On("Generate").Return("2026-SAME", nil).Twice()
		gen.On("Generate").Return("2026-FRESH", nil).Once()

		k1, err := svc.Approve(ctx, admin, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "2026-SAME", k1)

		k2, err := svc.Approve(ctx, admin, second.ID)
		require.NoError(t, err)
		assert.Equal(t, "2026-FRESH", k2)
	})

	t.Run("exhausted retries report generation failure", func(t *testing.T) {
		repo := mocks.NewMockAccountRepository(t)
		gen := mocks.NewMockLicenseGenerator(t)
		svc := newLifecycle(t, repo, gen)
		a, err := auth.NewReporterApplication(auth.Application{Name: "A", Email: "a@example.com"}, "hash")
		require.NoError(t, err)

		repo.On("GetByID", ctx, a.ID).Return(a, nil)
		gen.On("Generate").Return("2026-SAME", nil).Times(3)
		repo.On("UpdateStatusAndLicense", mock.Anything, a.ID, auth.StatusPending, auth.StatusApproved, mock.Anything).
			Return(nil, oops.Wrap(auth.ErrLicenseTaken)).Times(3)

		_, err = svc.Approve(ctx, admin, a.ID)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeLicenseExhausted)
	})

	t.Run("generator failure is not retried", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		gen := mocks.NewMockLicenseGenerator(t)
		svc := newLifecycle(t, repo, gen)
		a := seedPending(t, repo, "Alice", "alice@example.com")

		gen.On("Generate").Return("", errors.New("entropy exhausted")).Once()

		_, err := svc.Approve(ctx, admin, a.ID)
		require.Error(t, err)

		stored, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, auth.StatusPending, stored.Status)
	})
}

func TestLifecycleService_ConcurrentApprove(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAccountRepository()
	svc := newLifecycle(t, repo, nil)
	a := seedPending(t, repo, "Alice", "alice@example.com")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes []string
		failures  []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, err := svc.Approve(ctx, admin, a.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			successes = append(successes, key)
		}()
	}
	wg.Wait()

	require.Len(t, successes, 1)
	require.Len(t, failures, workers-1)
	for _, err := range failures {
		errutil.AssertErrorCode(t, err, auth.CodeInvalidTransition)
	}

	stored, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, successes[0], stored.License())
}

func TestLifecycleService_LicensesAreUnique(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAccountRepository()
	svc := newLifecycle(t, repo, nil)

	seen := make(map[string]bool)
	for i := range 50 {
		a := seedPending(t, repo, "Reporter", "r"+string(rune('a'+i%26))+string(rune('a'+i/26))+"@example.com")
		key, err := svc.Approve(ctx, admin, a.ID)
		require.NoError(t, err)
		assert.False(t, seen[key], "duplicate license %s", key)
		seen[key] = true
	}
}

func TestLifecycleService_Revoke(t *testing.T) {
	ctx := context.Background()

	t.Run("approved reporter is revoked and license cleared", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		svc := newLifecycle(t, repo, nil)
		a := seedPending(t, repo, "Alice", "alice@example.com")
		_, err := svc.Approve(ctx, admin, a.ID)
		require.NoError(t, err)

		require.NoError(t, svc.Revoke(ctx, admin, a.ID))

		stored, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, auth.StatusRevoked, stored.Status)
		assert.Nil(t, stored.LicenseKey)
	})

	t.Run("pending reporter cannot be revoked", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		svc := newLifecycle(t, repo, nil)
		a := seedPending(t, repo, "Alice", "alice@example.com")

		err := svc.Revoke(ctx, admin, a.ID)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidTransition)
	})

	t.Run("revocation is terminal", func(t *testing.T) {
		repo := memory.NewAccountRepository()
		svc := newLifecycle(t, repo, nil)
		a := seedPending(t, repo, "Alice", "alice@example.com")
		_, err := svc.Approve(ctx, admin, a.ID)
		require.NoError(t, err)
		require.NoError(t, svc.Revoke(ctx, admin, a.ID))

		err = svc.Revoke(ctx, admin, a.ID)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidTransition)
		_, err = svc.Approve(ctx, admin, a.ID)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidTransition)
	})

	t.Run("non-admin actor is forbidden", func(t *testing.T) {
		svc := newLifecycle(t, memory.NewAccountRepository(), nil)
		err := svc.Revoke(ctx, reporter, auth.NewID())
		errutil.AssertErrorCode(t, err, auth.CodeForbidden)
	})
}

func TestLifecycleService_Listings(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAccountRepository()
	svc := newLifecycle(t, repo, nil)

	bob := seedPending(t, repo, "Bob Smith", "bob@example.com")
	bobby := seedPending(t, repo, "Roberta", "BOBBY@example.com")
	seedPending(t, repo, "Carol", "carol@example.com")
	for _, id := range []*auth.Account{bob, bobby} {
		_, err := svc.Approve(ctx, admin, id.ID)
		require.NoError(t, err)
	}

	pending, err := svc.ListPending(ctx, admin)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Carol", pending[0].Name)

	matches, err := svc.ListApproved(ctx, admin, "bob")
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	none, err := svc.ListApproved(ctx, admin, "zed")
	require.NoError(t, err)
	assert.Empty(t, none)

	detail, err := svc.GetApplication(ctx, admin, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", detail.Email)

	_, err = svc.ListPending(ctx, reporter)
	errutil.AssertErrorCode(t, err, auth.CodeForbidden)
	_, err = svc.ListApproved(ctx, reporter, "")
	errutil.AssertErrorCode(t, err, auth.CodeForbidden)
	_, err = svc.GetApplication(ctx, reporter, bob.ID)
	errutil.AssertErrorCode(t, err, auth.CodeForbidden)
}
