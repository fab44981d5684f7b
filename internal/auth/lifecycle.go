// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultLicenseAttempts bounds license generation retries on collision.
const DefaultLicenseAttempts = 5

// Actor identifies the caller of an administrative operation.
type Actor struct {
	ID   string
	Role Role
}

func requireAdmin(actor Actor, operation string) error {
	if actor.Role != RoleAdmin {
		return oops.Code(CodeForbidden).
			With("operation", operation).
			With("actor_id", actor.ID).
			Errorf("admin role required")
	}
	return nil
}

// LifecycleService approves and revokes reporters and serves admin listings.
type LifecycleService struct {
	accounts AccountRepository
	licenses LicenseGenerator
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// NewLifecycleService creates a LifecycleService. attempts <= 0 uses
// DefaultLicenseAttempts.
func NewLifecycleService(accounts AccountRepository, licenses LicenseGenerator, attempts int, logger *slog.Logger) (*LifecycleService, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if licenses == nil {
		return nil, oops.Errorf("license generator is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if attempts <= 0 {
		attempts = DefaultLicenseAttempts
	}
	return &LifecycleService{
		accounts: accounts,
		licenses: licenses,
		attempts: attempts,
		backoff:  5 * time.Millisecond,
		logger:   logger,
	}, nil
}

// loadReporter fetches an account and checks that it is a reporter in the
// from status.
func (s *LifecycleService) loadReporter(ctx context.Context, id ulid.ULID, from, to Status) (*Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "get account", id)
	}
	if account.Role != RoleReporter {
		return nil, oops.Code(CodeInvalidTransition).
			With("account_id", id.String()).
			With("role", account.Role).
			Errorf("only reporter accounts have a lifecycle")
	}
	if account.Status != from || !CanTransition(from, to) {
		return nil, oops.Code(CodeInvalidTransition).
			With("account_id", id.String()).
			With("from", account.Status).
			With("to", to).
			Errorf("cannot move account from %s to %s", account.Status, to)
	}
	return account, nil
}

// Approve moves a pending reporter to approved and assigns a unique license
// key, which is returned. Of concurrent approvals of one account exactly one
// succeeds; the rest fail with INVALID_STATE_TRANSITION.
func (s *LifecycleService) Approve(ctx context.Context, actor Actor, id ulid.ULID) (string, error) {
	if err := requireAdmin(actor, "approve"); err != nil {
		return "", err
	}
	if _, err := s.loadReporter(ctx, id, StatusPending, StatusApproved); err != nil {
		return "", err
	}

	var license string
	backoff := retry.WithMaxRetries(uint64(s.attempts-1), retry.NewConstant(s.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		key, genErr := s.licenses.Generate()
		if genErr != nil {
			return genErr
		}
		_, updErr := s.accounts.UpdateStatusAndLicense(ctx, id, StatusPending, StatusApproved, &key)
		if errors.Is(updErr, ErrLicenseTaken) {
			s.logger.DebugContext(ctx, "license key collision, regenerating", "account_id", id.String())
			return retry.RetryableError(updErr)
		}
		if updErr != nil {
			return updErr
		}
		license = key
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLicenseTaken) {
			return "", oops.Code(CodeLicenseExhausted).
				With("account_id", id.String()).
				With("attempts", s.attempts).
				Errorf("could not generate a unique license key")
		}
		return "", mapRepoError(err, "approve account", id)
	}

	s.logger.InfoContext(ctx, "reporter approved",
		"account_id", id.String(),
		"actor_id", actor.ID,
	)
	return license, nil
}

// Revoke moves an approved reporter to revoked and clears its license.
// Revocation is terminal.
func (s *LifecycleService) Revoke(ctx context.Context, actor Actor, id ulid.ULID) error {
	if err := requireAdmin(actor, "revoke"); err != nil {
		return err
	}
	if _, err := s.loadReporter(ctx, id, StatusApproved, StatusRevoked); err != nil {
		return err
	}
	if _, err := s.accounts.UpdateStatusAndLicense(ctx, id, StatusApproved, StatusRevoked, nil); err != nil {
		return mapRepoError(err, "revoke account", id)
	}

	s.logger.InfoContext(ctx, "reporter revoked",
		"account_id", id.String(),
		"actor_id", actor.ID,
	)
	return nil
}

// ListPending returns reporter applications awaiting a decision.
func (s *LifecycleService) ListPending(ctx context.Context, actor Actor) ([]*Account, error) {
	if err := requireAdmin(actor, "list pending"); err != nil {
		return nil, err
	}
	accounts, err := s.accounts.List(ctx, ListFilter{Role: RoleReporter, Status: StatusPending})
	if err != nil {
		return nil, oops.Code("LIST_FAILED").With("status", StatusPending).Wrap(err)
	}
	return accounts, nil
}

// ListApproved returns approved reporters whose name, email or license key
// contains search, ignoring case.
func (s *LifecycleService) ListApproved(ctx context.Context, actor Actor, search string) ([]*Account, error) {
	if err := requireAdmin(actor, "list approved"); err != nil {
		return nil, err
	}
	accounts, err := s.accounts.List(ctx, ListFilter{Role: RoleReporter, Status: StatusApproved, Search: search})
	if err != nil {
		return nil, oops.Code("LIST_FAILED").With("status", StatusApproved).Wrap(err)
	}
	return accounts, nil
}

// GetApplication returns the full record of a reporter, including documents,
// for review.
func (s *LifecycleService) GetApplication(ctx context.Context, actor Actor, id ulid.ULID) (*Account, error) {
	if err := requireAdmin(actor, "get application"); err != nil {
		return nil, err
	}
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "get account", id)
	}
	if account.Role != RoleReporter {
		return nil, oops.Code(CodeNotFound).With("account_id", id.String()).Errorf("reporter not found")
	}
	return account, nil
}

// mapRepoError attaches the domain code for repository sentinels.
func mapRepoError(err error, operation string, id ulid.ULID) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return oops.Code(CodeNotFound).With("account_id", id.String()).Wrap(err)
	case errors.Is(err, ErrStaleStatus):
		return oops.Code(CodeInvalidTransition).With("account_id", id.String()).Wrap(err)
	default:
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", operation).
			With("account_id", id.String()).
			Wrap(err)
	}
}
