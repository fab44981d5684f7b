// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// Service provides login and account lookups.
type Service struct {
	accounts AccountRepository
	hasher   PasswordHasher
	verifier *Verifier
	issuer   *SessionIssuer
	logger   *slog.Logger
}

// NewAuthService creates a Service that logs to slog.Default().
func NewAuthService(accounts AccountRepository, hasher PasswordHasher, signer TokenSigner) (*Service, error) {
	return NewAuthServiceWithLogger(accounts, hasher, signer, slog.Default())
}

// NewAuthServiceWithLogger creates a Service with an explicit logger.
func NewAuthServiceWithLogger(accounts AccountRepository, hasher PasswordHasher, signer TokenSigner, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	verifier, err := NewVerifier(accounts, hasher, logger)
	if err != nil {
		return nil, err
	}
	issuer, err := NewSessionIssuer(signer)
	if err != nil {
		return nil, err
	}
	return &Service{
		accounts: accounts,
		hasher:   hasher,
		verifier: verifier,
		issuer:   issuer,
		logger:   logger,
	}, nil
}

// Login verifies credentials and issues a session.
func (s *Service) Login(ctx context.Context, creds Credentials) (*Session, error) {
	account, err := s.verifier.Verify(ctx, creds)
	if err != nil {
		return nil, err
	}
	session, err := s.issuer.Issue(account)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "login succeeded",
		"account_id", account.ID.String(),
		"role", account.Role,
	)
	return session, nil
}

// Me returns the projection of the account a token was issued to.
func (s *Service) Me(ctx context.Context, accountID string) (*Projection, error) {
	id, err := ParseID(accountID)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "get account", id)
	}
	p := account.Projection()
	return &p, nil
}

// EnsureAdmin creates an admin account unless one already exists with the
// email. It reports whether an account was created. An existing reporter
// with the email is a DUPLICATE_EMAIL error.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) (bool, error) {
	existing, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	switch {
	case err == nil && existing.Role == RoleAdmin:
		return false, nil
	case err == nil:
		return false, oops.Code(CodeDuplicateEmail).
			With("email", existing.Email).
			Errorf("email belongs to a %s account", existing.Role)
	case !errors.Is(err, ErrNotFound):
		return false, oops.Code("ADMIN_SEED_FAILED").
			With("operation", "check existing email").
			Wrap(err)
	}

	if len(password) < MinPasswordLength {
		return false, oops.Code(CodeValidation).
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, oops.Code("ADMIN_SEED_FAILED").With("operation", "hash password").Wrap(err)
	}
	admin, err := NewAdmin(name, email, hash)
	if err != nil {
		return false, err
	}
	if err := s.accounts.Create(ctx, admin); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return false, nil
		}
		return false, oops.Code("ADMIN_SEED_FAILED").With("operation", "create admin").Wrap(err)
	}

	s.logger.InfoContext(ctx, "admin account created", "account_id", admin.ID.String())
	return true, nil
}
