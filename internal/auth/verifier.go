// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// Credentials are the login factors. LicenseKey is required for reporters
// and ignored for admins.
type Credentials struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	LicenseKey string `json:"license_key,omitempty"`
}

// dummyPasswordHash is verified when no account exists so that response time
// does not reveal whether an email is registered. It matches no password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Verifier checks login credentials against stored accounts.
type Verifier struct {
	accounts AccountRepository
	hasher   PasswordHasher
	logger   *slog.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(accounts AccountRepository, hasher PasswordHasher, logger *slog.Logger) (*Verifier, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Verifier{accounts: accounts, hasher: hasher, logger: logger}, nil
}

// Verify returns the account whose credentials match. Every rejection is the
// same AUTHENTICATION_FAILED error; the failing factor is only logged.
func (v *Verifier) Verify(ctx context.Context, creds Credentials) (*Account, error) {
	email := NormalizeEmail(creds.Email)
	account, lookupErr := v.accounts.GetByEmail(ctx, email)

	targetHash := dummyPasswordHash
	exists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("LOGIN_FAILED").
				With("operation", "get account by email").
				Wrap(lookupErr)
		}
	} else {
		targetHash = account.PasswordHash
		exists = true
	}

	// Always verify so unknown emails cost the same as known ones.
	valid, verifyErr := v.hasher.Verify(creds.Password, targetHash)
	if verifyErr != nil {
		if !exists {
			return nil, v.reject(ctx, "unknown email")
		}
		return nil, oops.Code("LOGIN_FAILED").
			With("operation", "verify password").
			With("account_id", account.ID.String()).
			Wrap(verifyErr)
	}

	if !exists {
		return nil, v.reject(ctx, "unknown email")
	}
	if !valid {
		return nil, v.reject(ctx, "password mismatch", "account_id", account.ID.String())
	}

	switch account.Role {
	case RoleAdmin:
		return account, nil
	case RoleReporter:
		if account.Status != StatusApproved {
			return nil, v.reject(ctx, "reporter not approved",
				"account_id", account.ID.String(),
				"status", account.Status)
		}
		stored := account.License()
		if stored == "" || subtle.ConstantTimeCompare([]byte(creds.LicenseKey), []byte(stored)) != 1 {
			return nil, v.reject(ctx, "license mismatch", "account_id", account.ID.String())
		}
		return account, nil
	default:
		return nil, v.reject(ctx, "unknown role", "account_id", account.ID.String())
	}
}

func (v *Verifier) reject(ctx context.Context, reason string, attrs ...any) error {
	v.logger.DebugContext(ctx, "login rejected", append([]any{"reason", reason}, attrs...)...)
	return errAuthFailed()
}
