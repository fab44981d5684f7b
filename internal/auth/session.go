// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// DefaultSessionTTL is the lifetime of an access token.
const DefaultSessionTTL = 24 * time.Hour

// TokenSigner mints access tokens bound to an account and role.
type TokenSigner interface {
	Sign(subject string, role string) (token string, expiresAt time.Time, err error)
}

// Session is an authenticated session handed to the client.
type Session struct {
	Token     string     `json:"access_token" yaml:"access_token"`
	ExpiresAt time.Time  `json:"expires_at" yaml:"expires_at"`
	User      Projection `json:"user" yaml:"user"`
}

// SessionIssuer turns a verified account into a session.
type SessionIssuer struct {
	signer TokenSigner
}

// NewSessionIssuer creates a SessionIssuer.
func NewSessionIssuer(signer TokenSigner) (*SessionIssuer, error) {
	if signer == nil {
		return nil, oops.Errorf("token signer is required")
	}
	return &SessionIssuer{signer: signer}, nil
}

// Issue mints a token for the account. The projection never carries the
// password hash, documents or license key.
func (i *SessionIssuer) Issue(account *Account) (*Session, error) {
	if account == nil {
		return nil, oops.Code("SESSION_ISSUE_FAILED").Errorf("account is required")
	}
	token, expiresAt, err := i.signer.Sign(account.ID.String(), string(account.Role))
	if err != nil {
		return nil, oops.Code("SESSION_ISSUE_FAILED").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: account.Projection()}, nil
}
