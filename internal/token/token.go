// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

// Package token mints and validates HS256 access tokens.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/truthtribunal/tribunal/internal/auth"
)

// MinSecretLength is the shortest HMAC secret accepted, in bytes.
const MinSecretLength = 32

// DefaultIssuer is the iss claim used when none is configured.
const DefaultIssuer = "tribunal"

// Claims are the access token claims. Subject is the account ID.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Signer issues and parses access tokens with a shared secret.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a Signer. ttl <= 0 selects auth.DefaultSessionTTL.
func NewSigner(secret []byte, issuer string, ttl time.Duration) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("TOKEN_SECRET_INVALID").
			With("min_length", MinSecretLength).
			Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if ttl <= 0 {
		ttl = auth.DefaultSessionTTL
	}
	return &Signer{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Sign mints a token for subject carrying role.
func (s *Signer) Sign(subject, role string) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").With("subject", subject).Wrap(err)
	}
	// NumericDate truncates to seconds; report what the token says.
	return signed, claims.ExpiresAt.Time, nil
}

// Parse validates raw and returns its claims. Any failure, including
// expiry, carries the UNAUTHORIZED code.
func (s *Signer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, oops.Code(auth.CodeUnauthorized).Wrapf(err, "invalid access token")
	}
	if !tok.Valid || claims.Subject == "" {
		return nil, oops.Code(auth.CodeUnauthorized).Errorf("invalid access token")
	}
	if _, err := auth.ParseRole(claims.Role); err != nil {
		return nil, oops.Code(auth.CodeUnauthorized).With("role", claims.Role).Errorf("invalid access token")
	}
	return claims, nil
}

var _ auth.TokenSigner = (*Signer)(nil)
