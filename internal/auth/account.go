// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the closed set of actor roles.
type Role string

// Roles.
const (
	RoleReporter Role = "reporter"
	RoleAdmin    Role = "admin"
)

// ParseRole converts a wire value into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleReporter, RoleAdmin:
		return Role(s), nil
	default:
		return "", oops.Code(CodeValidation).With("role", s).Errorf("unknown role %q", s)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleReporter || r == RoleAdmin
}

// Capability is a role-gated area of the product.
type Capability string

// Capabilities.
const (
	CapReporterDesk Capability = "reporter_desk"
	CapAdminConsole Capability = "admin_console"
)

// Can reports whether the role grants the capability.
func (r Role) Can(c Capability) bool {
	switch c {
	case CapReporterDesk:
		return r == RoleReporter
	case CapAdminConsole:
		return r == RoleAdmin
	default:
		return false
	}
}

// Status is the lifecycle state of an account.
type Status string

// Statuses.
const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRevoked  Status = "revoked"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRevoked
}

// CanTransition reports whether a reporter may move from one status to another.
// pending -> approved and approved -> revoked are the only edges.
func CanTransition(from, to Status) bool {
	return (from == StatusPending && to == StatusApproved) ||
		(from == StatusApproved && to == StatusRevoked)
}

// Account is a reporter or admin identity.
type Account struct {
	ID                ulid.ULID
	Role              Role
	Name              string
	Email             string
	PasswordHash      string
	Phone             string
	CitizenshipNumber string
	ProfilePhotoURL   string
	IDCardURL         string
	Status            Status
	LicenseKey        *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ApprovedAt        *time.Time
	RevokedAt         *time.Time
}

// Projection is the client-safe view of an account.
type Projection struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	Email           string `json:"email" yaml:"email"`
	Role            Role   `json:"role" yaml:"role"`
	Phone           string `json:"phone_number" yaml:"phone_number"`
	ProfilePhotoURL string `json:"profile_photo_url" yaml:"profile_photo_url"`
}

// Projection returns the redacted view of the account.
func (a *Account) Projection() Projection {
	return Projection{
		ID:              a.ID.String(),
		Name:            a.Name,
		Email:           a.Email,
		Role:            a.Role,
		Phone:           a.Phone,
		ProfilePhotoURL: a.ProfilePhotoURL,
	}
}

// License returns the license key or "" when none is assigned.
func (a *Account) License() string {
	if a.LicenseKey == nil {
		return ""
	}
	return *a.LicenseKey
}

// NormalizeEmail canonicalizes an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewReporterApplication creates a pending reporter from a validated application
// and a password hash.
func NewReporterApplication(app Application, passwordHash string) (*Account, error) {
	if passwordHash == "" {
		return nil, oops.Code(CodeValidation).Errorf("password hash cannot be empty")
	}
	now := time.Now().UTC()
	return &Account{
		ID:                NewID(),
		Role:              RoleReporter,
		Name:              strings.TrimSpace(app.Name),
		Email:             NormalizeEmail(app.Email),
		PasswordHash:      passwordHash,
		Phone:             app.Phone,
		CitizenshipNumber: strings.TrimSpace(app.CitizenshipNumber),
		ProfilePhotoURL:   app.ProfilePhotoURL,
		IDCardURL:         app.IDCardURL,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// NewAdmin creates an approved admin account. Admins never carry a license.
func NewAdmin(name, email, passwordHash string) (*Account, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if name == "" {
		return nil, oops.Code(CodeValidation).Errorf("admin name cannot be empty")
	}
	if email == "" {
		return nil, oops.Code(CodeValidation).Errorf("admin email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeValidation).Errorf("password hash cannot be empty")
	}
	now := time.Now().UTC()
	return &Account{
		ID:           NewID(),
		Role:         RoleAdmin,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Status:       StatusApproved,
		CreatedAt:    now,
		UpdatedAt:    now,
		ApprovedAt:   &now,
	}, nil
}

// ListFilter narrows account listings.
type ListFilter struct {
	Role   Role
	Status Status
	// Search is a case-insensitive substring matched against name, email
	// and license key. Empty matches everything.
	Search string
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account.
	// Returns ErrDuplicateEmail if the email is already registered.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by email (case-insensitive).
	// Returns ErrNotFound if no account has the given email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// UpdateStatusAndLicense atomically moves a reporter from one status to
	// another and sets (or clears, when license is nil) its license key.
	// Returns ErrStaleStatus if the current status is not from, and
	// ErrLicenseTaken if the license key is already assigned.
	UpdateStatusAndLicense(ctx context.Context, id ulid.ULID, from, to Status, license *string) (*Account, error)

	// List returns accounts matching the filter, oldest first.
	List(ctx context.Context, filter ListFilter) ([]*Account, error)
}
