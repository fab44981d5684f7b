// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

// Package memory provides an in-process auth.AccountRepository for tests and
// single-node development servers. State is lost on exit.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/truthtribunal/tribunal/internal/auth"
)

// AccountRepository implements auth.AccountRepository in memory.
type AccountRepository struct {
	mu        sync.RWMutex
	byID      map[ulid.ULID]*auth.Account
	byEmail   map[string]ulid.ULID
	byLicense map[string]ulid.ULID
}

// NewAccountRepository creates an empty repository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:      make(map[ulid.ULID]*auth.Account),
		byEmail:   make(map[string]ulid.ULID),
		byLicense: make(map[string]ulid.ULID),
	}
}

// clone returns a deep copy so callers cannot mutate stored state.
func clone(a *auth.Account) *auth.Account {
	c := *a
	if a.LicenseKey != nil {
		k := *a.LicenseKey
		c.LicenseKey = &k
	}
	if a.ApprovedAt != nil {
		t := *a.ApprovedAt
		c.ApprovedAt = &t
	}
	if a.RevokedAt != nil {
		t := *a.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

// Create stores a new account.
func (r *AccountRepository) Create(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := auth.NormalizeEmail(account.Email)
	if _, ok := r.byEmail[email]; ok {
		return oops.With("email", email).Wrap(auth.ErrDuplicateEmail)
	}
	if _, ok := r.byID[account.ID]; ok {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("id", account.ID.String()).
			Errorf("account id already exists")
	}
	if key := account.License(); key != "" {
		if _, ok := r.byLicense[key]; ok {
			return oops.With("id", account.ID.String()).Wrap(auth.ErrLicenseTaken)
		}
		r.byLicense[key] = account.ID
	}

	stored := clone(account)
	stored.Email = email
	r.byID[account.ID] = stored
	r.byEmail[email] = account.ID
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, oops.With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return clone(a), nil
}

// GetByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, oops.With("email", email).Wrap(auth.ErrNotFound)
	}
	return clone(r.byID[id]), nil
}

// UpdateStatusAndLicense atomically applies a reporter status transition.
func (r *AccountRepository) UpdateStatusAndLicense(_ context.Context, id ulid.ULID, from, to auth.Status, license *string) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, oops.With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if a.Role != auth.RoleReporter || a.Status != from {
		return nil, oops.With("id", id.String()).
			With("expected", from).
			With("actual", a.Status).
			Wrap(auth.ErrStaleStatus)
	}
	if license != nil {
		if owner, taken := r.byLicense[*license]; taken && owner != id {
			return nil, oops.With("id", id.String()).Wrap(auth.ErrLicenseTaken)
		}
	}

	if old := a.License(); old != "" {
		delete(r.byLicense, old)
	}
	now := time.Now().UTC()
	a.Status = to
	a.UpdatedAt = now
	a.LicenseKey = nil
	if license != nil {
		k := *license
		a.LicenseKey = &k
		r.byLicense[k] = id
	}
	switch to {
	case auth.StatusApproved:
		a.ApprovedAt = &now
	case auth.StatusRevoked:
		a.RevokedAt = &now
	}
	return clone(a), nil
}

// List returns accounts matching the filter, oldest first.
func (r *AccountRepository) List(_ context.Context, filter auth.ListFilter) ([]*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]*auth.Account, 0)
	for _, a := range r.byID {
		if filter.Role != "" && a.Role != filter.Role {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(a.Name), needle) &&
			!strings.Contains(strings.ToLower(a.Email), needle) &&
			!strings.Contains(strings.ToLower(a.License()), needle) {
			continue
		}
		out = append(out, clone(a))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Compare(out[j].ID) < 0
	})
	return out, nil
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)
