// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

// Package mocks provides testify mocks for auth interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/truthtribunal/tribunal/internal/auth"
)

// TestingT is the subset of testing.TB the constructors need.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockAccountRepository mocks auth.AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

// NewMockAccountRepository creates a mock that asserts its expectations on cleanup.
func NewMockAccountRepository(t TestingT) *MockAccountRepository {
	m := &MockAccountRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create implements auth.AccountRepository.
func (m *MockAccountRepository) Create(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// GetByID implements auth.AccountRepository.
func (m *MockAccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	args := m.Called(ctx, id)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

// GetByEmail implements auth.AccountRepository.
func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

// UpdateStatusAndLicense implements auth.AccountRepository.
func (m *MockAccountRepository) UpdateStatusAndLicense(ctx context.Context, id ulid.ULID, from, to auth.Status, license *string) (*auth.Account, error) {
	args := m.Called(ctx, id, from, to, license)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

// List implements auth.AccountRepository.
func (m *MockAccountRepository) List(ctx context.Context, filter auth.ListFilter) ([]*auth.Account, error) {
	args := m.Called(ctx, filter)
	accounts, _ := args.Get(0).([]*auth.Account)
	return accounts, args.Error(1)
}

// MockPasswordHasher mocks auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t TestingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash implements auth.PasswordHasher.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// Verify implements auth.PasswordHasher.
func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

// MockTokenSigner mocks auth.TokenSigner.
type MockTokenSigner struct {
	mock.Mock
}

// NewMockTokenSigner creates a mock that asserts its expectations on cleanup.
func NewMockTokenSigner(t TestingT) *MockTokenSigner {
	m := &MockTokenSigner{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Sign implements auth.TokenSigner.
func (m *MockTokenSigner) Sign(subject, role string) (string, time.Time, error) {
	args := m.Called(subject, role)
	expires, _ := args.Get(1).(time.Time)
	return args.String(0), expires, args.Error(2)
}

// MockLicenseGenerator mocks auth.LicenseGenerator.
type MockLicenseGenerator struct {
	mock.Mock
}

// NewMockLicenseGenerator creates a mock that asserts its expectations on cleanup.
func NewMockLicenseGenerator(t TestingT) *MockLicenseGenerator {
	m := &MockLicenseGenerator{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Generate implements auth.LicenseGenerator.
func (m *MockLicenseGenerator) Generate() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

var (
	_ auth.AccountRepository = (*MockAccountRepository)(nil)
	_ auth.PasswordHasher    = (*MockPasswordHasher)(nil)
	_ auth.TokenSigner       = (*MockTokenSigner)(nil)
	_ auth.LicenseGenerator  = (*MockLicenseGenerator)(nil)
)
