// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

// Package auth implements the reporter and admin identity lifecycle.
//
// # Domain Types
//
// Accounts should be created through their constructors:
//   - NewReporterApplication - a pending reporter built from a registration
//   - NewAdmin - an approved admin created by operator tooling
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated accounts.
//
// # Services
//
// Service types coordinate domain operations:
//   - RegistrationService - intake of reporter applications
//   - LifecycleService - approval and revocation of reporters, admin listings
//   - Verifier - credential checks for both roles
//   - SessionIssuer - token and projection issuance
//   - Service - login and account lookups composed from the above
//
// Services are created with New* constructors that validate dependencies.
package auth
