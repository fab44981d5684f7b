// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Repository sentinels. Implementations wrap these without an error code so
// that services can attach the domain code.
var (
	// ErrNotFound is returned when a requested account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when an email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrStaleStatus is returned when a conditional status update finds the
	// account in a different status than expected.
	ErrStaleStatus = errors.New("account status changed")

	// ErrLicenseTaken is returned when a license key is already assigned.
	ErrLicenseTaken = errors.New("license key already assigned")
)

// Error codes exposed to callers.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeDuplicateEmail    = "DUPLICATE_EMAIL"
	CodeInvalidTransition = "INVALID_STATE_TRANSITION"
	CodeAuthFailed        = "AUTHENTICATION_FAILED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeUpstream          = "UPSTREAM_FAILURE"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeLicenseExhausted  = "LICENSE_GENERATION_FAILED"
)

// ErrorCode returns the oops code carried by err, or "" if there is none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		code, _ := oopsErr.Code().(string)
		return code
	}
	return ""
}

// errAuthFailed is the uniform login failure. The failing factor is never
// part of the returned error.
func errAuthFailed() error {
	return oops.Code(CodeAuthFailed).Errorf("invalid credentials")
}
