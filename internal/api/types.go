// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package api

import (
	"time"

	"github.com/truthtribunal/tribunal/internal/auth"
)

// Wire error codes. They are the lower-case form of the auth error codes.
const (
	WireUnauthorized         = "unauthorized"
	WireAuthenticationFailed = "authentication_failed"
	WireForbidden            = "forbidden"
	WireInternal             = "internal"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// RegisterResponse acknowledges a submitted application.
type RegisterResponse struct {
	ID     string      `json:"id" yaml:"id"`
	Status auth.Status `json:"status" yaml:"status"`
}

// AccountIDRequest names the account an admin action applies to.
type AccountIDRequest struct {
	UserID string `json:"user_id"`
}

// ApproveResponse carries the license assigned on approval.
type ApproveResponse struct {
	LicenseKey string `json:"license_key" yaml:"license_key"`
}

// RevokeResponse confirms a revocation.
type RevokeResponse struct {
	Status auth.Status `json:"status" yaml:"status"`
}

// UploadRequest asks for a presigned upload slot.
type UploadRequest struct {
	Kind string `json:"kind"`
}

// Application is the admin view of a reporter record, documents included.
type Application struct {
	ID                string      `json:"id" yaml:"id"`
	Name              string      `json:"name" yaml:"name"`
	Email             string      `json:"email" yaml:"email"`
	Phone             string      `json:"phone_number" yaml:"phone_number"`
	CitizenshipNumber string      `json:"citizenship_number" yaml:"citizenship_number"`
	ProfilePhotoURL   string      `json:"profile_photo_url" yaml:"profile_photo_url"`
	IDCardURL         string      `json:"reporter_id_card_url" yaml:"reporter_id_card_url"`
	Status            auth.Status `json:"status" yaml:"status"`
	LicenseKey        string      `json:"license_key,omitempty" yaml:"license_key,omitempty"`
	CreatedAt         time.Time   `json:"created_at" yaml:"created_at"`
	ApprovedAt        *time.Time  `json:"approved_at,omitempty" yaml:"approved_at,omitempty"`
	RevokedAt         *time.Time  `json:"revoked_at,omitempty" yaml:"revoked_at,omitempty"`
}

// ApplicationFrom converts an account into its admin view.
func ApplicationFrom(a *auth.Account) Application {
	return Application{
		ID:                a.ID.String(),
		Name:              a.Name,
		Email:             a.Email,
		Phone:             a.Phone,
		CitizenshipNumber: a.CitizenshipNumber,
		ProfilePhotoURL:   a.ProfilePhotoURL,
		IDCardURL:         a.IDCardURL,
		Status:            a.Status,
		LicenseKey:        a.License(),
		CreatedAt:         a.CreatedAt,
		ApprovedAt:        a.ApprovedAt,
		RevokedAt:         a.RevokedAt,
	}
}

func applicationsFrom(accounts []*auth.Account) []Application {
	out := make([]Application, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, ApplicationFrom(a))
	}
	return out
}
