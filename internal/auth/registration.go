// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
	"github.com/samber/oops"
)

// Field limits for reporter applications.
const (
	MaxNameLength        = 120
	MaxEmailLength       = 120
	MinPasswordLength    = 8
	MaxPasswordLength    = 128
	MaxCitizenshipLength = 50
	MaxDocumentURLLength = 500
)

// DefaultPhoneRegion is used to parse numbers written without a country code.
const DefaultPhoneRegion = "NP"

// Application is a reporter's registration request.
type Application struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	Phone             string `json:"phone_number"`
	CitizenshipNumber string `json:"citizenship_number"`
	ProfilePhotoURL   string `json:"profile_photo_url"`
	IDCardURL         string `json:"reporter_id_card_url"`
}

// Validate checks every field and returns validation.Errors keyed by the
// JSON field name.
func (a Application) Validate(region string) error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Name, validation.Required, validation.Length(1, MaxNameLength)),
		validation.Field(&a.Email, validation.Required, validation.Length(3, MaxEmailLength), is.Email),
		validation.Field(&a.Password, validation.Required, validation.Length(MinPasswordLength, MaxPasswordLength)),
		validation.Field(&a.Phone, validation.Required, validation.By(phoneRule(region))),
		validation.Field(&a.CitizenshipNumber, validation.Required, validation.Length(1, MaxCitizenshipLength)),
		validation.Field(&a.ProfilePhotoURL, validation.Required, validation.Length(1, MaxDocumentURLLength), validation.By(httpURLRule)),
		validation.Field(&a.IDCardURL, validation.Required, validation.Length(1, MaxDocumentURLLength), validation.By(httpURLRule)),
	)
}

func phoneRule(region string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if _, err := NormalizePhone(s, region); err != nil {
			return errors.New("must be a valid phone number")
		}
		return nil
	}
}

func httpURLRule(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}

// NormalizePhone parses a phone number and returns it in E.164 form.
func NormalizePhone(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), region)
	if err != nil {
		return "", oops.Code(CodeValidation).With("phone", raw).Wrap(err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", oops.Code(CodeValidation).With("phone", raw).Errorf("invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// validationError converts ozzo errors into a VALIDATION_ERROR carrying
// per-field messages under the "fields" context key.
func validationError(err error) error {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for field, ferr := range verrs {
			fields[field] = ferr.Error()
		}
		return oops.Code(CodeValidation).With("fields", fields).Errorf("invalid application: %s", verrs.Error())
	}
	return oops.Code(CodeValidation).Wrap(err)
}

// RegistrationService accepts reporter applications.
type RegistrationService struct {
	accounts AccountRepository
	hasher   PasswordHasher
	region   string
	logger   *slog.Logger
}

// NewRegistrationService creates a RegistrationService. An empty region
// falls back to DefaultPhoneRegion.
func NewRegistrationService(accounts AccountRepository, hasher PasswordHasher, region string, logger *slog.Logger) (*RegistrationService, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if region == "" {
		region = DefaultPhoneRegion
	}
	return &RegistrationService{accounts: accounts, hasher: hasher, region: strings.ToUpper(region), logger: logger}, nil
}

// Submit validates an application and stores it as a pending reporter.
// An existing record is never overwritten.
func (s *RegistrationService) Submit(ctx context.Context, app Application) (*Account, error) {
	if err := app.Validate(s.region); err != nil {
		return nil, validationError(err)
	}

	phone, err := NormalizePhone(app.Phone, s.region)
	if err != nil {
		return nil, err
	}
	app.Phone = phone

	email := NormalizeEmail(app.Email)
	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return nil, oops.Code(CodeDuplicateEmail).With("email", email).Errorf("email already registered")
	} else if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("REGISTRATION_FAILED").
			With("operation", "check existing email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(app.Password)
	if err != nil {
		return nil, oops.Code("REGISTRATION_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	account, err := NewReporterApplication(app, hash)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, oops.Code(CodeDuplicateEmail).With("email", email).Wrap(err)
		}
		return nil, oops.Code("REGISTRATION_FAILED").
			With("operation", "create account").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "reporter application submitted",
		"account_id", account.ID.String(),
	)
	return account, nil
}
