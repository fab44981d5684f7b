// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

// Package postgres implements auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/truthtribunal/tribunal/internal/auth"
)

// Constraint names from the accounts migration.
const (
	emailUniqueConstraint   = "accounts_email_lower_key"
	licenseUniqueConstraint = "accounts_license_key_key"
)

// poolIface is the subset of pgxpool.Pool used by repositories, so that
// pgxmock can stand in for a database in unit tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `id, role, name, email, password_hash, phone,
	citizenship_number, profile_photo_url, id_card_url, status,
	license_key, created_at, updated_at, approved_at, revoked_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool poolIface
}

// NewAccountRepository creates a new AccountRepository. pool is usually a
// *pgxpool.Pool.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, a *auth.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		a.ID.String(),
		string(a.Role),
		a.Name,
		auth.NormalizeEmail(a.Email),
		a.PasswordHash,
		a.Phone,
		a.CitizenshipNumber,
		a.ProfilePhotoURL,
		a.IDCardURL,
		string(a.Status),
		a.LicenseKey,
		a.CreatedAt,
		a.UpdatedAt,
		a.ApprovedAt,
		a.RevokedAt,
	)
	if err != nil {
		switch uniqueConstraint(err) {
		case emailUniqueConstraint:
			return oops.With("email", a.Email).Wrap(fmt.Errorf("%w: %w", auth.ErrDuplicateEmail, err))
		case licenseUniqueConstraint:
			return oops.With("id", a.ID.String()).Wrap(fmt.Errorf("%w: %w", auth.ErrLicenseTaken, err))
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("id", a.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by email").
			With("email", email).
			Wrap(err)
	}
	return account, nil
}

// UpdateStatusAndLicense applies a reporter transition in a single
// conditional UPDATE so concurrent callers cannot both succeed.
func (r *AccountRepository) UpdateStatusAndLicense(ctx context.Context, id ulid.ULID, from, to auth.Status, license *string) (*auth.Account, error) {
	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx, `
		UPDATE accounts SET
			status = $3,
			license_key = $4,
			updated_at = $5,
			approved_at = CASE WHEN $3 = 'approved' THEN $5 ELSE approved_at END,
			revoked_at = CASE WHEN $3 = 'revoked' THEN $5 ELSE revoked_at END
		WHERE id = $1 AND status = $2 AND role = 'reporter'
		RETURNING `+accountColumns,
		id.String(), string(from), string(to), license, now,
	)

	account, err := scanAccount(row)
	if err == nil {
		return account, nil
	}
	if uniqueConstraint(err) == licenseUniqueConstraint {
		return nil, oops.With("id", id.String()).Wrap(fmt.Errorf("%w: %w", auth.ErrLicenseTaken, err))
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update status").
			With("id", id.String()).
			Wrap(err)
	}

	// Nothing matched: either the account is gone or its status moved.
	var current string
	err = r.pool.QueryRow(ctx, `SELECT status FROM accounts WHERE id = $1`, id.String()).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "read current status").
			With("id", id.String()).
			Wrap(err)
	}
	return nil, oops.With("id", id.String()).
		With("expected", from).
		With("actual", current).
		Wrap(auth.ErrStaleStatus)
}

// List returns accounts matching the filter, oldest first.
func (r *AccountRepository) List(ctx context.Context, filter auth.ListFilter) ([]*auth.Account, error) {
	var (
		where []string
		args  []any
	)
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+escapeLike(s)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(name ILIKE $%[1]d OR email ILIKE $%[1]d OR COALESCE(license_key, '') ILIKE $%[1]d)", n))
	}

	query := `SELECT ` + accountColumns + ` FROM accounts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "list accounts").Wrap(err)
	}
	defer rows.Close()

	accounts := make([]*auth.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "scan account row").Wrap(err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "iterate accounts").Wrap(err)
	}
	return accounts, nil
}

// escapeLike escapes LIKE metacharacters using the default backslash escape.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// uniqueConstraint returns the violated constraint name for a unique
// violation, or "".
func uniqueConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName
	}
	return ""
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		a            auth.Account
		id           string
		role, status string
	)
	err := row.Scan(
		&id,
		&role,
		&a.Name,
		&a.Email,
		&a.PasswordHash,
		&a.Phone,
		&a.CitizenshipNumber,
		&a.ProfilePhotoURL,
		&a.IDCardURL,
		&status,
		&a.LicenseKey,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.ApprovedAt,
		&a.RevokedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return nil, oops.With("id", id).Wrapf(err, "parse account id")
	}
	a.ID = parsed
	a.Role = auth.Role(role)
	a.Status = auth.Status(status)
	return &a, nil
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)
