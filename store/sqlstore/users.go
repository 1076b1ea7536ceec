package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/MrEthical07/goIdentity/store"
	"github.com/jmoiron/sqlx"
)

const userColumns = `id, email, password_hash, first_name, last_name, phone, locale, timezone,
	status, roles, mfa_enabled, mfa_secret, failed_login_attempts, locked_until,
	email_verified_at, last_login_at, created_at, updated_at`

type userRow struct {
	ID                  string        `db:"id"`
	Email               string        `db:"email"`
	PasswordHash        string        `db:"password_hash"`
	FirstName           string        `db:"first_name"`
	LastName            string        `db:"last_name"`
	Phone               string        `db:"phone"`
	Locale              string        `db:"locale"`
	Timezone            string        `db:"timezone"`
	Status              string        `db:"status"`
	Roles               string        `db:"roles"`
	MFAEnabled          bool          `db:"mfa_enabled"`
	MFASecret           string        `db:"mfa_secret"`
	FailedLoginAttempts int           `db:"failed_login_attempts"`
	LockedUntil         sql.NullInt64 `db:"locked_until"`
	EmailVerifiedAt     sql.NullInt64 `db:"email_verified_at"`
	LastLoginAt         sql.NullInt64 `db:"last_login_at"`
	CreatedAt           int64         `db:"created_at"`
	UpdatedAt           int64         `db:"updated_at"`
}

func (r userRow) user() (*store.User, error) {
	var roles []string
	if r.Roles != "" {
		if err := json.Unmarshal([]byte(r.Roles), &roles); err != nil {
			return nil, err
		}
	}
	return &store.User{
		ID:                  r.ID,
		Email:               r.Email,
		PasswordHash:        r.PasswordHash,
		FirstName:           r.FirstName,
		LastName:            r.LastName,
		Phone:               r.Phone,
		Locale:              r.Locale,
		Timezone:            r.Timezone,
		Status:              store.UserStatus(r.Status),
		Roles:               roles,
		MFAEnabled:          r.MFAEnabled,
		MFASecret:           r.MFASecret,
		FailedLoginAttempts: r.FailedLoginAttempts,
		LockedUntil:         timeFromNull(r.LockedUntil),
		EmailVerifiedAt:     timeFromNull(r.EmailVerifiedAt),
		LastLoginAt:         timeFromNull(r.LastLoginAt),
		CreatedAt:           fromMillis(r.CreatedAt),
		UpdatedAt:           fromMillis(r.UpdatedAt),
	}, nil
}

func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return wrap("create user", err)
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (:id, :email, :password_hash, :first_name, :last_name, :phone, :locale, :timezone,
			:status, :roles, :mfa_enabled, :mfa_secret, :failed_login_attempts, :locked_until,
			:email_verified_at, :last_login_at, :created_at, :updated_at)`, userRow{
		ID:                  u.ID,
		Email:               u.Email,
		PasswordHash:        u.PasswordHash,
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		Phone:               u.Phone,
		Locale:              u.Locale,
		Timezone:            u.Timezone,
		Status:              string(u.Status),
		Roles:               string(rolesJSON),
		MFAEnabled:          u.MFAEnabled,
		MFASecret:           u.MFASecret,
		FailedLoginAttempts: u.FailedLoginAttempts,
		LockedUntil:         nullMillis(u.LockedUntil),
		EmailVerifiedAt:     nullMillis(u.EmailVerifiedAt),
		LastLoginAt:         nullMillis(u.LastLoginAt),
		CreatedAt:           toMillis(u.CreatedAt),
		UpdatedAt:           toMillis(u.UpdatedAt),
	})
	return wrap("create user", err)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*store.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, s.rebind(`SELECT `+userColumns+` FROM users WHERE `+where+` = ?`), arg); err != nil {
		return nil, wrap("get user", err)
	}
	u, err := row.user()
	if err != nil {
		return nil, wrap("decode user", err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUser(ctx, "email", email)
}

// updateUser runs a single-row UPDATE and maps a missing row to ErrNotFound.
func (s *Store) updateUser(ctx context.Context, op, set, id string, args ...any) error {
	n, err := s.exec(ctx, `UPDATE users SET `+set+` WHERE id = ?`, append(args, id)...)
	if err != nil {
		return wrap(op, err)
	}
	return wrap(op, s.notFoundUnless(ctx, "users", id, n))
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	return s.updateUser(ctx, "update password", `password_hash = ?, updated_at = ?`, id, hash, toMillis(at))
}

func (s *Store) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.updateUser(ctx, "update last login", `last_login_at = ?`, id, toMillis(at))
}

func (s *Store) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return s.updateUser(ctx, "mark email verified", `email_verified_at = COALESCE(email_verified_at, ?)`, id, toMillis(at))
}

func (s *Store) SetMFASecret(ctx context.Context, id, secret string) error {
	return s.updateUser(ctx, "set mfa secret", `mfa_secret = ?`, id, secret)
}

func (s *Store) EnableMFA(ctx context.Context, id string) error {
	n, err := s.exec(ctx, `UPDATE users SET mfa_enabled = ? WHERE id = ? AND mfa_secret <> ''`, true, id)
	if err != nil {
		return wrap("enable mfa", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DisableMFA(ctx context.Context, id string) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE users SET mfa_enabled = ?, mfa_secret = '' WHERE id = ?`), false, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return store.ErrNotFound
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM backup_codes WHERE user_id = ?`), id)
		return err
	})
	return wrap("disable mfa", err)
}

func (s *Store) RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (store.LockoutState, error) {
	var row struct {
		FailedAttempts int           `db:"failed_login_attempts"`
		LockedUntil    sql.NullInt64 `db:"locked_until"`
	}
	err := s.db.GetContext(ctx, &row, s.rebind(`UPDATE users SET
		failed_login_attempts = CASE WHEN failed_login_attempts + 1 >= ? THEN ? ELSE failed_login_attempts + 1 END,
		locked_until = CASE WHEN failed_login_attempts + 1 >= ? THEN ? ELSE locked_until END
		WHERE id = ?
		RETURNING failed_login_attempts, locked_until`),
		threshold, threshold, threshold, toMillis(lockUntil), id)
	if err != nil {
		return store.LockoutState{}, wrap("record login failure", err)
	}
	return store.LockoutState{FailedAttempts: row.FailedAttempts, LockedUntil: timeFromNull(row.LockedUntil)}, nil
}

func (s *Store) ResetLoginFailures(ctx context.Context, id string) error {
	return s.updateUser(ctx, "reset login failures", `failed_login_attempts = 0, locked_until = NULL`, id)
}

func (s *Store) ClearExpiredLock(ctx context.Context, id string, now time.Time) (bool, error) {
	n, err := s.exec(ctx, `UPDATE users SET failed_login_attempts = 0, locked_until = NULL
		WHERE id = ? AND locked_until IS NOT NULL AND locked_until <= ?`, id, toMillis(now))
	if err != nil {
		return false, wrap("clear expired lock", err)
	}
	if n > 0 {
		return true, nil
	}
	return false, wrap("clear expired lock", s.notFoundUnless(ctx, "users", id, 0))
}
