// Package store defines the persistence contracts of the identity engine.
//
// Implementations must honour the conditional-update semantics documented on
// each method; the engine relies on them instead of in-process locks.
// Backends shipped with this module live in store/memory, store/sqlstore and
// store/redisstore.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned (possibly wrapped) when a record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicate is returned (possibly wrapped) when a unique constraint rejects a write.
	ErrDuplicate = errors.New("store: duplicate record")
)

// Users persists user accounts and their security counters.
type Users interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error

	// SetMFASecret stores an unconfirmed TOTP secret. MFAEnabled is untouched.
	SetMFASecret(ctx context.Context, id, secret string) error
	// EnableMFA sets MFAEnabled. It fails with ErrNotFound when no secret is stored.
	EnableMFA(ctx context.Context, id string) error
	// DisableMFA clears MFAEnabled and MFASecret and deletes every backup code
	// of the user in one atomic operation.
	DisableMFA(ctx context.Context, id string) error

	// RecordLoginFailure atomically increments FailedLoginAttempts, capping it at
	// threshold. When the capped value reaches threshold LockedUntil is set to
	// lockUntil. The resulting counters are returned.
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (LockoutState, error)
	// ResetLoginFailures clears FailedLoginAttempts and LockedUntil.
	ResetLoginFailures(ctx context.Context, id string) error
	// ClearExpiredLock resets the counters only when LockedUntil is set and not
	// after now. It reports whether a lock was cleared.
	ClearExpiredLock(ctx context.Context, id string, now time.Time) (bool, error)
}

// RefreshTokens persists refresh-token rows. Rows are flagged, never deleted.
type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t *RefreshToken) error
	GetRefreshToken(ctx context.Context, id string) (*RefreshToken, error)
	// RevokeRefreshToken sets RevokedAt when it is still unset and reports
	// whether this call performed the revocation.
	RevokeRefreshToken(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeUserRefreshTokens(ctx context.Context, userID string, at time.Time) (int64, error)
	RevokeSessionRefreshTokens(ctx context.Context, sessionID string, at time.Time) (int64, error)
	RevokeRefreshFamily(ctx context.Context, family string, at time.Time) (int64, error)
}

// VerificationTokens persists PIN / link-token records.
type VerificationTokens interface {
	CreateVerification(ctx context.Context, v *VerificationToken) error
	// GetActiveVerification returns the most recently created record for
	// identifier whose UsedAt is unset and whose ExpiresAt is after now.
	GetActiveVerification(ctx context.Context, identifier string, now time.Time) (*VerificationToken, error)
	GetVerificationByToken(ctx context.Context, token string) (*VerificationToken, error)
	// IncrementVerificationAttempts adds one to Attempts of an unconsumed
	// record and returns the new value.
	IncrementVerificationAttempts(ctx context.Context, id string) (int, error)
	// ConsumeVerification sets UsedAt only when UsedAt is unset, Attempts is
	// below maxAttempts and ExpiresAt is after at. It reports whether the
	// record was consumed by this call.
	ConsumeVerification(ctx context.Context, id string, at time.Time, maxAttempts int) (bool, error)
}

// BackupCodes persists hashed MFA backup codes.
type BackupCodes interface {
	// ReplaceBackupCodes deletes every code of userID and inserts codes in one
	// atomic operation.
	ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCode) error
	// ConsumeBackupCode marks the unused code matching hash as used and reports
	// whether one was found.
	ConsumeBackupCode(ctx context.Context, userID, hash string, at time.Time) (bool, error)
	CountUnusedBackupCodes(ctx context.Context, userID string) (int, error)
}

// Sessions persists login contexts.
type Sessions interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	RevokeSession(ctx context.Context, id string, at time.Time) (bool, error)
}

// LinkedAccounts persists external identity-provider links.
type LinkedAccounts interface {
	GetLinkedAccount(ctx context.Context, provider, providerAccountID string) (*LinkedAccount, error)
	// UpsertLinkedAccount inserts a link or updates the provider tokens of the
	// existing (Provider, ProviderAccountID) row.
	UpsertLinkedAccount(ctx context.Context, a *LinkedAccount) error
}

// Store is the full persistence surface of the engine.
type Store interface {
	Users
	RefreshTokens
	VerificationTokens
	BackupCodes
	Sessions
	LinkedAccounts
}
