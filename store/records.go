package store

import "time"

// UserStatus is the account lifecycle state.
type UserStatus string

const (
	UserActive    UserStatus = "ACTIVE"
	UserSuspended UserStatus = "SUSPENDED"
	UserDeleted   UserStatus = "DELETED"
)

// User is a persisted account.
type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	Phone               string
	Locale              string
	Timezone            string
	Status              UserStatus
	Roles               []string
	MFAEnabled          bool
	MFASecret           string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	EmailVerifiedAt     *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Clone returns a deep copy so callers can not alias store-owned state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = append([]string(nil), u.Roles...)
	c.LockedUntil = cloneTime(u.LockedUntil)
	c.EmailVerifiedAt = cloneTime(u.EmailVerifiedAt)
	c.LastLoginAt = cloneTime(u.LastLoginAt)
	return &c
}

// LockoutState is the counter pair returned by lockout updates.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// RefreshToken is one link of a rotation chain.
type RefreshToken struct {
	ID        string
	UserID    string
	SessionID string
	Token     string
	Family    string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// VerificationType is the closed set of PIN purposes.
type VerificationType string

const (
	EmailVerification VerificationType = "EMAIL_VERIFICATION"
	PhoneVerification VerificationType = "PHONE_VERIFICATION"
	PasswordReset     VerificationType = "PASSWORD_RESET"
	AccountLinking    VerificationType = "ACCOUNT_LINKING"
	TwoFactorAuth     VerificationType = "TWO_FACTOR_AUTH"
	PhoneNumberChange VerificationType = "PHONE_NUMBER_CHANGE"
)

// VerificationToken is a PIN record with an independent link-token.
type VerificationToken struct {
	ID         string
	Identifier string
	Type       VerificationType
	PinHash    string
	PinSalt    string
	Token      string
	ExpiresAt  time.Time
	Attempts   int
	UsedAt     *time.Time
	UserID     string
	CreatedAt  time.Time
}

// BackupCode is a hashed single-use MFA recovery code.
type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Session is a login context.
type Session struct {
	ID        string
	UserID    string
	IPAddress string
	UserAgent string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// LinkedAccount binds a user to an external identity provider account.
type LinkedAccount struct {
	ID                string
	UserID            string
	Provider          string
	ProviderAccountID string
	AccessToken       string
	RefreshToken      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
