package flows

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies domain errors for transport mapping.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindRateLimited
	KindNotImplemented
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindNotImplemented:
		return "not_implemented"
	default:
		return "internal"
	}
}

type domainError struct {
	kind   Kind
	msg    string
	parent error
}

func (e *domainError) Error() string { return e.msg }
func (e *domainError) Kind() Kind    { return e.kind }
func (e *domainError) Unwrap() error { return e.parent }

func newError(kind Kind, msg string) error {
	return &domainError{kind: kind, msg: msg}
}

var (
	ErrValidation         = newError(KindValidation, "validation failed")
	ErrEmailTaken         = newError(KindConflict, "email already registered")
	ErrInvalidCredentials = newError(KindUnauthorized, "invalid credentials")
	ErrAccountLocked      = newError(KindUnauthorized, "account is locked")
	ErrUserNotFound       = newError(KindNotFound, "user not found")

	ErrVerificationNotFound = newError(KindNotFound, "verification code not found")
	ErrVerificationExpired  = newError(KindNotFound, "verification code expired")
	ErrPinAttemptsExceeded  = newError(KindNotFound, "verification attempts exceeded")
	ErrInvalidPin           = newError(KindUnauthorized, "invalid verification code")

	ErrMFAAlreadyEnabled = newError(KindConflict, "mfa already enabled")
	ErrMFANotEnabled     = newError(KindValidation, "mfa not enabled")
	ErrTOTPNotSetUp      = newError(KindValidation, "totp not set up")
	ErrInvalidTOTPCode   = newError(KindUnauthorized, "invalid totp code")
	ErrInvalidBackupCode = newError(KindUnauthorized, "invalid or used backup code")
	ErrInvalidMFAMethod  = newError(KindValidation, "unsupported mfa method")
	ErrNotImplemented    = newError(KindNotImplemented, "not implemented")

	ErrInvalidToken   = newError(KindUnauthorized, "invalid token")
	ErrRefreshRevoked = newError(KindUnauthorized, "refresh token revoked")
	ErrRefreshExpired = newError(KindUnauthorized, "refresh token expired")
	// ErrRefreshReuse reports presentation of an already rotated refresh
	// token. It matches ErrRefreshRevoked under errors.Is.
	ErrRefreshReuse = &domainError{kind: KindUnauthorized, msg: "refresh token reuse detected", parent: ErrRefreshRevoked}

	ErrOAuthAccountConflict = newError(KindConflict, "account exists for this email")
	ErrForbidden            = newError(KindForbidden, "forbidden")
	ErrRateLimited          = newError(KindRateLimited, "too many requests")

	ErrStoreUnavailable = newError(KindInternal, "store unavailable")
	ErrInternal         = newError(KindInternal, "internal error")
)

// LockedError carries the lock expiry of a locked account.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return "account is locked until " + e.Until.UTC().Format(time.RFC3339)
}

func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }
func (e *LockedError) Kind() Kind           { return KindUnauthorized }

// KindOf returns the Kind of the first classified error in err's chain.
// Unclassified errors are internal.
func KindOf(err error) Kind {
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// validationError adds a field message to ErrValidation.
func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func storeError(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
