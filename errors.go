package goIdentity

import "github.com/MrEthical07/goIdentity/internal/flows"

// Every engine error is classified by KindOf. Compare with errors.Is; store
// and backend failures wrap ErrStoreUnavailable.
var (
	ErrValidation         = flows.ErrValidation
	ErrEmailTaken         = flows.ErrEmailTaken
	ErrInvalidCredentials = flows.ErrInvalidCredentials
	// ErrAccountLocked is matched by *LockedError, which carries the expiry.
	ErrAccountLocked = flows.ErrAccountLocked
	ErrUserNotFound  = flows.ErrUserNotFound

	ErrVerificationNotFound = flows.ErrVerificationNotFound
	ErrVerificationExpired  = flows.ErrVerificationExpired
	ErrPinAttemptsExceeded  = flows.ErrPinAttemptsExceeded
	ErrInvalidPin           = flows.ErrInvalidPin

	ErrMFAAlreadyEnabled = flows.ErrMFAAlreadyEnabled
	ErrMFANotEnabled     = flows.ErrMFANotEnabled
	ErrTOTPNotSetUp      = flows.ErrTOTPNotSetUp
	ErrInvalidTOTPCode   = flows.ErrInvalidTOTPCode
	ErrInvalidBackupCode = flows.ErrInvalidBackupCode
	ErrInvalidMFAMethod  = flows.ErrInvalidMFAMethod
	ErrNotImplemented    = flows.ErrNotImplemented

	ErrInvalidToken   = flows.ErrInvalidToken
	ErrRefreshRevoked = flows.ErrRefreshRevoked
	ErrRefreshExpired = flows.ErrRefreshExpired
	// ErrRefreshReuse also matches ErrRefreshRevoked.
	ErrRefreshReuse = flows.ErrRefreshReuse

	ErrOAuthAccountConflict = flows.ErrOAuthAccountConflict
	ErrForbidden            = flows.ErrForbidden
	ErrRateLimited          = flows.ErrRateLimited

	ErrStoreUnavailable = flows.ErrStoreUnavailable
	ErrInternal         = flows.ErrInternal
)

// Kind classifies errors for transport mapping.
type Kind = flows.Kind

const (
	KindInternal       = flows.KindInternal
	KindValidation     = flows.KindValidation
	KindConflict       = flows.KindConflict
	KindUnauthorized   = flows.KindUnauthorized
	KindForbidden      = flows.KindForbidden
	KindNotFound       = flows.KindNotFound
	KindRateLimited    = flows.KindRateLimited
	KindNotImplemented = flows.KindNotImplemented
)

type LockedError = flows.LockedError

// KindOf returns the Kind of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	return flows.KindOf(err)
}
