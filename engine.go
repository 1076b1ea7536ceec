package goIdentity

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/permission"
)

// Engine is the authentication orchestrator. Methods are safe for concurrent
// use; all state lives in the store.
type Engine struct {
	config   Config
	deps     *flows.Deps
	roles    *permission.RoleManager
	audit    *internalaudit.Dispatcher
	notifier *notify.Dispatcher
	metrics  *metrics.Metrics
}

// Close drains the notification and audit queues. The Engine must not be
// used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.notifier != nil {
		e.notifier.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports events discarded because the audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}
	return e.metrics.Snapshot()
}

/*
====================================
ACCOUNTS
====================================
*/

// Signup creates an account and queues its email verification PIN.
// A duplicate normalized email fails with ErrEmailTaken.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (*User, error) {
	return flows.RunSignup(ctx, req, e.deps)
}

// Login authenticates email and password. A locked account fails with a
// *LockedError; unknown users, wrong passwords and inactive accounts all
// fail with ErrInvalidCredentials. When MFA is required the result carries
// a challenge token instead of tokens.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	return flows.RunLogin(ctx, email, password, e.deps)
}

// CompleteMFALogin exchanges an MFA challenge and a second factor for tokens.
func (e *Engine) CompleteMFALogin(ctx context.Context, mfaToken string, method MFAMethod, code string) (*LoginResult, error) {
	return flows.RunCompleteMFALogin(ctx, mfaToken, method, code, e.deps)
}

// RequestMFALoginEmailCode sends the EMAIL second-factor code to the user
// named by an MFA challenge.
func (e *Engine) RequestMFALoginEmailCode(ctx context.Context, mfaToken string) error {
	return flows.RunRequestMFALoginEmailCode(ctx, mfaToken, e.deps)
}

// OAuthLogin signs in with a profile already verified by the provider.
func (e *Engine) OAuthLogin(ctx context.Context, profile OAuthProfile) (*LoginResult, error) {
	return flows.RunOAuthLogin(ctx, profile, e.deps)
}

// ForgotPassword never reports whether email has an account.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	return flows.RunForgotPassword(ctx, email, e.deps)
}

// ResetPassword consumes a PASSWORD_RESET PIN, replaces the password and
// revokes every refresh token of the user.
func (e *Engine) ResetPassword(ctx context.Context, email, pin, newPassword string) error {
	return flows.RunResetPassword(ctx, email, pin, newPassword, e.deps)
}

func (e *Engine) VerifyEmail(ctx context.Context, email, pin string) error {
	return flows.RunVerifyEmail(ctx, email, pin, e.deps)
}

// VerifyEmailLink consumes the link-token sent alongside a PIN.
func (e *Engine) VerifyEmailLink(ctx context.Context, token string) error {
	return flows.RunVerifyEmailLink(ctx, token, e.deps)
}

/*
====================================
TOKENS
====================================
*/

// GenerateTokens issues an access token and a new refresh family for user
// bound to sessionID.
func (e *Engine) GenerateTokens(ctx context.Context, user *User, sessionID string) (*TokenPair, error) {
	return flows.RunGenerateTokens(ctx, user, sessionID, "", e.deps)
}

// Refresh rotates a refresh token. Of concurrent calls with the same token
// exactly one succeeds. Presenting an already rotated token revokes its
// family when reuse detection is on and fails with ErrRefreshReuse.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return flows.RunRefresh(ctx, refreshToken, e.deps)
}

// Logout revokes sessionID (when not empty) and the user's refresh tokens
// according to Token.LogoutScope.
func (e *Engine) Logout(ctx context.Context, userID, sessionID string) error {
	return flows.RunLogout(ctx, userID, sessionID, e.deps)
}

// ValidateAccess verifies an access token. In ModeStrict the session it
// names must also still be live.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AccessClaims, error) {
	return e.ValidateAccessWithMode(ctx, accessToken, e.config.ValidationMode)
}

// ValidateAccessWithMode is ValidateAccess with a per-route mode override.
func (e *Engine) ValidateAccessWithMode(ctx context.Context, accessToken string, mode ValidationMode) (*AccessClaims, error) {
	return flows.RunValidateAccess(ctx, accessToken, mode == ModeStrict, e.deps)
}

// Authorize checks claims against reqs using the configured roles.
func (e *Engine) Authorize(claims *AccessClaims, reqs ...Requirement) error {
	if claims == nil {
		return ErrInvalidToken
	}
	err := e.roles.Check(claims.Roles, reqs...)
	if err == nil {
		return nil
	}
	e.metrics.Inc(metrics.AuthorizationDenied)
	if errors.Is(err, permission.ErrForbidden) {
		return ErrForbidden
	}
	return err
}

/*
====================================
VERIFICATION
====================================
*/

// RequestPin issues a PIN and link-token for req.Identifier and queues their
// delivery.
func (e *Engine) RequestPin(ctx context.Context, req PinRequest) error {
	return flows.RunRequestPin(ctx, req, e.deps)
}

// VerifyPin consumes the active PIN of identifier and returns its link-token.
func (e *Engine) VerifyPin(ctx context.Context, identifier, pin string) (string, error) {
	return flows.RunVerifyPin(ctx, identifier, pin, e.deps)
}

// RequestUserPin issues a PIN bound to userID. identifier must be the user's
// own email or phone; empty selects the email.
func (e *Engine) RequestUserPin(ctx context.Context, userID, identifier string, typ VerificationType) error {
	return flows.RunRequestUserPin(ctx, userID, identifier, typ, e.deps)
}

// VerifyUserPin is VerifyPin restricted to userID's own identifiers.
func (e *Engine) VerifyUserPin(ctx context.Context, userID, identifier, pin string) (string, error) {
	return flows.RunVerifyUserPin(ctx, userID, identifier, pin, e.deps)
}

func (e *Engine) VerifyToken(ctx context.Context, token string) (*Verification, error) {
	return flows.RunVerifyToken(ctx, token, e.deps)
}

/*
====================================
MFA
====================================
*/

func (e *Engine) SetupTOTP(ctx context.Context, userID string) (*TOTPSetup, error) {
	return flows.RunSetupTOTP(ctx, userID, e.deps)
}

// EnableTOTP confirms the pending secret with a current code.
func (e *Engine) EnableTOTP(ctx context.Context, userID, code string) error {
	return flows.RunEnableTOTP(ctx, userID, code, e.deps)
}

func (e *Engine) DisableMFA(ctx context.Context, userID string) error {
	return flows.RunDisableMFA(ctx, userID, e.deps)
}

func (e *Engine) VerifyMFA(ctx context.Context, userID string, method MFAMethod, code string) error {
	return flows.RunVerifyMFA(ctx, userID, method, code, e.deps)
}

// RegenerateBackupCodes replaces every backup code of the user.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	return flows.RunRegenerateBackupCodes(ctx, userID, e.deps)
}

// RequestMFAEmailCode sends a TWO_FACTOR_AUTH PIN for the EMAIL method.
func (e *Engine) RequestMFAEmailCode(ctx context.Context, userID string) error {
	return flows.RunRequestMFAEmailCode(ctx, userID, e.deps)
}

/*
====================================
ACCOUNT SECURITY
====================================
*/

func (e *Engine) RecordLoginAttempt(ctx context.Context, email string, success bool, ip string) error {
	return flows.RunRecordLoginAttempt(ctx, email, success, ip, e.deps)
}

// CheckLockoutStatus reports the lock state of email. An expired lock is
// cleared as a side effect.
func (e *Engine) CheckLockoutStatus(ctx context.Context, email string) (LockoutStatus, error) {
	return flows.RunCheckLockoutStatus(ctx, email, e.deps)
}

func (e *Engine) UnlockAccount(ctx context.Context, userID string) error {
	return flows.RunUnlockAccount(ctx, userID, e.deps)
}
