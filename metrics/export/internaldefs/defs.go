package internaldefs

import (
	goIdentity "github.com/MrEthical07/goIdentity"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: goIdentity.MetricLoginSuccess, Name: "identity_login_success_total", Help: "Successful logins."},
	{ID: goIdentity.MetricLoginFailure, Name: "identity_login_failure_total", Help: "Failed logins."},
	{ID: goIdentity.MetricLoginLocked, Name: "identity_login_locked_total", Help: "Logins rejected because the account was locked."},
	{ID: goIdentity.MetricLoginRateLimited, Name: "identity_login_rate_limited_total", Help: "Logins rejected by the per-IP limiter."},
	{ID: goIdentity.MetricLoginMFARequired, Name: "identity_login_mfa_required_total", Help: "Logins answered with an MFA challenge."},
	{ID: goIdentity.MetricRefreshSuccess, Name: "identity_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: goIdentity.MetricRefreshFailure, Name: "identity_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: goIdentity.MetricRefreshReuseDetected, Name: "identity_refresh_reuse_detected_total", Help: "Presentations of already rotated refresh tokens."},
	{ID: goIdentity.MetricLogout, Name: "identity_logout_total", Help: "Logout operations."},
	{ID: goIdentity.MetricSignupSuccess, Name: "identity_signup_success_total", Help: "Created accounts."},
	{ID: goIdentity.MetricSignupDuplicate, Name: "identity_signup_duplicate_total", Help: "Signups rejected for a registered email."},
	{ID: goIdentity.MetricPinRequested, Name: "identity_pin_requested_total", Help: "Issued verification PINs."},
	{ID: goIdentity.MetricPinRateLimited, Name: "identity_pin_rate_limited_total", Help: "PIN requests rejected by the limiter."},
	{ID: goIdentity.MetricPinVerified, Name: "identity_pin_verified_total", Help: "Consumed verification PINs."},
	{ID: goIdentity.MetricPinInvalid, Name: "identity_pin_invalid_total", Help: "Wrong PIN submissions."},
	{ID: goIdentity.MetricPinAttemptsExceeded, Name: "identity_pin_attempts_exceeded_total", Help: "PIN submissions after the attempt cap."},
	{ID: goIdentity.MetricLinkTokenVerified, Name: "identity_link_token_verified_total", Help: "Consumed verification link-tokens."},
	{ID: goIdentity.MetricPasswordResetRequest, Name: "identity_password_reset_request_total", Help: "Password reset requests."},
	{ID: goIdentity.MetricPasswordResetSuccess, Name: "identity_password_reset_success_total", Help: "Completed password resets."},
	{ID: goIdentity.MetricTOTPSetup, Name: "identity_totp_setup_total", Help: "TOTP secrets issued."},
	{ID: goIdentity.MetricTOTPEnabled, Name: "identity_totp_enabled_total", Help: "TOTP confirmations."},
	{ID: goIdentity.MetricMFADisabled, Name: "identity_mfa_disabled_total", Help: "MFA disable operations."},
	{ID: goIdentity.MetricMFAVerifySuccess, Name: "identity_mfa_verify_success_total", Help: "Successful second-factor checks."},
	{ID: goIdentity.MetricMFAVerifyFailure, Name: "identity_mfa_verify_failure_total", Help: "Failed second-factor checks."},
	{ID: goIdentity.MetricBackupCodeUsed, Name: "identity_backup_code_used_total", Help: "Consumed backup codes."},
	{ID: goIdentity.MetricBackupCodeFailed, Name: "identity_backup_code_failed_total", Help: "Rejected backup codes."},
	{ID: goIdentity.MetricBackupCodeRegenerated, Name: "identity_backup_code_regenerated_total", Help: "Backup-code regenerations."},
	{ID: goIdentity.MetricAccountLocked, Name: "identity_account_locked_total", Help: "Accounts locked by the failure threshold."},
	{ID: goIdentity.MetricAccountUnlocked, Name: "identity_account_unlocked_total", Help: "Manual and automatic unlocks."},
	{ID: goIdentity.MetricOAuthLogin, Name: "identity_oauth_login_total", Help: "Provider logins."},
	{ID: goIdentity.MetricSessionCreated, Name: "identity_session_created_total", Help: "Created sessions."},
	{ID: goIdentity.MetricAuthorizationDenied, Name: "identity_authorization_denied_total", Help: "Requests denied by role or permission checks."},
}

var HistogramDefs = []HistogramDef{
	{ID: goIdentity.MetricLoginLatency, Name: "identity_login_latency_seconds", Help: "Login latency."},
	{ID: goIdentity.MetricValidateLatency, Name: "identity_validate_latency_seconds", Help: "Access token validation latency."},
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = "identity_audit_dropped_total"

// HistogramBounds are the upper bounds of the engine's 8 latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names HistogramBounds in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to 8 buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
