package goIdentity

import internalmetrics "github.com/MrEthical07/goIdentity/internal/metrics"

// MetricID names one engine counter or latency histogram.
type MetricID = internalmetrics.ID

// MetricsSnapshot is a point-in-time copy returned by Engine.MetricsSnapshot.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	MetricLoginSuccess          = internalmetrics.LoginSuccess
	MetricLoginFailure          = internalmetrics.LoginFailure
	MetricLoginLocked           = internalmetrics.LoginLocked
	MetricLoginRateLimited      = internalmetrics.LoginRateLimited
	MetricLoginMFARequired      = internalmetrics.LoginMFARequired
	MetricRefreshSuccess        = internalmetrics.RefreshSuccess
	MetricRefreshFailure        = internalmetrics.RefreshFailure
	MetricRefreshReuseDetected  = internalmetrics.RefreshReuseDetected
	MetricLogout                = internalmetrics.Logout
	MetricSignupSuccess         = internalmetrics.SignupSuccess
	MetricSignupDuplicate       = internalmetrics.SignupDuplicate
	MetricPinRequested          = internalmetrics.PinRequested
	MetricPinRateLimited        = internalmetrics.PinRateLimited
	MetricPinVerified           = internalmetrics.PinVerified
	MetricPinInvalid            = internalmetrics.PinInvalid
	MetricPinAttemptsExceeded   = internalmetrics.PinAttemptsExceeded
	MetricLinkTokenVerified     = internalmetrics.LinkTokenVerified
	MetricPasswordResetRequest  = internalmetrics.PasswordResetRequest
	MetricPasswordResetSuccess  = internalmetrics.PasswordResetSuccess
	MetricTOTPSetup             = internalmetrics.TOTPSetup
	MetricTOTPEnabled           = internalmetrics.TOTPEnabled
	MetricMFADisabled           = internalmetrics.MFADisabled
	MetricMFAVerifySuccess      = internalmetrics.MFAVerifySuccess
	MetricMFAVerifyFailure      = internalmetrics.MFAVerifyFailure
	MetricBackupCodeUsed        = internalmetrics.BackupCodeUsed
	MetricBackupCodeFailed      = internalmetrics.BackupCodeFailed
	MetricBackupCodeRegenerated = internalmetrics.BackupCodeRegenerated
	MetricAccountLocked         = internalmetrics.AccountLocked
	MetricAccountUnlocked       = internalmetrics.AccountUnlocked
	MetricOAuthLogin            = internalmetrics.OAuthLogin
	MetricSessionCreated        = internalmetrics.SessionCreated
	MetricAuthorizationDenied   = internalmetrics.AuthorizationDenied
	MetricLoginLatency          = internalmetrics.LoginLatency
	MetricValidateLatency       = internalmetrics.ValidateLatency
)
