package goIdentity

import "github.com/MrEthical07/goIdentity/internal/security"

type (
	SecurityReport       = security.Report
	PasswordPolicyReport = security.PasswordReport
)

// SecurityReport summarizes the engine's effective security settings.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config
	return security.BuildReport(security.ReportInput{
		SigningAlgorithm: cfg.JWT.SigningMethod,
		StrictMode:       cfg.ValidationMode == ModeStrict,
		AccessTTL:        cfg.JWT.AccessTTL,
		RefreshTTL:       cfg.JWT.RefreshTTL,
		Password: PasswordPolicyReport{
			Algorithm:  cfg.Password.Algorithm,
			BcryptCost: cfg.Password.BcryptCost,
			Memory:     cfg.Password.Argon2.Memory,
			Time:       cfg.Password.Argon2.Time,
			MinLength:  cfg.Password.MinLength,
		},
		BackupCodeCount:      cfg.TOTP.BackupCodeCount,
		RequireMFAOnLogin:    cfg.MFA.RequireOnLogin,
		PreserveFamily:       cfg.Token.PreserveFamily,
		ReuseDetection:       cfg.Token.ReuseDetection,
		LockoutThreshold:     cfg.Lockout.Threshold,
		LockoutDuration:      cfg.Lockout.Duration,
		RedisAvailable:       e.deps.Limiter != nil,
		PinRequestLimit:      cfg.RateLimit.PinRequestLimit,
		LoginIPLimit:         cfg.RateLimit.LoginIPLimit,
		AuditEnabled:         cfg.Audit.Enabled,
		SessionStoreOverride: e.deps.Sessions != nil,
		PinStoreOverride:     e.deps.Verifications != nil,
	})
}
