package security

import "time"

type PasswordReport struct {
	Algorithm  string
	BcryptCost int
	Memory     uint32
	Time       uint32
	MinLength  int
}

type Report struct {
	SigningAlgorithm       string
	StrictMode             bool
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	Password               PasswordReport
	BackupCodesEnabled     bool
	MFARequiredOnLogin     bool
	RefreshFamilyPreserved bool
	RefreshReuseDetection  bool
	LockoutActive          bool
	RateLimitingActive     bool
	AuditEnabled           bool
	DetachedSessionStore   bool
	DetachedPinStore       bool
}

type ReportInput struct {
	SigningAlgorithm     string
	StrictMode           bool
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	Password             PasswordReport
	BackupCodeCount      int
	RequireMFAOnLogin    bool
	PreserveFamily       bool
	ReuseDetection       bool
	LockoutThreshold     int
	LockoutDuration      time.Duration
	RedisAvailable       bool
	PinRequestLimit      int
	LoginIPLimit         int
	AuditEnabled         bool
	SessionStoreOverride bool
	PinStoreOverride     bool
}

func BuildReport(input ReportInput) Report {
	rateLimiting := input.RedisAvailable &&
		(input.PinRequestLimit > 0 || input.LoginIPLimit > 0)

	return Report{
		SigningAlgorithm:       input.SigningAlgorithm,
		StrictMode:             input.StrictMode,
		AccessTTL:              input.AccessTTL,
		RefreshTTL:             input.RefreshTTL,
		Password:               input.Password,
		BackupCodesEnabled:     input.BackupCodeCount > 0,
		MFARequiredOnLogin:     input.RequireMFAOnLogin,
		RefreshFamilyPreserved: input.PreserveFamily,
		RefreshReuseDetection:  input.ReuseDetection,
		LockoutActive:          input.LockoutThreshold > 0 && input.LockoutDuration > 0,
		RateLimitingActive:     rateLimiting,
		AuditEnabled:           input.AuditEnabled,
		DetachedSessionStore:   input.SessionStoreOverride,
		DetachedPinStore:       input.PinStoreOverride,
	}
}
