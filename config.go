package goIdentity

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/password"
)

// Config is the complete engine configuration. Start from DefaultConfig and
// fill in the required values: JWT keys and TTLs, and the lockout policy.
type Config struct {
	JWT            JWTConfig
	Token          TokenConfig
	Lockout        LockoutConfig
	Password       PasswordConfig
	Signup         SignupConfig
	Verification   VerificationConfig
	TOTP           TOTPConfig
	MFA            MFAConfig
	OAuth          OAuthConfig
	RateLimit      RateLimitConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	Notify         NotifyConfig
	ValidationMode ValidationMode
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access, refresh and MFA challenge tokens.
type JWTConfig struct {
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ChallengeTTL  time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	// PrivateKey is the HS256 secret or the Ed25519 private key.
	PrivateKey    []byte
	PublicKey     []byte
	RefreshSecret []byte
	KeyID         string
	VerifyKeys    map[string][]byte
	Leeway        time.Duration
}

// TokenConfig controls refresh rotation and logout.
type TokenConfig struct {
	// PreserveFamily keeps the refresh family across rotations.
	PreserveFamily bool
	// ReuseDetection revokes the whole family when an already rotated
	// refresh token is presented again.
	ReuseDetection bool
	LogoutScope    LogoutScope
}

// LogoutScope selects which refresh tokens Logout revokes.
type LogoutScope string

const (
	LogoutAll     LogoutScope = "all"
	LogoutSession LogoutScope = "session"
)

/*
====================================
ACCOUNT SECURITY CONFIG
====================================
*/

// LockoutConfig has no defaults; both values are required.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

const (
	PasswordBcrypt   = "bcrypt"
	PasswordArgon2id = "argon2id"
)

// PasswordConfig selects the primary hashing algorithm. Hashes produced by
// the other algorithm still verify and are upgraded on the next login.
type PasswordConfig struct {
	Algorithm  string
	BcryptCost int
	Argon2     password.Argon2Config
	MinLength  int
}

type SignupConfig struct {
	DefaultRole string
}

// VerificationConfig configures PIN delivery. AppURL prefixes the
// verification link sent with every PIN.
type VerificationConfig struct {
	AppURL string
}

/*
====================================
MFA CONFIG
====================================
*/

type TOTPConfig struct {
	Issuer          string
	Digits          int
	Period          int
	Algorithm       string
	Skew            int
	BackupCodeCount int
}

type MFAConfig struct {
	// RequireOnLogin makes Login return a challenge instead of tokens for
	// users with MFA enabled.
	RequireOnLogin bool
}

type OAuthConfig struct {
	// LinkByEmail links a first-time provider login to an existing account
	// with the same email. When false such logins fail with a conflict.
	LinkByEmail bool
}

/*
====================================
INFRASTRUCTURE CONFIG
====================================
*/

// RateLimitConfig is only enforced when a Redis client is supplied. A zero
// limit disables the corresponding rule.
type RateLimitConfig struct {
	KeyPrefix        string
	PinRequestLimit  int
	PinRequestWindow time.Duration
	LoginIPLimit     int
	LoginIPWindow    time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// NotifyConfig sizes the outbound message dispatcher.
type NotifyConfig struct {
	Workers        int
	BufferSize     int
	MaxAttempts    uint
	InitialBackoff time.Duration
	SendTimeout    time.Duration
}

// ValidationMode selects how ValidateAccess treats access tokens.
type ValidationMode int

const (
	// ModeJWTOnly trusts a correctly signed, unexpired access token.
	ModeJWTOnly ValidationMode = iota
	// ModeStrict additionally requires the token's session to be live.
	ModeStrict
)

// DefaultConfig returns the defaults for everything except secrets, token
// lifetimes and the lockout policy, which must be set explicitly.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:        "goIdentity",
			ChallengeTTL:  5 * time.Minute,
			SigningMethod: "hs256",
		},
		Token: TokenConfig{
			PreserveFamily: true,
			ReuseDetection: true,
			LogoutScope:    LogoutAll,
		},
		Password: PasswordConfig{
			Algorithm:  PasswordBcrypt,
			BcryptCost: password.DefaultBcryptCost,
			Argon2:     password.DefaultArgon2Config(),
			MinLength:  8,
		},
		Signup: SignupConfig{
			DefaultRole: "user",
		},
		Verification: VerificationConfig{
			AppURL: "http://localhost:3000",
		},
		TOTP: TOTPConfig{
			Issuer:          "goIdentity",
			Digits:          6,
			Period:          30,
			Algorithm:       "SHA1",
			Skew:            2,
			BackupCodeCount: 10,
		},
		OAuth: OAuthConfig{
			LinkByEmail: true,
		},
		RateLimit: RateLimitConfig{
			KeyPrefix:        "idp:",
			PinRequestLimit:  5,
			PinRequestWindow: 15 * time.Minute,
			LoginIPLimit:     20,
			LoginIPWindow:    time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Notify: NotifyConfig{
			Workers:        2,
			BufferSize:     256,
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			SendTimeout:    10 * time.Second,
		},
		ValidationMode: ModeJWTOnly,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Validate reports the first invalid or missing setting.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.ChallengeTTL < 0 {
		return errors.New("JWT ChallengeTTL must be >= 0")
	}
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "hs256", "":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
		if string(c.JWT.PrivateKey) == string(c.JWT.RefreshSecret) {
			return errors.New("JWT PrivateKey and RefreshSecret must differ")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		return errors.New("JWT RefreshSecret must be at least 32 bytes")
	}

	if c.Token.LogoutScope != LogoutAll && c.Token.LogoutScope != LogoutSession {
		return errors.New("Token LogoutScope must be 'all' or 'session'")
	}

	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	if c.Password.Algorithm != PasswordBcrypt && c.Password.Algorithm != PasswordArgon2id {
		return errors.New("Password Algorithm must be 'bcrypt' or 'argon2id'")
	}
	if c.Password.MinLength < 1 || c.Password.MinLength > 72 {
		return errors.New("Password MinLength must be between 1 and 72")
	}

	if strings.TrimSpace(c.Verification.AppURL) == "" {
		return errors.New("Verification AppURL is required")
	}

	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("TOTP Digits must be between 6 and 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 10 {
		return errors.New("TOTP Skew must be between 0 and 10")
	}
	if c.TOTP.BackupCodeCount <= 0 {
		return errors.New("TOTP BackupCodeCount must be > 0")
	}

	if c.RateLimit.PinRequestLimit < 0 || c.RateLimit.LoginIPLimit < 0 {
		return errors.New("RateLimit limits must be >= 0")
	}
	if c.RateLimit.PinRequestLimit > 0 && c.RateLimit.PinRequestWindow <= 0 {
		return errors.New("RateLimit PinRequestWindow must be > 0")
	}
	if c.RateLimit.LoginIPLimit > 0 && c.RateLimit.LoginIPWindow <= 0 {
		return errors.New("RateLimit LoginIPWindow must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.ValidationMode != ModeJWTOnly && c.ValidationMode != ModeStrict {
		return errors.New("invalid ValidationMode")
	}
	return nil
}
