package goIdentity

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envConfig is the environment surface of Config. Secrets, token lifetimes
// and the lockout policy have no defaults.
type envConfig struct {
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"goIdentity"`
	JWTAudience      string        `env:"JWT_AUDIENCE"`
	JWTSigningMethod string        `env:"JWT_SIGNING_METHOD" envDefault:"hs256"`
	JWTPrivateKey    string        `env:"JWT_ACCESS_SECRET,required,notEmpty"`
	JWTPublicKey     string        `env:"JWT_PUBLIC_KEY"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET,required,notEmpty"`
	JWTKeyID         string        `env:"JWT_KEY_ID"`
	AccessTTL        time.Duration `env:"ACCESS_TOKEN_TTL,required,notEmpty"`
	RefreshTTL       time.Duration `env:"REFRESH_TOKEN_TTL,required,notEmpty"`
	ChallengeTTL     time.Duration `env:"MFA_CHALLENGE_TTL" envDefault:"5m"`

	PreserveFamily bool   `env:"REFRESH_PRESERVE_FAMILY" envDefault:"true"`
	ReuseDetection bool   `env:"REFRESH_REUSE_DETECTION" envDefault:"true"`
	LogoutScope    string `env:"LOGOUT_SCOPE" envDefault:"all"`

	LockoutThreshold int           `env:"LOCKOUT_THRESHOLD,required,notEmpty"`
	LockoutDuration  time.Duration `env:"LOCKOUT_DURATION,required,notEmpty"`

	PasswordAlgorithm string `env:"PASSWORD_ALGORITHM" envDefault:"bcrypt"`
	BcryptCost        int    `env:"BCRYPT_COST" envDefault:"10"`
	PasswordMinLength int    `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`

	DefaultRole string `env:"SIGNUP_DEFAULT_ROLE" envDefault:"user"`
	AppURL      string `env:"APP_URL" envDefault:"http://localhost:3000"`

	TOTPIssuer        string `env:"TOTP_ISSUER" envDefault:"goIdentity"`
	MFARequireOnLogin bool   `env:"MFA_REQUIRE_ON_LOGIN"`
	OAuthLinkByEmail  bool   `env:"OAUTH_LINK_BY_EMAIL" envDefault:"true"`

	RateLimitPrefix    string        `env:"RATE_LIMIT_PREFIX" envDefault:"idp:"`
	PinRequestLimit    int           `env:"RATE_LIMIT_PIN_REQUESTS" envDefault:"5"`
	PinRequestWindow   time.Duration `env:"RATE_LIMIT_PIN_WINDOW" envDefault:"15m"`
	LoginIPLimit       int           `env:"RATE_LIMIT_LOGIN_REQUESTS" envDefault:"20"`
	LoginIPWindow      time.Duration `env:"RATE_LIMIT_LOGIN_WINDOW" envDefault:"1m"`
	AuditEnabled       bool          `env:"AUDIT_ENABLED" envDefault:"true"`
	AuditBufferSize    int           `env:"AUDIT_BUFFER_SIZE" envDefault:"1024"`
	MetricsEnabled     bool          `env:"METRICS_ENABLED" envDefault:"true"`
	LatencyHistograms  bool          `env:"METRICS_LATENCY_HISTOGRAMS"`
	NotifyMaxAttempts  uint          `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"3"`
	NotifyBackoff      time.Duration `env:"NOTIFY_INITIAL_BACKOFF" envDefault:"2s"`
	ValidationModeName string        `env:"VALIDATION_MODE" envDefault:"jwt_only"`
}

// LoadConfigFromEnv builds a validated Config from the process environment.
// The given dotenv files (".env" when none are named) are loaded first if
// they exist; variables already set in the environment win.
func LoadConfigFromEnv(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}

	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := DefaultConfig()
	cfg.JWT.Issuer = ec.JWTIssuer
	cfg.JWT.Audience = ec.JWTAudience
	cfg.JWT.SigningMethod = strings.ToLower(ec.JWTSigningMethod)
	cfg.JWT.PrivateKey = []byte(ec.JWTPrivateKey)
	if ec.JWTPublicKey != "" {
		cfg.JWT.PublicKey = []byte(ec.JWTPublicKey)
	}
	cfg.JWT.RefreshSecret = []byte(ec.JWTRefreshSecret)
	cfg.JWT.KeyID = ec.JWTKeyID
	cfg.JWT.AccessTTL = ec.AccessTTL
	cfg.JWT.RefreshTTL = ec.RefreshTTL
	cfg.JWT.ChallengeTTL = ec.ChallengeTTL

	cfg.Token.PreserveFamily = ec.PreserveFamily
	cfg.Token.ReuseDetection = ec.ReuseDetection
	cfg.Token.LogoutScope = LogoutScope(strings.ToLower(ec.LogoutScope))

	cfg.Lockout.Threshold = ec.LockoutThreshold
	cfg.Lockout.Duration = ec.LockoutDuration

	cfg.Password.Algorithm = strings.ToLower(ec.PasswordAlgorithm)
	cfg.Password.BcryptCost = ec.BcryptCost
	cfg.Password.MinLength = ec.PasswordMinLength

	cfg.Signup.DefaultRole = ec.DefaultRole
	cfg.Verification.AppURL = ec.AppURL
	cfg.TOTP.Issuer = ec.TOTPIssuer
	cfg.MFA.RequireOnLogin = ec.MFARequireOnLogin
	cfg.OAuth.LinkByEmail = ec.OAuthLinkByEmail

	cfg.RateLimit.KeyPrefix = ec.RateLimitPrefix
	cfg.RateLimit.PinRequestLimit = ec.PinRequestLimit
	cfg.RateLimit.PinRequestWindow = ec.PinRequestWindow
	cfg.RateLimit.LoginIPLimit = ec.LoginIPLimit
	cfg.RateLimit.LoginIPWindow = ec.LoginIPWindow

	cfg.Audit.Enabled = ec.AuditEnabled
	cfg.Audit.BufferSize = ec.AuditBufferSize
	cfg.Metrics.Enabled = ec.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = ec.LatencyHistograms
	cfg.Notify.MaxAttempts = ec.NotifyMaxAttempts
	cfg.Notify.InitialBackoff = ec.NotifyBackoff

	mode, err := parseValidationMode(ec.ValidationModeName)
	if err != nil {
		return Config{}, err
	}
	cfg.ValidationMode = mode

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func parseValidationMode(s string) (ValidationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jwt_only", "jwt-only":
		return ModeJWTOnly, nil
	case "strict":
		return ModeStrict, nil
	default:
		return 0, fmt.Errorf("VALIDATION_MODE %q must be 'jwt_only' or 'strict'", s)
	}
}
