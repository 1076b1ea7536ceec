package goIdentity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "baseline valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "access ttl zero",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 0
			},
			wantValid: false,
		},
		{
			name: "refresh ttl negative",
			mutate: func(c *Config) {
				c.JWT.RefreshTTL = -time.Hour
			},
			wantValid: false,
		},
		{
			name: "short hs256 key",
			mutate: func(c *Config) {
				c.JWT.PrivateKey = []byte("too-short")
			},
			wantValid: false,
		},
		{
			name: "access and refresh secrets equal",
			mutate: func(c *Config) {
				c.JWT.RefreshSecret = append([]byte(nil), c.JWT.PrivateKey...)
			},
			wantValid: false,
		},
		{
			name: "unsupported signing method",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "logout scope session",
			mutate: func(c *Config) {
				c.Token.LogoutScope = LogoutSession
			},
			wantValid: true,
		},
		{
			name: "logout scope unknown",
			mutate: func(c *Config) {
				c.Token.LogoutScope = "device"
			},
			wantValid: false,
		},
		{
			name: "lockout threshold zero",
			mutate: func(c *Config) {
				c.Lockout.Threshold = 0
			},
			wantValid: false,
		},
		{
			name: "lockout duration zero",
			mutate: func(c *Config) {
				c.Lockout.Duration = 0
			},
			wantValid: false,
		},
		{
			name: "argon2id algorithm",
			mutate: func(c *Config) {
				c.Password.Algorithm = PasswordArgon2id
			},
			wantValid: true,
		},
		{
			name: "unknown password algorithm",
			mutate: func(c *Config) {
				c.Password.Algorithm = "md5"
			},
			wantValid: false,
		},
		{
			name: "min length above bcrypt limit",
			mutate: func(c *Config) {
				c.Password.MinLength = 73
			},
			wantValid: false,
		},
		{
			name: "missing app url",
			mutate: func(c *Config) {
				c.Verification.AppURL = ""
			},
			wantValid: false,
		},
		{
			name: "totp digits out of range",
			mutate: func(c *Config) {
				c.TOTP.Digits = 9
			},
			wantValid: false,
		},
		{
			name: "totp period too short",
			mutate: func(c *Config) {
				c.TOTP.Period = 5
			},
			wantValid: false,
		},
		{
			name: "no backup codes",
			mutate: func(c *Config) {
				c.TOTP.BackupCodeCount = 0
			},
			wantValid: false,
		},
		{
			name: "audit buffer zero while enabled",
			mutate: func(c *Config) {
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "audit buffer zero while disabled",
			mutate: func(c *Config) {
				c.Audit.Enabled = false
				c.Audit.BufferSize = 0
			},
			wantValid: true,
		},
		{
			name: "strict mode",
			mutate: func(c *Config) {
				c.ValidationMode = ModeStrict
			},
			wantValid: true,
		},
		{
			name: "unknown mode",
			mutate: func(c *Config) {
				c.ValidationMode = ValidationMode(7)
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultConfigNeedsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected default config without keys to be rejected")
	}
}

func TestWithConfigCopiesKeys(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg)
	cfg.JWT.PrivateKey[0] = 'X'
	if b.config.JWT.PrivateKey[0] == 'X' {
		t.Fatal("expected builder to hold its own copy of the key")
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_ACCESS_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("JWT_REFRESH_SECRET", "fedcba9876543210fedcba9876543210")
	t.Setenv("ACCESS_TOKEN_TTL", "15m")
	t.Setenv("REFRESH_TOKEN_TTL", "720h")
	t.Setenv("LOCKOUT_THRESHOLD", "5")
	t.Setenv("LOCKOUT_DURATION", "15m")
}

func TestLoadConfigFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VALIDATION_MODE", "strict")
	t.Setenv("LOGOUT_SCOPE", "SESSION")
	t.Setenv("PASSWORD_ALGORITHM", "argon2id")

	cfg, err := LoadConfigFromEnv(filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute || cfg.JWT.RefreshTTL != 720*time.Hour {
		t.Fatalf("unexpected ttls %v/%v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
	if cfg.Lockout.Threshold != 5 || cfg.Lockout.Duration != 15*time.Minute {
		t.Fatalf("unexpected lockout %+v", cfg.Lockout)
	}
	if cfg.ValidationMode != ModeStrict {
		t.Fatalf("expected strict mode, got %v", cfg.ValidationMode)
	}
	if cfg.Token.LogoutScope != LogoutSession {
		t.Fatalf("expected session scope, got %q", cfg.Token.LogoutScope)
	}
	if cfg.Password.Algorithm != PasswordArgon2id {
		t.Fatalf("expected argon2id, got %q", cfg.Password.Algorithm)
	}
	if cfg.RateLimit.KeyPrefix != "idp:" || cfg.JWT.Issuer != "goIdentity" {
		t.Fatalf("expected defaults to apply, got %q/%q", cfg.RateLimit.KeyPrefix, cfg.JWT.Issuer)
	}
}

func TestLoadConfigFromEnvMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOCKOUT_THRESHOLD", "")

	_, err := LoadConfigFromEnv(filepath.Join(t.TempDir(), "absent.env"))
	if err == nil {
		t.Fatal("expected error for empty LOCKOUT_THRESHOLD")
	}
	if !strings.Contains(err.Error(), "LOCKOUT_THRESHOLD") {
		t.Fatalf("expected error to name the variable, got %v", err)
	}
}

func TestLoadConfigFromEnvRejectsBadMode(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VALIDATION_MODE", "paranoid")
	if _, err := LoadConfigFromEnv(filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Fatal("expected error for unknown validation mode")
	}
}

func TestLoadConfigFromDotenvFile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_URL", "")
	os.Unsetenv("APP_URL")

	path := filepath.Join(t.TempDir(), "identity.env")
	if err := os.WriteFile(path, []byte("APP_URL=https://id.example.com\nLOCKOUT_THRESHOLD=9\n"), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	cfg, err := LoadConfigFromEnv(path)
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Verification.AppURL != "https://id.example.com" {
		t.Fatalf("expected dotenv value, got %q", cfg.Verification.AppURL)
	}
	if cfg.Lockout.Threshold != 5 {
		t.Fatalf("expected process environment to win, got %d", cfg.Lockout.Threshold)
	}
}
