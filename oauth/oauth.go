// Package oauth describes external identity-provider profiles and the
// provider credentials the engine needs to talk to them.
//
// Redirects and authorization-code exchange are left to the caller; the
// engine only consumes the resulting Profile.
package oauth

import (
	"crypto/ecdsa"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type Provider string

const (
	Google   Provider = "google"
	Facebook Provider = "facebook"
	Apple    Provider = "apple"
)

var (
	ErrUnsupportedProvider = errors.New("oauth: unsupported provider")
	// ErrProviderConfig hides key material paths and parse details from callers.
	ErrProviderConfig = errors.New("oauth: provider configuration error")
)

// ParseProvider accepts provider names case-insensitively.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case Google, Facebook, Apple:
		return p, nil
	default:
		return "", ErrUnsupportedProvider
	}
}

// Profile is the identity returned by a provider after a successful
// authorization.
type Profile struct {
	Provider     string `json:"provider"`
	ProviderID   string `json:"providerId"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Picture      string `json:"picture,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// LoadSigningKey reads a PEM encoded EC private key such as Apple's .p8
// file. Failures are logged with the path and returned as ErrProviderConfig.
func LoadSigningKey(path string, log *zap.Logger) (*ecdsa.PrivateKey, error) {
	if log == nil {
		log = zap.NewNop()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Error("oauth signing key unreadable", zap.String("path", path), zap.Error(err))
		return nil, ErrProviderConfig
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(raw)
	if err != nil {
		log.Error("oauth signing key invalid", zap.String("path", path), zap.Error(err))
		return nil, ErrProviderConfig
	}
	return key, nil
}

const appleAudience = "https://appleid.apple.com"

// AppleConfig identifies a Sign in with Apple client.
type AppleConfig struct {
	TeamID   string
	ClientID string
	KeyID    string
	Key      *ecdsa.PrivateKey
}

// AppleClientSecret signs the ES256 JWT Apple expects as client_secret.
// Apple rejects lifetimes above six months.
func AppleClientSecret(cfg AppleConfig, now time.Time, ttl time.Duration) (string, error) {
	if cfg.Key == nil || cfg.TeamID == "" || cfg.ClientID == "" || cfg.KeyID == "" {
		return "", ErrProviderConfig
	}
	if ttl <= 0 || ttl > 180*24*time.Hour {
		ttl = 180 * 24 * time.Hour
	}
	claims := jwt.RegisteredClaims{
		Issuer:    cfg.TeamID,
		Subject:   cfg.ClientID,
		Audience:  jwt.ClaimStrings{appleAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = cfg.KeyID
	return token.SignedString(cfg.Key)
}
