package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the access-token algorithm. Refresh and challenge
// tokens are always HS256 with the refresh secret.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

const (
	typeRefresh   = "refresh"
	typeChallenge = "mfa_challenge"
	minHSKeyBytes = 32
)

var (
	// ErrWrongTokenType is returned when a token of one kind is presented as another.
	ErrWrongTokenType = errors.New("jwt: wrong token type")
)

// Config configures a Manager.
type Config struct {
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ChallengeTTL  time.Duration
	SigningMethod SigningMethod
	// AccessKey is the HS256 secret, or the Ed25519 private key (raw or PEM).
	AccessKey []byte
	// PublicKey is the Ed25519 verification key (raw or PEM).
	PublicKey []byte
	// VerifyKeys maps kid to additional verification keys during rotation.
	VerifyKeys    map[string][]byte
	KeyID         string
	RefreshSecret []byte
	Leeway        time.Duration
	Now           func() time.Time
}

// AccessClaims are carried by access tokens.
type AccessClaims struct {
	Email     string   `json:"email"`
	SessionID string   `json:"sid,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by refresh tokens. TokenID names the store row.
type RefreshClaims struct {
	Type    string `json:"typ"`
	TokenID string `json:"tid"`
	Family  string `json:"fam"`
	jwt.RegisteredClaims
}

// ChallengeClaims are carried by the short-lived MFA login challenge.
type ChallengeClaims struct {
	Type      string `json:"typ"`
	SessionIP string `json:"ip,omitempty"`
	jwt.RegisteredClaims
}

// AccessInput describes the subject of an access token.
type AccessInput struct {
	UserID    string
	Email     string
	SessionID string
	Roles     []string
}

// Manager signs and parses the engine's tokens.
type Manager struct {
	cfg  Config
	sign interface{}
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("jwt: access and refresh TTL are required")
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: invalid leeway")
	}
	if len(cfg.RefreshSecret) < minHSKeyBytes {
		return nil, errors.New("jwt: refresh secret must be at least 32 bytes")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{cfg: cfg}
	switch cfg.SigningMethod {
	case MethodHS256, "":
		m.cfg.SigningMethod = MethodHS256
		if len(cfg.AccessKey) < minHSKeyBytes {
			return nil, errors.New("jwt: access secret must be at least 32 bytes")
		}
		if string(cfg.AccessKey) == string(cfg.RefreshSecret) {
			return nil, errors.New("jwt: access and refresh secrets must differ")
		}
		m.sign = cfg.AccessKey
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.AccessKey)
		if err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) == 0 {
			m.cfg.PublicKey = priv.Public().(ed25519.PublicKey)
		} else if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
		m.sign = priv
	default:
		return nil, errors.New("jwt: unsupported signing method")
	}
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("jwt: verify key map contains empty kid")
		}
		if m.cfg.SigningMethod == MethodEd25519 {
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("jwt: invalid verify key for kid %q: %w", kid, err)
			}
		}
	}
	return m, nil
}

// AccessTTL is the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.cfg.AccessTTL }

// RefreshTTL is the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.cfg.RefreshTTL }

// IssueAccess signs an access token and returns it with its expiry.
func (m *Manager) IssueAccess(in AccessInput) (string, time.Time, error) {
	now := m.cfg.Now()
	exp := now.Add(m.cfg.AccessTTL)
	claims := AccessClaims{
		Email:            in.Email,
		SessionID:        in.SessionID,
		Roles:            in.Roles,
		RegisteredClaims: m.registered(in.UserID, now, exp),
	}

	token := jwt.NewWithClaims(m.accessMethod(), claims)
	if m.cfg.KeyID != "" {
		token.Header["kid"] = m.cfg.KeyID
	}
	signed, err := token.SignedString(m.sign)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccess verifies signature, expiry, issuer and audience.
func (m *Manager) ParseAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := m.parser(m.accessMethod().Alg()).ParseWithClaims(raw, claims, m.accessKeyFunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// IssueRefresh signs the transport form of a refresh-token row.
func (m *Manager) IssueRefresh(userID, tokenID, family string, expiresAt time.Time) (string, error) {
	claims := RefreshClaims{
		Type:             typeRefresh,
		TokenID:          tokenID,
		Family:           family,
		RegisteredClaims: m.registered(userID, m.cfg.Now(), expiresAt),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.RefreshSecret)
}

func (m *Manager) ParseRefresh(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if _, err := m.parser(jwt.SigningMethodHS256.Alg()).ParseWithClaims(raw, claims, m.refreshKeyFunc); err != nil {
		return nil, err
	}
	if claims.Type != typeRefresh || claims.TokenID == "" || claims.Subject == "" {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// IssueChallenge signs a short-lived token proving the password step of a
// login succeeded for userID.
func (m *Manager) IssueChallenge(userID, ip string) (string, time.Time, error) {
	now := m.cfg.Now()
	exp := now.Add(m.cfg.ChallengeTTL)
	claims := ChallengeClaims{
		Type:             typeChallenge,
		SessionIP:        ip,
		RegisteredClaims: m.registered(userID, now, exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.RefreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *Manager) ParseChallenge(raw string) (*ChallengeClaims, error) {
	claims := &ChallengeClaims{}
	if _, err := m.parser(jwt.SigningMethodHS256.Alg()).ParseWithClaims(raw, claims, m.refreshKeyFunc); err != nil {
		return nil, err
	}
	if claims.Type != typeChallenge || claims.Subject == "" {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (m *Manager) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    m.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
	if m.cfg.Audience != "" {
		rc.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}
	return rc
}

func (m *Manager) parser(alg string) *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{alg}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.cfg.Now),
	}
	if m.cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(m.cfg.Leeway))
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}
	if m.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(m.cfg.Audience))
	}
	return jwt.NewParser(opts...)
}

func (m *Manager) accessKeyFunc(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	if kid != "" && kid != m.cfg.KeyID {
		key, ok := m.cfg.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		if m.cfg.SigningMethod == MethodHS256 {
			return key, nil
		}
		return parseEdPublicKey(key)
	}
	if m.cfg.KeyID != "" && kid == "" {
		return nil, errors.New("missing kid")
	}
	if m.cfg.SigningMethod == MethodHS256 {
		return m.cfg.AccessKey, nil
	}
	return parseEdPublicKey(m.cfg.PublicKey)
}

func (m *Manager) refreshKeyFunc(*jwt.Token) (interface{}, error) {
	return m.cfg.RefreshSecret, nil
}

func (m *Manager) accessMethod() jwt.SigningMethod {
	if m.cfg.SigningMethod == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 public key type")
	}
	return edKey, nil
}
