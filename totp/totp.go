// Package totp implements RFC 6238 time-based one-time passwords and the
// otpauth:// provisioning URI used by authenticator apps.
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
)

var (
	ErrInvalidSecret    = errors.New("totp: invalid base32 secret")
	ErrUnsupportedAlgo  = errors.New("totp: unsupported algorithm")
	errInvalidParameter = errors.New("totp: invalid parameters")
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config holds the authenticator parameters. Zero values select issuer
// "goIdentity", 6 digits, a 30 second period, SHA1 and a skew of 2 steps.
type Config struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	Skew      int
}

// Authenticator generates and verifies codes.
type Authenticator struct {
	cfg Config
}

func New(cfg Config) (*Authenticator, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = "goIdentity"
	}
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if cfg.Skew == 0 {
		cfg.Skew = 2
	}
	cfg.Algorithm = strings.ToUpper(cfg.Algorithm)
	if cfg.Digits < 6 || cfg.Digits > 8 || cfg.Period < 1 || cfg.Skew < 0 || cfg.Skew > 10 {
		return nil, errInvalidParameter
	}
	if _, err := hmacFunc(cfg.Algorithm); err != nil {
		return nil, err
	}
	return &Authenticator{cfg: cfg}, nil
}

// ProvisioningURI builds `otpauth://totp/<issuer>:<account>?...`.
func (a *Authenticator) ProvisioningURI(secret, account string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", a.cfg.Issuer)
	v.Set("algorithm", a.cfg.Algorithm)
	v.Set("digits", strconv.Itoa(a.cfg.Digits))
	v.Set("period", strconv.Itoa(a.cfg.Period))
	return "otpauth://totp/" + url.PathEscape(a.cfg.Issuer+":"+account) + "?" + v.Encode()
}

// QRDataURL renders content as a PNG QR code data URL.
func QRDataURL(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Generate returns the code for the time step containing now.
func (a *Authenticator) Generate(secret string, now time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	return a.hotp(key, now.Unix()/int64(a.cfg.Period))
}

// Verify reports whether code matches any step within ±Skew of now.
// Malformed codes do not verify; a malformed secret is an error.
func (a *Authenticator) Verify(secret, code string, now time.Time) (bool, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return false, err
	}
	code = strings.TrimSpace(code)
	if len(code) != a.cfg.Digits || !isDigits(code) {
		return false, nil
	}

	base := now.Unix() / int64(a.cfg.Period)
	matched := 0
	for step := -a.cfg.Skew; step <= a.cfg.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		want, err := a.hotp(key, counter)
		if err != nil {
			return false, err
		}
		matched |= subtle.ConstantTimeCompare([]byte(want), []byte(code))
	}
	return matched == 1, nil
}

func (a *Authenticator) hotp(key []byte, counter int64) (string, error) {
	hf, err := hmacFunc(a.cfg.Algorithm)
	if err != nil {
		return "", err
	}
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))
	mac := hmac.New(hf, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < a.cfg.Digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", a.cfg.Digits, bin%mod), nil
}

func decodeSecret(secret string) ([]byte, error) {
	clean := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	clean = strings.TrimRight(clean, "=")
	key, err := secretEncoding.DecodeString(clean)
	if err != nil || len(key) == 0 {
		return nil, ErrInvalidSecret
	}
	return key, nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch algorithm {
	case "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, ErrUnsupportedAlgo
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
