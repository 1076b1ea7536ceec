package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

const (
	pinMin          = 100000
	pinSpan         = 900000
	linkTokenBytes  = 32
	pinSaltBytes    = 16
	totpSecretBytes = 20
	backupCodeBytes = 4
	familyBytes     = 16
)

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a random UUIDv4 string read from r.
func NewID(r io.Reader) (string, error) {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewPIN returns a 6-digit PIN uniform over 100000..999999.
func NewPIN(r io.Reader) (string, error) {
	n, err := randInt(r, pinSpan)
	if err != nil {
		return "", err
	}
	return big.NewInt(pinMin + n).String(), nil
}

// NewLinkToken returns 32 random bytes, hex encoded.
func NewLinkToken(r io.Reader) (string, error) {
	return randomHex(r, linkTokenBytes)
}

// NewPinSalt returns 16 random bytes, hex encoded.
func NewPinSalt(r io.Reader) (string, error) {
	return randomHex(r, pinSaltBytes)
}

// NewRefreshValue returns the opaque value stored on refresh-token rows.
func NewRefreshValue(r io.Reader) (string, error) {
	return randomHex(r, linkTokenBytes)
}

// NewTOTPSecret returns a 160-bit base32 secret without padding (32 chars).
func NewTOTPSecret(r io.Reader) (string, error) {
	buf := make([]byte, totpSecretBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return base32NoPad.EncodeToString(buf), nil
}

// NewBackupCode returns 4 random bytes, upper-case hex (8 chars).
func NewBackupCode(r io.Reader) (string, error) {
	code, err := randomHex(r, backupCodeBytes)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(code), nil
}

// NewFamilyID returns a time-sortable KSUID whose payload is read from r.
func NewFamilyID(r io.Reader, now time.Time) (string, error) {
	payload := make([]byte, familyBytes)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", err
	}
	id, err := ksuid.FromParts(now, payload)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// HashPIN returns hex(sha256(pin + salt)).
func HashPIN(pin, salt string) string {
	return SHA256Hex(pin + salt)
}

// SHA256Hex returns the lower-case hex SHA-256 digest of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func randomHex(r io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func randInt(r io.Reader, span int64) (int64, error) {
	n, err := rand.Int(r, big.NewInt(span))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}
