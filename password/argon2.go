package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Prefix  = "$argon2id$"
	minMemoryKB   = 8 * 1024
	minSaltLength = 16
	minKeyLength  = 16
)

var errMalformedPHC = errors.New("password: malformed argon2id hash")

// Argon2Config tunes the argon2id hasher.
type Argon2Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns the OWASP baseline parameters.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
}

// Argon2 hashes credentials into the PHC string format
// `$argon2id$v=19$m=<kb>,t=<n>,p=<n>$<salt>$<hash>`.
type Argon2 struct {
	cfg    Argon2Config
	random io.Reader
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, errors.New("password: argon2 memory must be >= 8192 KB")
	case cfg.Time < 1:
		return nil, errors.New("password: argon2 time must be >= 1")
	case cfg.Parallelism < 1:
		return nil, errors.New("password: argon2 parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, errors.New("password: argon2 salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return nil, errors.New("password: argon2 key length must be >= 16")
	}
	return &Argon2{cfg: cfg, random: rand.Reader}, nil
}

func (a *Argon2) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, a.cfg.SaltLength)
	if _, err := io.ReadFull(a.random, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(plaintext), salt, a.cfg.Time, a.cfg.Memory, a.cfg.Parallelism, a.cfg.KeyLength)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version,
		a.cfg.Memory, a.cfg.Time, a.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (a *Argon2) Verify(plaintext, encodedHash string) bool {
	if plaintext == "" {
		return false
	}
	p, err := parsePHC(encodedHash)
	if err != nil {
		return false
	}
	key := argon2.IDKey([]byte(plaintext), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(key, p.key) == 1
}

func (a *Argon2) IsHash(s string) bool {
	return strings.HasPrefix(s, argon2Prefix)
}

func (a *Argon2) NeedsRehash(encodedHash string) bool {
	p, err := parsePHC(encodedHash)
	if err != nil {
		return true
	}
	return p.memory < a.cfg.Memory ||
		p.time < a.cfg.Time ||
		p.parallelism < a.cfg.Parallelism ||
		uint32(len(p.key)) != a.cfg.KeyLength
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parsePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, errMalformedPHC
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, errMalformedPHC
	}

	var out phc
	seen := 0
	for _, kv := range strings.Split(parts[3], ",") {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errMalformedPHC
		}
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, errMalformedPHC
		}
		switch name {
		case "m":
			if v < minMemoryKB {
				return nil, errMalformedPHC
			}
			out.memory = uint32(v)
		case "t":
			if v < 1 {
				return nil, errMalformedPHC
			}
			out.time = uint32(v)
		case "p":
			if v < 1 || v > 255 {
				return nil, errMalformedPHC
			}
			out.parallelism = uint8(v)
		default:
			return nil, errMalformedPHC
		}
		seen++
	}
	if seen != 3 {
		return nil, errMalformedPHC
	}

	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(out.salt) < minSaltLength {
		return nil, errMalformedPHC
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(out.key) < minKeyLength {
		return nil, errMalformedPHC
	}
	return &out, nil
}
