package password

import (
	"errors"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the adaptive cost used when none is configured.
const DefaultBcryptCost = 10

var bcryptPrefix = regexp.MustCompile(`^\$2[aby]\$\d{2}\$`)

// Bcrypt is the default credential hasher.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher. A zero cost selects DefaultBcryptCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.New("password: bcrypt cost out of range")
	}
	return &Bcrypt{cost: cost}, nil
}

// Hash returns a `$2a$<cost>$...` encoded hash of plaintext.
// Inputs longer than 72 bytes are rejected by bcrypt itself.
func (b *Bcrypt) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (b *Bcrypt) Verify(plaintext, encodedHash string) bool {
	if plaintext == "" || encodedHash == "" || !b.IsHash(encodedHash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(plaintext)) == nil
}

// IsHash recognises the bcrypt prefix without verifying anything.
func (b *Bcrypt) IsHash(s string) bool {
	return bcryptPrefix.MatchString(s)
}

func (b *Bcrypt) NeedsRehash(encodedHash string) bool {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return true
	}
	return cost < b.cost
}
