package password

import "errors"

// ErrEmptyPassword is returned by Hash when the plaintext is empty.
var ErrEmptyPassword = errors.New("password: plaintext is empty")

// Hasher hashes and verifies credentials using a self-describing encoding.
//
// Verify never panics and never reports an error: malformed or empty input
// simply does not verify.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encodedHash string) bool
	IsHash(s string) bool
	NeedsRehash(encodedHash string) bool
}

// Multi hashes with Primary and verifies with whichever hasher recognises the
// encoded form, so stored hashes keep working after an algorithm switch.
type Multi struct {
	Primary Hasher
	Legacy  []Hasher
}

// NewMulti returns a Multi hashing with primary and additionally accepting
// hashes produced by legacy.
func NewMulti(primary Hasher, legacy ...Hasher) *Multi {
	return &Multi{Primary: primary, Legacy: legacy}
}

func (m *Multi) Hash(plaintext string) (string, error) {
	return m.Primary.Hash(plaintext)
}

func (m *Multi) Verify(plaintext, encodedHash string) bool {
	if h := m.match(encodedHash); h != nil {
		return h.Verify(plaintext, encodedHash)
	}
	return false
}

func (m *Multi) IsHash(s string) bool {
	return m.match(s) != nil
}

// NeedsRehash reports true for hashes of a legacy algorithm or for primary
// hashes produced with weaker parameters.
func (m *Multi) NeedsRehash(encodedHash string) bool {
	if m.Primary.IsHash(encodedHash) {
		return m.Primary.NeedsRehash(encodedHash)
	}
	return true
}

func (m *Multi) match(s string) Hasher {
	if m.Primary.IsHash(s) {
		return m.Primary
	}
	for _, h := range m.Legacy {
		if h.IsHash(s) {
			return h
		}
	}
	return nil
}
