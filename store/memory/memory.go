// Package memory is a mutex-guarded in-process store.Store, used by tests and
// single-node development setups.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goIdentity/store"
)

// Store keeps every record in maps behind one mutex. All returned records
// are copies.
type Store struct {
	mu sync.Mutex

	users         map[string]*store.User
	emails        map[string]string
	refresh       map[string]*store.RefreshToken
	verifications map[string]*store.VerificationToken
	verifOrder    []string
	verifByToken  map[string]string
	backup        map[string][]store.BackupCode
	sessions      map[string]*store.Session
	links         map[linkKey]*store.LinkedAccount
}

type linkKey struct {
	provider  string
	accountID string
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:         make(map[string]*store.User),
		emails:        make(map[string]string),
		refresh:       make(map[string]*store.RefreshToken),
		verifications: make(map[string]*store.VerificationToken),
		verifByToken:  make(map[string]string),
		backup:        make(map[string][]store.BackupCode),
		sessions:      make(map[string]*store.Session),
		links:         make(map[linkKey]*store.LinkedAccount),
	}
}

// Users

func (s *Store) CreateUser(_ context.Context, u *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return store.ErrDuplicate
	}
	if _, ok := s.emails[u.Email]; ok {
		return store.ErrDuplicate
	}
	s.users[u.ID] = u.Clone()
	s.emails[u.Email] = u.ID
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u.Clone(), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.users[id].Clone(), nil
}

func (s *Store) updateUser(id string, fn func(u *store.User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	return fn(u)
}

func (s *Store) UpdatePasswordHash(_ context.Context, id, hash string, at time.Time) error {
	return s.updateUser(id, func(u *store.User) error {
		u.PasswordHash = hash
		u.UpdatedAt = at
		return nil
	})
}

func (s *Store) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	return s.updateUser(id, func(u *store.User) error {
		u.LastLoginAt = timePtr(at)
		return nil
	})
}

func (s *Store) MarkEmailVerified(_ context.Context, id string, at time.Time) error {
	return s.updateUser(id, func(u *store.User) error {
		if u.EmailVerifiedAt == nil {
			u.EmailVerifiedAt = timePtr(at)
		}
		return nil
	})
}

func (s *Store) SetMFASecret(_ context.Context, id, secret string) error {
	return s.updateUser(id, func(u *store.User) error {
		u.MFASecret = secret
		return nil
	})
}

func (s *Store) EnableMFA(_ context.Context, id string) error {
	return s.updateUser(id, func(u *store.User) error {
		if u.MFASecret == "" {
			return store.ErrNotFound
		}
		u.MFAEnabled = true
		return nil
	})
}

func (s *Store) DisableMFA(_ context.Context, id string) error {
	return s.updateUser(id, func(u *store.User) error {
		u.MFAEnabled = false
		u.MFASecret = ""
		delete(s.backup, id)
		return nil
	})
}

func (s *Store) RecordLoginFailure(_ context.Context, id string, threshold int, lockUntil time.Time) (store.LockoutState, error) {
	var out store.LockoutState
	err := s.updateUser(id, func(u *store.User) error {
		u.FailedLoginAttempts = min(u.FailedLoginAttempts+1, threshold)
		if u.FailedLoginAttempts >= threshold {
			u.LockedUntil = timePtr(lockUntil)
		}
		out = store.LockoutState{FailedAttempts: u.FailedLoginAttempts, LockedUntil: cloneTime(u.LockedUntil)}
		return nil
	})
	return out, err
}

func (s *Store) ResetLoginFailures(_ context.Context, id string) error {
	return s.updateUser(id, func(u *store.User) error {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		return nil
	})
}

func (s *Store) ClearExpiredLock(_ context.Context, id string, now time.Time) (bool, error) {
	cleared := false
	err := s.updateUser(id, func(u *store.User) error {
		if u.LockedUntil != nil && !u.LockedUntil.After(now) {
			u.FailedLoginAttempts = 0
			u.LockedUntil = nil
			cleared = true
		}
		return nil
	})
	return cleared, err
}

// Refresh tokens

func (s *Store) CreateRefreshToken(_ context.Context, t *store.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refresh[t.ID]; ok {
		return store.ErrDuplicate
	}
	c := *t
	c.RevokedAt = cloneTime(t.RevokedAt)
	s.refresh[t.ID] = &c
	return nil
}

func (s *Store) GetRefreshToken(_ context.Context, id string) (*store.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.refresh[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *t
	c.RevokedAt = cloneTime(t.RevokedAt)
	return &c, nil
}

func (s *Store) RevokeRefreshToken(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.refresh[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if t.RevokedAt != nil {
		return false, nil
	}
	t.RevokedAt = timePtr(at)
	return true, nil
}

func (s *Store) revokeWhere(at time.Time, match func(*store.RefreshToken) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.refresh {
		if t.RevokedAt == nil && match(t) {
			t.RevokedAt = timePtr(at)
			n++
		}
	}
	return n
}

func (s *Store) RevokeUserRefreshTokens(_ context.Context, userID string, at time.Time) (int64, error) {
	return s.revokeWhere(at, func(t *store.RefreshToken) bool { return t.UserID == userID }), nil
}

func (s *Store) RevokeSessionRefreshTokens(_ context.Context, sessionID string, at time.Time) (int64, error) {
	return s.revokeWhere(at, func(t *store.RefreshToken) bool { return t.SessionID == sessionID }), nil
}

func (s *Store) RevokeRefreshFamily(_ context.Context, family string, at time.Time) (int64, error) {
	return s.revokeWhere(at, func(t *store.RefreshToken) bool { return t.Family == family }), nil
}

// Verification tokens

func (s *Store) CreateVerification(_ context.Context, v *store.VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.verifications[v.ID]; ok {
		return store.ErrDuplicate
	}
	if _, ok := s.verifByToken[v.Token]; ok {
		return store.ErrDuplicate
	}
	c := *v
	c.UsedAt = cloneTime(v.UsedAt)
	s.verifications[v.ID] = &c
	s.verifOrder = append(s.verifOrder, v.ID)
	s.verifByToken[v.Token] = v.ID
	return nil
}

func (s *Store) GetActiveVerification(_ context.Context, identifier string, now time.Time) (*store.VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *store.VerificationToken
	for _, id := range s.verifOrder {
		v := s.verifications[id]
		if v.Identifier != identifier || v.UsedAt != nil || !v.ExpiresAt.After(now) {
			continue
		}
		if best == nil || !v.CreatedAt.Before(best.CreatedAt) {
			best = v
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return copyVerification(best), nil
}

func (s *Store) GetVerificationByToken(_ context.Context, token string) (*store.VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.verifByToken[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyVerification(s.verifications[id]), nil
}

func (s *Store) IncrementVerificationAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verifications[id]
	if !ok || v.UsedAt != nil {
		return 0, store.ErrNotFound
	}
	v.Attempts++
	return v.Attempts, nil
}

func (s *Store) ConsumeVerification(_ context.Context, id string, at time.Time, maxAttempts int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verifications[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if v.UsedAt != nil || v.Attempts >= maxAttempts || !v.ExpiresAt.After(at) {
		return false, nil
	}
	v.UsedAt = timePtr(at)
	return true, nil
}

// Backup codes

func (s *Store) ReplaceBackupCodes(_ context.Context, userID string, codes []store.BackupCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backup[userID] = append([]store.BackupCode(nil), codes...)
	return nil
}

func (s *Store) ConsumeBackupCode(_ context.Context, userID, hash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := s.backup[userID]
	for i := range codes {
		if codes[i].UsedAt == nil && codes[i].CodeHash == hash {
			codes[i].UsedAt = timePtr(at)
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CountUnusedBackupCodes(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.backup[userID] {
		if c.UsedAt == nil {
			n++
		}
	}
	return n, nil
}

// Sessions

func (s *Store) CreateSession(_ context.Context, sess *store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return store.ErrDuplicate
	}
	c := *sess
	c.RevokedAt = cloneTime(sess.RevokedAt)
	s.sessions[sess.ID] = &c
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *sess
	c.RevokedAt = cloneTime(sess.RevokedAt)
	return &c, nil
}

func (s *Store) RevokeSession(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if sess.RevokedAt != nil {
		return false, nil
	}
	sess.RevokedAt = timePtr(at)
	return true, nil
}

// Linked accounts

func (s *Store) GetLinkedAccount(_ context.Context, provider, providerAccountID string) (*store.LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.links[linkKey{provider, providerAccountID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (s *Store) UpsertLinkedAccount(_ context.Context, a *store.LinkedAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := linkKey{a.Provider, a.ProviderAccountID}
	if existing, ok := s.links[key]; ok {
		existing.AccessToken = a.AccessToken
		existing.RefreshToken = a.RefreshToken
		existing.UpdatedAt = a.UpdatedAt
		return nil
	}
	c := *a
	s.links[key] = &c
	return nil
}

func copyVerification(v *store.VerificationToken) *store.VerificationToken {
	c := *v
	c.UsedAt = cloneTime(v.UsedAt)
	return &c
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
