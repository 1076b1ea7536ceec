// Package storetest holds behavioural checks shared by every store backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/store"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises every sub-interface of a full store. newStore must return
// an empty store on each call.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("Users", func(t *testing.T) { Users(t, newStore(t)) })
	t.Run("Lockout", func(t *testing.T) { Lockout(t, newStore(t)) })
	t.Run("MFA", func(t *testing.T) { MFA(t, newStore(t)) })
	t.Run("RefreshTokens", func(t *testing.T) { RefreshTokens(t, newStore(t)) })
	t.Run("VerificationTokens", func(t *testing.T) { VerificationTokens(t, newStore(t)) })
	t.Run("Sessions", func(t *testing.T) { Sessions(t, newStore(t)) })
	t.Run("LinkedAccounts", func(t *testing.T) { LinkedAccounts(t, newStore(t)) })
}

func newUser(id, email string) *store.User {
	return &store.User{
		ID:        id,
		Email:     email,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Locale:    "EN",
		Timezone:  "UTC",
		Status:    store.UserActive,
		Roles:     []string{"user"},
		CreatedAt: base,
		UpdatedAt: base,
	}
}

func mustCreateUser(t *testing.T, s store.Users, id, email string) {
	t.Helper()
	if err := s.CreateUser(context.Background(), newUser(id, email)); err != nil {
		t.Fatalf("CreateUser(%s): %v", id, err)
	}
}

func Users(t *testing.T, s store.Users) {
	ctx := context.Background()
	mustCreateUser(t, s, "u1", "ada@example.com")

	if err := s.CreateUser(ctx, newUser("u2", "ada@example.com")); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for email, got %v", err)
	}
	if _, err := s.GetUserByID(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := s.GetUserByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.ID != "u1" || got.Status != store.UserActive || len(got.Roles) != 1 || got.Roles[0] != "user" {
		t.Fatalf("unexpected user %+v", got)
	}
	if !got.CreatedAt.Equal(base) || got.LockedUntil != nil || got.EmailVerifiedAt != nil {
		t.Fatalf("unexpected timestamps %+v", got)
	}

	later := base.Add(time.Hour)
	if err := s.UpdatePasswordHash(ctx, "u1", "$2a$10$hash", later); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}
	if err := s.UpdateLastLogin(ctx, "u1", later); err != nil {
		t.Fatalf("UpdateLastLogin: %v", err)
	}
	if err := s.MarkEmailVerified(ctx, "u1", later); err != nil {
		t.Fatalf("MarkEmailVerified: %v", err)
	}
	got, _ = s.GetUserByID(ctx, "u1")
	if got.PasswordHash != "$2a$10$hash" || got.LastLoginAt == nil || !got.LastLoginAt.Equal(later) {
		t.Fatalf("updates not persisted: %+v", got)
	}
	if got.EmailVerifiedAt == nil || !got.EmailVerifiedAt.Equal(later) {
		t.Fatalf("expected email verified at %v, got %v", later, got.EmailVerifiedAt)
	}
	if err := s.UpdatePasswordHash(ctx, "missing", "x", later); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func Lockout(t *testing.T, s store.Users) {
	ctx := context.Background()
	mustCreateUser(t, s, "u1", "lock@example.com")
	until := base.Add(15 * time.Minute)

	for i := 1; i <= 4; i++ {
		st, err := s.RecordLoginFailure(ctx, "u1", 3, until)
		if err != nil {
			t.Fatalf("RecordLoginFailure: %v", err)
		}
		want := min(i, 3)
		if st.FailedAttempts != want {
			t.Fatalf("attempt %d: expected counter %d, got %d", i, want, st.FailedAttempts)
		}
		if (i >= 3) != (st.LockedUntil != nil) {
			t.Fatalf("attempt %d: unexpected lock %v", i, st.LockedUntil)
		}
	}

	cleared, err := s.ClearExpiredLock(ctx, "u1", until.Add(-time.Second))
	if err != nil || cleared {
		t.Fatalf("expected active lock to stay, cleared=%v err=%v", cleared, err)
	}
	cleared, err = s.ClearExpiredLock(ctx, "u1", until)
	if err != nil || !cleared {
		t.Fatalf("expected expired lock to clear, cleared=%v err=%v", cleared, err)
	}
	u, _ := s.GetUserByID(ctx, "u1")
	if u.FailedLoginAttempts != 0 || u.LockedUntil != nil {
		t.Fatalf("expected counters reset, got %+v", u)
	}

	_, _ = s.RecordLoginFailure(ctx, "u1", 3, until)
	if err := s.ResetLoginFailures(ctx, "u1"); err != nil {
		t.Fatalf("ResetLoginFailures: %v", err)
	}
	u, _ = s.GetUserByID(ctx, "u1")
	if u.FailedLoginAttempts != 0 {
		t.Fatalf("expected reset counter, got %d", u.FailedLoginAttempts)
	}
}

// MFA needs both the user and backup code surfaces.
func MFA(t *testing.T, s interface {
	store.Users
	store.BackupCodes
}) {
	ctx := context.Background()
	mustCreateUser(t, s, "u1", "mfa@example.com")

	if err := s.EnableMFA(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without secret, got %v", err)
	}
	if err := s.SetMFASecret(ctx, "u1", "SECRET"); err != nil {
		t.Fatalf("SetMFASecret: %v", err)
	}
	u, _ := s.GetUserByID(ctx, "u1")
	if u.MFASecret != "SECRET" || u.MFAEnabled {
		t.Fatalf("expected pending secret, got %+v", u)
	}
	if err := s.EnableMFA(ctx, "u1"); err != nil {
		t.Fatalf("EnableMFA: %v", err)
	}

	codes := make([]store.BackupCode, 3)
	for i := range codes {
		codes[i] = store.BackupCode{ID: fmt.Sprintf("b%d", i), UserID: "u1", CodeHash: fmt.Sprintf("h%d", i), CreatedAt: base}
	}
	if err := s.ReplaceBackupCodes(ctx, "u1", codes); err != nil {
		t.Fatalf("ReplaceBackupCodes: %v", err)
	}
	ok, err := s.ConsumeBackupCode(ctx, "u1", "h1", base)
	if err != nil || !ok {
		t.Fatalf("expected consume, ok=%v err=%v", ok, err)
	}
	if ok, _ := s.ConsumeBackupCode(ctx, "u1", "h1", base); ok {
		t.Fatal("expected second consume to fail")
	}
	if ok, _ := s.ConsumeBackupCode(ctx, "other", "h0", base); ok {
		t.Fatal("expected codes to be scoped to the user")
	}
	if n, _ := s.CountUnusedBackupCodes(ctx, "u1"); n != 2 {
		t.Fatalf("expected 2 unused codes, got %d", n)
	}

	replacement := []store.BackupCode{{ID: "n0", UserID: "u1", CodeHash: "n0", CreatedAt: base}}
	if err := s.ReplaceBackupCodes(ctx, "u1", replacement); err != nil {
		t.Fatalf("ReplaceBackupCodes: %v", err)
	}
	if ok, _ := s.ConsumeBackupCode(ctx, "u1", "h0", base); ok {
		t.Fatal("expected replaced code to be gone")
	}

	if err := s.DisableMFA(ctx, "u1"); err != nil {
		t.Fatalf("DisableMFA: %v", err)
	}
	u, _ = s.GetUserByID(ctx, "u1")
	if u.MFAEnabled || u.MFASecret != "" {
		t.Fatalf("expected MFA cleared, got %+v", u)
	}
	if n, _ := s.CountUnusedBackupCodes(ctx, "u1"); n != 0 {
		t.Fatalf("expected backup codes deleted, got %d", n)
	}
}

func RefreshTokens(t *testing.T, s store.RefreshTokens) {
	ctx := context.Background()
	mk := func(id, user, session, family string) {
		t.Helper()
		err := s.CreateRefreshToken(ctx, &store.RefreshToken{
			ID: id, UserID: user, SessionID: session, Token: "tok-" + id, Family: family,
			ExpiresAt: base.Add(24 * time.Hour), CreatedAt: base,
		})
		if err != nil {
			t.Fatalf("CreateRefreshToken(%s): %v", id, err)
		}
	}
	mk("r1", "u1", "s1", "f1")
	mk("r2", "u1", "s1", "f1")
	mk("r3", "u1", "s2", "f2")
	mk("r4", "u2", "s3", "f3")

	if _, err := s.GetRefreshToken(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	var wg sync.WaitGroup
	wins := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.RevokeRefreshToken(ctx, "r1", base)
			if err != nil {
				t.Errorf("RevokeRefreshToken: %v", err)
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)
	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one revocation winner, got %d", won)
	}

	row, err := s.GetRefreshToken(ctx, "r1")
	if err != nil || row.RevokedAt == nil || row.Family != "f1" || row.SessionID != "s1" {
		t.Fatalf("unexpected row %+v (%v)", row, err)
	}

	if n, _ := s.RevokeRefreshFamily(ctx, "f1", base); n != 1 {
		t.Fatalf("expected 1 family row revoked, got %d", n)
	}
	if n, _ := s.RevokeSessionRefreshTokens(ctx, "s2", base); n != 1 {
		t.Fatalf("expected 1 session row revoked, got %d", n)
	}
	if n, _ := s.RevokeUserRefreshTokens(ctx, "u1", base); n != 0 {
		t.Fatalf("expected u1 rows already revoked, got %d", n)
	}
	if n, _ := s.RevokeUserRefreshTokens(ctx, "u2", base); n != 1 {
		t.Fatalf("expected 1 u2 row revoked, got %d", n)
	}
}

// VerificationTokens is shared with backends that only persist verification
// records.
func VerificationTokens(t *testing.T, s store.VerificationTokens) {
	ctx := context.Background()
	mk := func(id, identifier, token string, created time.Time, ttl time.Duration) {
		t.Helper()
		err := s.CreateVerification(ctx, &store.VerificationToken{
			ID: id, Identifier: identifier, Type: store.EmailVerification,
			PinHash: "hash-" + id, PinSalt: "salt", Token: token,
			ExpiresAt: created.Add(ttl), CreatedAt: created,
		})
		if err != nil {
			t.Fatalf("CreateVerification(%s): %v", id, err)
		}
	}
	mk("v1", "a@example.com", "t1", base, 15*time.Minute)
	mk("v2", "a@example.com", "t2", base.Add(time.Minute), 15*time.Minute)
	mk("v3", "a@example.com", "t3", base.Add(2*time.Minute), time.Minute)

	now := base.Add(5 * time.Minute)
	active, err := s.GetActiveVerification(ctx, "a@example.com", now)
	if err != nil || active.ID != "v2" {
		t.Fatalf("expected latest unexpired v2, got %+v (%v)", active, err)
	}
	if active.PinHash != "hash-v2" || active.Type != store.EmailVerification || !active.ExpiresAt.Equal(base.Add(16*time.Minute)) {
		t.Fatalf("unexpected fields %+v", active)
	}
	if _, err := s.GetActiveVerification(ctx, "b@example.com", now); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	n, err := s.IncrementVerificationAttempts(ctx, "v2")
	if err != nil || n != 1 {
		t.Fatalf("expected attempts 1, got %d (%v)", n, err)
	}

	var wg sync.WaitGroup
	wins := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ConsumeVerification(ctx, "v2", now, 5)
			if err != nil {
				t.Errorf("ConsumeVerification: %v", err)
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)
	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one consume winner, got %d", won)
	}

	active, err = s.GetActiveVerification(ctx, "a@example.com", now)
	if err != nil || active.ID != "v1" {
		t.Fatalf("expected v1 after v2 consumed, got %+v (%v)", active, err)
	}

	for i := 0; i < 5; i++ {
		_, _ = s.IncrementVerificationAttempts(ctx, "v1")
	}
	if ok, _ := s.ConsumeVerification(ctx, "v1", now, 5); ok {
		t.Fatal("expected exhausted record not to be consumed")
	}
	if ok, _ := s.ConsumeVerification(ctx, "v3", now, 5); ok {
		t.Fatal("expected expired record not to be consumed")
	}

	byToken, err := s.GetVerificationByToken(ctx, "t2")
	if err != nil || byToken.ID != "v2" || byToken.UsedAt == nil {
		t.Fatalf("expected consumed v2 by token, got %+v (%v)", byToken, err)
	}
	if _, err := s.GetVerificationByToken(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func Sessions(t *testing.T, s store.Sessions) {
	ctx := context.Background()
	err := s.CreateSession(ctx, &store.Session{
		ID: "s1", UserID: "u1", IPAddress: "203.0.113.7", UserAgent: "curl/8",
		ExpiresAt: base.Add(time.Hour), CreatedAt: base,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	got, err := s.GetSession(ctx, "s1")
	if err != nil || got.IPAddress != "203.0.113.7" || got.UserAgent != "curl/8" || got.RevokedAt != nil {
		t.Fatalf("unexpected session %+v (%v)", got, err)
	}
	if ok, _ := s.RevokeSession(ctx, "s1", base); !ok {
		t.Fatal("expected first revoke to win")
	}
	if ok, _ := s.RevokeSession(ctx, "s1", base); ok {
		t.Fatal("expected second revoke to report false")
	}
	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func LinkedAccounts(t *testing.T, s store.LinkedAccounts) {
	ctx := context.Background()
	link := &store.LinkedAccount{
		ID: "l1", UserID: "u1", Provider: "google", ProviderAccountID: "g-1",
		AccessToken: "at1", CreatedAt: base, UpdatedAt: base,
	}
	if err := s.UpsertLinkedAccount(ctx, link); err != nil {
		t.Fatalf("UpsertLinkedAccount: %v", err)
	}
	update := *link
	update.ID = "l2"
	update.AccessToken = "at2"
	update.RefreshToken = "rt2"
	update.UpdatedAt = base.Add(time.Hour)
	if err := s.UpsertLinkedAccount(ctx, &update); err != nil {
		t.Fatalf("UpsertLinkedAccount update: %v", err)
	}

	got, err := s.GetLinkedAccount(ctx, "google", "g-1")
	if err != nil {
		t.Fatalf("GetLinkedAccount: %v", err)
	}
	if got.ID != "l1" || got.UserID != "u1" || got.AccessToken != "at2" || got.RefreshToken != "rt2" {
		t.Fatalf("expected tokens updated in place, got %+v", got)
	}
	if _, err := s.GetLinkedAccount(ctx, "apple", "g-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
