package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/store/storetest"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "test:"), mr
}

func TestConformance(t *testing.T) {
	s, _ := newTestStore(t)
	storetest.VerificationTokens(t, s)
	storetest.Sessions(t, s)
}

func record(id, token string, created time.Time) *store.VerificationToken {
	return &store.VerificationToken{
		ID: id, Identifier: "a@example.com", Type: store.TwoFactorAuth,
		PinHash: "h", PinSalt: "s", Token: token, UserID: "u1",
		ExpiresAt: created.Add(5 * time.Minute), CreatedAt: created,
	}
}

func TestDuplicateIDAndToken(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.CreateVerification(ctx, record("v1", "t1", now)); err != nil {
		t.Fatalf("CreateVerification: %v", err)
	}
	if err := s.CreateVerification(ctx, record("v1", "t2", now)); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for id, got %v", err)
	}
	if err := s.CreateVerification(ctx, record("v2", "t1", now)); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for token, got %v", err)
	}
}

func TestRecordsExpireAfterRetention(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.CreateVerification(ctx, record("v1", "t1", now)); err != nil {
		t.Fatalf("CreateVerification: %v", err)
	}
	if ttl := mr.TTL("test:vt:v1"); ttl != 5*time.Minute+Retention {
		t.Fatalf("expected ttl %v, got %v", 5*time.Minute+Retention, ttl)
	}

	mr.FastForward(5*time.Minute + Retention + time.Second)
	if _, err := s.GetVerificationByToken(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after retention, got %v", err)
	}
	if _, err := s.GetActiveVerification(ctx, "a@example.com", now); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after retention, got %v", err)
	}
}

func TestActiveLookupPrunesMissingRecords(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.CreateVerification(ctx, record("v1", "t1", now)); err != nil {
		t.Fatalf("CreateVerification: %v", err)
	}
	if err := s.CreateVerification(ctx, record("v2", "t2", now.Add(time.Second))); err != nil {
		t.Fatalf("CreateVerification: %v", err)
	}
	mr.Del("test:vt:v2")

	got, err := s.GetActiveVerification(ctx, "a@example.com", now.Add(time.Minute))
	if err != nil || got.ID != "v1" {
		t.Fatalf("expected v1, got %+v (%v)", got, err)
	}
	members, err := mr.ZMembers("test:vt:idx:a@example.com")
	if err != nil {
		t.Fatalf("ZMembers: %v", err)
	}
	if len(members) != 1 || members[0] != "v1" {
		t.Fatalf("expected pruned index, got %v", members)
	}
}

func TestRedisFailureIsUnavailable(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()
	_, err := s.GetVerificationByToken(context.Background(), "t1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSessionsTrackLiveIDsPerUser(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"s1", "s2"} {
		err := s.CreateSession(ctx, &store.Session{ID: id, UserID: "u1", ExpiresAt: now.Add(time.Hour), CreatedAt: now})
		if err != nil {
			t.Fatalf("CreateSession %s: %v", id, err)
		}
	}
	err := s.CreateSession(ctx, &store.Session{ID: "s1", UserID: "u1", ExpiresAt: now.Add(time.Hour), CreatedAt: now})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if ttl := mr.TTL("test:sess:s1"); ttl != time.Hour+Retention {
		t.Fatalf("expected ttl %v, got %v", time.Hour+Retention, ttl)
	}

	if ok, err := s.RevokeSession(ctx, "s1", now); !ok || err != nil {
		t.Fatalf("RevokeSession: %v %v", ok, err)
	}
	got, err := s.GetSession(ctx, "s1")
	if err != nil || got.RevokedAt == nil || !got.RevokedAt.Equal(now) {
		t.Fatalf("expected revoked session, got %+v (%v)", got, err)
	}

	mr.Del("test:sess:s2")
	ids, err := s.UserSessions(ctx, "u1")
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected no live sessions, got %v (%v)", ids, err)
	}
	if mr.Exists("test:sess:user:u1") {
		t.Fatal("expected user set to be emptied")
	}
}

func TestRevokeMissingSessionIsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.RevokeSession(context.Background(), "missing", time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
