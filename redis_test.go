package goIdentity

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/MrEthical07/goIdentity/store/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// TestRedisBackedSessionsAndPins runs sessions, PIN records and rate limits
// through Redis while users and refresh tokens stay in memory.
func TestRedisBackedSessionsAndPins(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	cfg.ValidationMode = ModeStrict
	mem := memory.New()
	rs := redisstore.New(rdb, "it:")
	mail := &mailbox{ch: make(chan notify.Message, 16)}
	engine, err := New().
		WithConfig(cfg).
		WithStore(mem).
		WithVerificationStore(rs).
		WithSessionStore(rs).
		WithRedis(rdb).
		WithSender(mail).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	ctx := context.Background()

	report := engine.SecurityReport()
	if !report.RateLimitingActive || !report.DetachedSessionStore || !report.DetachedPinStore {
		t.Fatalf("unexpected report %+v", report)
	}

	if _, err := engine.Signup(ctx, SignupRequest{Email: "kim@example.com", Password: "correct horse"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	res, err := engine.Login(ctx, "kim@example.com", "correct horse")
	if err != nil || res.Tokens == nil {
		t.Fatalf("Login: %+v %v", res, err)
	}
	claims, err := engine.ValidateAccess(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if !mr.Exists("it:sess:" + claims.SessionID) {
		t.Fatal("expected session to live in redis")
	}
	if _, err := mem.GetSession(ctx, claims.SessionID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected memory store to hold no session, got %v", err)
	}
	ids, err := rs.UserSessions(ctx, claims.Subject)
	if err != nil || len(ids) != 1 || ids[0] != claims.SessionID {
		t.Fatalf("unexpected live sessions %v (%v)", ids, err)
	}

	if err := engine.Logout(ctx, claims.Subject, claims.SessionID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := engine.ValidateAccess(ctx, res.Tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked session to fail strict validation, got %v", err)
	}
	if ids, _ := rs.UserSessions(ctx, claims.Subject); len(ids) != 0 {
		t.Fatalf("expected no live sessions after logout, got %v", ids)
	}

	if err := engine.ForgotPassword(ctx, "kim@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	pin := mail.pin(t, "kim@example.com", store.PasswordReset)
	if err := engine.ResetPassword(ctx, "kim@example.com", pin, "battery staple"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := engine.Login(ctx, "kim@example.com", "battery staple"); err != nil {
		t.Fatalf("Login with new password: %v", err)
	}
}
