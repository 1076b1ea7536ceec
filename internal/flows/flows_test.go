package flows

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/MrEthical07/goIdentity/totp"
	"go.uber.org/zap"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captureNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *captureNotifier) Enqueue(msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *captureNotifier) last(t *testing.T) notify.Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.msgs) == 0 {
		t.Fatal("expected a queued notification")
	}
	return n.msgs[len(n.msgs)-1]
}

type testEnv struct {
	deps   *Deps
	store  *memory.Store
	clock  *testClock
	notes  *captureNotifier
	events *audit.ChannelSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	tokens, err := jwt.NewManager(jwt.Config{
		Issuer:        "goidentity-test",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    30 * 24 * time.Hour,
		AccessKey:     []byte("0123456789abcdef0123456789abcdef"),
		RefreshSecret: []byte("fedcba9876543210fedcba9876543210"),
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("jwt.NewManager: %v", err)
	}
	auth, err := totp.New(totp.Config{Issuer: "test"})
	if err != nil {
		t.Fatalf("totp.New: %v", err)
	}
	hasher, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}

	env := &testEnv{
		store:  memory.New(),
		clock:  clock,
		notes:  &captureNotifier{},
		events: audit.NewChannelSink(256),
	}
	env.deps = &Deps{
		Store:    env.store,
		Hasher:   hasher,
		Tokens:   tokens,
		TOTP:     auth,
		Notifier: env.notes,
		Audit:    env.events,
		Metrics:  metrics.New(metrics.Config{Enabled: true}),
		Log:      zap.NewNop(),
		Now:      clock.Now,
		Random:   rand.Reader,
		Settings: Settings{
			AppURL:           "https://id.example.com/",
			LockoutThreshold: 5,
			LockoutDuration:  15 * time.Minute,
			PreserveFamily:   true,
			ReuseDetection:   true,
			LogoutAll:        true,
			LinkByEmail:      true,
		},
	}
	return env
}

func (e *testEnv) requestPin(t *testing.T, identifier string, typ store.VerificationType) string {
	t.Helper()
	if err := RunRequestPin(context.Background(), PinRequest{Identifier: identifier, Type: typ}, e.deps); err != nil {
		t.Fatalf("RunRequestPin: %v", err)
	}
	return e.notes.last(t).Context["pin"].(string)
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{ErrValidation, KindValidation},
		{validationError("bad"), KindValidation},
		{ErrEmailTaken, KindConflict},
		{&LockedError{Until: time.Now()}, KindUnauthorized},
		{ErrRefreshReuse, KindUnauthorized},
		{ErrVerificationExpired, KindNotFound},
		{ErrRateLimited, KindRateLimited},
		{ErrNotImplemented, KindNotImplemented},
		{storeError(errors.New("db down")), KindInternal},
		{errors.New("plain"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("%v: expected %v, got %v", tc.err, tc.want, got)
		}
	}
	if !errors.Is(ErrRefreshReuse, ErrRefreshRevoked) {
		t.Fatal("expected reuse to match revoked")
	}
	if !errors.Is(&LockedError{}, ErrAccountLocked) {
		t.Fatal("expected LockedError to match ErrAccountLocked")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  User@Example.COM "); got != "user@example.com" {
		t.Fatalf("expected user@example.com, got %q", got)
	}
	// Fullwidth letters fold to ASCII under NFKC.
	if got := NormalizeEmail("ｕser@example.com"); got != "user@example.com" {
		t.Fatalf("expected NFKC folding, got %q", got)
	}
	if validEmail("not-an-email") || validEmail("a@b") || !validEmail("a@b.co") {
		t.Fatal("unexpected email validation result")
	}
}

func TestExpiryFor(t *testing.T) {
	want := map[store.VerificationType]time.Duration{
		store.EmailVerification: 15 * time.Minute,
		store.PhoneVerification: 10 * time.Minute,
		store.PasswordReset:     15 * time.Minute,
		store.AccountLinking:    10 * time.Minute,
		store.TwoFactorAuth:     5 * time.Minute,
		store.PhoneNumberChange: 10 * time.Minute,
		"SOMETHING_ELSE":        15 * time.Minute,
	}
	for typ, d := range want {
		if got := ExpiryFor(typ); got != d {
			t.Fatalf("%s: expected %v, got %v", typ, d, got)
		}
	}
}

func TestCanonicalBackupCode(t *testing.T) {
	if got := CanonicalBackupCode(" ab12-cd 34 "); got != "AB12CD34" {
		t.Fatalf("expected AB12CD34, got %q", got)
	}
}

func TestRequestPinQueuesEmail(t *testing.T) {
	env := newTestEnv(t)
	pin := env.requestPin(t, "User@Example.com", store.PasswordReset)

	msg := env.notes.last(t)
	if msg.To != "user@example.com" || msg.Template != "PASSWORD_RESET" || msg.Subject != "Reset Your Password" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if len(pin) != 6 || pin < "100000" || pin > "999999" {
		t.Fatalf("unexpected pin %q", pin)
	}
	token := msg.Context["token"].(string)
	if msg.Context["verificationLink"] != "https://id.example.com/verify?token="+token {
		t.Fatalf("unexpected link %v", msg.Context["verificationLink"])
	}
	if msg.Context["expiryMinutes"] != 15 || msg.Context["purpose"] != "password reset" {
		t.Fatalf("unexpected context %v", msg.Context)
	}
}

func TestRequestPinSMSIsNotSent(t *testing.T) {
	env := newTestEnv(t)
	if err := RunRequestPin(context.Background(), PinRequest{Identifier: "+15550100", Type: store.PhoneVerification}, env.deps); err != nil {
		t.Fatalf("RunRequestPin: %v", err)
	}
	if len(env.notes.msgs) != 0 {
		t.Fatalf("expected no message for sms, got %d", len(env.notes.msgs))
	}
	if _, err := env.store.GetActiveVerification(context.Background(), "+15550100", env.clock.Now()); err != nil {
		t.Fatalf("expected record persisted, got %v", err)
	}
}

func TestVerifyPinSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pin := env.requestPin(t, "a@example.com", store.EmailVerification)

	token, err := RunVerifyPin(ctx, "a@example.com", pin, env.deps)
	if err != nil || token == "" {
		t.Fatalf("expected success, got %q (%v)", token, err)
	}
	if _, err := RunVerifyPin(ctx, "a@example.com", pin, env.deps); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expected ErrVerificationNotFound on reuse, got %v", err)
	}
}

func TestVerifyPinAttemptCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pin := env.requestPin(t, "a@example.com", store.EmailVerification)
	wrong := "000000"

	for i := 0; i < MaxPinAttempts; i++ {
		if _, err := RunVerifyPin(ctx, "a@example.com", wrong, env.deps); !errors.Is(err, ErrInvalidPin) {
			t.Fatalf("attempt %d: expected ErrInvalidPin, got %v", i+1, err)
		}
	}
	if _, err := RunVerifyPin(ctx, "a@example.com", pin, env.deps); !errors.Is(err, ErrPinAttemptsExceeded) {
		t.Fatalf("expected ErrPinAttemptsExceeded with the correct pin, got %v", err)
	}
	if got := env.deps.Metrics.Value(metrics.PinInvalid); got != MaxPinAttempts {
		t.Fatalf("expected %d invalid pins counted, got %d", MaxPinAttempts, got)
	}
}

func TestVerifyPinExpired(t *testing.T) {
	env := newTestEnv(t)
	pin := env.requestPin(t, "a@example.com", store.TwoFactorAuth)
	env.clock.Advance(5 * time.Minute)

	_, err := RunVerifyPin(context.Background(), "a@example.com", pin, env.deps)
	if !errors.Is(err, ErrVerificationNotFound) && !errors.Is(err, ErrVerificationExpired) {
		t.Fatalf("expected expired pin to fail, got %v", err)
	}
}

func TestVerifyPinConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	pin := env.requestPin(t, "race@example.com", store.EmailVerification)

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := RunVerifyPin(context.Background(), "race@example.com", pin, env.deps)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrVerificationNotFound):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestVerifyToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.requestPin(t, "a@example.com", store.EmailVerification)
	token := env.notes.last(t).Context["token"].(string)

	rec, err := RunVerifyToken(ctx, token, env.deps)
	if err != nil || rec.Identifier != "a@example.com" {
		t.Fatalf("expected success, got %+v (%v)", rec, err)
	}
	if _, err := RunVerifyToken(ctx, token, env.deps); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expected used token to fail, got %v", err)
	}

	env.requestPin(t, "b@example.com", store.EmailVerification)
	token = env.notes.last(t).Context["token"].(string)
	env.clock.Advance(16 * time.Minute)
	if _, err := RunVerifyToken(ctx, token, env.deps); !errors.Is(err, ErrVerificationExpired) {
		t.Fatalf("expected ErrVerificationExpired, got %v", err)
	}
	if _, err := RunVerifyToken(ctx, "unknown", env.deps); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expected ErrVerificationNotFound, got %v", err)
	}
}

func TestLatestPinWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.requestPin(t, "a@example.com", store.EmailVerification)
	env.clock.Advance(time.Second)
	second := env.requestPin(t, "a@example.com", store.EmailVerification)
	if first == second {
		t.Skip("pins collided")
	}
	if _, err := RunVerifyPin(ctx, "a@example.com", first, env.deps); !errors.Is(err, ErrInvalidPin) {
		t.Fatalf("expected older pin to be rejected, got %v", err)
	}
	if _, err := RunVerifyPin(ctx, "a@example.com", second, env.deps); err != nil {
		t.Fatalf("expected latest pin to verify, got %v", err)
	}
}

func ExampleNormalizeEmail() {
	fmt.Println(NormalizeEmail(" Jane.Doe@Example.ORG"))
	// Output: jane.doe@example.org
}
