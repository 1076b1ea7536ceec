package goIdentity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/MrEthical07/goIdentity/totp"
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

// mailbox receives messages from the engine's dispatcher.
type mailbox struct {
	ch chan notify.Message
}

func (m *mailbox) Send(_ context.Context, msg notify.Message) error {
	m.ch <- msg
	return nil
}

// pin waits for the next message to `to` of type typ and returns its PIN.
func (m *mailbox) pin(t *testing.T, to string, typ store.VerificationType) string {
	t.Helper()
	msg := m.next(t, to, typ)
	pin, _ := msg.Context["pin"].(string)
	if pin == "" {
		t.Fatalf("expected pin in message context, got %v", msg.Context)
	}
	return pin
}

func (m *mailbox) next(t *testing.T, to string, typ store.VerificationType) notify.Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-m.ch:
			if msg.To == to && msg.Type == typ {
				return msg
			}
		case <-timeout:
			t.Fatalf("no %s message for %s", typ, to)
		}
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, ev AuditEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) count(typ AuditEventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type testEngine struct {
	*Engine
	store  *memory.Store
	clock  *testClock
	mail   *mailbox
	events *recordingSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = 30 * 24 * time.Hour
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.RefreshSecret = []byte("fedcba9876543210fedcba9876543210")
	cfg.Lockout.Threshold = 5
	cfg.Lockout.Duration = 15 * time.Minute
	cfg.Password.BcryptCost = 4
	cfg.Audit.DropIfFull = false
	cfg.Notify.InitialBackoff = time.Millisecond
	return cfg
}

func newTestEngine(t *testing.T, mutate ...func(*Config)) *testEngine {
	t.Helper()
	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	te := &testEngine{
		store:  memory.New(),
		clock:  &testClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)},
		mail:   &mailbox{ch: make(chan notify.Message, 64)},
		events: &recordingSink{},
	}
	engine, err := New().
		WithConfig(cfg).
		WithStore(te.store).
		WithSender(te.mail).
		WithClock(te.clock.Now).
		WithAuditSink(te.events).
		WithPermissions([]string{"orders.read", "orders.write"}).
		WithRoles(map[string][]string{"user": {"orders.read"}, "manager": {"orders.read", "orders.write"}}).
		WithSuperRoles("admin").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	te.Engine = engine
	return te
}

func (te *testEngine) signup(t *testing.T, email, password string) *User {
	t.Helper()
	u, err := te.Signup(context.Background(), SignupRequest{Email: email, Password: password, FirstName: "Ada", LastName: "Lovelace"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	return u
}

func (te *testEngine) login(t *testing.T, email, password string) *LoginResult {
	t.Helper()
	res, err := te.Login(context.Background(), email, password)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Tokens == nil {
		t.Fatal("expected tokens")
	}
	return res
}

func TestBuildRequiresStoreAndSender(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).WithSender(notify.NewLogSender(nil)).Build(); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := New().WithConfig(testConfig()).WithStore(memory.New()).Build(); err == nil {
		t.Fatal("expected error without sender")
	}

	b := New().WithConfig(testConfig()).WithStore(memory.New()).WithSender(notify.NewLogSender(nil))
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestSignupNormalizesAndVerifiesEmail(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	u := te.signup(t, "  Alice@Example.COM ", "correct horse")
	if u.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", u.Email)
	}
	if u.PasswordHash != "" || u.MFASecret != "" {
		t.Fatal("expected credential material to be stripped")
	}
	if u.Locale != "EN" || u.Timezone != "UTC" {
		t.Fatalf("expected EN/UTC defaults, got %s/%s", u.Locale, u.Timezone)
	}
	if len(u.Roles) != 1 || u.Roles[0] != "user" {
		t.Fatalf("expected default role, got %v", u.Roles)
	}

	stored, err := te.store.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if stored.PasswordHash == "correct horse" || stored.PasswordHash == "" {
		t.Fatal("expected stored password to be hashed")
	}

	pin := te.mail.pin(t, "alice@example.com", EmailVerification)
	if err := te.VerifyEmail(ctx, "ALICE@example.com", pin); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	stored, _ = te.store.GetUserByID(ctx, u.ID)
	if stored.EmailVerifiedAt == nil {
		t.Fatal("expected EmailVerifiedAt to be set")
	}

	_, err = te.Signup(ctx, SignupRequest{Email: "alice@EXAMPLE.com", Password: "another pass", FirstName: "A", LastName: "B"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("expected conflict kind, got %v", KindOf(err))
	}
}

func TestSignupValidation(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	cases := []SignupRequest{
		{Email: "not-an-email", Password: "long enough", FirstName: "A", LastName: "B"},
		{Email: "a@example.com", Password: "short", FirstName: "A", LastName: "B"},
		{Email: "a@example.com", Password: "long enough", FirstName: " ", LastName: "B"},
	}
	for _, req := range cases {
		if _, err := te.Signup(ctx, req); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for %+v, got %v", req, err)
		}
	}
}

func TestLoginLocksAfterThresholdAndAutoUnlocks(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.signup(t, "bob@example.com", "correct horse")

	for i := 0; i < 5; i++ {
		if _, err := te.Login(ctx, "bob@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	_, err := te.Login(ctx, "bob@example.com", "correct horse")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected *LockedError, got %T", err)
	}
	if want := te.clock.Now().Add(15 * time.Minute); !locked.Until.Equal(want) {
		t.Fatalf("expected lock until %v, got %v", want, locked.Until)
	}

	st, err := te.CheckLockoutStatus(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("CheckLockoutStatus: %v", err)
	}
	if !st.IsLocked || st.RemainingAttempts != 0 || st.FailedAttempts != 5 {
		t.Fatalf("unexpected status %+v", st)
	}

	te.clock.Advance(15*time.Minute + time.Second)
	st, err = te.CheckLockoutStatus(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("CheckLockoutStatus: %v", err)
	}
	if st.IsLocked || st.FailedAttempts != 0 || st.RemainingAttempts != 5 {
		t.Fatalf("expected auto unlock, got %+v", st)
	}
	te.login(t, "bob@example.com", "correct horse")
}

func TestLockoutStatusUnknownUser(t *testing.T) {
	te := newTestEngine(t)
	st, err := te.CheckLockoutStatus(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("CheckLockoutStatus: %v", err)
	}
	if st.IsLocked || st.FailedAttempts != 0 || st.RemainingAttempts != 5 {
		t.Fatalf("unexpected status %+v", st)
	}
	if err := te.RecordLoginAttempt(context.Background(), "nobody@example.com", false, "10.0.0.1"); err != nil {
		t.Fatalf("expected no-op for unknown user, got %v", err)
	}
}

func TestUnlockAccount(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	u := te.signup(t, "carol@example.com", "correct horse")
	for i := 0; i < 5; i++ {
		_ = te.RecordLoginAttempt(ctx, "carol@example.com", false, "10.0.0.1")
	}
	if _, err := te.Login(ctx, "carol@example.com", "correct horse"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
	if err := te.UnlockAccount(ctx, u.ID); err != nil {
		t.Fatalf("UnlockAccount: %v", err)
	}
	te.login(t, "carol@example.com", "correct horse")

	if err := te.UnlockAccount(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestLoginRejectsInactiveAndUnknownUsers(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	if _, err := te.Login(ctx, "ghost@example.com", "whatever1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	now := te.clock.Now()
	hash, err := te.deps.Hasher.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if err := te.store.CreateUser(ctx, &User{ID: "u-suspended", Email: "dave@example.com", PasswordHash: hash, Status: store.UserSuspended, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := te.Login(ctx, "dave@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for suspended user, got %v", err)
	}
}

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.signup(t, "erin@example.com", "correct horse")
	res := te.login(t, "erin@example.com", "correct horse")

	next, err := te.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == res.Tokens.RefreshToken {
		t.Fatal("expected a new refresh token")
	}
	if next.TokenType != "Bearer" || next.ExpiresIn != int64((15*time.Minute)/time.Second) {
		t.Fatalf("unexpected pair %+v", next)
	}

	_, err = te.Refresh(ctx, res.Tokens.RefreshToken)
	if !errors.Is(err, ErrRefreshRevoked) {
		t.Fatalf("expected ErrRefreshRevoked on reuse, got %v", err)
	}
	if !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse with detection on, got %v", err)
	}

	// The whole family is gone, including the successor.
	if _, err := te.Refresh(ctx, next.RefreshToken); !errors.Is(err, ErrRefreshRevoked) {
		t.Fatalf("expected successor to be revoked, got %v", err)
	}

	te.Close()
	if te.events.count("SUSPICIOUS_ACTIVITY") == 0 {
		t.Fatal("expected SUSPICIOUS_ACTIVITY audit event")
	}
}

func TestRefreshReuseWithoutDetection(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.Token.ReuseDetection = false })
	ctx := context.Background()
	te.signup(t, "fay@example.com", "correct horse")
	res := te.login(t, "fay@example.com", "correct horse")

	next, err := te.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	_, err = te.Refresh(ctx, res.Tokens.RefreshToken)
	if !errors.Is(err, ErrRefreshRevoked) || errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected plain ErrRefreshRevoked, got %v", err)
	}
	if _, err := te.Refresh(ctx, next.RefreshToken); err != nil {
		t.Fatalf("expected successor to survive, got %v", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	te := newTestEngine(t)
	te.signup(t, "gus@example.com", "correct horse")
	res := te.login(t, "gus@example.com", "correct horse")

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := te.Refresh(context.Background(), res.Tokens.RefreshToken)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrRefreshRevoked):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestRefreshRejectsGarbageAndExpired(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	if _, err := te.Refresh(ctx, "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	te.signup(t, "hal@example.com", "correct horse")
	res := te.login(t, "hal@example.com", "correct horse")
	te.clock.Advance(31 * 24 * time.Hour)
	if _, err := te.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired refresh JWT to be invalid, got %v", err)
	}
}

func TestLogoutRevokesRefreshAndSession(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.ValidationMode = ModeStrict })
	ctx := context.Background()
	te.signup(t, "ivy@example.com", "correct horse")
	first := te.login(t, "ivy@example.com", "correct horse")
	second := te.login(t, "ivy@example.com", "correct horse")

	claims, err := te.ValidateAccess(ctx, first.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if claims.Email != "ivy@example.com" || claims.SessionID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if err := te.Logout(ctx, claims.Subject, claims.SessionID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := te.ValidateAccess(ctx, first.Tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected strict validation to fail after logout, got %v", err)
	}
	if _, err := te.ValidateAccessWithMode(ctx, first.Tokens.AccessToken, ModeJWTOnly); err != nil {
		t.Fatalf("expected jwt-only validation to pass, got %v", err)
	}
	// Default scope is global: the other session's refresh token is revoked too.
	if _, err := te.Refresh(ctx, second.Tokens.RefreshToken); !errors.Is(err, ErrRefreshRevoked) {
		t.Fatalf("expected ErrRefreshRevoked, got %v", err)
	}
}

func TestLogoutSessionScope(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.Token.LogoutScope = LogoutSession })
	ctx := context.Background()
	te.signup(t, "jon@example.com", "correct horse")
	first := te.login(t, "jon@example.com", "correct horse")
	second := te.login(t, "jon@example.com", "correct horse")

	claims, err := te.ValidateAccess(ctx, first.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if err := te.Logout(ctx, claims.Subject, claims.SessionID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := te.Refresh(ctx, first.Tokens.RefreshToken); !errors.Is(err, ErrRefreshRevoked) {
		t.Fatalf("expected logged out session to be revoked, got %v", err)
	}
	if _, err := te.Refresh(ctx, second.Tokens.RefreshToken); err != nil {
		t.Fatalf("expected other session to survive, got %v", err)
	}
	if err := te.Logout(ctx, "someone-else", claims.SessionID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a foreign session, got %v", err)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.signup(t, "kim@example.com", "correct horse")
	res := te.login(t, "kim@example.com", "correct horse")

	if err := te.ForgotPassword(ctx, "unknown@example.com"); err != nil {
		t.Fatalf("expected nil for unknown email, got %v", err)
	}
	if err := te.ForgotPassword(ctx, "KIM@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	pin := te.mail.pin(t, "kim@example.com", PasswordReset)

	if err := te.ResetPassword(ctx, "kim@example.com", pin, "short"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := te.ResetPassword(ctx, "kim@example.com", pin, "battery staple"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if err := te.ResetPassword(ctx, "kim@example.com", pin, "battery staple"); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expected consumed PIN, got %v", err)
	}

	if _, err := te.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrRefreshRevoked) {
		t.Fatalf("expected refresh tokens revoked after reset, got %v", err)
	}
	if _, err := te.Login(ctx, "kim@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	te.login(t, "kim@example.com", "battery staple")
}

func TestTOTPAndBackupCodes(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	u := te.signup(t, "lee@example.com", "correct horse")

	if err := te.VerifyMFA(ctx, u.ID, MFAMethodTOTP, "123456"); !errors.Is(err, ErrMFANotEnabled) {
		t.Fatalf("expected ErrMFANotEnabled, got %v", err)
	}
	if err := te.EnableTOTP(ctx, u.ID, "123456"); !errors.Is(err, ErrTOTPNotSetUp) {
		t.Fatalf("expected ErrTOTPNotSetUp, got %v", err)
	}

	setup, err := te.SetupTOTP(ctx, u.ID)
	if err != nil {
		t.Fatalf("SetupTOTP: %v", err)
	}
	if len(setup.Secret) != 32 || len(setup.BackupCodes) != 10 {
		t.Fatalf("unexpected setup %+v", setup)
	}

	auth, err := totp.New(totp.Config{})
	if err != nil {
		t.Fatalf("totp.New: %v", err)
	}
	code, err := auth.Generate(setup.Secret, te.clock.Now())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := te.EnableTOTP(ctx, u.ID, "000000"); !errors.Is(err, ErrInvalidTOTPCode) && code != "000000" {
		t.Fatalf("expected ErrInvalidTOTPCode, got %v", err)
	}
	if err := te.EnableTOTP(ctx, u.ID, code); err != nil {
		t.Fatalf("EnableTOTP: %v", err)
	}
	if _, err := te.SetupTOTP(ctx, u.ID); !errors.Is(err, ErrMFAAlreadyEnabled) {
		t.Fatalf("expected ErrMFAAlreadyEnabled, got %v", err)
	}

	te.clock.Advance(30 * time.Second)
	code, _ = auth.Generate(setup.Secret, te.clock.Now())
	if err := te.VerifyMFA(ctx, u.ID, MFAMethodTOTP, code); err != nil {
		t.Fatalf("VerifyMFA totp: %v", err)
	}

	backup := setup.BackupCodes[0]
	if err := te.VerifyMFA(ctx, u.ID, MFAMethodBackupCode, " "+backup[:4]+"-"+backup[4:]+" "); err != nil {
		t.Fatalf("VerifyMFA backup: %v", err)
	}
	if err := te.VerifyMFA(ctx, u.ID, MFAMethodBackupCode, backup); !errors.Is(err, ErrInvalidBackupCode) {
		t.Fatalf("expected used backup code to fail, got %v", err)
	}

	fresh, err := te.RegenerateBackupCodes(ctx, u.ID)
	if err != nil {
		t.Fatalf("RegenerateBackupCodes: %v", err)
	}
	if err := te.VerifyMFA(ctx, u.ID, MFAMethodBackupCode, setup.BackupCodes[1]); !errors.Is(err, ErrInvalidBackupCode) {
		t.Fatalf("expected old set invalidated, got %v", err)
	}
	if err := te.VerifyMFA(ctx, u.ID, MFAMethodBackupCode, fresh[0]); err != nil {
		t.Fatalf("expected new code to work, got %v", err)
	}

	if err := te.VerifyMFA(ctx, u.ID, MFAMethodSMS, "123456"); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}

	if err := te.RequestMFAEmailCode(ctx, u.ID); err != nil {
		t.Fatalf("RequestMFAEmailCode: %v", err)
	}
	pin := te.mail.pin(t, "lee@example.com", TwoFactorAuth)
	if err := te.VerifyMFA(ctx, u.ID, MFAMethodEmail, pin); err != nil {
		t.Fatalf("VerifyMFA email: %v", err)
	}

	if err := te.DisableMFA(ctx, u.ID); err != nil {
		t.Fatalf("DisableMFA: %v", err)
	}
	if n, _ := te.store.CountUnusedBackupCodes(ctx, u.ID); n != 0 {
		t.Fatalf("expected backup codes deleted, got %d", n)
	}
	if err := te.VerifyMFA(ctx, u.ID, MFAMethodTOTP, code); !errors.Is(err, ErrMFANotEnabled) {
		t.Fatalf("expected ErrMFANotEnabled after disable, got %v", err)
	}
}

func TestLoginWithRequiredMFA(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.MFA.RequireOnLogin = true })
	ctx := context.Background()
	u := te.signup(t, "max@example.com", "correct horse")
	setup, err := te.SetupTOTP(ctx, u.ID)
	if err != nil {
		t.Fatalf("SetupTOTP: %v", err)
	}
	auth, _ := totp.New(totp.Config{})
	code, _ := auth.Generate(setup.Secret, te.clock.Now())
	if err := te.EnableTOTP(ctx, u.ID, code); err != nil {
		t.Fatalf("EnableTOTP: %v", err)
	}

	res, err := te.Login(ctx, "max@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.MFARequired || res.MFAToken == "" || res.Tokens != nil {
		t.Fatalf("expected MFA challenge, got %+v", res)
	}

	if _, err := te.CompleteMFALogin(ctx, res.MFAToken, MFAMethodBackupCode, "FFFFFFFF"); !errors.Is(err, ErrInvalidBackupCode) {
		t.Fatalf("expected ErrInvalidBackupCode, got %v", err)
	}
	done, err := te.CompleteMFALogin(ctx, res.MFAToken, MFAMethodBackupCode, setup.BackupCodes[0])
	if err != nil {
		t.Fatalf("CompleteMFALogin: %v", err)
	}
	if done.Tokens == nil || done.User.LastLoginAt == nil {
		t.Fatalf("expected tokens and last login, got %+v", done)
	}
	if _, err := te.CompleteMFALogin(ctx, "garbage", MFAMethodTOTP, code); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestOAuthLogin(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	profile := OAuthProfile{Provider: "google", ProviderID: "g-1", Email: "Nia@Example.com", AccessToken: "at-1"}
	res, err := te.OAuthLogin(ctx, profile)
	if err != nil {
		t.Fatalf("OAuthLogin: %v", err)
	}
	if res.User.FirstName != "Unknown" || res.User.LastName != "User" || res.User.EmailVerifiedAt == nil {
		t.Fatalf("unexpected new oauth user %+v", res.User)
	}
	if res.Tokens == nil {
		t.Fatal("expected tokens")
	}

	again, err := te.OAuthLogin(ctx, OAuthProfile{Provider: "google", ProviderID: "g-1", Email: "nia@example.com", AccessToken: "at-2"})
	if err != nil {
		t.Fatalf("OAuthLogin again: %v", err)
	}
	if again.User.ID != res.User.ID {
		t.Fatal("expected linked account to resolve the same user")
	}
	link, err := te.store.GetLinkedAccount(ctx, "google", "g-1")
	if err != nil || link.AccessToken != "at-2" {
		t.Fatalf("expected provider tokens updated, got %+v %v", link, err)
	}

	existing := te.signup(t, "omar@example.com", "correct horse")
	linked, err := te.OAuthLogin(ctx, OAuthProfile{Provider: "facebook", ProviderID: "f-9", Email: "omar@example.com"})
	if err != nil {
		t.Fatalf("OAuthLogin link by email: %v", err)
	}
	if linked.User.ID != existing.ID {
		t.Fatal("expected email link to the existing account")
	}

	if _, err := te.OAuthLogin(ctx, OAuthProfile{Provider: "myspace", ProviderID: "x", Email: "p@example.com"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown provider, got %v", err)
	}
}

func TestOAuthLoginWithoutEmailLinking(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.OAuth.LinkByEmail = false })
	te.signup(t, "pat@example.com", "correct horse")
	_, err := te.OAuthLogin(context.Background(), OAuthProfile{Provider: "apple", ProviderID: "a-1", Email: "pat@example.com"})
	if !errors.Is(err, ErrOAuthAccountConflict) {
		t.Fatalf("expected ErrOAuthAccountConflict, got %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	te := newTestEngine(t)
	user := &AccessClaims{Roles: []string{"user"}}
	admin := &AccessClaims{Roles: []string{"admin"}}

	if err := te.Authorize(user, RequireAllPermissions("orders.read")); err != nil {
		t.Fatalf("expected user to read orders, got %v", err)
	}
	if err := te.Authorize(user, RequireAnyPermission("orders.write")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := te.Authorize(user, RequireRoles("manager", "admin")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := te.Authorize(admin, RequireAllPermissions("orders.read", "orders.write")); err != nil {
		t.Fatalf("expected super role to pass, got %v", err)
	}
	if err := te.Authorize(nil); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for nil claims, got %v", err)
	}
	if got := te.MetricsSnapshot().Counters[MetricAuthorizationDenied]; got != 2 {
		t.Fatalf("expected 2 denials, got %d", got)
	}
}

func TestRequestAndVerifyPinAcrossEngine(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	if err := te.RequestPin(ctx, PinRequest{Identifier: "Quinn@Example.com", Type: AccountLinking}); err != nil {
		t.Fatalf("RequestPin: %v", err)
	}
	msg := te.mail.next(t, "quinn@example.com", AccountLinking)
	pin, _ := msg.Context["pin"].(string)
	token, _ := msg.Context["token"].(string)

	for i := 0; i < 5; i++ {
		if _, err := te.VerifyPin(ctx, "quinn@example.com", "000000"); !errors.Is(err, ErrInvalidPin) && pin != "000000" {
			t.Fatalf("attempt %d: expected ErrInvalidPin, got %v", i+1, err)
		}
	}
	if _, err := te.VerifyPin(ctx, "quinn@example.com", pin); !errors.Is(err, ErrPinAttemptsExceeded) {
		t.Fatalf("expected ErrPinAttemptsExceeded, got %v", err)
	}

	// The link-token has no attempt limit.
	rec, err := te.VerifyToken(ctx, token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if rec.Type != AccountLinking || rec.UsedAt == nil {
		t.Fatalf("unexpected record %+v", rec)
	}
	if _, err := te.VerifyToken(ctx, token); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expected consumed token, got %v", err)
	}
}

func TestEmailVerificationLink(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	u := te.signup(t, "rae@example.com", "correct horse")
	msg := te.mail.next(t, "rae@example.com", EmailVerification)
	link, _ := msg.Context["verificationLink"].(string)
	token, _ := msg.Context["token"].(string)
	if link != "http://localhost:3000/verify?token="+token {
		t.Fatalf("unexpected link %q", link)
	}

	if err := te.VerifyEmailLink(ctx, token); err != nil {
		t.Fatalf("VerifyEmailLink: %v", err)
	}
	stored, _ := te.store.GetUserByID(ctx, u.ID)
	if stored.EmailVerifiedAt == nil {
		t.Fatal("expected EmailVerifiedAt to be set")
	}
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	te := newTestEngine(t, func(c *Config) {
		c.Password.Algorithm = PasswordArgon2id
		c.Password.Argon2.Memory = 8 * 1024
		c.Password.Argon2.Time = 1
	})
	ctx := context.Background()

	legacy, err := newHasher(PasswordConfig{Algorithm: PasswordBcrypt, BcryptCost: 4, Argon2: te.config.Password.Argon2})
	if err != nil {
		t.Fatalf("newHasher: %v", err)
	}
	hash, err := legacy.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	now := te.clock.Now()
	if err := te.store.CreateUser(ctx, &User{ID: "u-legacy", Email: "sam@example.com", PasswordHash: hash, Status: store.UserActive, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	te.login(t, "sam@example.com", "correct horse")
	stored, _ := te.store.GetUserByID(ctx, "u-legacy")
	if stored.PasswordHash == hash {
		t.Fatal("expected bcrypt hash to be upgraded")
	}
	te.login(t, "sam@example.com", "correct horse")
}
