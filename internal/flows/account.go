package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/store"
	"go.uber.org/zap"
)

// SignupRequest carries a new account. Phone, Locale and Timezone are optional.
type SignupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
	Locale    string `json:"locale,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

// LoginResult is either a token bundle or an MFA challenge.
type LoginResult struct {
	User         *store.User `json:"user"`
	Tokens       *TokenPair  `json:"tokens,omitempty"`
	MFARequired  bool        `json:"mfaRequired,omitempty"`
	MFAToken     string      `json:"mfaToken,omitempty"`
	MFAExpiresAt *time.Time  `json:"mfaExpiresAt,omitempty"`
}

// RunSignup creates an account and queues its email verification PIN.
func RunSignup(ctx context.Context, req SignupRequest, d *Deps) (*store.User, error) {
	email := NormalizeEmail(req.Email)
	if !validEmail(email) {
		return nil, validationError("invalid email")
	}
	if err := d.checkPassword(req.Password); err != nil {
		return nil, err
	}
	first, last := strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName)
	if first == "" || last == "" {
		return nil, validationError("first and last name are required")
	}

	_, err := d.Store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		d.Metrics.Inc(metrics.SignupDuplicate)
		return nil, ErrEmailTaken
	case !isNotFound(err):
		return nil, storeError(err)
	}

	hash, err := d.Hasher.Hash(req.Password)
	if err != nil {
		return nil, ErrInternal
	}
	id, err := d.newID()
	if err != nil {
		return nil, ErrInternal
	}
	now := d.Now()
	u := &store.User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		FirstName:    first,
		LastName:     last,
		Phone:        strings.TrimSpace(req.Phone),
		Locale:       orDefault(req.Locale, "EN"),
		Timezone:     orDefault(req.Timezone, "UTC"),
		Status:       store.UserActive,
		Roles:        d.defaultRoles(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.Store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			d.Metrics.Inc(metrics.SignupDuplicate)
			return nil, ErrEmailTaken
		}
		return nil, storeError(err)
	}

	if err := RunRequestPin(ctx, PinRequest{Identifier: email, Type: store.EmailVerification, UserID: u.ID}, d); err != nil {
		d.Log.Warn("signup verification pin not issued", zap.String("user_id", u.ID), zap.Error(err))
	}
	d.Metrics.Inc(metrics.SignupSuccess)
	d.emit(ctx, audit.Event{Type: audit.Signup, UserID: u.ID, Success: true})
	return sanitize(u), nil
}

// RunLogin authenticates email and password.
func RunLogin(ctx context.Context, email, password string, d *Deps) (*LoginResult, error) {
	defer d.Metrics.Since(metrics.LoginLatency, time.Now())

	ip := ClientIP(ctx)
	if err := d.Limiter.AllowLogin(ctx, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			d.Metrics.Inc(metrics.LoginRateLimited)
			return nil, ErrRateLimited
		}
		d.Log.Warn("login rate limiter unavailable", zap.Error(err))
	}

	email = NormalizeEmail(email)
	d.emit(ctx, audit.Event{Type: audit.LoginAttempt, Metadata: map[string]string{"email": email}})

	u, err := d.Store.GetUserByEmail(ctx, email)
	if isNotFound(err) {
		d.Metrics.Inc(metrics.LoginFailure)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, storeError(err)
	}

	if err := d.lockGate(ctx, u); err != nil {
		return nil, err
	}

	if u.PasswordHash == "" || u.Status != store.UserActive || !d.Hasher.Verify(password, u.PasswordHash) {
		if err := d.recordAttempt(ctx, u, false, ip); err != nil {
			return nil, err
		}
		d.Metrics.Inc(metrics.LoginFailure)
		return nil, ErrInvalidCredentials
	}
	d.upgradeHash(ctx, u, password)

	return d.challengeOrComplete(ctx, u)
}

// challengeOrComplete issues an MFA challenge when one is required and
// completes the login otherwise.
func (d *Deps) challengeOrComplete(ctx context.Context, u *store.User) (*LoginResult, error) {
	if d.Settings.RequireMFAOnLogin && u.MFAEnabled {
		token, exp, err := d.Tokens.IssueChallenge(u.ID, ClientIP(ctx))
		if err != nil {
			return nil, ErrInternal
		}
		d.Metrics.Inc(metrics.LoginMFARequired)
		return &LoginResult{User: sanitize(u), MFARequired: true, MFAToken: token, MFAExpiresAt: &exp}, nil
	}
	return d.completeLogin(ctx, u)
}

// RunCompleteMFALogin finishes a login that returned an MFA challenge.
func RunCompleteMFALogin(ctx context.Context, mfaToken string, method MFAMethod, code string, d *Deps) (*LoginResult, error) {
	claims, err := d.Tokens.ParseChallenge(mfaToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if err := RunVerifyMFA(ctx, claims.Subject, method, code, d); err != nil {
		return nil, err
	}
	u, err := d.userByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if u.Status != store.UserActive {
		return nil, ErrInvalidCredentials
	}
	return d.completeLogin(ctx, u)
}

// RunRequestMFALoginEmailCode sends the EMAIL second-factor code to the
// holder of a login challenge.
func RunRequestMFALoginEmailCode(ctx context.Context, mfaToken string, d *Deps) error {
	claims, err := d.Tokens.ParseChallenge(mfaToken)
	if err != nil {
		return ErrInvalidToken
	}
	return RunRequestMFAEmailCode(ctx, claims.Subject, d)
}

func (d *Deps) completeLogin(ctx context.Context, u *store.User) (*LoginResult, error) {
	sess, err := d.createSession(ctx, u)
	if err != nil {
		return nil, err
	}
	pair, err := RunGenerateTokens(ctx, u, sess.ID, "", d)
	if err != nil {
		return nil, err
	}
	now := d.Now()
	if err := d.Store.UpdateLastLogin(ctx, u.ID, now); err != nil {
		return nil, storeError(err)
	}
	if err := d.recordAttempt(ctx, u, true, ClientIP(ctx)); err != nil {
		return nil, err
	}
	d.Metrics.Inc(metrics.LoginSuccess)

	out := sanitize(u)
	out.LastLoginAt = &now
	out.FailedLoginAttempts = 0
	out.LockedUntil = nil
	return &LoginResult{User: out, Tokens: pair}, nil
}

// upgradeHash re-hashes with the primary algorithm when the stored hash is
// weaker. Failure keeps the old hash.
func (d *Deps) upgradeHash(ctx context.Context, u *store.User, password string) {
	type rehasher interface{ NeedsRehash(string) bool }
	h, ok := d.Hasher.(rehasher)
	if !ok || !h.NeedsRehash(u.PasswordHash) {
		return
	}
	hash, err := d.Hasher.Hash(password)
	if err == nil {
		err = d.Store.UpdatePasswordHash(ctx, u.ID, hash, d.Now())
	}
	if err != nil {
		d.Log.Warn("password rehash failed", zap.String("user_id", u.ID), zap.Error(err))
	}
}

// RunForgotPassword issues a PASSWORD_RESET PIN when email has an account.
// It reports success in every case.
func RunForgotPassword(ctx context.Context, email string, d *Deps) error {
	email = NormalizeEmail(email)
	u, err := d.Store.GetUserByEmail(ctx, email)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		d.Log.Warn("forgot password lookup failed", zap.Error(err))
		return nil
	}
	d.Metrics.Inc(metrics.PasswordResetRequest)
	if err := RunRequestPin(ctx, PinRequest{Identifier: email, Type: store.PasswordReset, UserID: u.ID}, d); err != nil {
		d.Log.Warn("password reset pin not issued", zap.String("user_id", u.ID), zap.Error(err))
	}
	return nil
}

// RunResetPassword sets a new password after PIN verification and revokes
// every refresh token of the user.
func RunResetPassword(ctx context.Context, email, pin, newPassword string, d *Deps) error {
	if err := d.checkPassword(newPassword); err != nil {
		return err
	}
	email = NormalizeEmail(email)
	if _, err := d.verifyPin(ctx, email, pin, store.PasswordReset); err != nil {
		return err
	}

	u, err := d.Store.GetUserByEmail(ctx, email)
	if isNotFound(err) {
		return ErrUserNotFound
	}
	if err != nil {
		return storeError(err)
	}
	hash, err := d.Hasher.Hash(newPassword)
	if err != nil {
		return ErrInternal
	}
	now := d.Now()
	if err := d.Store.UpdatePasswordHash(ctx, u.ID, hash, now); err != nil {
		return storeError(err)
	}
	if _, err := d.Store.RevokeUserRefreshTokens(ctx, u.ID, now); err != nil {
		return storeError(err)
	}
	d.Metrics.Inc(metrics.PasswordResetSuccess)
	d.emit(ctx, audit.Event{Type: audit.PasswordReset, UserID: u.ID, Success: true})
	return nil
}

// RunVerifyEmail consumes an EMAIL_VERIFICATION PIN and marks the address
// verified.
func RunVerifyEmail(ctx context.Context, email, pin string, d *Deps) error {
	email = NormalizeEmail(email)
	if _, err := d.verifyPin(ctx, email, pin, store.EmailVerification); err != nil {
		return err
	}
	u, err := d.Store.GetUserByEmail(ctx, email)
	if isNotFound(err) {
		return ErrUserNotFound
	}
	if err != nil {
		return storeError(err)
	}
	return d.markVerified(ctx, u.ID)
}

// RunVerifyEmailLink consumes a link-token. An email verification record
// marks its user verified only when it was sent to that user's address.
func RunVerifyEmailLink(ctx context.Context, token string, d *Deps) error {
	rec, err := RunVerifyToken(ctx, token, d)
	if err != nil {
		return err
	}
	if rec.Type != store.EmailVerification || rec.UserID == "" {
		return nil
	}
	u, err := d.userByID(ctx, rec.UserID)
	if err != nil {
		return err
	}
	if NormalizeEmail(rec.Identifier) != u.Email {
		d.Log.Warn("verification link addressed to another email", zap.String("user_id", u.ID))
		return ErrForbidden
	}
	return d.markVerified(ctx, u.ID)
}

func (d *Deps) markVerified(ctx context.Context, userID string) error {
	if err := d.Store.MarkEmailVerified(ctx, userID, d.Now()); err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return storeError(err)
	}
	d.emit(ctx, audit.Event{Type: audit.EmailVerified, UserID: userID, Success: true})
	return nil
}

func (d *Deps) defaultRoles() []string {
	if d.Settings.DefaultRole == "" {
		return nil
	}
	return []string{d.Settings.DefaultRole}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
