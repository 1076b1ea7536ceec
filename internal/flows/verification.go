package flows

import (
	"context"
	"crypto/subtle"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/store"
	"go.uber.org/zap"
)

// MaxPinAttempts is the number of wrong PINs a record tolerates.
const MaxPinAttempts = 5

// ExpiryFor returns how long a PIN of type t stays valid.
func ExpiryFor(t store.VerificationType) time.Duration {
	switch t {
	case store.EmailVerification:
		return 15 * time.Minute
	case store.PhoneVerification:
		return 10 * time.Minute
	case store.PasswordReset:
		return 15 * time.Minute
	case store.AccountLinking:
		return 10 * time.Minute
	case store.TwoFactorAuth:
		return 5 * time.Minute
	case store.PhoneNumberChange:
		return 10 * time.Minute
	default:
		return 15 * time.Minute
	}
}

func knownType(t store.VerificationType) bool {
	switch t {
	case store.EmailVerification, store.PhoneVerification, store.PasswordReset,
		store.AccountLinking, store.TwoFactorAuth, store.PhoneNumberChange:
		return true
	}
	return false
}

// PinRequest asks for a new PIN for Identifier.
type PinRequest struct {
	Identifier string
	Type       store.VerificationType
	UserID     string
}

func normalizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return NormalizeEmail(identifier)
	}
	return identifier
}

// RunRequestPin persists a new PIN record and queues its delivery. The
// response never depends on whether the identifier has an account.
func RunRequestPin(ctx context.Context, req PinRequest, d *Deps) error {
	identifier := normalizeIdentifier(req.Identifier)
	if identifier == "" {
		return validationError("identifier is required")
	}
	if !knownType(req.Type) {
		return validationError("unsupported verification type")
	}

	if err := d.Limiter.AllowPinRequest(ctx, identifier); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			d.Metrics.Inc(metrics.PinRateLimited)
			return ErrRateLimited
		}
		d.Log.Warn("pin rate limiter unavailable", zap.Error(err))
	}

	pin, err := internal.NewPIN(d.Random)
	if err != nil {
		return ErrInternal
	}
	token, err := internal.NewLinkToken(d.Random)
	if err != nil {
		return ErrInternal
	}
	salt, err := internal.NewPinSalt(d.Random)
	if err != nil {
		return ErrInternal
	}
	id, err := d.newID()
	if err != nil {
		return ErrInternal
	}

	now := d.Now()
	ttl := ExpiryFor(req.Type)
	rec := &store.VerificationToken{
		ID:         id,
		Identifier: identifier,
		Type:       req.Type,
		PinHash:    internal.HashPIN(pin, salt),
		PinSalt:    salt,
		Token:      token,
		ExpiresAt:  now.Add(ttl),
		UserID:     req.UserID,
		CreatedAt:  now,
	}
	if err := d.verifications().CreateVerification(ctx, rec); err != nil {
		return storeError(err)
	}
	d.Metrics.Inc(metrics.PinRequested)

	d.sendPin(identifier, req.Type, pin, token, ttl)
	return nil
}

func (d *Deps) sendPin(identifier string, t store.VerificationType, pin, token string, ttl time.Duration) {
	if d.Notifier == nil {
		return
	}
	if notify.ChannelFor(identifier) == notify.SMS {
		d.Log.Warn("sms delivery not implemented, pin not sent", zap.String("type", string(t)))
		return
	}
	msg := notify.Message{
		Channel:  notify.Email,
		To:       identifier,
		Subject:  notify.SubjectFor(t),
		Template: notify.TemplateFor(t),
		Type:     t,
		Context: map[string]any{
			"pin":              pin,
			"token":            token,
			"verificationLink": strings.TrimRight(d.Settings.AppURL, "/") + "/verify?token=" + token,
			"expiryMinutes":    int(ttl / time.Minute),
			"purpose":          notify.PurposeLabel(t),
		},
	}
	if err := d.Notifier.Enqueue(msg); err != nil {
		d.Log.Warn("pin notification not queued", zap.String("type", string(t)), zap.Error(err))
	}
}

// RunVerifyPin consumes the active PIN of identifier and returns its
// link-token.
func RunVerifyPin(ctx context.Context, identifier, pin string, d *Deps) (string, error) {
	rec, err := d.verifyPin(ctx, identifier, pin, "")
	if err != nil {
		return "", err
	}
	return rec.Token, nil
}

// verifyPin consumes the active PIN of identifier. A non-empty want
// restricts it to records of that type; the active record of any other type
// is left untouched and reported as not found.
func (d *Deps) verifyPin(ctx context.Context, identifier, pin string, want store.VerificationType) (*store.VerificationToken, error) {
	identifier = normalizeIdentifier(identifier)
	now := d.Now()

	rec, err := d.verifications().GetActiveVerification(ctx, identifier, now)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrVerificationNotFound
	}
	if err != nil {
		return nil, storeError(err)
	}
	if want != "" && rec.Type != want {
		return nil, ErrVerificationNotFound
	}

	if rec.Attempts >= MaxPinAttempts {
		d.Metrics.Inc(metrics.PinAttemptsExceeded)
		return nil, ErrPinAttemptsExceeded
	}
	if !rec.ExpiresAt.After(now) {
		return nil, ErrVerificationExpired
	}

	got := internal.HashPIN(strings.TrimSpace(pin), rec.PinSalt)
	if subtle.ConstantTimeCompare([]byte(got), []byte(rec.PinHash)) != 1 {
		if _, err := d.verifications().IncrementVerificationAttempts(ctx, rec.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, storeError(err)
		}
		d.Metrics.Inc(metrics.PinInvalid)
		return nil, ErrInvalidPin
	}

	ok, err := d.verifications().ConsumeVerification(ctx, rec.ID, now, MaxPinAttempts)
	if err != nil {
		return nil, storeError(err)
	}
	if !ok {
		return nil, ErrVerificationNotFound
	}
	rec.UsedAt = &now
	d.Metrics.Inc(metrics.PinVerified)
	return rec, nil
}

// ownedIdentifier resolves identifier for userID: empty means the user's
// email, anything else must be the user's email or phone.
func (d *Deps) ownedIdentifier(ctx context.Context, userID, identifier string) (string, error) {
	u, err := d.userByID(ctx, userID)
	if err != nil {
		return "", err
	}
	identifier = normalizeIdentifier(identifier)
	switch {
	case identifier == "", identifier == u.Email:
		return u.Email, nil
	case u.Phone != "" && identifier == strings.TrimSpace(u.Phone):
		return identifier, nil
	}
	return "", ErrForbidden
}

// RunRequestUserPin issues a PIN to one of userID's own identifiers.
func RunRequestUserPin(ctx context.Context, userID, identifier string, t store.VerificationType, d *Deps) error {
	owned, err := d.ownedIdentifier(ctx, userID, identifier)
	if err != nil {
		return err
	}
	return RunRequestPin(ctx, PinRequest{Identifier: owned, Type: t, UserID: userID}, d)
}

// RunVerifyUserPin is RunVerifyPin limited to userID's own identifiers.
func RunVerifyUserPin(ctx context.Context, userID, identifier, pin string, d *Deps) (string, error) {
	owned, err := d.ownedIdentifier(ctx, userID, identifier)
	if err != nil {
		return "", err
	}
	return RunVerifyPin(ctx, owned, pin, d)
}

// RunVerifyToken consumes a record by its link-token. There is no attempt
// limit on this path.
func RunVerifyToken(ctx context.Context, token string, d *Deps) (*store.VerificationToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrVerificationNotFound
	}
	rec, err := d.verifications().GetVerificationByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrVerificationNotFound
	}
	if err != nil {
		return nil, storeError(err)
	}
	if rec.UsedAt != nil {
		return nil, ErrVerificationNotFound
	}
	now := d.Now()
	if !rec.ExpiresAt.After(now) {
		return nil, ErrVerificationExpired
	}

	ok, err := d.verifications().ConsumeVerification(ctx, rec.ID, now, math.MaxInt32)
	if err != nil {
		return nil, storeError(err)
	}
	if !ok {
		return nil, ErrVerificationNotFound
	}
	rec.UsedAt = &now
	d.Metrics.Inc(metrics.LinkTokenVerified)
	return rec, nil
}
