package flows

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/store"
	"go.uber.org/zap"
)

// LockoutStatus is the externally visible lock state of an account.
type LockoutStatus struct {
	IsLocked          bool       `json:"isLocked"`
	LockedUntil       *time.Time `json:"lockedUntil,omitempty"`
	FailedAttempts    int        `json:"failedAttempts"`
	RemainingAttempts int        `json:"remainingAttempts"`
}

// RunRecordLoginAttempt records a login outcome for email. Unknown
// addresses are ignored.
func RunRecordLoginAttempt(ctx context.Context, email string, success bool, ip string, d *Deps) error {
	u, err := d.Store.GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeError(err)
	}
	return d.recordAttempt(ctx, u, success, ip)
}

func (d *Deps) recordAttempt(ctx context.Context, u *store.User, success bool, ip string) error {
	if success {
		if err := d.Store.ResetLoginFailures(ctx, u.ID); err != nil {
			return storeError(err)
		}
		d.emit(ctx, audit.Event{Type: audit.LoginSuccess, UserID: u.ID, IP: ip, Success: true})
		return nil
	}

	now := d.Now()
	threshold := d.Settings.LockoutThreshold
	st, err := d.Store.RecordLoginFailure(ctx, u.ID, threshold, now.Add(d.Settings.LockoutDuration))
	if err != nil {
		return storeError(err)
	}
	d.emit(ctx, audit.Event{
		Type:     audit.LoginFailure,
		UserID:   u.ID,
		IP:       ip,
		Error:    ErrInvalidCredentials.Error(),
		Metadata: map[string]string{"failed_attempts": strconv.Itoa(st.FailedAttempts)},
	})

	wasLocked := u.LockedUntil != nil && u.LockedUntil.After(now)
	if !wasLocked && st.LockedUntil != nil && st.FailedAttempts >= threshold {
		d.Metrics.Inc(metrics.AccountLocked)
		d.emit(ctx, audit.Event{
			Type:     audit.AccountLocked,
			UserID:   u.ID,
			IP:       ip,
			Metadata: map[string]string{"locked_until": st.LockedUntil.UTC().Format(time.RFC3339)},
		})
	}
	return nil
}

// RunCheckLockoutStatus reports the lock state of email. Unknown addresses
// look like unlocked accounts with no failures.
func RunCheckLockoutStatus(ctx context.Context, email string, d *Deps) (LockoutStatus, error) {
	u, err := d.Store.GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return LockoutStatus{RemainingAttempts: d.Settings.LockoutThreshold}, nil
	}
	if err != nil {
		return LockoutStatus{}, storeError(err)
	}
	return d.lockoutStatus(ctx, u)
}

// lockoutStatus clears an expired lock as a side effect. A failed clear is
// returned together with the status the clear would have produced.
func (d *Deps) lockoutStatus(ctx context.Context, u *store.User) (LockoutStatus, error) {
	threshold := d.Settings.LockoutThreshold
	now := d.Now()

	if u.LockedUntil != nil {
		if u.LockedUntil.After(now) {
			until := *u.LockedUntil
			return LockoutStatus{
				IsLocked:          true,
				LockedUntil:       &until,
				FailedAttempts:    u.FailedLoginAttempts,
				RemainingAttempts: max(0, threshold-u.FailedLoginAttempts),
			}, nil
		}
		unlocked := LockoutStatus{RemainingAttempts: threshold}
		cleared, err := d.Store.ClearExpiredLock(ctx, u.ID, now)
		if err != nil {
			return unlocked, storeError(err)
		}
		if cleared {
			d.Metrics.Inc(metrics.AccountUnlocked)
			d.emit(ctx, audit.Event{Type: audit.AccountUnlocked, UserID: u.ID, Success: true, Metadata: map[string]string{"reason": "expired"}})
		}
		return unlocked, nil
	}

	return LockoutStatus{
		FailedAttempts:    u.FailedLoginAttempts,
		RemainingAttempts: max(0, threshold-u.FailedLoginAttempts),
	}, nil
}

// lockGate fails with *LockedError while u is locked. A failed auto unlock
// is logged and does not block the login.
func (d *Deps) lockGate(ctx context.Context, u *store.User) error {
	st, err := d.lockoutStatus(ctx, u)
	if err != nil {
		d.Log.Warn("auto unlock failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	if st.IsLocked {
		d.Metrics.Inc(metrics.LoginLocked)
		return &LockedError{Until: *st.LockedUntil}
	}
	return nil
}

// RunUnlockAccount clears the lockout counters of userID.
func RunUnlockAccount(ctx context.Context, userID string, d *Deps) error {
	u, err := d.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := d.Store.ResetLoginFailures(ctx, u.ID); err != nil {
		return storeError(err)
	}
	d.Metrics.Inc(metrics.AccountUnlocked)
	d.emit(ctx, audit.Event{Type: audit.AccountUnlocked, UserID: u.ID, Success: true, Metadata: map[string]string{"reason": "manual"}})
	return nil
}

func (d *Deps) userByID(ctx context.Context, id string) (*store.User, error) {
	u, err := d.Store.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storeError(err)
	}
	return u, nil
}

// sanitize strips credential material before a user leaves the engine.
func sanitize(u *store.User) *store.User {
	c := u.Clone()
	c.PasswordHash = ""
	c.MFASecret = ""
	return c
}
