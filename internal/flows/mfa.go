package flows

import (
	"context"
	"strconv"
	"strings"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/totp"
)

// MFAMethod names a second-factor verification path.
type MFAMethod string

const (
	MethodTOTP       MFAMethod = "TOTP"
	MethodBackupCode MFAMethod = "BACKUP_CODE"
	MethodEmail      MFAMethod = "EMAIL"
	MethodSMS        MFAMethod = "SMS"
)

// TOTPSetup is returned once by RunSetupTOTP. BackupCodes are never
// retrievable again.
type TOTPSetup struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioningUri"`
	QRCode          string   `json:"qrCode"`
	BackupCodes     []string `json:"backupCodes"`
}

// RunSetupTOTP stores an unconfirmed secret and a fresh backup-code set.
func RunSetupTOTP(ctx context.Context, userID string, d *Deps) (*TOTPSetup, error) {
	u, err := d.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	secret, err := internal.NewTOTPSecret(d.Random)
	if err != nil {
		return nil, ErrInternal
	}
	uri := d.TOTP.ProvisioningURI(secret, u.Email)
	qr, err := totp.QRDataURL(uri)
	if err != nil {
		return nil, ErrInternal
	}
	plain, rows, err := d.newBackupCodes(u.ID)
	if err != nil {
		return nil, err
	}

	if err := d.Store.SetMFASecret(ctx, u.ID, secret); err != nil {
		return nil, storeError(err)
	}
	if err := d.Store.ReplaceBackupCodes(ctx, u.ID, rows); err != nil {
		return nil, storeError(err)
	}
	d.Metrics.Inc(metrics.TOTPSetup)
	return &TOTPSetup{Secret: secret, ProvisioningURI: uri, QRCode: qr, BackupCodes: plain}, nil
}

// RunEnableTOTP confirms the pending secret with a current code.
func RunEnableTOTP(ctx context.Context, userID, code string, d *Deps) error {
	u, err := d.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.MFAEnabled {
		return ErrMFAAlreadyEnabled
	}
	if u.MFASecret == "" {
		return ErrTOTPNotSetUp
	}
	if err := d.checkTOTP(u, code); err != nil {
		return err
	}
	if err := d.Store.EnableMFA(ctx, u.ID); err != nil {
		if isNotFound(err) {
			return ErrTOTPNotSetUp
		}
		return storeError(err)
	}
	d.Metrics.Inc(metrics.TOTPEnabled)
	d.emit(ctx, audit.Event{Type: audit.MFAEnabled, UserID: u.ID, Success: true})
	return nil
}

// RunDisableMFA removes the secret and every backup code.
func RunDisableMFA(ctx context.Context, userID string, d *Deps) error {
	u, err := d.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := d.Store.DisableMFA(ctx, u.ID); err != nil {
		return storeError(err)
	}
	d.Metrics.Inc(metrics.MFADisabled)
	d.emit(ctx, audit.Event{Type: audit.MFADisabled, UserID: u.ID, Success: true})
	return nil
}

// RunVerifyMFA checks a second factor for a user with MFA enabled.
func RunVerifyMFA(ctx context.Context, userID string, method MFAMethod, code string, d *Deps) error {
	u, err := d.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.MFAEnabled {
		return ErrMFANotEnabled
	}

	switch MFAMethod(strings.ToUpper(string(method))) {
	case MethodTOTP:
		err = d.checkTOTP(u, code)
	case MethodBackupCode:
		err = d.consumeBackupCode(ctx, u, code)
	case MethodEmail:
		_, err = d.verifyPin(ctx, u.Email, code, store.TwoFactorAuth)
	case MethodSMS:
		return ErrNotImplemented
	default:
		return ErrInvalidMFAMethod
	}
	if err != nil {
		d.Metrics.Inc(metrics.MFAVerifyFailure)
		return err
	}
	d.Metrics.Inc(metrics.MFAVerifySuccess)
	return nil
}

// RunRegenerateBackupCodes replaces the whole backup-code set.
func RunRegenerateBackupCodes(ctx context.Context, userID string, d *Deps) ([]string, error) {
	u, err := d.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.MFAEnabled {
		return nil, ErrMFANotEnabled
	}
	plain, rows, err := d.newBackupCodes(u.ID)
	if err != nil {
		return nil, err
	}
	if err := d.Store.ReplaceBackupCodes(ctx, u.ID, rows); err != nil {
		return nil, storeError(err)
	}
	d.Metrics.Inc(metrics.BackupCodeRegenerated)
	d.emit(ctx, audit.Event{Type: audit.BackupCodesRegenerated, UserID: u.ID, Success: true})
	return plain, nil
}

// RunRequestMFAEmailCode sends a TWO_FACTOR_AUTH PIN to the user's address
// for the EMAIL method.
func RunRequestMFAEmailCode(ctx context.Context, userID string, d *Deps) error {
	u, err := d.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.MFAEnabled {
		return ErrMFANotEnabled
	}
	return RunRequestPin(ctx, PinRequest{Identifier: u.Email, Type: store.TwoFactorAuth, UserID: u.ID}, d)
}

func (d *Deps) checkTOTP(u *store.User, code string) error {
	ok, err := d.TOTP.Verify(u.MFASecret, code, d.Now())
	if err != nil {
		return ErrInternal
	}
	if !ok {
		return ErrInvalidTOTPCode
	}
	return nil
}

func (d *Deps) consumeBackupCode(ctx context.Context, u *store.User, code string) error {
	canon := CanonicalBackupCode(code)
	if canon == "" {
		d.Metrics.Inc(metrics.BackupCodeFailed)
		return ErrInvalidBackupCode
	}
	ok, err := d.Store.ConsumeBackupCode(ctx, u.ID, internal.SHA256Hex(canon), d.Now())
	if err != nil {
		return storeError(err)
	}
	if !ok {
		d.Metrics.Inc(metrics.BackupCodeFailed)
		return ErrInvalidBackupCode
	}
	d.Metrics.Inc(metrics.BackupCodeUsed)

	meta := map[string]string{}
	if n, err := d.Store.CountUnusedBackupCodes(ctx, u.ID); err == nil {
		meta["remaining"] = strconv.Itoa(n)
	}
	d.emit(ctx, audit.Event{Type: audit.BackupCodeUsed, UserID: u.ID, Success: true, Metadata: meta})
	return nil
}

func (d *Deps) newBackupCodes(userID string) ([]string, []store.BackupCode, error) {
	n := d.Settings.BackupCodeCount
	if n <= 0 {
		n = 10
	}
	now := d.Now()
	plain := make([]string, n)
	rows := make([]store.BackupCode, n)
	for i := range plain {
		code, err := internal.NewBackupCode(d.Random)
		if err != nil {
			return nil, nil, ErrInternal
		}
		id, err := d.newID()
		if err != nil {
			return nil, nil, ErrInternal
		}
		plain[i] = code
		rows[i] = store.BackupCode{ID: id, UserID: userID, CodeHash: internal.SHA256Hex(code), CreatedAt: now}
	}
	return plain, rows, nil
}

// CanonicalBackupCode upper-cases a code and drops spaces and dashes.
func CanonicalBackupCode(code string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '\t' {
			return -1
		}
		if r >= 'a' && r <= 'z' {
			return r - 'a' + 'A'
		}
		return r
	}, strings.TrimSpace(code))
}
