package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/MrEthical07/goIdentity/store"
	"github.com/jmoiron/sqlx"
)

/*
====================================
REFRESH TOKENS
====================================
*/

type refreshRow struct {
	ID        string        `db:"id"`
	UserID    string        `db:"user_id"`
	SessionID string        `db:"session_id"`
	Token     string        `db:"token"`
	Family    string        `db:"family"`
	ExpiresAt int64         `db:"expires_at"`
	RevokedAt sql.NullInt64 `db:"revoked_at"`
	CreatedAt int64         `db:"created_at"`
}

func (s *Store) CreateRefreshToken(ctx context.Context, t *store.RefreshToken) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO refresh_tokens
		(id, user_id, session_id, token, family, expires_at, revoked_at, created_at)
		VALUES (:id, :user_id, :session_id, :token, :family, :expires_at, :revoked_at, :created_at)`, refreshRow{
		ID:        t.ID,
		UserID:    t.UserID,
		SessionID: t.SessionID,
		Token:     t.Token,
		Family:    t.Family,
		ExpiresAt: toMillis(t.ExpiresAt),
		RevokedAt: nullMillis(t.RevokedAt),
		CreatedAt: toMillis(t.CreatedAt),
	})
	return wrap("create refresh token", err)
}

func (s *Store) GetRefreshToken(ctx context.Context, id string) (*store.RefreshToken, error) {
	var row refreshRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT id, user_id, session_id, token, family, expires_at, revoked_at, created_at
		FROM refresh_tokens WHERE id = ?`), id)
	if err != nil {
		return nil, wrap("get refresh token", err)
	}
	return &store.RefreshToken{
		ID:        row.ID,
		UserID:    row.UserID,
		SessionID: row.SessionID,
		Token:     row.Token,
		Family:    row.Family,
		ExpiresAt: fromMillis(row.ExpiresAt),
		RevokedAt: timeFromNull(row.RevokedAt),
		CreatedAt: fromMillis(row.CreatedAt),
	}, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := s.exec(ctx, `UPDATE refresh_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, toMillis(at), id)
	if err != nil {
		return false, wrap("revoke refresh token", err)
	}
	if n > 0 {
		return true, nil
	}
	return false, wrap("revoke refresh token", s.notFoundUnless(ctx, "refresh_tokens", id, 0))
}

func (s *Store) revokeRefreshWhere(ctx context.Context, column, value string, at time.Time) (int64, error) {
	n, err := s.exec(ctx, `UPDATE refresh_tokens SET revoked_at = ? WHERE `+column+` = ? AND revoked_at IS NULL`, toMillis(at), value)
	if err != nil {
		return 0, wrap("revoke refresh tokens", err)
	}
	return n, nil
}

func (s *Store) RevokeUserRefreshTokens(ctx context.Context, userID string, at time.Time) (int64, error) {
	return s.revokeRefreshWhere(ctx, "user_id", userID, at)
}

func (s *Store) RevokeSessionRefreshTokens(ctx context.Context, sessionID string, at time.Time) (int64, error) {
	return s.revokeRefreshWhere(ctx, "session_id", sessionID, at)
}

func (s *Store) RevokeRefreshFamily(ctx context.Context, family string, at time.Time) (int64, error) {
	return s.revokeRefreshWhere(ctx, "family", family, at)
}

/*
====================================
VERIFICATION TOKENS
====================================
*/

const verificationColumns = `id, identifier, type, pin_hash, pin_salt, token, expires_at, attempts, used_at, user_id, created_at`

type verificationRow struct {
	ID         string        `db:"id"`
	Identifier string        `db:"identifier"`
	Type       string        `db:"type"`
	PinHash    string        `db:"pin_hash"`
	PinSalt    string        `db:"pin_salt"`
	Token      string        `db:"token"`
	ExpiresAt  int64         `db:"expires_at"`
	Attempts   int           `db:"attempts"`
	UsedAt     sql.NullInt64 `db:"used_at"`
	UserID     string        `db:"user_id"`
	CreatedAt  int64         `db:"created_at"`
}

func (r verificationRow) record() *store.VerificationToken {
	return &store.VerificationToken{
		ID:         r.ID,
		Identifier: r.Identifier,
		Type:       store.VerificationType(r.Type),
		PinHash:    r.PinHash,
		PinSalt:    r.PinSalt,
		Token:      r.Token,
		ExpiresAt:  fromMillis(r.ExpiresAt),
		Attempts:   r.Attempts,
		UsedAt:     timeFromNull(r.UsedAt),
		UserID:     r.UserID,
		CreatedAt:  fromMillis(r.CreatedAt),
	}
}

func (s *Store) CreateVerification(ctx context.Context, v *store.VerificationToken) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO verification_tokens (`+verificationColumns+`)
		VALUES (:id, :identifier, :type, :pin_hash, :pin_salt, :token, :expires_at, :attempts, :used_at, :user_id, :created_at)`, verificationRow{
		ID:         v.ID,
		Identifier: v.Identifier,
		Type:       string(v.Type),
		PinHash:    v.PinHash,
		PinSalt:    v.PinSalt,
		Token:      v.Token,
		ExpiresAt:  toMillis(v.ExpiresAt),
		Attempts:   v.Attempts,
		UsedAt:     nullMillis(v.UsedAt),
		UserID:     v.UserID,
		CreatedAt:  toMillis(v.CreatedAt),
	})
	return wrap("create verification", err)
}

func (s *Store) GetActiveVerification(ctx context.Context, identifier string, now time.Time) (*store.VerificationToken, error) {
	var row verificationRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT `+verificationColumns+` FROM verification_tokens
		WHERE identifier = ? AND used_at IS NULL AND expires_at > ?
		ORDER BY created_at DESC, id DESC LIMIT 1`), identifier, toMillis(now))
	if err != nil {
		return nil, wrap("get active verification", err)
	}
	return row.record(), nil
}

func (s *Store) GetVerificationByToken(ctx context.Context, token string) (*store.VerificationToken, error) {
	var row verificationRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT `+verificationColumns+` FROM verification_tokens WHERE token = ?`), token)
	if err != nil {
		return nil, wrap("get verification by token", err)
	}
	return row.record(), nil
}

func (s *Store) IncrementVerificationAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := s.db.GetContext(ctx, &attempts, s.rebind(`UPDATE verification_tokens SET attempts = attempts + 1
		WHERE id = ? AND used_at IS NULL RETURNING attempts`), id)
	if err != nil {
		return 0, wrap("increment verification attempts", err)
	}
	return attempts, nil
}

func (s *Store) ConsumeVerification(ctx context.Context, id string, at time.Time, maxAttempts int) (bool, error) {
	n, err := s.exec(ctx, `UPDATE verification_tokens SET used_at = ?
		WHERE id = ? AND used_at IS NULL AND attempts < ? AND expires_at > ?`,
		toMillis(at), id, maxAttempts, toMillis(at))
	if err != nil {
		return false, wrap("consume verification", err)
	}
	if n > 0 {
		return true, nil
	}
	return false, wrap("consume verification", s.notFoundUnless(ctx, "verification_tokens", id, 0))
}

/*
====================================
BACKUP CODES
====================================
*/

func (s *Store) ReplaceBackupCodes(ctx context.Context, userID string, codes []store.BackupCode) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM backup_codes WHERE user_id = ?`), userID); err != nil {
			return err
		}
		insert := tx.Rebind(`INSERT INTO backup_codes (id, user_id, code_hash, used_at, created_at) VALUES (?, ?, ?, ?, ?)`)
		for _, c := range codes {
			if _, err := tx.ExecContext(ctx, insert, c.ID, userID, c.CodeHash, nullMillis(c.UsedAt), toMillis(c.CreatedAt)); err != nil {
				return err
			}
		}
		return nil
	})
	return wrap("replace backup codes", err)
}

func (s *Store) ConsumeBackupCode(ctx context.Context, userID, hash string, at time.Time) (bool, error) {
	n, err := s.exec(ctx, `UPDATE backup_codes SET used_at = ?
		WHERE id = (SELECT id FROM backup_codes WHERE user_id = ? AND code_hash = ? AND used_at IS NULL LIMIT 1)
		AND used_at IS NULL`, toMillis(at), userID, hash)
	if err != nil {
		return false, wrap("consume backup code", err)
	}
	return n > 0, nil
}

func (s *Store) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.rebind(`SELECT COUNT(*) FROM backup_codes WHERE user_id = ? AND used_at IS NULL`), userID)
	return n, wrap("count backup codes", err)
}

/*
====================================
SESSIONS
====================================
*/

type sessionRow struct {
	ID        string        `db:"id"`
	UserID    string        `db:"user_id"`
	IPAddress string        `db:"ip_address"`
	UserAgent string        `db:"user_agent"`
	ExpiresAt int64         `db:"expires_at"`
	RevokedAt sql.NullInt64 `db:"revoked_at"`
	CreatedAt int64         `db:"created_at"`
}

func (s *Store) CreateSession(ctx context.Context, sess *store.Session) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO sessions (id, user_id, ip_address, user_agent, expires_at, revoked_at, created_at)
		VALUES (:id, :user_id, :ip_address, :user_agent, :expires_at, :revoked_at, :created_at)`, sessionRow{
		ID:        sess.ID,
		UserID:    sess.UserID,
		IPAddress: sess.IPAddress,
		UserAgent: sess.UserAgent,
		ExpiresAt: toMillis(sess.ExpiresAt),
		RevokedAt: nullMillis(sess.RevokedAt),
		CreatedAt: toMillis(sess.CreatedAt),
	})
	return wrap("create session", err)
}

func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT id, user_id, ip_address, user_agent, expires_at, revoked_at, created_at
		FROM sessions WHERE id = ?`), id)
	if err != nil {
		return nil, wrap("get session", err)
	}
	return &store.Session{
		ID:        row.ID,
		UserID:    row.UserID,
		IPAddress: row.IPAddress,
		UserAgent: row.UserAgent,
		ExpiresAt: fromMillis(row.ExpiresAt),
		RevokedAt: timeFromNull(row.RevokedAt),
		CreatedAt: fromMillis(row.CreatedAt),
	}, nil
}

func (s *Store) RevokeSession(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := s.exec(ctx, `UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, toMillis(at), id)
	if err != nil {
		return false, wrap("revoke session", err)
	}
	if n > 0 {
		return true, nil
	}
	return false, wrap("revoke session", s.notFoundUnless(ctx, "sessions", id, 0))
}

/*
====================================
LINKED ACCOUNTS
====================================
*/

type linkRow struct {
	ID                string `db:"id"`
	UserID            string `db:"user_id"`
	Provider          string `db:"provider"`
	ProviderAccountID string `db:"provider_account_id"`
	AccessToken       string `db:"access_token"`
	RefreshToken      string `db:"refresh_token"`
	CreatedAt         int64  `db:"created_at"`
	UpdatedAt         int64  `db:"updated_at"`
}

func (s *Store) GetLinkedAccount(ctx context.Context, provider, providerAccountID string) (*store.LinkedAccount, error) {
	var row linkRow
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT id, user_id, provider, provider_account_id, access_token, refresh_token, created_at, updated_at
		FROM linked_accounts WHERE provider = ? AND provider_account_id = ?`), provider, providerAccountID)
	if err != nil {
		return nil, wrap("get linked account", err)
	}
	return &store.LinkedAccount{
		ID:                row.ID,
		UserID:            row.UserID,
		Provider:          row.Provider,
		ProviderAccountID: row.ProviderAccountID,
		AccessToken:       row.AccessToken,
		RefreshToken:      row.RefreshToken,
		CreatedAt:         fromMillis(row.CreatedAt),
		UpdatedAt:         fromMillis(row.UpdatedAt),
	}, nil
}

func (s *Store) UpsertLinkedAccount(ctx context.Context, a *store.LinkedAccount) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO linked_accounts
		(id, user_id, provider, provider_account_id, access_token, refresh_token, created_at, updated_at)
		VALUES (:id, :user_id, :provider, :provider_account_id, :access_token, :refresh_token, :created_at, :updated_at)
		ON CONFLICT (provider, provider_account_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at`, linkRow{
		ID:                a.ID,
		UserID:            a.UserID,
		Provider:          a.Provider,
		ProviderAccountID: a.ProviderAccountID,
		AccessToken:       a.AccessToken,
		RefreshToken:      a.RefreshToken,
		CreatedAt:         toMillis(a.CreatedAt),
		UpdatedAt:         toMillis(a.UpdatedAt),
	})
	return wrap("upsert linked account", err)
}
