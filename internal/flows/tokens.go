package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/store"
)

// TokenPair is the credential bundle returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	TokenType    string `json:"tokenType"`
}

// RunGenerateTokens issues an access token and persists a refresh row for
// u bound to sessionID. An empty family starts a new one.
func RunGenerateTokens(ctx context.Context, u *store.User, sessionID, family string, d *Deps) (*TokenPair, error) {
	now := d.Now()
	if family == "" {
		f, err := internal.NewFamilyID(d.Random, now)
		if err != nil {
			return nil, ErrInternal
		}
		family = f
	}

	access, _, err := d.Tokens.IssueAccess(jwt.AccessInput{
		UserID:    u.ID,
		Email:     u.Email,
		SessionID: sessionID,
		Roles:     u.Roles,
	})
	if err != nil {
		return nil, ErrInternal
	}

	id, err := d.newID()
	if err != nil {
		return nil, ErrInternal
	}
	value, err := internal.NewRefreshValue(d.Random)
	if err != nil {
		return nil, ErrInternal
	}
	row := &store.RefreshToken{
		ID:        id,
		UserID:    u.ID,
		SessionID: sessionID,
		Token:     value,
		Family:    family,
		ExpiresAt: now.Add(d.Tokens.RefreshTTL()),
		CreatedAt: now,
	}
	if err := d.Store.CreateRefreshToken(ctx, row); err != nil {
		return nil, storeError(err)
	}

	refresh, err := d.Tokens.IssueRefresh(u.ID, row.ID, family, row.ExpiresAt)
	if err != nil {
		return nil, ErrInternal
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(d.Tokens.AccessTTL() / time.Second),
		TokenType:    "Bearer",
	}, nil
}

func (d *Deps) createSession(ctx context.Context, u *store.User) (*store.Session, error) {
	id, err := d.newID()
	if err != nil {
		return nil, ErrInternal
	}
	now := d.Now()
	sess := &store.Session{
		ID:        id,
		UserID:    u.ID,
		IPAddress: ClientIP(ctx),
		UserAgent: UserAgent(ctx),
		ExpiresAt: now.Add(d.Tokens.RefreshTTL()),
		CreatedAt: now,
	}
	if err := d.sessions().CreateSession(ctx, sess); err != nil {
		return nil, storeError(err)
	}
	d.Metrics.Inc(metrics.SessionCreated)
	return sess, nil
}

// RunRefresh rotates a refresh token. Exactly one concurrent caller
// presenting the same token succeeds.
func RunRefresh(ctx context.Context, raw string, d *Deps) (*TokenPair, error) {
	claims, err := d.Tokens.ParseRefresh(raw)
	if err != nil {
		d.Metrics.Inc(metrics.RefreshFailure)
		return nil, ErrInvalidToken
	}

	row, err := d.Store.GetRefreshToken(ctx, claims.TokenID)
	if errors.Is(err, store.ErrNotFound) {
		d.Metrics.Inc(metrics.RefreshFailure)
		return nil, ErrRefreshRevoked
	}
	if err != nil {
		return nil, storeError(err)
	}
	if row.UserID != claims.Subject || row.Family != claims.Family {
		d.Metrics.Inc(metrics.RefreshFailure)
		return nil, ErrInvalidToken
	}

	now := d.Now()
	if row.RevokedAt != nil {
		return nil, d.refreshReuse(ctx, row)
	}
	if !row.ExpiresAt.After(now) {
		d.Metrics.Inc(metrics.RefreshFailure)
		return nil, ErrRefreshExpired
	}

	won, err := d.Store.RevokeRefreshToken(ctx, row.ID, now)
	if err != nil {
		return nil, storeError(err)
	}
	if !won {
		d.Metrics.Inc(metrics.RefreshFailure)
		return nil, ErrRefreshRevoked
	}

	u, err := d.Store.GetUserByID(ctx, row.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, storeError(err)
	}
	if u.Status != store.UserActive {
		d.Metrics.Inc(metrics.RefreshFailure)
		return nil, ErrInvalidCredentials
	}

	family := ""
	if d.Settings.PreserveFamily {
		family = row.Family
	}
	pair, err := RunGenerateTokens(ctx, u, row.SessionID, family, d)
	if err != nil {
		return nil, err
	}
	d.Metrics.Inc(metrics.RefreshSuccess)
	return pair, nil
}

// refreshReuse handles a token whose row was already revoked before this
// request read it.
func (d *Deps) refreshReuse(ctx context.Context, row *store.RefreshToken) error {
	d.Metrics.Inc(metrics.RefreshFailure)
	if !d.Settings.ReuseDetection {
		return ErrRefreshRevoked
	}
	if _, err := d.Store.RevokeRefreshFamily(ctx, row.Family, d.Now()); err != nil {
		return storeError(err)
	}
	d.Metrics.Inc(metrics.RefreshReuseDetected)
	d.emit(ctx, audit.Event{
		Type:      audit.SuspiciousActivity,
		UserID:    row.UserID,
		SessionID: row.SessionID,
		Error:     ErrRefreshReuse.Error(),
		Metadata:  map[string]string{"family": row.Family},
	})
	return ErrRefreshReuse
}

// RunLogout revokes sessionID when given and then the user's refresh tokens,
// either all of them or only those of the session.
func RunLogout(ctx context.Context, userID, sessionID string, d *Deps) error {
	now := d.Now()
	if sessionID != "" {
		sess, err := d.sessions().GetSession(ctx, sessionID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			sessionID = ""
		case err != nil:
			return storeError(err)
		case sess.UserID != userID:
			return ErrForbidden
		default:
			if _, err := d.sessions().RevokeSession(ctx, sessionID, now); err != nil {
				return storeError(err)
			}
		}
	}

	var err error
	if d.Settings.LogoutAll || sessionID == "" {
		_, err = d.Store.RevokeUserRefreshTokens(ctx, userID, now)
	} else {
		_, err = d.Store.RevokeSessionRefreshTokens(ctx, sessionID, now)
	}
	if err != nil {
		return storeError(err)
	}
	d.Metrics.Inc(metrics.Logout)
	d.emit(ctx, audit.Event{Type: audit.Logout, UserID: userID, SessionID: sessionID, Success: true})
	return nil
}

// RunValidateAccess verifies an access token. In strict mode the session
// named by the token must also still be live.
func RunValidateAccess(ctx context.Context, raw string, strict bool, d *Deps) (*jwt.AccessClaims, error) {
	defer d.Metrics.Since(metrics.ValidateLatency, time.Now())

	claims, err := d.Tokens.ParseAccess(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !strict || claims.SessionID == "" {
		return claims, nil
	}

	sess, err := d.sessions().GetSession(ctx, claims.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, storeError(err)
	}
	if sess.RevokedAt != nil || !sess.ExpiresAt.After(d.Now()) || sess.UserID != claims.Subject {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
