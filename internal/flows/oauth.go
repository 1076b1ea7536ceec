package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/oauth"
	"github.com/MrEthical07/goIdentity/store"
)

// RunOAuthLogin signs in the owner of an external identity, creating or
// linking the local account as needed. Locked accounts are refused and MFA
// challenges apply as for password logins.
func RunOAuthLogin(ctx context.Context, p oauth.Profile, d *Deps) (*LoginResult, error) {
	provider, err := oauth.ParseProvider(p.Provider)
	if err != nil {
		return nil, validationError("unsupported provider")
	}
	accountID := strings.TrimSpace(p.ProviderID)
	if accountID == "" {
		return nil, validationError("provider account id is required")
	}
	email := NormalizeEmail(p.Email)
	if !validEmail(email) {
		return nil, validationError("invalid email")
	}

	u, err := d.oauthUser(ctx, string(provider), accountID, email, p)
	if err != nil {
		return nil, err
	}
	if u.Status != store.UserActive {
		return nil, ErrInvalidCredentials
	}
	if err := d.lockGate(ctx, u); err != nil {
		return nil, err
	}

	id, err := d.newID()
	if err != nil {
		return nil, ErrInternal
	}
	now := d.Now()
	link := &store.LinkedAccount{
		ID:                id,
		UserID:            u.ID,
		Provider:          string(provider),
		ProviderAccountID: accountID,
		AccessToken:       p.AccessToken,
		RefreshToken:      p.RefreshToken,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := d.Store.UpsertLinkedAccount(ctx, link); err != nil {
		return nil, storeError(err)
	}

	res, err := d.challengeOrComplete(ctx, u)
	if err != nil || res.MFARequired {
		return res, err
	}
	d.Metrics.Inc(metrics.OAuthLogin)
	d.emit(ctx, audit.Event{Type: audit.OAuthLogin, UserID: u.ID, Success: true, Metadata: map[string]string{"provider": string(provider)}})
	return res, nil
}

func (d *Deps) oauthUser(ctx context.Context, provider, accountID, email string, p oauth.Profile) (*store.User, error) {
	link, err := d.Store.GetLinkedAccount(ctx, provider, accountID)
	if err == nil {
		return d.userByID(ctx, link.UserID)
	}
	if !isNotFound(err) {
		return nil, storeError(err)
	}

	u, err := d.Store.GetUserByEmail(ctx, email)
	if err == nil {
		if !d.Settings.LinkByEmail {
			return nil, ErrOAuthAccountConflict
		}
		return u, nil
	}
	if !isNotFound(err) {
		return nil, storeError(err)
	}

	id, err := d.newID()
	if err != nil {
		return nil, ErrInternal
	}
	now := d.Now()
	u = &store.User{
		ID:              id,
		Email:           email,
		FirstName:       orDefault(p.FirstName, "Unknown"),
		LastName:        orDefault(p.LastName, "User"),
		Locale:          "EN",
		Timezone:        "UTC",
		Status:          store.UserActive,
		Roles:           d.defaultRoles(),
		EmailVerifiedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := d.Store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrOAuthAccountConflict
		}
		return nil, storeError(err)
	}
	d.emit(ctx, audit.Event{Type: audit.Signup, UserID: u.ID, Success: true, Metadata: map[string]string{"provider": provider}})
	return u, nil
}
