package httpapi

import (
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
)

type userPart struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	Phone           string     `json:"phone,omitempty"`
	Locale          string     `json:"locale,omitempty"`
	Timezone        string     `json:"timezone,omitempty"`
	Status          string     `json:"status"`
	Roles           []string   `json:"roles"`
	MFAEnabled      bool       `json:"mfaEnabled"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type loginResp struct {
	User         *userPart             `json:"user,omitempty"`
	Tokens       *goIdentity.TokenPair `json:"tokens,omitempty"`
	MFARequired  bool                  `json:"mfaRequired,omitempty"`
	MFAToken     string                `json:"mfaToken,omitempty"`
	MFAExpiresAt *time.Time            `json:"mfaExpiresAt,omitempty"`
}

type verificationPart struct {
	ID         string     `json:"id"`
	Identifier string     `json:"identifier"`
	Type       string     `json:"type"`
	UserID     string     `json:"userId,omitempty"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	UsedAt     *time.Time `json:"usedAt,omitempty"`
}

func viewUser(u *goIdentity.User) *userPart {
	if u == nil {
		return nil
	}
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return &userPart{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Phone:           u.Phone,
		Locale:          u.Locale,
		Timezone:        u.Timezone,
		Status:          string(u.Status),
		Roles:           roles,
		MFAEnabled:      u.MFAEnabled,
		EmailVerifiedAt: u.EmailVerifiedAt,
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
	}
}

func viewLogin(res *goIdentity.LoginResult) loginResp {
	return loginResp{
		User:         viewUser(res.User),
		Tokens:       res.Tokens,
		MFARequired:  res.MFARequired,
		MFAToken:     res.MFAToken,
		MFAExpiresAt: res.MFAExpiresAt,
	}
}

// viewVerification omits the PIN hash, salt and link-token.
func viewVerification(v *goIdentity.Verification) verificationPart {
	return verificationPart{
		ID:         v.ID,
		Identifier: v.Identifier,
		Type:       string(v.Type),
		UserID:     v.UserID,
		ExpiresAt:  v.ExpiresAt,
		UsedAt:     v.UsedAt,
	}
}
