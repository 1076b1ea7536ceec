package goIdentity

import (
	"io"

	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/oauth"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/store"
	"go.uber.org/zap"
)

// User is an account as returned by the engine. Password hash and TOTP
// secret are always blank.
type User = store.User

type (
	SignupRequest    = flows.SignupRequest
	LoginResult      = flows.LoginResult
	TokenPair        = flows.TokenPair
	LockoutStatus    = flows.LockoutStatus
	TOTPSetup        = flows.TOTPSetup
	AccessClaims     = jwt.AccessClaims
	OAuthProfile     = oauth.Profile
	Requirement      = permission.Requirement
	PinRequest       = flows.PinRequest
	Verification     = store.VerificationToken
	MFAMethod        = flows.MFAMethod
	VerificationType = store.VerificationType
)

const (
	MFAMethodTOTP       = flows.MethodTOTP
	MFAMethodBackupCode = flows.MethodBackupCode
	MFAMethodEmail      = flows.MethodEmail
	MFAMethodSMS        = flows.MethodSMS
)

const (
	EmailVerification = store.EmailVerification
	PhoneVerification = store.PhoneVerification
	PasswordReset     = store.PasswordReset
	AccountLinking    = store.AccountLinking
	TwoFactorAuth     = store.TwoFactorAuth
	PhoneNumberChange = store.PhoneNumberChange
)

// Authorization requirements, evaluated by Engine.Authorize.
var (
	RequireRoles          = permission.RequireRoles
	RequireAllPermissions = permission.RequireAllPermissions
	RequireAnyPermission  = permission.RequireAnyPermission
)

// Audit types.

type (
	AuditEvent     = internalaudit.Event
	AuditEventType = internalaudit.Type
	AuditSink      = internalaudit.Sink
	NoOpSink       = internalaudit.NoOpSink
	ChannelSink    = internalaudit.ChannelSink
	JSONWriterSink = internalaudit.JSONWriterSink
	ZapSink        = internalaudit.ZapSink
	MultiSink      = internalaudit.MultiSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink logs every audit event through log under the "audit" name.
func NewZapSink(log *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(log)
}
