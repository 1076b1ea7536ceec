// Package notify carries verification messages from the engine to an email
// or SMS transport.
package notify

import (
	"context"
	"strings"

	"github.com/MrEthical07/goIdentity/store"
	"go.uber.org/zap"
)

// Channel selects the delivery medium.
type Channel string

const (
	Email Channel = "email"
	SMS   Channel = "sms"
)

// Message is one outbound verification message. Context holds the template
// variables pin, token, verificationLink, expiryMinutes and purpose.
type Message struct {
	Channel  Channel                `json:"channel"`
	To       string                 `json:"to"`
	Subject  string                 `json:"subject"`
	Template string                 `json:"template"`
	Type     store.VerificationType `json:"type"`
	Context  map[string]any         `json:"context"`
}

// Sender delivers a message. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// ChannelFor picks email for identifiers that look like addresses and SMS
// otherwise.
func ChannelFor(identifier string) Channel {
	if strings.Contains(identifier, "@") {
		return Email
	}
	return SMS
}

// TemplateFor returns the email template name for a verification type.
func TemplateFor(t store.VerificationType) string {
	switch t {
	case store.EmailVerification:
		return "EMAIL_VERIFICATION"
	case store.PasswordReset:
		return "PASSWORD_RESET"
	case store.TwoFactorAuth:
		return "TWO_FACTOR_CODE"
	default:
		return "PIN_VERIFICATION"
	}
}

// SubjectFor returns the email subject line for a verification type.
func SubjectFor(t store.VerificationType) string {
	switch t {
	case store.EmailVerification:
		return "Verify Your Email Address"
	case store.PasswordReset:
		return "Reset Your Password"
	case store.TwoFactorAuth:
		return "Your Two-Factor Authentication Code"
	case store.PhoneNumberChange:
		return "Verify Your New Phone Number"
	case store.AccountLinking:
		return "Link Your Account"
	default:
		return "Your Verification Code"
	}
}

// PurposeLabel renders a type as lower-case words, e.g. "password reset".
func PurposeLabel(t store.VerificationType) string {
	return strings.ReplaceAll(strings.ToLower(string(t)), "_", " ")
}

// LogSender writes messages to a logger instead of delivering them. It is
// the development default; the secret values in Context are never logged.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info("notification",
		zap.String("channel", string(msg.Channel)),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("template", msg.Template),
	)
	return nil
}
