package flows

import (
	"context"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/totp"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Notifier queues outbound messages. notify.Dispatcher satisfies it.
type Notifier interface {
	Enqueue(msg notify.Message) error
}

// Settings are the policy knobs flows read from Config.
type Settings struct {
	AppURL            string
	LockoutThreshold  int
	LockoutDuration   time.Duration
	PreserveFamily    bool
	ReuseDetection    bool
	LogoutAll         bool
	LinkByEmail       bool
	RequireMFAOnLogin bool
	MinPasswordLength int
	DefaultRole       string
	BackupCodeCount   int
}

// Deps is built once by the Engine and shared by every flow.
type Deps struct {
	Store store.Store
	// Verifications overrides Store for verification records when set.
	Verifications store.VerificationTokens
	// Sessions overrides Store for session records when set.
	Sessions      store.Sessions
	Hasher        password.Hasher
	Tokens        *jwt.Manager
	TOTP          *totp.Authenticator
	Notifier      Notifier
	Limiter       *rate.Limiter
	Audit         audit.Sink
	Metrics       *metrics.Metrics
	Log           *zap.Logger
	Now           func() time.Time
	Random        io.Reader
	Settings      Settings
}

func (d *Deps) verifications() store.VerificationTokens {
	if d.Verifications != nil {
		return d.Verifications
	}
	return d.Store
}

func (d *Deps) sessions() store.Sessions {
	if d.Sessions != nil {
		return d.Sessions
	}
	return d.Store
}

func (d *Deps) newID() (string, error) {
	return internal.NewID(d.Random)
}

// emit stamps ev with time and client metadata and hands it to the sink.
func (d *Deps) emit(ctx context.Context, ev audit.Event) {
	if d.Audit == nil {
		return
	}
	ev.Timestamp = d.Now()
	if ev.IP == "" {
		ev.IP = ClientIP(ctx)
	}
	if ev.UserAgent == "" {
		ev.UserAgent = UserAgent(ctx)
	}
	d.Audit.Emit(ctx, ev)
}

type clientIPKey struct{}
type userAgentKey struct{}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, ua)
}

func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func UserAgent(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey{}).(string)
	return ua
}

// NormalizeEmail trims, lower-cases and NFKC-normalizes an address.
func NormalizeEmail(email string) string {
	return norm.NFKC.String(strings.ToLower(strings.TrimSpace(email)))
}

func validEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email[strings.LastIndexByte(email, '@'):], ".")
}

func (d *Deps) checkPassword(pw string) error {
	minLen := d.Settings.MinPasswordLength
	if minLen <= 0 {
		minLen = 8
	}
	if len([]rune(pw)) < minLen {
		return validationError("password too short")
	}
	if len(pw) > 72 {
		return validationError("password too long")
	}
	return nil
}
