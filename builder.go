package goIdentity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/metrics"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/totp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A store and a sender are required; every
// other collaborator has a default.
type Builder struct {
	config        Config
	store         store.Store
	verifications store.VerificationTokens
	sessions      store.Sessions
	sender        notify.Sender
	redis         redis.UniversalClient
	log           *zap.Logger
	now           func() time.Time
	random        io.Reader
	auditSink     AuditSink

	permissions []string
	roles       map[string][]string
	superRoles  []string

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the persistence backend.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithVerificationStore moves PIN records to a separate backend, typically
// store/redisstore, while everything else stays in the main store.
func (b *Builder) WithVerificationStore(v store.VerificationTokens) *Builder {
	b.verifications = v
	return b
}

// WithSessionStore moves session records to a separate backend. Strict
// access validation reads them on every request.
func (b *Builder) WithSessionStore(s store.Sessions) *Builder {
	b.sessions = s
	return b
}

// WithSender sets the outbound email/SMS transport. Deliveries run on a
// background dispatcher with retries.
func (b *Builder) WithSender(s notify.Sender) *Builder {
	b.sender = s
	return b
}

// WithRedis enables the PIN request and login throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// WithClock replaces time.Now for every expiry, lockout and token decision.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRandom replaces crypto/rand.Reader as the source of PINs, secrets,
// codes and identifiers.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithPermissions(perms []string) *Builder {
	b.permissions = perms
	return b
}

// WithRoles maps role names to the permissions they grant.
func (b *Builder) WithRoles(r map[string][]string) *Builder {
	b.roles = r
	return b
}

// WithSuperRoles names roles that satisfy every permission requirement.
func (b *Builder) WithSuperRoles(roles ...string) *Builder {
	b.superRoles = roles
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and starts the background dispatchers.
// A Builder can be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}
	if b.sender == nil {
		return nil, errors.New("sender required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}
	random := b.random
	if random == nil {
		random = rand.Reader
	}

	hasher, err := newHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		ChallengeTTL:  cfg.JWT.ChallengeTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		AccessKey:     cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		KeyID:         cfg.JWT.KeyID,
		RefreshSecret: cfg.JWT.RefreshSecret,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	authenticator, err := totp.New(totp.Config{
		Issuer:    cfg.TOTP.Issuer,
		Digits:    cfg.TOTP.Digits,
		Period:    cfg.TOTP.Period,
		Algorithm: cfg.TOTP.Algorithm,
		Skew:      cfg.TOTP.Skew,
	})
	if err != nil {
		return nil, err
	}

	roles, err := b.buildRoles()
	if err != nil {
		return nil, err
	}

	sink := b.auditSink
	if sink == nil {
		sink = internalaudit.NewZapSink(log)
	}
	auditDispatcher := internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink, log)

	m := metrics.New(metrics.Config{
		Enabled:                 cfg.Metrics.Enabled,
		EnableLatencyHistograms: cfg.Metrics.EnableLatencyHistograms,
	})

	var limiter *rate.Limiter
	if b.redis != nil {
		limiter = rate.New(b.redis, rate.Config{
			KeyPrefix:  cfg.RateLimit.KeyPrefix,
			PinRequest: rate.Rule{Limit: cfg.RateLimit.PinRequestLimit, Window: cfg.RateLimit.PinRequestWindow},
			LoginIP:    rate.Rule{Limit: cfg.RateLimit.LoginIPLimit, Window: cfg.RateLimit.LoginIPWindow},
		})
	}

	notifier := notify.NewDispatcher(b.sender, notify.DispatcherConfig{
		Workers:        cfg.Notify.Workers,
		BufferSize:     cfg.Notify.BufferSize,
		MaxAttempts:    cfg.Notify.MaxAttempts,
		InitialBackoff: cfg.Notify.InitialBackoff,
		SendTimeout:    cfg.Notify.SendTimeout,
	}, log.Named("notify"))

	deps := &flows.Deps{
		Store:         b.store,
		Verifications: b.verifications,
		Sessions:      b.sessions,
		Hasher:        hasher,
		Tokens:        tokens,
		TOTP:          authenticator,
		Notifier:      notifier,
		Limiter:       limiter,
		Metrics:       m,
		Log:           log,
		Now:           now,
		Random:        random,
		Settings: flows.Settings{
			AppURL:            cfg.Verification.AppURL,
			LockoutThreshold:  cfg.Lockout.Threshold,
			LockoutDuration:   cfg.Lockout.Duration,
			PreserveFamily:    cfg.Token.PreserveFamily,
			ReuseDetection:    cfg.Token.ReuseDetection,
			LogoutAll:         cfg.Token.LogoutScope == LogoutAll,
			LinkByEmail:       cfg.OAuth.LinkByEmail,
			RequireMFAOnLogin: cfg.MFA.RequireOnLogin,
			MinPasswordLength: cfg.Password.MinLength,
			DefaultRole:       cfg.Signup.DefaultRole,
			BackupCodeCount:   cfg.TOTP.BackupCodeCount,
		},
	}
	if auditDispatcher != nil {
		deps.Audit = auditDispatcher
	}

	b.built = true
	return &Engine{
		config:   cfg,
		deps:     deps,
		roles:    roles,
		audit:    auditDispatcher,
		notifier: notifier,
		metrics:  m,
	}, nil
}

func (b *Builder) buildRoles() (*permission.RoleManager, error) {
	registry := permission.NewRegistry()
	for _, p := range b.permissions {
		if _, err := registry.Register(p); err != nil {
			return nil, fmt.Errorf("register permission %q: %w", p, err)
		}
	}
	registry.Freeze()

	roles := permission.NewRoleManager(registry)
	for name, perms := range b.roles {
		if err := roles.RegisterRole(name, perms...); err != nil {
			return nil, fmt.Errorf("register role %q: %w", name, err)
		}
	}
	for _, name := range b.superRoles {
		if err := roles.RegisterSuperRole(name); err != nil {
			return nil, fmt.Errorf("register super role %q: %w", name, err)
		}
	}
	roles.Freeze()
	return roles, nil
}

// newHasher hashes with the configured algorithm and still verifies hashes
// of the other one.
func newHasher(cfg PasswordConfig) (password.Hasher, error) {
	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	a2, err := password.NewArgon2(cfg.Argon2)
	if err != nil {
		return nil, err
	}
	if cfg.Algorithm == PasswordArgon2id {
		return password.NewMulti(a2, bc), nil
	}
	return password.NewMulti(bc, a2), nil
}
