package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule is a fixed-window budget. A non-positive Limit disables the rule.
type Rule struct {
	Limit  int
	Window time.Duration
}

func (r Rule) enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

// Config holds the per-operation rules.
type Config struct {
	KeyPrefix  string
	PinRequest Rule
	LoginIP    Rule
}

// Limiter enforces Config against Redis counters.
type Limiter struct {
	redis redis.UniversalClient
	cfg   Config
}

var hitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

func New(client redis.UniversalClient, cfg Config) *Limiter {
	if client == nil {
		return nil
	}
	return &Limiter{redis: client, cfg: cfg}
}

// AllowPinRequest counts one PIN request for identifier.
func (l *Limiter) AllowPinRequest(ctx context.Context, identifier string) error {
	if l == nil {
		return nil
	}
	return l.hit(ctx, l.cfg.KeyPrefix+"rl:pin:"+identifier, l.cfg.PinRequest)
}

// AllowLogin counts one login attempt from ip. Empty ip is not throttled.
func (l *Limiter) AllowLogin(ctx context.Context, ip string) error {
	if l == nil || ip == "" {
		return nil
	}
	return l.hit(ctx, l.cfg.KeyPrefix+"rl:login:"+ip, l.cfg.LoginIP)
}

// Remaining reports how many hits are left in the current login window for ip.
func (l *Limiter) Remaining(ctx context.Context, ip string) (int, error) {
	if l == nil || !l.cfg.LoginIP.enabled() {
		return 0, nil
	}
	n, err := l.redis.Get(ctx, l.cfg.KeyPrefix+"rl:login:"+ip).Int()
	if err == redis.Nil {
		return l.cfg.LoginIP.Limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n >= l.cfg.LoginIP.Limit {
		return 0, nil
	}
	return l.cfg.LoginIP.Limit - n, nil
}

func (l *Limiter) hit(ctx context.Context, key string, rule Rule) error {
	if !rule.enabled() {
		return nil
	}
	count, err := hitScript.Run(ctx, l.redis, []string{key}, rule.Window.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count > int64(rule.Limit) {
		return ErrRateLimited
	}
	return nil
}
