// Package redisstore keeps short-lived records in Redis: PIN / link-token
// records (store.VerificationTokens) and sessions (store.Sessions). It is
// plugged in with goIdentity.Builder.WithVerificationStore and
// WithSessionStore next to a SQL or memory store.
//
// Each verification record is a hash under <prefix>vt:<id>. A string key maps the
// link-token to the id and a sorted set per identifier orders records by
// creation time. Sessions are hashes under <prefix>sess:<id> with a set of
// live ids per user. Every transition runs as a Lua script, so records are
// consumed at most once even across processes. Keys are built inside the
// scripts, which ties the store to a single Redis node or a cluster slot.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goIdentity/store"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps Redis transport and script failures.
var ErrUnavailable = errors.New("redisstore: redis unavailable")

// Retention is how long a record outlives its expiry so that consumed
// link-tokens still resolve to a used record.
const Retention = time.Hour

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return {err='duplicate'}
end
local ttl = tonumber(ARGV[1])
if not redis.call('SET', KEYS[2], ARGV[2], 'NX', 'PX', ttl) then
  return {err='duplicate'}
end
redis.call('HSET', KEYS[1],
  'id', ARGV[2], 'identifier', ARGV[3], 'type', ARGV[4], 'pin_hash', ARGV[5],
  'pin_salt', ARGV[6], 'token', ARGV[7], 'expires_at', ARGV[8], 'attempts', ARGV[9],
  'used_at', ARGV[10], 'user_id', ARGV[11], 'created_at', ARGV[12])
redis.call('PEXPIRE', KEYS[1], ttl)
redis.call('ZADD', KEYS[3], tonumber(ARGV[12]), ARGV[2])
if redis.call('PTTL', KEYS[3]) < ttl then
  redis.call('PEXPIRE', KEYS[3], ttl)
end
return 1
`)

// activeScript returns the id of the newest unused, unexpired record of an
// identifier and prunes index members whose record is gone.
var activeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local ids = redis.call('ZREVRANGE', KEYS[1], 0, -1)
for _, id in ipairs(ids) do
  local key = ARGV[2] .. id
  local rec = redis.call('HMGET', key, 'used_at', 'expires_at')
  if not rec[2] then
    redis.call('ZREM', KEYS[1], id)
  elseif rec[1] == '' and tonumber(rec[2]) > now then
    return id
  end
end
return false
`)

var incrementScript = redis.NewScript(`
local used = redis.call('HGET', KEYS[1], 'used_at')
if used == false or used ~= '' then
  return {err='not_found'}
end
return redis.call('HINCRBY', KEYS[1], 'attempts', 1)
`)

var consumeScript = redis.NewScript(`
local rec = redis.call('HMGET', KEYS[1], 'used_at', 'attempts', 'expires_at')
if not rec[3] then
  return {err='not_found'}
end
local now = tonumber(ARGV[1])
if rec[1] ~= '' or tonumber(rec[2]) >= tonumber(ARGV[2]) or tonumber(rec[3]) <= now then
  return 0
end
redis.call('HSET', KEYS[1], 'used_at', ARGV[1])
return 1
`)

// Store implements store.VerificationTokens and store.Sessions.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

var _ store.VerificationTokens = (*Store)(nil)

func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "idp:"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) recordPrefix() string { return s.prefix + "vt:" }

func (s *Store) recordKey(id string) string { return s.recordPrefix() + id }

func (s *Store) tokenKey(token string) string { return s.prefix + "vt:tok:" + token }

func (s *Store) indexKey(identifier string) string { return s.prefix + "vt:idx:" + identifier }

func (s *Store) CreateVerification(ctx context.Context, v *store.VerificationToken) error {
	ttl := v.ExpiresAt.Sub(v.CreatedAt) + Retention
	if ttl <= 0 {
		ttl = Retention
	}
	usedAt := ""
	if v.UsedAt != nil {
		usedAt = millis(*v.UsedAt)
	}
	err := createScript.Run(ctx, s.redis,
		[]string{s.recordKey(v.ID), s.tokenKey(v.Token), s.indexKey(v.Identifier)},
		ttl.Milliseconds(),
		v.ID, v.Identifier, string(v.Type), v.PinHash, v.PinSalt, v.Token,
		millis(v.ExpiresAt), v.Attempts, usedAt, v.UserID, millis(v.CreatedAt),
	).Err()
	return mapErr(err)
}

func (s *Store) GetActiveVerification(ctx context.Context, identifier string, now time.Time) (*store.VerificationToken, error) {
	id, err := activeScript.Run(ctx, s.redis, []string{s.indexKey(identifier)}, millis(now), s.recordPrefix()).Text()
	if err != nil {
		return nil, mapErr(err)
	}
	return s.load(ctx, id)
}

func (s *Store) GetVerificationByToken(ctx context.Context, token string) (*store.VerificationToken, error) {
	id, err := s.redis.Get(ctx, s.tokenKey(token)).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	return s.load(ctx, id)
}

func (s *Store) IncrementVerificationAttempts(ctx context.Context, id string) (int, error) {
	n, err := incrementScript.Run(ctx, s.redis, []string{s.recordKey(id)}).Int()
	if err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

func (s *Store) ConsumeVerification(ctx context.Context, id string, at time.Time, maxAttempts int) (bool, error) {
	n, err := consumeScript.Run(ctx, s.redis, []string{s.recordKey(id)}, millis(at), maxAttempts).Int()
	if err != nil {
		return false, mapErr(err)
	}
	return n == 1, nil
}

func (s *Store) load(ctx context.Context, id string) (*store.VerificationToken, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}
	return decode(fields)
}

func decode(f map[string]string) (*store.VerificationToken, error) {
	expires, err := parseMillis(f["expires_at"])
	if err != nil {
		return nil, err
	}
	created, err := parseMillis(f["created_at"])
	if err != nil {
		return nil, err
	}
	attempts, err := strconv.Atoi(f["attempts"])
	if err != nil {
		return nil, fmt.Errorf("%w: attempts: %v", ErrUnavailable, err)
	}
	v := &store.VerificationToken{
		ID:         f["id"],
		Identifier: f["identifier"],
		Type:       store.VerificationType(f["type"]),
		PinHash:    f["pin_hash"],
		PinSalt:    f["pin_salt"],
		Token:      f["token"],
		ExpiresAt:  expires,
		Attempts:   attempts,
		UserID:     f["user_id"],
		CreatedAt:  created,
	}
	if used := f["used_at"]; used != "" {
		t, err := parseMillis(used)
		if err != nil {
			return nil, err
		}
		v.UsedAt = &t
	}
	return v, nil
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UTC().UnixMilli(), 10)
}

func parseMillis(s string) (time.Time, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrUnavailable, s)
	}
	return time.UnixMilli(v).UTC(), nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return store.ErrNotFound
	}
	switch err.Error() {
	case "not_found":
		return store.ErrNotFound
	case "duplicate":
		return store.ErrDuplicate
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
