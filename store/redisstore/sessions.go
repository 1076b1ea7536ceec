package redisstore

import (
	"context"
	"time"

	"github.com/MrEthical07/goIdentity/store"
	"github.com/redis/go-redis/v9"
)

var _ store.Sessions = (*Store)(nil)

var createSessionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return {err='duplicate'}
end
local ttl = tonumber(ARGV[1])
redis.call('HSET', KEYS[1],
  'id', ARGV[2], 'user_id', ARGV[3], 'ip_address', ARGV[4], 'user_agent', ARGV[5],
  'expires_at', ARGV[6], 'revoked_at', '', 'created_at', ARGV[7])
redis.call('PEXPIRE', KEYS[1], ttl)
redis.call('SADD', KEYS[2], ARGV[2])
if redis.call('PTTL', KEYS[2]) < ttl then
  redis.call('PEXPIRE', KEYS[2], ttl)
end
return 1
`)

// revokeSessionScript stamps revoked_at once and drops the id from the
// owner's live set.
var revokeSessionScript = redis.NewScript(`
local rec = redis.call('HMGET', KEYS[1], 'revoked_at', 'user_id')
if not rec[2] then
  return {err='not_found'}
end
redis.call('SREM', ARGV[2] .. rec[2], ARGV[3])
if rec[1] ~= '' then
  return 0
end
redis.call('HSET', KEYS[1], 'revoked_at', ARGV[1])
return 1
`)

func (s *Store) sessionKey(id string) string { return s.prefix + "sess:" + id }

func (s *Store) userSessionsPrefix() string { return s.prefix + "sess:user:" }

func (s *Store) userSessionsKey(userID string) string { return s.userSessionsPrefix() + userID }

// CreateSession stores sess until Retention past its expiry.
func (s *Store) CreateSession(ctx context.Context, sess *store.Session) error {
	ttl := sess.ExpiresAt.Sub(sess.CreatedAt) + Retention
	if ttl <= 0 {
		ttl = Retention
	}
	err := createSessionScript.Run(ctx, s.redis,
		[]string{s.sessionKey(sess.ID), s.userSessionsKey(sess.UserID)},
		ttl.Milliseconds(),
		sess.ID, sess.UserID, sess.IPAddress, sess.UserAgent,
		millis(sess.ExpiresAt), millis(sess.CreatedAt),
	).Err()
	return mapErr(err)
}

func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}
	return decodeSession(fields)
}

func (s *Store) RevokeSession(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := revokeSessionScript.Run(ctx, s.redis, []string{s.sessionKey(id)},
		millis(at), s.userSessionsPrefix(), id).Int()
	if err != nil {
		return false, mapErr(err)
	}
	return n == 1, nil
}

// UserSessions lists the ids of a user's unrevoked sessions. Ids whose record
// has already expired are pruned from the set.
func (s *Store) UserSessions(ctx context.Context, userID string) ([]string, error) {
	key := s.userSessionsKey(userID)
	ids, err := s.redis.SMembers(ctx, key).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	live := ids[:0]
	for _, id := range ids {
		n, err := s.redis.Exists(ctx, s.sessionKey(id)).Result()
		if err != nil {
			return nil, mapErr(err)
		}
		if n == 0 {
			s.redis.SRem(ctx, key, id)
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

func decodeSession(f map[string]string) (*store.Session, error) {
	expires, err := parseMillis(f["expires_at"])
	if err != nil {
		return nil, err
	}
	created, err := parseMillis(f["created_at"])
	if err != nil {
		return nil, err
	}
	sess := &store.Session{
		ID:        f["id"],
		UserID:    f["user_id"],
		IPAddress: f["ip_address"],
		UserAgent: f["user_agent"],
		ExpiresAt: expires,
		CreatedAt: created,
	}
	if revoked := f["revoked_at"]; revoked != "" {
		t, err := parseMillis(revoked)
		if err != nil {
			return nil, err
		}
		sess.RevokedAt = &t
	}
	return sess, nil
}
