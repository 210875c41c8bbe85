package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis transport or script failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when no session row exists for a token.
var ErrNotFound = errors.New("session not found")

// ErrCorrupt is returned when a stored row cannot be decoded.
var ErrCorrupt = errors.New("session row corrupt")

const (
	revokeStatusMissing  int64 = 0
	revokeStatusInactive int64 = 1
	revokeStatusRevoked  int64 = 2
)

const revokeAllBody = `
local revoked = 0
for _, d in ipairs(redis.call("SMEMBERS", KEYS[1])) do
  local key = ARGV[1] .. d
  if redis.call("HGET", key, "active") == "1" then
    redis.call("HSET", key, "active", "0", "rev", ARGV[2])
    revoked = revoked + 1
  end
end
redis.call("DEL", KEYS[1])
`

// KEYS: user set, new session key, expiry index.
// ARGV: session prefix, now, digest, pid, sub, iat, exp, role version.
var createLua = redis.NewScript(revokeAllBody + `
redis.call("HSET", KEYS[2],
  "pid", ARGV[4], "sub", ARGV[5], "iat", ARGV[6], "exp", ARGV[7],
  "active", "1", "rev", "0", "rv", ARGV[8])
redis.call("SADD", KEYS[1], ARGV[3])
redis.call("ZADD", KEYS[3], ARGV[7], ARGV[3])
return revoked
`)

// KEYS: user set. ARGV: session prefix, now.
var revokeAllLua = redis.NewScript(revokeAllBody + `
return revoked
`)

// KEYS: session key. ARGV: now, user prefix, digest.
var revokeLua = redis.NewScript(`
local active = redis.call("HGET", KEYS[1], "active")
if not active then
  return 0
end
if active ~= "1" then
  return 1
end
redis.call("HSET", KEYS[1], "active", "0", "rev", ARGV[1])
local pid = redis.call("HGET", KEYS[1], "pid")
if pid then
  redis.call("SREM", ARGV[2] .. pid, ARGV[3])
end
return 2
`)

// KEYS: expiry index. ARGV: session prefix, user prefix, cutoff, limit.
var purgeLua = redis.NewScript(`
local digests = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[3], "LIMIT", 0, tonumber(ARGV[4]))
for _, d in ipairs(digests) do
  local key = ARGV[1] .. d
  local pid = redis.call("HGET", key, "pid")
  if pid then
    redis.call("SREM", ARGV[2] .. pid, d)
  end
  redis.call("DEL", key)
  redis.call("ZREM", KEYS[1], d)
end
return #digests
`)

// Store persists sessions in Redis. It is safe for concurrent use and keeps
// no in-process state besides its configuration.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session Store using prefix as the key namespace.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	return &Store{redis: rdb, prefix: prefix}
}

func (s *Store) sessionPrefix() string { return s.prefix + ":s:" }
func (s *Store) userPrefix() string    { return s.prefix + ":u:" }
func (s *Store) expiryKey() string     { return s.prefix + ":exp" }

func (s *Store) sessionKey(digest string) string { return s.sessionPrefix() + digest }
func (s *Store) userKey(principalID string) string {
	return s.userPrefix() + principalID
}

// Create stores rec as the only active session of rec.PrincipalID, revoking
// every session that was active before. It returns how many were revoked.
// rec.Digest is derived from token; rec.Active is ignored.
//
//	Performance: 1 Lua script.
func (s *Store) Create(ctx context.Context, token string, rec Record, now time.Time) (int, error) {
	if rec.PrincipalID == "" {
		return 0, errors.New("session principal id required")
	}
	digest := Digest(token)

	revoked, err := createLua.Run(ctx, s.redis,
		[]string{s.userKey(rec.PrincipalID), s.sessionKey(digest), s.expiryKey()},
		s.sessionPrefix(),
		now.Unix(),
		digest,
		rec.PrincipalID,
		rec.Subject,
		rec.IssuedAt.Unix(),
		rec.ExpiresAt.Unix(),
		rec.RoleVersion,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return revoked, nil
}

// Get returns the stored row for token, active or not.
//
//	Performance: 1 Redis HGETALL.
func (s *Store) Get(ctx context.Context, token string) (*Record, error) {
	return s.getByDigest(ctx, Digest(token))
}

func (s *Store) getByDigest(ctx context.Context, digest string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.sessionKey(digest)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeRecord(digest, fields)
}

// Revoke marks the session for token inactive. The bool result is true only
// when this call changed the row; revoking an inactive session is a no-op.
// An unknown token returns ErrNotFound.
func (s *Store) Revoke(ctx context.Context, token string, now time.Time) (*Record, bool, error) {
	digest := Digest(token)

	status, err := revokeLua.Run(ctx, s.redis,
		[]string{s.sessionKey(digest)},
		now.Unix(),
		s.userPrefix(),
		digest,
	).Int64()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if status == revokeStatusMissing {
		return nil, false, ErrNotFound
	}

	rec, err := s.getByDigest(ctx, digest)
	if err != nil {
		return nil, false, err
	}
	return rec, status == revokeStatusRevoked, nil
}

// RevokeAll marks every active session of principalID inactive and returns
// how many changed.
func (s *Store) RevokeAll(ctx context.Context, principalID string, now time.Time) (int, error) {
	n, err := revokeAllLua.Run(ctx, s.redis,
		[]string{s.userKey(principalID)},
		s.sessionPrefix(),
		now.Unix(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// PurgeExpired deletes sessions whose expiry is strictly before now, at most
// batch rows per script call, until none remain. It returns the number of
// deleted rows.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time, batch int) (int, error) {
	if batch <= 0 {
		batch = 500
	}

	total := 0
	for {
		n, err := purgeLua.Run(ctx, s.redis,
			[]string{s.expiryKey()},
			s.sessionPrefix(),
			s.userPrefix(),
			now.Unix(),
			batch,
		).Int()
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		total += n
		if n < batch {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// ActiveCount returns the number of tracked active sessions of principalID.
func (s *Store) ActiveCount(ctx context.Context, principalID string) (int, error) {
	n, err := s.redis.SCard(ctx, s.userKey(principalID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

func decodeRecord(digest string, fields map[string]string) (*Record, error) {
	rec := &Record{
		Digest:      digest,
		PrincipalID: fields["pid"],
		Subject:     fields["sub"],
		Active:      fields["active"] == "1",
	}
	if rec.PrincipalID == "" {
		return nil, fmt.Errorf("%w: missing pid", ErrCorrupt)
	}

	iat, err := strconv.ParseInt(fields["iat"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: iat: %v", ErrCorrupt, err)
	}
	exp, err := strconv.ParseInt(fields["exp"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: exp: %v", ErrCorrupt, err)
	}
	rev, err := strconv.ParseInt(fields["rev"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: rev: %v", ErrCorrupt, err)
	}
	rv, err := strconv.ParseUint(fields["rv"], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: rv: %v", ErrCorrupt, err)
	}

	rec.IssuedAt = time.Unix(iat, 0)
	rec.ExpiresAt = time.Unix(exp, 0)
	if rev > 0 {
		rec.RevokedAt = time.Unix(rev, 0)
	}
	rec.RoleVersion = uint32(rv)
	return rec, nil
}
