package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any transport-level Redis failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrRotateNotFound is returned when the refresh target session does not exist.
var ErrRotateNotFound = errors.New("refresh session not found")

// ErrRotateExpired is returned when the refresh target session is past its expiry.
var ErrRotateExpired = errors.New("refresh session expired")

// ErrRefreshReplay is returned when a superseded or revoked refresh token is
// presented. Callers treat this as evidence of token theft.
var ErrRefreshReplay = errors.New("refresh token replay detected")

// ErrSessionCorrupt is returned when a stored session blob fails to parse.
var ErrSessionCorrupt = errors.New("session record corrupt")

// ReplayError carries the owning user of the replayed session so the caller
// can revoke every session for that user. Matches ErrRefreshReplay with
// errors.Is.
type ReplayError struct {
	UserID string
}

func (e *ReplayError) Error() string { return "refresh token replay detected" }

func (e *ReplayError) Is(target error) bool { return target == ErrRefreshReplay }

const minSlidingTTL = time.Second

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusReplay   int64 = 2
	rotateStatusRotated  int64 = 3
	rotateStatusCorrupt  int64 = 4
)

// luaHelpers parse and rewrite the fixed-offset header described in
// encoder.go. Offsets here are 1-based per Lua string indexing.
const luaHelpers = `
local function read_be64(s, i)
  local v = 0
  for k = 0, 7 do
    local b = string.byte(s, i + k)
    if not b then
      return nil
    end
    v = v * 256 + b
  end
  return v
end

local function write_be64(n)
  local bytes = {}
  for k = 8, 1, -1 do
    bytes[k] = string.char(n % 256)
    n = math.floor(n / 256)
  end
  return table.concat(bytes)
end

local function mark_invalid(key, data, ttl)
  if ttl > 0 then
    local updated = string.sub(data, 1, 1) .. string.char(0) .. string.sub(data, 3)
    redis.call("SET", key, updated, "PX", ttl)
  end
end
`

const rotateRefreshScript = luaHelpers + `
local key = KEYS[1]
local provided_hash = ARGV[1]
local next_hash = ARGV[2]
local now_unix = tonumber(ARGV[3])

local data = redis.call("GET", key)
if not data then
  return {0}
end
if string.byte(data, 1) ~= 1 or #data < 59 then
  return {4}
end

local ulen = string.byte(data, 59)
if not ulen or #data < 59 + ulen then
  return {4}
end
local user_id = string.sub(data, 60, 59 + ulen)

local expires_at = read_be64(data, 43)
if not expires_at then
  return {4}
end

local ttl = redis.call("PTTL", key)

if string.byte(data, 2) ~= 1 then
  return {2, user_id}
end

if expires_at <= now_unix or ttl <= 0 then
  mark_invalid(key, data, ttl)
  return {1}
end

if string.sub(data, 3, 34) ~= provided_hash then
  mark_invalid(key, data, ttl)
  return {2, user_id}
end

local updated = string.sub(data, 1, 2)
  .. next_hash
  .. string.sub(data, 35, 50)
  .. write_be64(now_unix)
  .. string.sub(data, 59)
redis.call("SET", key, updated, "PX", ttl)

return {3, updated}
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

const invalidateScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if string.byte(data, 2) ~= 1 then
  return 1
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  local updated = string.sub(data, 1, 1) .. string.char(0) .. string.sub(data, 3)
  redis.call("SET", KEYS[1], updated, "PX", ttl)
end
return 1
`

var invalidateLua = redis.NewScript(invalidateScript)

const invalidateAllScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local marked = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  local data = redis.call("GET", key)
  if data and string.byte(data, 2) == 1 then
    local ttl = redis.call("PTTL", key)
    if ttl > 0 then
      local updated = string.sub(data, 1, 1) .. string.char(0) .. string.sub(data, 3)
      redis.call("SET", key, updated, "PX", ttl)
      marked = marked + 1
    end
  end
end
return marked
`

var invalidateAllLua = redis.NewScript(invalidateAllScript)

const updateDeviceTailScript = `
local key = KEYS[1]
local expected_hash = ARGV[1]
local tail = ARGV[2]

local data = redis.call("GET", key)
if not data then
  return 0
end
if string.byte(data, 1) ~= 1 or #data < 59 then
  return 0
end
if string.byte(data, 2) ~= 1 then
  return 0
end
if string.sub(data, 3, 34) ~= expected_hash then
  return 0
end
local ulen = string.byte(data, 59)
if not ulen or #data < 59 + ulen then
  return 0
end
local ttl = redis.call("PTTL", key)
if ttl <= 0 then
  return 0
end
local updated = string.sub(data, 1, 59 + ulen) .. tail
redis.call("SET", key, updated, "PX", ttl)
return 1
`

var updateDeviceTailLua = redis.NewScript(updateDeviceTailScript)

const deleteSessionScript = `
redis.call("SREM", KEYS[2], ARGV[1])
return redis.call("DEL", KEYS[1])
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is a Redis-backed session store handling persistence, expiration,
// sliding-window renewal, and atomic refresh-token rotation.
type Store struct {
	redis         redis.UniversalClient
	prefix        string
	sliding       bool
	jitterEnabled bool
	jitterRange   time.Duration
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the key namespace; sliding, jitterEnabled, and jitterRange
// control expiration behavior.
func NewStore(
	redis redis.UniversalClient,
	prefix string,
	sliding bool,
	jitterEnabled bool,
	jitterRange time.Duration,
) *Store {
	return &Store{
		redis:         redis,
		prefix:        prefix,
		sliding:       sliding,
		jitterEnabled: jitterEnabled,
		jitterRange:   jitterRange,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":se:" + sessionID
}

func (s *Store) keyPrefix() string {
	return s.prefix + ":se:"
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":us:" + userID
}

// Save persists a session with the given TTL and indexes it under its user.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get retrieves a session by ID, applying sliding expiration if enabled.
// An expired row is marked invalid and reported as redis.Nil. Invalid rows
// are returned as-is so callers can distinguish revoked from absent.
func (s *Store) Get(ctx context.Context, sessionID string, absoluteLifetime time.Duration) (*Session, error) {
	key := s.key(sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	sess.SessionID = sessionID

	now := time.Now()
	remaining := s.remainingAbsoluteTTL(sess, absoluteLifetime, now)
	if remaining <= 0 {
		if err := s.Invalidate(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, redis.Nil
	}

	if s.sliding && sess.Valid {
		nextTTL, err := s.nextSlidingTTL(remaining)
		if err != nil {
			return nil, err
		}
		if err := s.redis.Expire(ctx, key, nextTTL).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return sess, nil
}

// GetReadOnly fetches a session without touching TTL or any Redis state.
func (s *Store) GetReadOnly(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	sess.SessionID = sessionID
	if time.Now().Unix() > sess.ExpiresAt {
		return nil, redis.Nil
	}

	return sess, nil
}

// ListForUser returns the live sessions indexed under a user, skipping rows
// that have already fallen out of Redis.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	sessionIDs, err := s.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(sessionIDs) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(sessionIDs))
	for i, sid := range sessionIDs {
		cmds[i] = pipe.Get(ctx, s.key(sid))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions := make([]*Session, 0, len(sessionIDs))
	nowUnix := time.Now().Unix()
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}

		sess, decErr := Decode(data)
		if decErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, decErr)
		}
		sess.SessionID = sessionIDs[i]
		if nowUnix > sess.ExpiresAt {
			continue
		}
		sessions = append(sessions, sess)
	}

	return sessions, nil
}

// ActiveSessionIDs returns the session IDs indexed under a user.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Invalidate flips a session's validity flag to false, keeping the row
// under its remaining TTL. Idempotent; invalidating an absent or already
// invalid session is not an error.
func (s *Store) Invalidate(ctx context.Context, sessionID string) error {
	if err := invalidateLua.Run(ctx, s.redis, []string{s.key(sessionID)}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// InvalidateAllForUser marks every indexed session for a user invalid in
// one atomic script. This is the blast-radius response to replay detection
// and to "log out everywhere". Idempotent.
func (s *Store) InvalidateAllForUser(ctx context.Context, userID string) error {
	err := invalidateAllLua.Run(
		ctx,
		s.redis,
		[]string{s.userKey(userID)},
		s.keyPrefix(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete removes a session row and its user-index entry. Used for logout,
// where keeping the row has no forensic value.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}

	keys := []string{s.key(sessionID), s.userKey(sess.UserID)}
	if err := deleteSessionLua.Run(ctx, s.redis, keys, sessionID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every indexed session row for a user plus the
// index itself. Not fully atomic: a session created between the SMEMBERS
// read and the delete pipeline is not captured and will expire naturally.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, sid := range sessionIDs {
			pipe.Del(ctx, s.key(sid))
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// RotateRefreshHash atomically validates and replaces the refresh-token
// hash via a Lua compare-and-swap. This single script is what makes replay
// detection sound under concurrent rotation attempts: of two racing calls
// presenting the same token, exactly one observes a hash match.
//
// Returns the updated session on success. An invalid row or a hash
// mismatch on a valid row returns a [*ReplayError]; expiry marks the row
// invalid and returns [ErrRotateExpired].
func (s *Store) RotateRefreshHash(
	ctx context.Context,
	sessionID string,
	providedHash [32]byte,
	nextHash [32]byte,
) (*Session, error) {
	key := s.key(sessionID)
	result, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{key},
		providedHash[:],
		nextHash[:],
		time.Now().Unix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, ErrRotateNotFound
	case rotateStatusExpired:
		return nil, ErrRotateExpired
	case rotateStatusReplay:
		replay := &ReplayError{}
		if len(parts) > 1 {
			if uid, ok := scriptString(parts[1]); ok {
				replay.UserID = uid
			}
		}
		return nil, replay
	case rotateStatusRotated:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing updated session payload", ErrRedisUnavailable)
		}
		blob, ok := scriptString(parts[1])
		if !ok {
			return nil, fmt.Errorf("%w: invalid updated session payload", ErrRedisUnavailable)
		}
		sess, decErr := Decode([]byte(blob))
		if decErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, decErr)
		}
		sess.SessionID = sessionID
		return sess, nil
	case rotateStatusCorrupt:
		return nil, ErrSessionCorrupt
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

// UpdateDeviceMetadata rewrites the device tail (ip, user agent,
// fingerprint) of a session row, guarded by the same compare-and-swap
// discipline as rotation: the row must still be valid and still hold
// expectedHash. A row revoked or re-rotated in between is left untouched,
// so the validity flag never flips back to true. A guard miss is not an
// error; only transport failures are reported.
func (s *Store) UpdateDeviceMetadata(
	ctx context.Context,
	sessionID string,
	expectedHash [32]byte,
	ip, userAgent, fingerprint string,
) error {
	tail, err := encodeDeviceTail(ip, userAgent, fingerprint)
	if err != nil {
		return err
	}

	err = updateDeviceTailLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		expectedHash[:],
		tail,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func scriptString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return "", false
	}
}

func (s *Store) remainingAbsoluteTTL(sess *Session, absoluteLifetime time.Duration, now time.Time) time.Duration {
	storedExpiry := time.Unix(sess.ExpiresAt, 0)
	if absoluteLifetime <= 0 {
		return storedExpiry.Sub(now)
	}

	configCap := time.Unix(sess.CreatedAt, 0).Add(absoluteLifetime)
	if configCap.Before(storedExpiry) {
		return configCap.Sub(now)
	}

	return storedExpiry.Sub(now)
}

func (s *Store) nextSlidingTTL(remainingAbsolute time.Duration) (time.Duration, error) {
	nextTTL := remainingAbsolute

	if s.jitterEnabled && s.jitterRange > 0 {
		jitter, err := randomJitter(s.jitterRange)
		if err != nil {
			return 0, err
		}
		nextTTL += jitter
	}

	if nextTTL > remainingAbsolute {
		nextTTL = remainingAbsolute
	}

	minTTL := minSlidingTTL
	if remainingAbsolute < minTTL {
		minTTL = remainingAbsolute
	}
	if nextTTL < minTTL {
		nextTTL = minTTL
	}

	return nextTTL, nil
}

func randomJitter(jitterRange time.Duration) (time.Duration, error) {
	if jitterRange <= 0 {
		return 0, nil
	}

	max := jitterRange.Nanoseconds()
	if max > (math.MaxInt64-1)/2 {
		return 0, errors.New("jitter range too large")
	}
	span := max*2 + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return 0, err
	}

	return time.Duration(n.Int64() - max), nil
}
