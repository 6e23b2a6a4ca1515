package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps transport-level Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrRecordNotFound is returned when the session key does not exist.
	ErrRecordNotFound = errors.New("session record not found")
	// ErrRecordExpired is returned when the stored expiry has passed.
	ErrRecordExpired = errors.New("session record expired")
	// ErrRecordCorrupt is returned when the stored blob cannot be parsed.
	ErrRecordCorrupt = errors.New("session record corrupt")
	// ErrRefreshHashMismatch signals a presented refresh secret that is not current.
	ErrRefreshHashMismatch = errors.New("refresh hash mismatch")
)

const (
	scriptStatusNotFound    int64 = 0
	scriptStatusExpired     int64 = 1
	scriptStatusMismatch    int64 = 2
	scriptStatusOK          int64 = 3
	scriptStatusInvalidBlob int64 = 4
	scriptStatusUnchanged   int64 = 5
)

// Offsets below are 1-based Lua string positions for the v1 layout in encoder.go.
const rotateRefreshScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end
if string.byte(data, 1) ~= 1 or #data < 55 then
  return {4}
end

local expires_at = 0
for i = 47, 54 do
  expires_at = expires_at * 256 + string.byte(data, i)
end
if expires_at <= tonumber(ARGV[3]) then
  redis.call("DEL", KEYS[1])
  return {1}
end

if string.sub(data, 2, 33) ~= ARGV[1] then
  redis.call("DEL", KEYS[1])
  return {2}
end

local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  redis.call("DEL", KEYS[1])
  return {1}
end

local updated = string.sub(data, 1, 1) .. ARGV[2] .. string.sub(data, 34)
redis.call("SET", KEYS[1], updated, "PX", ttl)
return {3, updated}
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

const markCompactScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end
if string.byte(data, 1) ~= 1 or #data < 55 then
  return {4}
end

local flags = string.byte(data, 34)
if flags % 2 == 1 then
  return {5}
end

local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  return {1}
end

local updated = string.sub(data, 1, 33) .. string.char(flags + 1) .. string.sub(data, 35)
redis.call("SET", KEYS[1], updated, "PX", ttl)
return {3}
`

var markCompactLua = redis.NewScript(markCompactScript)

// Store is a Redis-backed [Record] store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a [Store]; prefix namespaces every key.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "sf"
	}
	return &Store{redis: rdb, prefix: prefix}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

// Save persists r with ttl.
func (s *Store) Save(ctx context.Context, r *Record, ttl time.Duration) error {
	if r == nil || r.SessionID == "" {
		return errors.New("record requires session id")
	}
	data, err := Encode(r)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(r.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads the record for sessionID without mutating it.
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	r, err := Decode(data)
	if err != nil {
		return nil, errors.Join(ErrRecordCorrupt, err)
	}
	r.SessionID = sessionID
	if time.Now().Unix() >= r.ExpiresAt {
		return nil, ErrRecordExpired
	}
	return r, nil
}

// Rotate swaps the refresh hash from provided to next in one round trip.
// A mismatch deletes the session: a stale secret means the token was replayed.
func (s *Store) Rotate(ctx context.Context, sessionID string, provided, next [32]byte) (*Record, error) {
	result, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		provided[:],
		next[:],
		time.Now().Unix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	code, parts, err := scriptStatus(result)
	if err != nil {
		return nil, err
	}

	switch code {
	case scriptStatusNotFound:
		return nil, ErrRecordNotFound
	case scriptStatusExpired:
		return nil, ErrRecordExpired
	case scriptStatusMismatch:
		return nil, ErrRefreshHashMismatch
	case scriptStatusInvalidBlob:
		return nil, ErrRecordCorrupt
	case scriptStatusOK:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing updated session payload", ErrRedisUnavailable)
		}
		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid updated session payload", ErrRedisUnavailable)
		}
		r, decErr := Decode(blob)
		if decErr != nil {
			return nil, errors.Join(ErrRecordCorrupt, decErr)
		}
		r.SessionID = sessionID
		return r, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status %d", ErrRedisUnavailable, code)
	}
}

// MarkCompact flags the session so future refreshes mint compact tokens.
// It reports false when the session was already compact.
func (s *Store) MarkCompact(ctx context.Context, sessionID string) (bool, error) {
	result, err := markCompactLua.Run(ctx, s.redis, []string{s.key(sessionID)}).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	code, _, err := scriptStatus(result)
	if err != nil {
		return false, err
	}

	switch code {
	case scriptStatusOK:
		return true, nil
	case scriptStatusUnchanged:
		return false, nil
	case scriptStatusNotFound:
		return false, ErrRecordNotFound
	case scriptStatusExpired:
		return false, ErrRecordExpired
	case scriptStatusInvalidBlob:
		return false, ErrRecordCorrupt
	default:
		return false, fmt.Errorf("%w: unknown compact script status %d", ErrRedisUnavailable, code)
	}
}

// Delete removes the session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
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

func scriptStatus(result interface{}) (int64, []interface{}, error) {
	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return 0, nil, fmt.Errorf("%w: invalid script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return 0, nil, fmt.Errorf("%w: invalid script status", ErrRedisUnavailable)
	}
	return code, parts, nil
}
