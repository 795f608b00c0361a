package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps every backend failure returned by [Store].
var ErrUnavailable = errors.New("session store unavailable")

// ErrInvalidTTL is returned when a write is attempted with a non-positive TTL.
var ErrInvalidTTL = errors.New("session store ttl must be > 0")

const storeRefreshScript = `
redis.call("SET", KEYS[1], "1", "PX", ARGV[1])
redis.call("SADD", KEYS[2], ARGV[2])
local ttl = redis.call("PTTL", KEYS[2])
if ttl < tonumber(ARGV[1]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[1])
end
return 1
`

var storeRefreshLua = redis.NewScript(storeRefreshScript)

const consumeRefreshScript = `
local removed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return removed
`

var consumeRefreshLua = redis.NewScript(consumeRefreshScript)

const rotateRefreshScript = `
if redis.call("DEL", KEYS[1]) == 0 then
  redis.call("SREM", KEYS[3], ARGV[2])
  return 0
end
redis.call("SREM", KEYS[3], ARGV[2])
redis.call("SET", KEYS[2], "1", "PX", ARGV[1])
redis.call("SADD", KEYS[3], ARGV[3])
local ttl = redis.call("PTTL", KEYS[3])
if ttl < tonumber(ARGV[1]) then
  redis.call("PEXPIRE", KEYS[3], ARGV[1])
end
return 1
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

const removeAllRefreshScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local removed = 0
for _, id in ipairs(ids) do
  removed = removed + redis.call("DEL", ARGV[1] .. id)
end
redis.call("DEL", KEYS[1])
return removed
`

var removeAllRefreshLua = redis.NewScript(removeAllRefreshScript)

const incrementAttemptsScript = `
local count = redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[1])
return count
`

var incrementAttemptsLua = redis.NewScript(incrementAttemptsScript)

// Store is the Redis-backed session store. It holds refresh-token entries,
// the access-token blacklist and login-attempt counters. Every operation is
// a single command or a single Lua script, so concurrent callers never
// race on read-modify-write sequences. Entries carry TTLs and expire on
// their own.
//
// Keys for one subject carry the subject as a hash tag
// (prefix:{sub}:rt:<id> and prefix:{sub}:rts), so each refresh script only
// touches keys in a single cluster slot.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a [Store] backed by the given Redis client. prefix
// namespaces every key the store writes.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "sa"
	}
	return &Store{
		redis:  redis,
		prefix: prefix,
	}
}

func (s *Store) subjectTag(subjectID string) string {
	return s.prefix + ":{" + subjectID + "}"
}

func (s *Store) refreshKeyBase(subjectID string) string {
	return s.subjectTag(subjectID) + ":rt:"
}

func (s *Store) refreshKey(subjectID, tokenID string) string {
	return s.refreshKeyBase(subjectID) + tokenID
}

func (s *Store) refreshIndexKey(subjectID string) string {
	return s.subjectTag(subjectID) + ":rts"
}

func (s *Store) blacklistKey(tokenKey string) string {
	return s.prefix + ":bl:" + tokenKey
}

func (s *Store) attemptsKey(identifier string) string {
	return s.prefix + ":la:" + identifier
}

// TokenDigest returns the fixed-length key under which a token is
// blacklisted, so the raw token never reaches the store.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// StoreRefresh records a refresh entry for (subjectID, tokenID) that
// expires after ttl and adds it to the subject's index.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) StoreRefresh(ctx context.Context, subjectID, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	err := storeRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.refreshKey(subjectID, tokenID), s.refreshIndexKey(subjectID)},
		ttl.Milliseconds(),
		tokenID,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsRefreshValid reports whether the refresh entry exists and is unexpired.
//
//	Performance: 1 Redis EXISTS.
func (s *Store) IsRefreshValid(ctx context.Context, subjectID, tokenID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.refreshKey(subjectID, tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

// RemoveRefresh deletes one refresh entry. Deleting a missing entry is
// not an error.
func (s *Store) RemoveRefresh(ctx context.Context, subjectID, tokenID string) error {
	if _, err := s.ConsumeRefresh(ctx, subjectID, tokenID); err != nil {
		return err
	}
	return nil
}

// ConsumeRefresh atomically checks and deletes a refresh entry. Exactly
// one of any number of concurrent callers presenting the same entry
// observes true; the rest observe false.
//
//	Performance: 1 Lua EVALSHA.
//	Security: closes the check-then-delete window during rotation.
func (s *Store) ConsumeRefresh(ctx context.Context, subjectID, tokenID string) (bool, error) {
	removed, err := consumeRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.refreshKey(subjectID, tokenID), s.refreshIndexKey(subjectID)},
		tokenID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return removed == 1, nil
}

// RotateRefresh deletes the entry oldID and stores newID with ttl in one
// script. When oldID is already gone it writes nothing and reports false,
// so a successor can never outlive a RemoveAllRefresh that ran first.
//
//	Performance: 1 Lua EVALSHA.
//	Security: exactly one of several concurrent rotations of oldID wins.
func (s *Store) RotateRefresh(ctx context.Context, subjectID, oldID, newID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	rotated, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{
			s.refreshKey(subjectID, oldID),
			s.refreshKey(subjectID, newID),
			s.refreshIndexKey(subjectID),
		},
		ttl.Milliseconds(),
		oldID,
		newID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rotated == 1, nil
}

// RemoveAllRefresh deletes every refresh entry indexed for subjectID and
// returns how many live entries were removed. The index walk and the
// deletes run inside one script. A login that stores its entry after the
// script survives; a rotation that runs after it finds its old entry gone
// and stores nothing.
func (s *Store) RemoveAllRefresh(ctx context.Context, subjectID string) (int, error) {
	removed, err := removeAllRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.refreshIndexKey(subjectID)},
		s.refreshKeyBase(subjectID),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(removed), nil
}

// ActiveRefreshIDs returns the token IDs still indexed for subjectID,
// skipping index members whose entry already expired.
func (s *Store) ActiveRefreshIDs(ctx context.Context, subjectID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.refreshIndexKey(subjectID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return []string{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Exists(ctx, s.refreshKey(subjectID, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	live := make([]string, 0, len(ids))
	for i, cmd := range cmds {
		if cmd.Val() == 1 {
			live = append(live, ids[i])
		}
	}
	return live, nil
}

// Blacklist marks tokenKey revoked for ttl. Callers pass [TokenDigest]
// of the token and its remaining lifetime.
//
//	Performance: 1 Redis SET PX.
func (s *Store) Blacklist(ctx context.Context, tokenKey string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if err := s.redis.Set(ctx, s.blacklistKey(tokenKey), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether tokenKey carries a live revocation record.
//
//	Performance: 1 Redis EXISTS.
func (s *Store) IsBlacklisted(ctx context.Context, tokenKey string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.blacklistKey(tokenKey)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

// IncrementAttempts atomically increments the counter for identifier and
// (re)arms its expiry to ttl, returning the new count.
//
//	Performance: 1 Lua EVALSHA (INCR + PEXPIRE).
func (s *Store) IncrementAttempts(ctx context.Context, identifier string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, ErrInvalidTTL
	}
	count, err := incrementAttemptsLua.Run(
		ctx,
		s.redis,
		[]string{s.attemptsKey(identifier)},
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

// GetAttempts returns the current counter for identifier. Missing keys
// read as zero.
func (s *Store) GetAttempts(ctx context.Context, identifier string) (int64, error) {
	count, err := s.redis.Get(ctx, s.attemptsKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

// AttemptsTTL returns how long the counter for identifier has left. Zero
// means no counter.
func (s *Store) AttemptsTTL(ctx context.Context, identifier string) (time.Duration, error) {
	ttl, err := s.redis.PTTL(ctx, s.attemptsKey(identifier)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// ResetAttempts deletes the counters for every identifier given.
func (s *Store) ResetAttempts(ctx context.Context, identifiers ...string) error {
	if len(identifiers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		keys = append(keys, s.attemptsKey(id))
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
