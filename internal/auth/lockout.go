package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LockoutStore tracks consecutive login failures per account and enforces
// the cooldown. All mutations are atomic so concurrent attempts observe a
// consistent count.
type LockoutStore interface {
	// Locked reports whether the account is inside a lockout cooldown.
	Locked(ctx context.Context, accountID uuid.UUID) (bool, error)
	// RecordFailure increments the failure count and returns true when the
	// account just crossed the threshold and is now locked.
	RecordFailure(ctx context.Context, accountID uuid.UUID) (bool, error)
	// Reset clears the failure count after a fully successful login.
	Reset(ctx context.Context, accountID uuid.UUID) error
}

// ReplayStore records the last TOTP counter consumed per account so that a
// correct code cannot be accepted twice. ConsumeCounter must be atomic:
// of two concurrent attempts with the same counter, exactly one wins.
type ReplayStore interface {
	ConsumeCounter(ctx context.Context, accountID uuid.UUID, counter int64) (bool, error)
}

// LockoutPolicy bounds the failure window and cooldown.
type LockoutPolicy struct {
	MaxFailures int
	Window      time.Duration
	Cooldown    time.Duration
}

const (
	lockoutFailPrefix = "auth:lockout:fail:"
	lockoutLockPrefix = "auth:lockout:lock:"
	replayKeyPrefix   = "auth:totp:last:"
)

// RedisLockoutStore implements LockoutStore and ReplayStore on Redis.
// INCR with a window expiry gives atomic failure counting; the replay
// compare-and-set runs as a Lua script so check and record are one step.
type RedisLockoutStore struct {
	client *redis.Client
	policy LockoutPolicy
}

var (
	_ LockoutStore = (*RedisLockoutStore)(nil)
	_ ReplayStore  = (*RedisLockoutStore)(nil)
)

// consumeCounterScript sets the last-consumed counter only if it advances.
var consumeCounterScript = redis.NewScript(`
local last = tonumber(redis.call('GET', KEYS[1]) or '-1')
local c = tonumber(ARGV[1])
if c > last then
	redis.call('SET', KEYS[1], c, 'EX', ARGV[2])
	return 1
end
return 0
`)

// NewRedisLockoutStore creates a Redis-backed lockout/replay store.
func NewRedisLockoutStore(client *redis.Client, policy LockoutPolicy) *RedisLockoutStore {
	return &RedisLockoutStore{client: client, policy: policy}
}

// Locked checks the cooldown flag.
func (s *RedisLockoutStore) Locked(ctx context.Context, accountID uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, lockoutLockPrefix+accountID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("lockout check: %w", err)
	}
	return n > 0, nil
}

// RecordFailure bumps the windowed failure counter and flips the account
// into cooldown when the threshold is reached.
func (s *RedisLockoutStore) RecordFailure(ctx context.Context, accountID uuid.UUID) (bool, error) {
	failKey := lockoutFailPrefix + accountID.String()
	count, err := s.client.Incr(ctx, failKey).Result()
	if err != nil {
		return false, fmt.Errorf("record failure: %w", err)
	}
	if count == 1 {
		// First failure opens the window.
		if err := s.client.Expire(ctx, failKey, s.policy.Window).Err(); err != nil {
			return false, fmt.Errorf("set failure window: %w", err)
		}
	}
	if count < int64(s.policy.MaxFailures) {
		return false, nil
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, lockoutLockPrefix+accountID.String(), 1, s.policy.Cooldown)
	pipe.Del(ctx, failKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("apply lockout: %w", err)
	}
	return true, nil
}

// Reset clears the failure counter. The cooldown flag is left alone; a
// locked account stays locked until the cooldown lapses.
func (s *RedisLockoutStore) Reset(ctx context.Context, accountID uuid.UUID) error {
	return s.client.Del(ctx, lockoutFailPrefix+accountID.String()).Err()
}

// ConsumeCounter advances the last-consumed TOTP counter, rejecting any
// counter at or below the previous one. The record outlives the accept
// window by a wide margin so clock drift cannot resurrect an old counter.
func (s *RedisLockoutStore) ConsumeCounter(ctx context.Context, accountID uuid.UUID, counter int64) (bool, error) {
	ttlSeconds := int64((totpSkew + 2) * totpPeriod * 10)
	res, err := consumeCounterScript.Run(ctx, s.client,
		[]string{replayKeyPrefix + accountID.String()}, counter, ttlSeconds).Int64()
	if err != nil {
		return false, fmt.Errorf("consume totp counter: %w", err)
	}
	return res == 1, nil
}
