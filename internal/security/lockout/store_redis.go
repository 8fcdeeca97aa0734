// Copyright (c) 2026 Pressdeck. All rights reserved.

package lockout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pressdeck/pressdeck/internal/platform/constants"
	"github.com/pressdeck/pressdeck/pkg/uuidv7"
)

// recordFailureScript runs the whole failure transition atomically:
// prune the rolling window, add the new failure, and create the lock if the
// threshold is reached. It returns {count, lockedUntilMillis} where
// lockedUntilMillis is 0 when no lock was created.
//
// KEYS[1] = failure sorted set, KEYS[2] = lock key
// ARGV[1] = now (ms), ARGV[2] = window (ms), ARGV[3] = threshold,
// ARGV[4] = lock duration (ms), ARGV[5] = unique member
var recordFailureScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local threshold = tonumber(ARGV[3])
local lockMs = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
redis.call('ZADD', KEYS[1], now, ARGV[5])
redis.call('PEXPIRE', KEYS[1], window)

local count = redis.call('ZCARD', KEYS[1])
if count >= threshold then
	local lockedUntil = now + lockMs
	redis.call('SET', KEYS[2], lockedUntil, 'PX', lockMs)
	return {count, lockedUntil}
end
return {count, 0}
`)

// RedisStore implements [Store] on Redis.
//
// Failures are a sorted set of timestamps (score = millis) so the rolling
// window is exact; the lock is a plain key whose value is the lock expiry
// and whose TTL enforces it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed lockout [Store].
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

/*
RecordFailure registers one failure atomically via [recordFailureScript].

Parameters:
  - ctx: context.Context
  - key: Account ID or client IP
  - now: The failure instant

Returns:
  - int: In-window failure count after this failure
  - time.Time: Lock expiry (zero when no lock was created)
  - error: Execution errors
*/
func (store *RedisStore) RecordFailure(ctx context.Context, key string, now time.Time) (int, time.Time, error) {
	keys := []string{failuresKey(key), lockKey(key)}
	args := []any{
		now.UnixMilli(),
		Window.Milliseconds(),
		Threshold,
		LockDuration.Milliseconds(),
		uuidv7.New(),
	}

	result, err := recordFailureScript.Run(ctx, store.client, keys, args...).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("lockout_store_record_failure_failed: %w", err)
	}
	if len(result) != 2 {
		return 0, time.Time{}, fmt.Errorf("lockout_store_record_failure_bad_reply: got %d values", len(result))
	}

	count := int(result[0])
	if result[1] == 0 {
		return count, time.Time{}, nil
	}
	return count, time.UnixMilli(result[1]), nil
}

/*
ClearFailures drops the failure history for a key.

Description: The lock key is intentionally left alone — a success cannot
retroactively unlock an active lock.
*/
func (store *RedisStore) ClearFailures(ctx context.Context, key string) error {
	if err := store.client.Del(ctx, failuresKey(key)).Err(); err != nil {
		return fmt.Errorf("lockout_store_clear_failed: %w", err)
	}
	return nil
}

/*
GetLock returns the lock expiry for a key.

Returns:
  - time.Time: Lock expiry
  - bool: Whether a live lock exists
  - error: Connectivity errors
*/
func (store *RedisStore) GetLock(ctx context.Context, key string) (time.Time, bool, error) {
	value, err := store.client.Get(ctx, lockKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("lockout_store_get_lock_failed: %w", err)
	}

	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("lockout_store_parse_lock_failed: %w", err)
	}

	return time.UnixMilli(millis), true, nil
}

/*
CountFailures returns the number of in-window failures for a key.
*/
func (store *RedisStore) CountFailures(ctx context.Context, key string, now time.Time) (int, error) {
	windowStart := strconv.FormatInt(now.Add(-Window).UnixMilli(), 10)

	count, err := store.client.ZCount(ctx, failuresKey(key), windowStart, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("lockout_store_count_failed: %w", err)
	}

	return int(count), nil
}

// failuresKey builds the sorted-set key for a lockout subject.
func failuresKey(key string) string {
	return constants.RedisPrefixLockoutFailures + key
}

// lockKey builds the lock key for a lockout subject.
func lockKey(key string) string {
	return constants.RedisPrefixLockoutLock + key
}
