// Copyright (c) 2026 Pressdeck. All rights reserved.

package lockout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is a deterministic in-memory Store with the same rolling
// window and lock semantics as the Redis implementation.
type memoryStore struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	locks    map[string]time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		failures: make(map[string][]time.Time),
		locks:    make(map[string]time.Time),
	}
}

func (s *memoryStore) RecordFailure(_ context.Context, key string, now time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.failures[key][:0]
	for _, at := range s.failures[key] {
		if at.After(now.Add(-Window)) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, now)
	s.failures[key] = kept

	if len(kept) >= Threshold {
		lockedUntil := now.Add(LockDuration)
		s.locks[key] = lockedUntil
		return len(kept), lockedUntil, nil
	}
	return len(kept), time.Time{}, nil
}

func (s *memoryStore) ClearFailures(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, key)
	return nil
}

func (s *memoryStore) GetLock(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lockedUntil, ok := s.locks[key]
	return lockedUntil, ok, nil
}

func (s *memoryStore) CountFailures(_ context.Context, key string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, at := range s.failures[key] {
		if at.After(now.Add(-Window)) {
			count++
		}
	}
	return count, nil
}

// expireLock simulates Redis TTL expiry of the lock key.
func (s *memoryStore) expireLock(key string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lockedUntil, ok := s.locks[key]; ok && !lockedUntil.After(now) {
		delete(s.locks, key)
	}
}

func newTestTracker(store Store, at time.Time) (*Tracker, *time.Time) {
	clock := at
	tracker := NewTracker(store)
	tracker.now = func() time.Time { return clock }
	return tracker, &clock
}

/*
TestTracker_LocksAtThreshold verifies that the third failure inside the
window triggers a lock with the policy duration.
*/
func TestTracker_LocksAtThreshold(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker, _ := newTestTracker(newMemoryStore(), start)

	// 1. Two failures leave the key unlocked with one attempt remaining.
	status, err := tracker.RecordAttempt(ctx, "email:a@b.c", false)
	require.NoError(t, err)
	assert.False(t, status.Locked)
	assert.Equal(t, 2, status.RemainingAttempts)

	status, err = tracker.RecordAttempt(ctx, "email:a@b.c", false)
	require.NoError(t, err)
	assert.False(t, status.Locked)
	assert.Equal(t, 1, status.RemainingAttempts)

	// 2. The third failure locks the key.
	status, err = tracker.RecordAttempt(ctx, "email:a@b.c", false)
	require.NoError(t, err)
	assert.True(t, status.Locked)
	assert.Equal(t, start.Add(LockDuration), status.LockedUntil)

	// 3. Check reports the lock.
	status, err = tracker.Check(ctx, "email:a@b.c")
	require.NoError(t, err)
	assert.True(t, status.Locked)
}

/*
TestTracker_WindowPrunesOldFailures verifies that failures older than the
rolling window do not count toward the threshold.
*/
func TestTracker_WindowPrunesOldFailures(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker, clock := newTestTracker(newMemoryStore(), start)

	// 1. Two failures now.
	_, err := tracker.RecordAttempt(ctx, "k", false)
	require.NoError(t, err)
	_, err = tracker.RecordAttempt(ctx, "k", false)
	require.NoError(t, err)

	// 2. A third failure just past the window does not lock: the first two
	//    have aged out.
	*clock = start.Add(Window + time.Second)
	status, err := tracker.RecordAttempt(ctx, "k", false)
	require.NoError(t, err)
	assert.False(t, status.Locked)
	assert.Equal(t, 2, status.RemainingAttempts)
}

/*
TestTracker_SuccessClearsFailures verifies that a successful attempt resets
the counter so failures do not accumulate across successful logins.
*/
func TestTracker_SuccessClearsFailures(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker, _ := newTestTracker(newMemoryStore(), start)

	_, err := tracker.RecordAttempt(ctx, "k", false)
	require.NoError(t, err)
	_, err = tracker.RecordAttempt(ctx, "k", false)
	require.NoError(t, err)

	// 1. Success resets the counter.
	status, err := tracker.RecordAttempt(ctx, "k", true)
	require.NoError(t, err)
	assert.Equal(t, Threshold, status.RemainingAttempts)

	// 2. Two more failures still do not lock.
	_, err = tracker.RecordAttempt(ctx, "k", false)
	require.NoError(t, err)
	status, err = tracker.RecordAttempt(ctx, "k", false)
	require.NoError(t, err)
	assert.False(t, status.Locked)
}

/*
TestTracker_SuccessDoesNotClearActiveLock verifies that once locked, a key
stays locked for the full duration even if a success is recorded.
*/
func TestTracker_SuccessDoesNotClearActiveLock(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	tracker, _ := newTestTracker(store, start)

	for i := 0; i < Threshold; i++ {
		_, err := tracker.RecordAttempt(ctx, "k", false)
		require.NoError(t, err)
	}

	// A success only clears the failure history, never the lock.
	_, err := tracker.RecordAttempt(ctx, "k", true)
	require.NoError(t, err)

	status, err := tracker.Check(ctx, "k")
	require.NoError(t, err)
	assert.True(t, status.Locked)
}

/*
TestTracker_LockExpires verifies that the key unlocks once the lock TTL
passes.
*/
func TestTracker_LockExpires(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	tracker, clock := newTestTracker(store, start)

	for i := 0; i < Threshold; i++ {
		_, err := tracker.RecordAttempt(ctx, "k", false)
		require.NoError(t, err)
	}

	// Lock key expires in storage after LockDuration.
	*clock = start.Add(LockDuration + time.Second)
	store.expireLock("k", *clock)

	status, err := tracker.Check(ctx, "k")
	require.NoError(t, err)
	assert.False(t, status.Locked)
}

/*
TestTracker_KeysAreIndependent verifies that failures on one key never
affect another.
*/
func TestTracker_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker, _ := newTestTracker(newMemoryStore(), start)

	for i := 0; i < Threshold; i++ {
		_, err := tracker.RecordAttempt(ctx, "email:a@b.c", false)
		require.NoError(t, err)
	}

	status, err := tracker.Check(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, status.Locked)
	assert.Equal(t, Threshold, status.RemainingAttempts)
}
