// Copyright (c) 2026 Pressdeck. All rights reserved.

/*
Package lockout implements the brute-force lockout tracker.

It counts failed authentication attempts per key (account ID or client IP)
inside a rolling window and locks the key once the threshold is reached.
State lives in Redis — never in process memory — because the dashboard runs
as multiple replicas and a process-local map would under-count attackers
that spread requests across instances.

# Atomicity

Recording a failure, pruning the window, checking the threshold, and
creating the lock happen inside a single Redis Lua script, so two parallel
failing requests can never under-count a lockout.
*/
package lockout

import (
	"context"
	"time"
)

// # Policy

const (
	// Threshold is the number of failed attempts that triggers a lock.
	Threshold = 3

	// Window is the rolling window in which failures are counted.
	// Failures older than the window do not count toward the threshold.
	Window = 15 * time.Minute

	// LockDuration is how long a key stays locked, measured from the
	// failure that triggered the lock.
	LockDuration = 15 * time.Minute
)

// # Types

// Status is the result of a lockout check.
type Status struct {
	// Locked reports whether the key is currently locked out.
	Locked bool

	// LockedUntil is the lock expiry. Zero when not locked.
	LockedUntil time.Time

	// RemainingAttempts is how many more failures the key can absorb
	// before locking. Zero when locked.
	RemainingAttempts int
}

// Store defines the shared-storage contract for lockout state.
//
// Implementations must make RecordFailure atomic per key: the count
// increment, window pruning, threshold comparison, and lock creation are
// one indivisible operation.
type Store interface {
	// RecordFailure registers one failure at the given instant and returns
	// the in-window failure count plus the lock expiry (zero if the
	// threshold was not reached).
	RecordFailure(ctx context.Context, key string, now time.Time) (count int, lockedUntil time.Time, err error)

	// ClearFailures drops the failure history for a key. It must not touch
	// an active lock.
	ClearFailures(ctx context.Context, key string) error

	// GetLock returns the lock expiry for a key, or ok=false when the key
	// is not locked.
	GetLock(ctx context.Context, key string) (lockedUntil time.Time, ok bool, err error)

	// CountFailures returns the number of in-window failures for a key.
	CountFailures(ctx context.Context, key string, now time.Time) (int, error)
}

// # Tracker

// Tracker applies the lockout policy on top of a [Store].
type Tracker struct {
	store Store

	// now is swappable for tests.
	now func() time.Time
}

// NewTracker constructs a [Tracker].
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

/*
RecordAttempt registers the outcome of an authentication attempt.

Description: A failure increments the in-window counter and may trigger a
lock; a success clears the counter. A success never removes an active lock —
once locked, the key stays locked until the lock expires (a correct-password
attempt cannot reach this point anyway, because [Tracker.Check] gates entry
before credential comparison).

Parameters:
  - ctx: context.Context
  - key: Account ID or client IP
  - success: Whether the attempt authenticated

Returns:
  - Status: The key's lockout state after the attempt
  - error: Storage failures
*/
func (tracker *Tracker) RecordAttempt(ctx context.Context, key string, success bool) (Status, error) {
	if success {
		if err := tracker.store.ClearFailures(ctx, key); err != nil {
			return Status{}, err
		}
		return Status{RemainingAttempts: Threshold}, nil
	}

	count, lockedUntil, err := tracker.store.RecordFailure(ctx, key, tracker.now())
	if err != nil {
		return Status{}, err
	}

	if !lockedUntil.IsZero() {
		return Status{Locked: true, LockedUntil: lockedUntil}, nil
	}

	remaining := Threshold - count
	if remaining < 0 {
		remaining = 0
	}
	return Status{RemainingAttempts: remaining}, nil
}

/*
Check reports whether a key is currently locked out.

Description: If a non-expired lock exists, it short-circuits with
locked=true without consulting the raw attempt history.

Parameters:
  - ctx: context.Context
  - key: Account ID or client IP

Returns:
  - Status: Lock state and remaining attempts
  - error: Storage failures
*/
func (tracker *Tracker) Check(ctx context.Context, key string) (Status, error) {
	lockedUntil, locked, err := tracker.store.GetLock(ctx, key)
	if err != nil {
		return Status{}, err
	}
	if locked {
		return Status{Locked: true, LockedUntil: lockedUntil}, nil
	}

	count, err := tracker.store.CountFailures(ctx, key, tracker.now())
	if err != nil {
		return Status{}, err
	}

	remaining := Threshold - count
	if remaining < 0 {
		remaining = 0
	}
	return Status{RemainingAttempts: remaining}, nil
}
