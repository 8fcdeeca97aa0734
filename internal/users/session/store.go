// Copyright (c) 2026 Pressdeck. All rights reserved.

package session

import (
	"context"
	"time"
)

// # Store Interface

// Store is the persistence boundary for session rows.
type Store interface {
	// Insert persists a freshly issued session.
	Insert(ctx context.Context, session *Session) error

	// FindByID returns the session, revoked or not, or ErrSessionNotFound.
	FindByID(ctx context.Context, id string) (*Session, error)

	// ListByUser returns all live (unrevoked, unexpired) sessions for an
	// account, newest first.
	ListByUser(ctx context.Context, userID string, now time.Time) ([]*Session, error)

	// UpdateActivity moves the idle-timeout anchor forward.
	UpdateActivity(ctx context.Context, id string, at time.Time) error

	// Revoke marks a single session revoked. Revoking twice is a no-op;
	// ok reports whether this call performed the transition.
	Revoke(ctx context.Context, id string, at time.Time) (ok bool, err error)

	// RevokeAll revokes every live session of an account except the given
	// one (pass "" to revoke all). Returns the number revoked.
	RevokeAll(ctx context.Context, userID, exceptID string, at time.Time) (int64, error)

	// DeleteExpired removes rows past their absolute expiry.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
