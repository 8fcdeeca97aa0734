// Copyright (c) 2026 Pressdeck. All rights reserved.

package auth

import "context"

// # Store Interface

// Store is the persistence boundary for accounts. Implementations must treat
// soft-deleted rows as absent.
type Store interface {
	// Insert persists a new account. Returns ErrEmailTaken when the email
	// collides with a live row.
	Insert(ctx context.Context, account *Account) error

	// FindByID returns the account with the given ID, or ErrAccountNotFound.
	FindByID(ctx context.Context, id string) (*Account, error)

	// FindByEmail returns the account with the given email (compared
	// case-insensitively), or ErrAccountNotFound.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}
