// Copyright (c) 2026 Pressdeck. All rights reserved.

package token

import (
	"context"
	"time"
)

// Store defines the persistence contract for ephemeral tokens.
type Store interface {

	/*
		Insert persists a freshly issued token record.

		Parameters:
		  - ctx: context.Context
		  - record: *Token

		Returns:
		  - error: Persistence failures
	*/
	Insert(ctx context.Context, record *Token) error

	/*
		Consume atomically redeems the token matching tokenHash and purpose.

		Description: Implementations must perform the used=false→true
		transition as a single conditional update — never read-then-write —
		and classify a claim failure as [ErrNotFound], [ErrExpired], or
		[ErrAlreadyUsed].

		Parameters:
		  - ctx: context.Context
		  - tokenHash: SHA-256 hex digest of the plaintext token
		  - purpose: Redemption purpose; mismatches report [ErrNotFound]
		  - now: The redemption instant

		Returns:
		  - *Token: The redeemed record
		  - error: Token error kinds or storage failures
	*/
	Consume(ctx context.Context, tokenHash string, purpose Purpose, now time.Time) (*Token, error)

	/*
		DeleteExpired removes tokens whose expiry has passed.

		Returns:
		  - int64: Number of rows removed
		  - error: Persistence failures
	*/
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
