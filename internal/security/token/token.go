// Copyright (c) 2026 Pressdeck. All rights reserved.

/*
Package token implements the single-use, time-limited ephemeral token broker.

One primitive serves every multi-step hand-off in the platform: the
two-factor challenge between password check and code entry, the two tokens
of the magic-login flow, and password resets. A token is an opaque random
string; the broker persists only its SHA-256 hash together with purpose,
subject, payload, and expiry.

# Single-Use Invariant

Exactly one successful redemption is possible. The used=false→true
transition is a single conditional UPDATE in storage, so two concurrent
redemption attempts — a realistic replay/retry pattern — produce exactly
one winner; the loser observes the already-mutated state and gets
[ErrAlreadyUsed].
*/
package token

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pressdeck/pressdeck/internal/platform/apperr"
	"github.com/pressdeck/pressdeck/internal/platform/sec"
	"github.com/pressdeck/pressdeck/pkg/uuidv7"
)

// # Purposes & TTL Policy

// Purpose tags what flow a token belongs to. Redemption is purpose-checked:
// a token issued for one flow can never complete another.
type Purpose string

const (
	PurposeTwoFAChallenge  Purpose = "two_fa_challenge"
	PurposeMagicLoginOTP   Purpose = "magic_login_otp"
	PurposeMagicLoginFinal Purpose = "magic_login_final"
	PurposePasswordReset   Purpose = "password_reset"
)

// TTLFor returns the policy TTL for a purpose.
func TTLFor(purpose Purpose) time.Duration {
	switch purpose {
	case PurposeTwoFAChallenge:
		return 5 * time.Minute
	case PurposeMagicLoginOTP:
		return 2 * time.Minute
	case PurposeMagicLoginFinal:
		return 5 * time.Minute
	case PurposePasswordReset:
		return 1 * time.Hour
	default:
		return 5 * time.Minute
	}
}

// tokenByteLength is the entropy of the opaque token string (256 bits).
const tokenByteLength = 32

// # Error Kinds

var (
	// ErrNotFound: the token was never issued (or was issued for a
	// different purpose — deliberately indistinguishable).
	ErrNotFound = apperr.New(http.StatusUnauthorized, "TOKEN_NOT_FOUND", "Token is invalid")

	// ErrExpired: the token existed but its TTL has passed.
	ErrExpired = apperr.New(http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired")

	// ErrAlreadyUsed: the token was already redeemed. Reported distinctly so
	// a user who lost a race with their own retry gets an honest message.
	ErrAlreadyUsed = apperr.New(http.StatusConflict, "TOKEN_ALREADY_USED", "Token has already been used")
)

// # Domain Entity

// Token is the persisted record of an ephemeral token. The plaintext is
// returned to the caller at issuance and never stored.
type Token struct {
	ID        string     `json:"id"`
	TokenHash string     `json:"-"`
	Purpose   Purpose    `json:"purpose"`
	Subject   string     `json:"subject"`
	Payload   string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// # Broker

// Broker issues and redeems ephemeral tokens against a [Store].
type Broker struct {
	store Store

	// now is swappable for tests.
	now func() time.Time
}

// NewBroker constructs a [Broker].
func NewBroker(store Store) *Broker {
	return &Broker{store: store, now: time.Now}
}

/*
Issue creates a single-use token.

Description: Generates a cryptographically random opaque string — never
derived from the subject or the clock — and persists its hash with used=false.

Parameters:
  - ctx: context.Context
  - purpose: Purpose tag, checked again at redemption
  - subject: Account or site reference the token is bound to
  - payload: Opaque payload returned to the redeemer (may be empty)
  - ttl: Time to live; use [TTLFor] for the policy default

Returns:
  - string: The plaintext token, shown exactly once
  - error: Generation or persistence failures
*/
func (broker *Broker) Issue(ctx context.Context, purpose Purpose, subject, payload string, ttl time.Duration) (string, error) {
	plaintext, err := sec.GenerateSecureToken(tokenByteLength)
	if err != nil {
		return "", err
	}

	now := broker.now()
	record := &Token{
		ID:        uuidv7.New(),
		TokenHash: sec.HashToken(plaintext),
		Purpose:   purpose,
		Subject:   subject,
		Payload:   payload,
		ExpiresAt: now.Add(ttl),
		Used:      false,
		CreatedAt: now,
	}

	if err := broker.store.Insert(ctx, record); err != nil {
		return "", err
	}

	return plaintext, nil
}

/*
Redeem consumes a token exactly once.

Description: The lookup, expiry check, and used→true transition execute as
one atomic conditional update in storage. When the update claims no row,
the failure is classified with a follow-up read: wrong/unknown token →
[ErrNotFound], past TTL → [ErrExpired], already consumed → [ErrAlreadyUsed].

Parameters:
  - ctx: context.Context
  - plaintext: The opaque token string presented by the caller
  - purpose: The flow this redemption belongs to

Returns:
  - *Token: The redeemed record (subject and payload)
  - error: One of the three token error kinds, or storage failures
*/
func (broker *Broker) Redeem(ctx context.Context, plaintext string, purpose Purpose) (*Token, error) {
	return broker.store.Consume(ctx, sec.HashToken(plaintext), purpose, broker.now())
}

/*
RunSweeper deletes expired, spent tokens on a fixed interval until the
context is cancelled.

Description: Garbage collection only — correctness never depends on the
sweep, because redemption checks expiry itself.
*/
func (broker *Broker) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deleted, err := broker.store.DeleteExpired(ctx, broker.now())
			if err != nil {
				logger.ErrorContext(ctx, "token_sweep_failed", slog.Any("error", err))
				continue
			}
			if deleted > 0 {
				logger.InfoContext(ctx, "token_sweep_completed", slog.Int64("deleted", deleted))
			}
		case <-ctx.Done():
			return
		}
	}
}
