// Copyright (c) 2026 Pressdeck. All rights reserved.

package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements [Store] on the security.ephemeraltoken table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of the token [Store].
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

/*
Insert persists a freshly issued token record.
*/
func (store *PostgresStore) Insert(ctx context.Context, record *Token) error {
	const query = `
		INSERT INTO security.ephemeraltoken (
			id, tokenhash, purpose, subject, payload, expiresat, used, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := store.pool.Exec(ctx, query,
		record.ID,
		record.TokenHash,
		record.Purpose,
		record.Subject,
		record.Payload,
		record.ExpiresAt,
		record.Used,
		record.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("token_store_insert_failed: %w", err)
	}

	return nil
}

/*
Consume atomically redeems a token.

Description: The conditional UPDATE is the entire race: whichever request
claims the row first wins; everyone else falls through to the classification
read and receives the matching error kind.
*/
func (store *PostgresStore) Consume(ctx context.Context, tokenHash string, purpose Purpose, now time.Time) (*Token, error) {
	const claimQuery = `
		UPDATE security.ephemeraltoken
		SET used = TRUE, usedat = $3
		WHERE tokenhash = $1 AND purpose = $2 AND used = FALSE AND expiresat > $3
		RETURNING id, tokenhash, purpose, subject, payload, expiresat, used, usedat, createdat`

	record := &Token{}
	err := store.pool.QueryRow(ctx, claimQuery, tokenHash, purpose, now).Scan(
		&record.ID,
		&record.TokenHash,
		&record.Purpose,
		&record.Subject,
		&record.Payload,
		&record.ExpiresAt,
		&record.Used,
		&record.UsedAt,
		&record.CreatedAt,
	)

	if err == nil {
		return record, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("token_store_consume_failed: %w", err)
	}

	// The claim found nothing. Classify with a read-only lookup.
	return nil, store.classifyFailure(ctx, tokenHash, purpose, now)
}

// classifyFailure decides which token error kind a failed claim maps to.
func (store *PostgresStore) classifyFailure(ctx context.Context, tokenHash string, purpose Purpose, now time.Time) error {
	const lookupQuery = `
		SELECT purpose, used, expiresat
		FROM security.ephemeraltoken
		WHERE tokenhash = $1`

	var storedPurpose Purpose
	var used bool
	var expiresAt time.Time

	err := store.pool.QueryRow(ctx, lookupQuery, tokenHash).Scan(&storedPurpose, &used, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("token_store_classify_failed: %w", err)
	}

	switch {
	case storedPurpose != purpose:
		// A cross-flow replay looks identical to an unknown token on purpose.
		return ErrNotFound
	case used:
		return ErrAlreadyUsed
	case !expiresAt.After(now):
		return ErrExpired
	default:
		// The row became redeemable between claim and classify (clock skew
		// on expiresat). Treat as expired; the caller may simply retry.
		return ErrExpired
	}
}

/*
DeleteExpired removes tokens whose expiry has passed.
*/
func (store *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM security.ephemeraltoken WHERE expiresat <= $1`

	tag, err := store.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("token_store_delete_expired_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}
