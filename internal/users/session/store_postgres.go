// Copyright (c) 2026 Pressdeck. All rights reserved.

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// # Postgres Store

// PostgresStore implements Store backed by the users.session table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const insertSessionQuery = `
	INSERT INTO users.session
		(id, userid, tokenhash, ipaddress, useragent,
		 lastactivityat, expiresat, createdat)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

/*
Insert persists a freshly issued session row.

Parameters:
  - ctx: Request context.
  - session: The session to persist.

Returns:
  - error: A wrapped driver error on failure.
*/
func (s *PostgresStore) Insert(ctx context.Context, session *Session) error {
	_, err := s.pool.Exec(ctx, insertSessionQuery,
		session.ID, session.UserID, session.TokenHash,
		session.IPAddress, session.UserAgent,
		session.LastActivityAt, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert_session_failed: %w", err)
	}
	return nil
}

const findSessionByIDQuery = `
	SELECT id, userid, tokenhash, ipaddress, useragent,
	       lastactivityat, expiresat, revokedat, createdat
	FROM users.session
	WHERE id = $1`

/*
FindByID fetches a session row by primary key, revoked or not.

Parameters:
  - ctx: Request context.
  - id: Session UUID.

Returns:
  - *Session: The session, nil on miss.
  - error: ErrSessionNotFound on miss, otherwise a wrapped driver error.
*/
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, findSessionByIDQuery, id).Scan(
		&sess.ID, &sess.UserID, &sess.TokenHash, &sess.IPAddress, &sess.UserAgent,
		&sess.LastActivityAt, &sess.ExpiresAt, &sess.RevokedAt, &sess.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("find_session_failed: %w", err)
	}
	return &sess, nil
}

const listSessionsByUserQuery = `
	SELECT id, userid, tokenhash, ipaddress, useragent,
	       lastactivityat, expiresat, revokedat, createdat
	FROM users.session
	WHERE userid = $1 AND revokedat IS NULL AND expiresat > $2
	ORDER BY createdat DESC`

/*
ListByUser returns an account's live sessions, newest first.

Parameters:
  - ctx: Request context.
  - userID: Owning account UUID.
  - now: Instant used for the expiry cutoff.

Returns:
  - []*Session: Live sessions, possibly empty.
  - error: A wrapped driver error on failure.
*/
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, now time.Time) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, listSessionsByUserQuery, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list_sessions_failed: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		var sess Session
		if err := rows.Scan(
			&sess.ID, &sess.UserID, &sess.TokenHash, &sess.IPAddress, &sess.UserAgent,
			&sess.LastActivityAt, &sess.ExpiresAt, &sess.RevokedAt, &sess.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan_session_failed: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate_sessions_failed: %w", err)
	}
	return sessions, nil
}

const updateActivityQuery = `
	UPDATE users.session
	SET lastactivityat = $2
	WHERE id = $1 AND revokedat IS NULL`

/*
UpdateActivity moves the idle-timeout anchor forward.

Parameters:
  - ctx: Request context.
  - id: Session UUID.
  - at: The instant of the authenticated request.

Returns:
  - error: A wrapped driver error on failure. A vanished row is not an
    error; the next validation rejects it anyway.
*/
func (s *PostgresStore) UpdateActivity(ctx context.Context, id string, at time.Time) error {
	if _, err := s.pool.Exec(ctx, updateActivityQuery, id, at); err != nil {
		return fmt.Errorf("update_session_activity_failed: %w", err)
	}
	return nil
}

const revokeSessionQuery = `
	UPDATE users.session
	SET revokedat = $2
	WHERE id = $1 AND revokedat IS NULL`

/*
Revoke marks one session revoked.

Parameters:
  - ctx: Request context.
  - id: Session UUID.
  - at: Revocation instant.

Returns:
  - bool: Whether this call performed the transition (false when the row
    was already revoked or missing).
  - error: A wrapped driver error on failure.
*/
func (s *PostgresStore) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, revokeSessionQuery, id, at)
	if err != nil {
		return false, fmt.Errorf("revoke_session_failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

const revokeAllSessionsQuery = `
	UPDATE users.session
	SET revokedat = $3
	WHERE userid = $1 AND id <> $2 AND revokedat IS NULL`

/*
RevokeAll revokes every live session of an account except one.

Parameters:
  - ctx: Request context.
  - userID: Owning account UUID.
  - exceptID: Session to spare; empty string spares none.
  - at: Revocation instant.

Returns:
  - int64: Number of sessions revoked.
  - error: A wrapped driver error on failure.
*/
func (s *PostgresStore) RevokeAll(ctx context.Context, userID, exceptID string, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, revokeAllSessionsQuery, userID, exceptID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke_all_sessions_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

const deleteExpiredSessionsQuery = `
	DELETE FROM users.session
	WHERE expiresat <= $1`

/*
DeleteExpired removes rows past their absolute expiry.

Parameters:
  - ctx: Request context.
  - now: Expiry cutoff.

Returns:
  - int64: Number of rows deleted.
  - error: A wrapped driver error on failure.
*/
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, deleteExpiredSessionsQuery, now)
	if err != nil {
		return 0, fmt.Errorf("delete_expired_sessions_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}
