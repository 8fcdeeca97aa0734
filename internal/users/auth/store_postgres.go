// Copyright (c) 2026 Pressdeck. All rights reserved.

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// # Postgres Store

const uniqueViolationCode = "23505"

// PostgresStore implements Store backed by the users.account table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new Postgres-backed account store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const insertAccountQuery = `
	INSERT INTO users.account
		(id, email, passwordhash, displayname, role, status,
		 twofactorenabled, totpsecretenc, backupcodesenc, createdat, updatedat)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

/*
Insert persists a new account row.

Parameters:
  - ctx: Request context.
  - account: The account to persist; all identity fields must be set.

Returns:
  - error: ErrEmailTaken on a live email collision, otherwise a wrapped
    driver error.
*/
func (s *PostgresStore) Insert(ctx context.Context, account *Account) error {
	_, err := s.pool.Exec(ctx, insertAccountQuery,
		account.ID, account.Email, account.PasswordHash, account.DisplayName,
		account.Role, account.Status, account.TwoFactorEnabled,
		account.TOTPSecretEnc, account.BackupCodesEnc,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert_account_failed: %w", err)
	}
	return nil
}

const selectAccountColumns = `
	id, email, passwordhash, displayname, role, status,
	twofactorenabled, totpsecretenc, backupcodesenc,
	createdat, updatedat, deletedat`

const findAccountByIDQuery = `
	SELECT ` + selectAccountColumns + `
	FROM users.account
	WHERE id = $1 AND deletedat IS NULL`

/*
FindByID fetches a live account by primary key.

Parameters:
  - ctx: Request context.
  - id: Account UUID.

Returns:
  - *Account: The account, nil on miss.
  - error: ErrAccountNotFound on miss, otherwise a wrapped driver error.
*/
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Account, error) {
	return s.findOne(ctx, findAccountByIDQuery, id)
}

const findAccountByEmailQuery = `
	SELECT ` + selectAccountColumns + `
	FROM users.account
	WHERE LOWER(email) = LOWER($1) AND deletedat IS NULL`

/*
FindByEmail fetches a live account by email, case-insensitively.

Parameters:
  - ctx: Request context.
  - email: The login identifier as submitted.

Returns:
  - *Account: The account, nil on miss.
  - error: ErrAccountNotFound on miss, otherwise a wrapped driver error.
*/
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.findOne(ctx, findAccountByEmailQuery, email)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*Account, error) {
	var a Account
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.Role, &a.Status,
		&a.TwoFactorEnabled, &a.TOTPSecretEnc, &a.BackupCodesEnc,
		&a.CreatedAt, &a.UpdatedAt, &a.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("find_account_failed: %w", err)
	}
	return &a, nil
}

const findIdentityQuery = `
	SELECT id, email
	FROM users.account
	WHERE id = $1 AND deletedat IS NULL`

/*
FindIdentity returns the minimal identity pair other domains need without
pulling the whole account row.

Parameters:
  - ctx: Request context.
  - accountID: Account UUID.

Returns:
  - string: Account ID.
  - string: Account email.
  - error: ErrAccountNotFound on miss, otherwise a wrapped driver error.
*/
func (s *PostgresStore) FindIdentity(ctx context.Context, accountID string) (string, string, error) {
	var id, email string
	err := s.pool.QueryRow(ctx, findIdentityQuery, accountID).Scan(&id, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrAccountNotFound
		}
		return "", "", fmt.Errorf("find_identity_failed: %w", err)
	}
	return id, email, nil
}

const updatePasswordHashQuery = `
	UPDATE users.account
	SET passwordhash = $2, updatedat = $3
	WHERE id = $1 AND deletedat IS NULL`

/*
UpdatePasswordHash replaces the stored password hash.

Parameters:
  - ctx: Request context.
  - id: Account UUID.
  - passwordHash: The new bcrypt hash.

Returns:
  - error: ErrAccountNotFound when the row is missing, otherwise a wrapped
    driver error.
*/
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	tag, err := s.pool.Exec(ctx, updatePasswordHashQuery, id, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update_password_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
