// Copyright (c) 2026 Pressdeck. All rights reserved.

package twofactor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pressdeck/pressdeck/internal/platform/apperr"
)

// # Postgres Store

// errAccountMissing mirrors the account domain's lookup miss without
// importing it.
var errAccountMissing = apperr.New(http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Account not found")

// PostgresStore implements Store against the two-factor columns of
// users.account.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new Postgres-backed two-factor store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const getTwoFactorQuery = `
	SELECT id, email, role, twofactorenabled, totpsecretenc, backupcodesenc
	FROM users.account
	WHERE id = $1 AND deletedat IS NULL`

/*
Get returns the two-factor state for an account.

Parameters:
  - ctx: Request context.
  - accountID: Account UUID.

Returns:
  - *Secrets: The two-factor columns.
  - error: An account-not-found error on miss, otherwise a wrapped driver
    error.
*/
func (s *PostgresStore) Get(ctx context.Context, accountID string) (*Secrets, error) {
	var secrets Secrets
	err := s.pool.QueryRow(ctx, getTwoFactorQuery, accountID).Scan(
		&secrets.AccountID, &secrets.Email, &secrets.Role,
		&secrets.Enabled, &secrets.SecretEnc, &secrets.BackupCodesEnc,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errAccountMissing
		}
		return nil, fmt.Errorf("get_two_factor_failed: %w", err)
	}
	return &secrets, nil
}

const setPendingQuery = `
	UPDATE users.account
	SET totpsecretenc = $2, backupcodesenc = $3, twofactorenabled = FALSE, updatedat = $4
	WHERE id = $1 AND deletedat IS NULL`

/*
SetPending stores a provisioned secret with enabled=false.

Parameters:
  - ctx: Request context.
  - accountID: Account UUID.
  - secretEnc: Cipher envelope of the TOTP secret.
  - backupCodesEnc: Cipher envelope of the backup-code list.

Returns:
  - error: An account-not-found error on miss, otherwise a wrapped driver
    error.
*/
func (s *PostgresStore) SetPending(ctx context.Context, accountID, secretEnc, backupCodesEnc string) error {
	return s.exec(ctx, setPendingQuery, accountID, secretEnc, backupCodesEnc, time.Now().UTC())
}

const enableQuery = `
	UPDATE users.account
	SET twofactorenabled = TRUE, updatedat = $2
	WHERE id = $1 AND deletedat IS NULL`

// Enable flips the enrollment to active.
func (s *PostgresStore) Enable(ctx context.Context, accountID string) error {
	return s.exec(ctx, enableQuery, accountID, time.Now().UTC())
}

const disableQuery = `
	UPDATE users.account
	SET twofactorenabled = FALSE, totpsecretenc = '', backupcodesenc = '', updatedat = $2
	WHERE id = $1 AND deletedat IS NULL`

// Disable clears the two-factor columns.
func (s *PostgresStore) Disable(ctx context.Context, accountID string) error {
	return s.exec(ctx, disableQuery, accountID, time.Now().UTC())
}

const replaceBackupCodesQuery = `
	UPDATE users.account
	SET backupcodesenc = $3, updatedat = $4
	WHERE id = $1 AND backupcodesenc = $2 AND deletedat IS NULL`

/*
ReplaceBackupCodes swaps the backup-code envelope compare-and-swap style.

Description: The WHERE clause pins the previous ciphertext, so two logins
racing to consume the same backup code produce exactly one winner. The loser
sees ok=false and treats the code as spent.

Parameters:
  - ctx: Request context.
  - accountID: Account UUID.
  - oldEnc: The envelope read before consuming the code.
  - newEnc: The envelope with the code removed.

Returns:
  - bool: Whether the swap happened.
  - error: A wrapped driver error on failure.
*/
func (s *PostgresStore) ReplaceBackupCodes(ctx context.Context, accountID, oldEnc, newEnc string) (bool, error) {
	tag, err := s.pool.Exec(ctx, replaceBackupCodesQuery, accountID, oldEnc, newEnc, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("replace_backup_codes_failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) exec(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update_two_factor_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errAccountMissing
	}
	return nil
}
