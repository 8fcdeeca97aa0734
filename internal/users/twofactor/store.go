// Copyright (c) 2026 Pressdeck. All rights reserved.

package twofactor

import (
	"context"

	"github.com/pressdeck/pressdeck/internal/platform/sec"
)

// # Store Interface

// Secrets is the narrow slice of account state this package owns: the
// two-factor columns. Everything it reads and writes is a cipher envelope;
// the store never sees plaintext.
type Secrets struct {
	AccountID string
	Email     string
	Role      sec.UserRole

	// Enabled is true only after enrollment was confirmed with a live code.
	Enabled bool

	// SecretEnc and BackupCodesEnc are cipher envelopes; empty when absent.
	SecretEnc      string
	BackupCodesEnc string
}

// Store provides access to the two-factor columns of an account.
type Store interface {
	// Get returns the two-factor state for an account, or an account
	// lookup error.
	Get(ctx context.Context, accountID string) (*Secrets, error)

	// SetPending stores a provisioned secret and backup codes with
	// enabled=false, replacing any previous pending enrollment.
	SetPending(ctx context.Context, accountID, secretEnc, backupCodesEnc string) error

	// Enable flips the enrollment to active.
	Enable(ctx context.Context, accountID string) error

	// Disable clears the secret and backup codes and flips enabled off.
	Disable(ctx context.Context, accountID string) error

	// ReplaceBackupCodes swaps the backup-code envelope only if the stored
	// value still equals oldEnc. Returns false when another writer got
	// there first.
	ReplaceBackupCodes(ctx context.Context, accountID, oldEnc, newEnc string) (bool, error)
}
