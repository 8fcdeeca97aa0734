// Copyright (c) 2026 Pressdeck. All rights reserved.

/*
Package auth implements the credential side of the Pressdeck identity core.

It defines the Account entity and the login orchestration: lockout gating,
password verification, the two-factor hand-off, and password change/reset.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no
transport dependencies and encapsulate the account lifecycle rules.
*/
package auth

import (
	"time"

	"github.com/pressdeck/pressdeck/internal/platform/sec"
)

// # Account Status

// Status is the lifecycle state of an account.
type Status string

const (
	// StatusActive accounts may authenticate.
	StatusActive Status = "active"

	// StatusBlocked accounts are administratively suspended.
	StatusBlocked Status = "blocked"

	// StatusPending accounts have not completed provisioning.
	StatusPending Status = "pending"
)

// # Domain Entities

// Account represents a dashboard user.
//
// Accounts are never hard-deleted while sessions or audit entries reference
// them; DeletedAt implements the soft lifecycle.
type Account struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"` // Explicitly omitted from JSON for security.
	DisplayName  string       `json:"display_name"`
	Role         sec.UserRole `json:"role"`
	Status       Status       `json:"status"`

	// TwoFactorEnabled reports whether enrollment has been confirmed with a
	// live code. A stored secret with this false means enrollment is still
	// pending.
	TwoFactorEnabled bool `json:"two_factor_enabled"`

	// TOTPSecretEnc and BackupCodesEnc are cipher envelopes; the plaintext
	// secret and codes exist in memory only during enrollment and
	// verification.
	TOTPSecretEnc  string `json:"-"`
	BackupCodesEnc string `json:"-"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// # Field Identifiers

// Global field names for validation and identity mapping in the authentication domain.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldDisplayName     = "display_name"
	FieldToken           = "token"
	FieldCode            = "code"
	FieldChallengeToken  = "challenge_token"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
)
