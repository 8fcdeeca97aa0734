// Copyright (c) 2026 Pressdeck. All rights reserved.

/*
Package audit implements the append-only security and activity trail.

Every component of the credential core (login, lockout, two-factor, sessions,
magic login) reports its outcomes here. Entries are immutable once written:
the domain exposes no update or delete operation — this is an audit trail,
not a message queue.

# Failure Semantics

Recording is fire-and-forget. A storage failure is logged through slog and
swallowed; it must never fail or roll back the operation it documents.
*/
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/pressdeck/pressdeck/pkg/pagination"
	"github.com/pressdeck/pressdeck/pkg/uuidv7"
)

// # Categories

// Category groups entries by the subsystem that produced them.
type Category string

const (
	CategoryAuth       Category = "auth"
	CategoryTwoFactor  Category = "two_factor"
	CategorySession    Category = "session"
	CategoryMagicLogin Category = "magic_login"
	CategoryAccount    Category = "account"
)

// # Actions

// Well-known action names. Free-form actions are permitted; these constants
// exist so the common ones stay greppable.
const (
	ActionLoginSucceeded      = "login_succeeded"
	ActionLoginFailed         = "login_failed"
	ActionLoginLocked         = "login_locked_out"
	ActionTwoFactorRequired   = "two_factor_required"
	ActionTwoFactorAccepted   = "two_factor_accepted"
	ActionTwoFactorRejected   = "two_factor_rejected"
	ActionTwoFactorEnrolled   = "two_factor_enrolled"
	ActionTwoFactorDisabled   = "two_factor_disabled"
	ActionBackupCodeConsumed  = "backup_code_consumed"
	ActionSessionIssued       = "session_issued"
	ActionSessionRevoked      = "session_revoked"
	ActionSessionExpired      = "session_expired"
	ActionMagicOTPIssued      = "magic_otp_issued"
	ActionMagicOTPVerified    = "magic_otp_verified"
	ActionMagicLoginRedeemed  = "magic_login_redeemed"
	ActionMagicLoginRejected  = "magic_login_rejected"
	ActionPasswordChanged     = "password_changed"
	ActionPasswordResetIssued = "password_reset_issued"
	ActionPasswordResetDone   = "password_reset_completed"
)

// # Domain Entity

// Entry is a single immutable record in the security trail.
type Entry struct {
	ID string `json:"id"`

	// ActorID is the account that performed the action. Nil for anonymous
	// actors (e.g. a failed login against an unknown identifier).
	ActorID *string `json:"actor_id,omitempty"`

	Action   string   `json:"action"`
	Category Category `json:"category"`

	// TargetType/TargetID name the entity acted upon (account, session, site).
	TargetType string `json:"target_type,omitempty"`
	TargetID   string `json:"target_id,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	// Detail carries free-form structured context. Stored as JSONB.
	Detail map[string]any `json:"detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// # Data Access

// Store defines the persistence contract for audit entries.
//
// Append and read only. There is deliberately no update or delete method.
type Store interface {
	// Insert appends a single entry.
	Insert(ctx context.Context, entry *Entry) error

	// List returns entries newest-first, optionally filtered by category,
	// along with the total count for pagination.
	List(ctx context.Context, category Category, params pagination.Params) ([]*Entry, int, error)
}

// # Recorder

// Recorder is the write-side service handed to every security component.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder constructs a [Recorder].
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record appends an entry to the trail. Best effort: failures are logged and
// swallowed so the documented operation is never affected.
func (recorder *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = uuidv7.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := recorder.store.Insert(ctx, &entry); err != nil {
		recorder.logger.ErrorContext(ctx, "audit_record_failed",
			slog.String("action", entry.Action),
			slog.String("category", string(entry.Category)),
			slog.Any("error", err),
		)
	}
}

// # Read Side

// Service exposes the read-only listing used by the admin activity screen.
type Service struct {
	store Store
}

// NewService constructs the read-side [Service].
func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns a page of entries, newest first.
func (service *Service) List(ctx context.Context, category Category, params pagination.Params) ([]*Entry, int, error) {
	return service.store.List(ctx, category, params)
}
