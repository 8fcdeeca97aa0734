// Copyright (c) 2026 Pressdeck. All rights reserved.

package auth

import (
	"net/http"

	"github.com/pressdeck/pressdeck/internal/platform/apperr"
)

// # Domain Errors

// Credential and account-state failures. The login endpoint collapses the
// precise variants into ErrInvalidCredentials before they reach the client;
// the audit trail keeps the real reason.
var (
	// ErrInvalidCredentials is the only credential failure a caller of the
	// login endpoint ever sees. It deliberately does not distinguish an
	// unknown email from a wrong password.
	ErrInvalidCredentials = apperr.New(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")

	// ErrAccountLocked is returned while a brute-force lock is active.
	// Carries a "locked_until" meta entry with the lock expiry (RFC 3339).
	ErrAccountLocked = apperr.New(http.StatusLocked, "ACCOUNT_LOCKED", "Too many failed attempts, account temporarily locked")

	// ErrAccountBlocked marks an administratively suspended account.
	ErrAccountBlocked = apperr.New(http.StatusForbidden, "ACCOUNT_BLOCKED", "Account is blocked")

	// ErrAccountPending marks an account that has not finished provisioning.
	ErrAccountPending = apperr.New(http.StatusForbidden, "ACCOUNT_PENDING", "Account is pending activation")

	// ErrTwoFactorRequired signals that the password stage succeeded and a
	// second factor must now be presented. Carries a "challenge_token" meta
	// entry with the single-use challenge token.
	ErrTwoFactorRequired = apperr.New(http.StatusUnauthorized, "TWO_FA_REQUIRED", "Two-factor authentication required")

	// ErrEmailTaken is returned when registering with an email already in use.
	ErrEmailTaken = apperr.New(http.StatusConflict, "EMAIL_TAKEN", "An account with this email already exists")

	// ErrAccountNotFound is the generic lookup miss for non-login surfaces.
	ErrAccountNotFound = apperr.New(http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Account not found")
)
