// Copyright (c) 2026 Pressdeck. All rights reserved.

/*
Package twofactor implements TOTP-based two-factor authentication.

Accounts enroll by provisioning a shared secret, confirm the enrollment with
a live code, and from then on must present a code (or a single-use backup
code) to finish logging in. Secrets and backup codes are stored only as
cipher envelopes.
*/
package twofactor

import (
	"net/http"

	"github.com/pressdeck/pressdeck/internal/platform/apperr"
)

// # Policy

const (
	// CodePeriod is the TOTP time step.
	CodePeriod = 30

	// CodeDigits is the length of a generated code.
	CodeDigits = 6

	// CodeSkew is how many periods either side of now a code is accepted,
	// absorbing clock drift between server and authenticator.
	CodeSkew = 2

	// BackupCodeCount is how many single-use recovery codes an enrollment
	// hands out.
	BackupCodeCount = 10
)

// # Domain Types

// Enrollment is the one-time provisioning material returned when an account
// starts two-factor setup. None of it is ever shown again.
type Enrollment struct {
	// Secret is the base32 TOTP secret, for manual authenticator entry.
	Secret string `json:"secret"`

	// OTPAuthURL is the otpauth:// provisioning URI rendered as a QR code.
	OTPAuthURL string `json:"otpauth_url"`

	// BackupCodes are the single-use recovery codes.
	BackupCodes []string `json:"backup_codes"`
}

// # Domain Errors

var (
	// ErrInvalidCode covers wrong, reused, and out-of-window codes alike.
	ErrInvalidCode = apperr.New(http.StatusUnauthorized, "INVALID_TWO_FA_CODE", "Invalid two-factor code")

	// ErrAlreadyEnrolled is returned when starting enrollment on an account
	// that already has two-factor active.
	ErrAlreadyEnrolled = apperr.New(http.StatusConflict, "TWO_FA_ALREADY_ENABLED", "Two-factor authentication is already enabled")

	// ErrNotEnrolled is returned when verifying or disabling without an
	// active enrollment.
	ErrNotEnrolled = apperr.New(http.StatusBadRequest, "TWO_FA_NOT_ENABLED", "Two-factor authentication is not enabled")

	// ErrDisableForbidden is returned when an admin tries to turn
	// two-factor off. Administrator accounts must keep it.
	ErrDisableForbidden = apperr.New(http.StatusForbidden, "TWO_FA_REQUIRED_FOR_ROLE", "Administrators cannot disable two-factor authentication")
)
