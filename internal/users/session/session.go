// Copyright (c) 2026 Pressdeck. All rights reserved.

/*
Package session manages dashboard login sessions.

A session pairs a signed JWT held by the browser with a server-side row that
can be revoked. Validity requires both halves: a cryptographically sound
token whose row is unrevoked, inside its absolute lifetime, and recently
active.
*/
package session

import (
	"net/http"
	"time"

	"github.com/pressdeck/pressdeck/internal/platform/apperr"
)

// # Lifetime Policy

const (
	// AbsoluteTTL is the hard ceiling on a session's life, measured from
	// issuance. Activity never extends it.
	AbsoluteTTL = 24 * time.Hour

	// IdleTimeout invalidates a session that has seen no authenticated
	// request for this long, even when the absolute lifetime remains.
	IdleTimeout = 60 * time.Minute
)

// # Domain Entity

// Session is the server-side record behind a login token.
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	// TokenHash is the SHA-256 of the issued JWT. The token itself is
	// never persisted.
	TokenHash string `json:"-"`

	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`

	LastActivityAt time.Time  `json:"last_activity_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`

	// Current marks the session backing the request that listed it.
	// Computed, never stored.
	Current bool `json:"current"`
}

// Revoked reports whether the session has been explicitly invalidated.
func (s *Session) Revoked() bool { return s.RevokedAt != nil }

// Device captures the client metadata bound to a session at issuance.
type Device struct {
	IPAddress string
	UserAgent string
}

// Issued is the result of minting a new session.
type Issued struct {
	// Token is the signed JWT, returned exactly once.
	Token   string
	Session *Session
}

// # Domain Errors

var (
	// ErrInvalidSignature covers tokens this server did not sign, including
	// structurally broken ones.
	ErrInvalidSignature = apperr.New(http.StatusUnauthorized, "INVALID_SIGNATURE", "Session token is not valid")

	// ErrSessionExpired covers both the absolute lifetime and the idle
	// timeout. Carries a "reason" meta entry: "absolute" or "idle".
	ErrSessionExpired = apperr.New(http.StatusUnauthorized, "SESSION_EXPIRED", "Session has expired, please sign in again")

	// ErrSessionRevoked marks a session invalidated server-side before its
	// natural expiry.
	ErrSessionRevoked = apperr.New(http.StatusUnauthorized, "SESSION_REVOKED", "Session has been revoked")

	// ErrSessionNotFound is returned when managing a session that does not
	// exist or belongs to another account.
	ErrSessionNotFound = apperr.New(http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found")
)

// Expiry reasons carried in the ErrSessionExpired meta.
const (
	ExpiryReasonAbsolute = "absolute"
	ExpiryReasonIdle     = "idle"
)
