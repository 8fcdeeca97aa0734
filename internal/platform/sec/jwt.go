// Copyright (c) 2026 Pressdeck. All rights reserved.

package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors for token verification. The session service maps these to
// the client-facing error taxonomy; this package stays transport-agnostic.
var (
	// ErrTokenSignatureInvalid indicates the token was not signed by this server.
	ErrTokenSignatureInvalid = errors.New("sec: token signature invalid")

	// ErrTokenExpired indicates the token's cryptographic lifetime has passed.
	ErrTokenExpired = errors.New("sec: token expired")
)

// SessionClaims is the payload embedded inside a session JWT.
//
// # Why custom claims?
//
// Embedding the session ID, user ID, and role directly inside the JWT lets
// the middleware verify signature and absolute expiry statelessly. Only
// requests that need revocation- or idle-sensitivity consult the persisted
// session row (keyed by SessionID).
type SessionClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the JWT payload small.
	SessionID string `json:"sid"`
	UserID    string `json:"uid"`
	Role      string `json:"rol"`
}

// TokenService signs and verifies session JWTs using HMAC-SHA256.
//
// The signing key is symmetric and server-held; it never leaves this struct.
type TokenService struct {
	signingKey []byte
	issuer     string
}

// minSigningKeyLength rejects keys that would make HS256 trivially brute-forceable.
const minSigningKeyLength = 32

// NewTokenService creates a TokenService with the given signing secret.
func NewTokenService(secret, issuer string) (*TokenService, error) {
	if len(secret) < minSigningKeyLength {
		return nil, fmt.Errorf("sec: jwt secret must be at least %d bytes", minSigningKeyLength)
	}
	return &TokenService{
		signingKey: []byte(secret),
		issuer:     issuer,
	}, nil
}

// IssueSessionToken creates a signed session JWT.
//
// The absolute expiry is carried in the token itself; idle timeout is a
// storage-level concern and is deliberately not encoded here.
func (service *TokenService) IssueSessionToken(sessionID, userID, role string, timeToLive time.Duration) (string, error) {
	currentTime := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(service.signingKey)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign session token: %w", err)
	}

	return signedToken, nil
}

// VerifySessionToken checks the signature and cryptographic expiry of a
// session JWT. It distinguishes a bad signature from an expired-but-genuine
// token so callers can tell "reject" apart from "re-authenticate".
func (service *TokenService) VerifySessionToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return service.signingKey, nil
	}, jwt.WithIssuer(service.issuer))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignatureInvalid
		default:
			return nil, fmt.Errorf("%w: %w", ErrTokenSignatureInvalid, err)
		}
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenSignatureInvalid
	}

	return claims, nil
}
