// Copyright (c) 2026 Pressdeck. All rights reserved.

// Package sec provides the cryptographic primitives for the Pressdeck
// security core: password hashing, session token signing, secret
// encryption at rest, and random credential generation.
//
// # Architecture
//
// This package isolates security-sensitive code from the domain logic.
// Every construct here is stateless or configured once at startup; keys are
// passed in through constructors so tests can run with throwaway keys.
package sec

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// dummyPasswordHash is a valid bcrypt hash of a throwaway string. When a
// login names an identifier that does not exist, the credential verifier
// still runs a full bcrypt comparison against this hash so the response
// time does not reveal whether the account exists.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// HashPassword hashes a plain-text password using the bcrypt algorithm.
func HashPassword(plainTextPassword string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plainTextPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// CheckPasswordHash compares a plain-text password with its hashed version.
func CheckPasswordHash(plainTextPassword, existingHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(plainTextPassword))
	return err == nil
}

// BurnPasswordCheck performs a bcrypt comparison against a fixed dummy hash
// and discards the result. Callers invoke it on the "account not found" path
// to keep that path's latency aligned with a real comparison.
func BurnPasswordCheck(plainTextPassword string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyPasswordHash), []byte(plainTextPassword))
}

// # Token Hashing

// HashToken returns the hex-encoded SHA-256 digest of an opaque token.
//
// Bearer tokens (session tokens, ephemeral tokens) are never persisted in
// plaintext; storage layers index on this digest instead.
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

// ConstantTimeEquals compares two strings in constant time.
func ConstantTimeEquals(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

// # Random Credential Generation

// backupCodeAlphabet omits visually ambiguous characters (0/O, 1/I/L) so
// codes stay human-typeable when read off a printout.
const backupCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateSecureToken returns a URL-safe random token of byteLength entropy
// bytes. Tokens are opaque: they encode no subject or timestamp.
func GenerateSecureToken(byteLength int) (string, error) {
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sec: failed to generate secure token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateNumericCode returns a random code of the given number of decimal
// digits, left-padded with zeros. Used for the magic-login OTP.
func GenerateNumericCode(digits int) (string, error) {
	code := make([]byte, digits)
	for i := range code {
		n, err := randomBelow(10)
		if err != nil {
			return "", err
		}
		code[i] = byte('0' + n)
	}
	return string(code), nil
}

// GenerateBackupCode returns an 8-character code from the unambiguous alphabet.
func GenerateBackupCode() (string, error) {
	const codeLength = 8
	code := make([]byte, codeLength)
	for i := range code {
		n, err := randomBelow(len(backupCodeAlphabet))
		if err != nil {
			return "", err
		}
		code[i] = backupCodeAlphabet[n]
	}
	return string(code), nil
}

// randomBelow returns a uniform random int in [0, max) using rejection
// sampling over a single random byte.
func randomBelow(max int) (int, error) {
	// Largest multiple of max that fits in a byte, to avoid modulo bias.
	limit := 256 - (256 % max)
	var b [1]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, fmt.Errorf("sec: failed to read random byte: %w", err)
		}
		if int(b[0]) < limit {
			return int(b[0]) % max, nil
		}
	}
}
