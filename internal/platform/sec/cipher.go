// Copyright (c) 2026 Pressdeck. All rights reserved.

package sec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the secret cipher.
var (
	// ErrDecryptionFailed covers every decryption failure mode: malformed
	// envelope, wrong key, or tampered ciphertext. Collapsing them is
	// intentional; callers must not learn which part failed.
	ErrDecryptionFailed = errors.New("sec: decryption failed")

	// ErrEncryptionMisconfigured indicates the configured key is unusable.
	ErrEncryptionMisconfigured = errors.New("sec: encryption key misconfigured")
)

// envelopeDelimiter separates the base64 segments of a ciphertext envelope.
const envelopeDelimiter = ":"

// envelopeSegments is the current segment count: nonce, auth tag, ciphertext.
// A future key-rotation scheme can prepend a key-id segment; until then any
// other count fails closed.
const envelopeSegments = 3

// Cipher performs authenticated symmetric encryption of secrets at rest
// (TOTP secrets, backup codes, remote API credentials).
//
// # Envelope Format
//
//	base64(nonce) : base64(tag) : base64(ciphertext)
//
// AES-256-GCM with a fresh random 12-byte nonce per call. Any bit flip in
// the tag or ciphertext fails authentication deterministically.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a [Cipher] from the configured key string.
//
// The key may be given as 64 hex characters or as base64; either way it must
// decode to exactly 32 bytes (AES-256).
func NewCipher(key string) (*Cipher, error) {
	keyBytes, err := decodeKey(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncryptionMisconfigured, err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncryptionMisconfigured, err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals the plaintext and returns the envelope string.
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("sec: failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, nil)

	// GCM appends the auth tag to the ciphertext; the envelope carries the
	// two independently so each is recoverable on its own.
	tagOffset := len(sealed) - c.aead.Overhead()
	ciphertext, tag := sealed[:tagOffset], sealed[tagOffset:]

	segments := []string{
		base64.RawStdEncoding.EncodeToString(nonce),
		base64.RawStdEncoding.EncodeToString(tag),
		base64.RawStdEncoding.EncodeToString(ciphertext),
	}
	return strings.Join(segments, envelopeDelimiter), nil
}

// EncryptString is a convenience wrapper for string plaintexts.
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	return c.Encrypt([]byte(plaintext))
}

// Decrypt opens an envelope and returns the plaintext.
//
// It fails closed with [ErrDecryptionFailed] on malformed input, wrong key,
// or any tampering; corrupted plaintext is never returned.
func (c *Cipher) Decrypt(envelope string) ([]byte, error) {
	parts := strings.Split(envelope, envelopeDelimiter)
	if len(parts) != envelopeSegments {
		return nil, ErrDecryptionFailed
	}

	nonce, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return nil, ErrDecryptionFailed
	}

	tag, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil || len(tag) != c.aead.Overhead() {
		return nil, ErrDecryptionFailed
	}

	ciphertext, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := c.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// DecryptString is a convenience wrapper returning the plaintext as a string.
func (c *Cipher) DecryptString(envelope string) (string, error) {
	plaintext, err := c.Decrypt(envelope)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// decodeKey accepts hex or base64 key material and enforces AES-256 length.
func decodeKey(key string) ([]byte, error) {
	const keyLength = 32

	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == keyLength {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(key); err == nil && len(decoded) == keyLength {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(key); err == nil && len(decoded) == keyLength {
		return decoded, nil
	}
	if len(key) == keyLength {
		return []byte(key), nil
	}

	return nil, fmt.Errorf("%w: key must decode to exactly %d bytes", ErrEncryptionMisconfigured, keyLength)
}
