// Copyright (c) 2026 Pressdeck. All rights reserved.

package sec_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressdeck/pressdeck/internal/platform/sec"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

/*
TestCipher_RoundTrip verifies that a value encrypts and decrypts back to
the original.
*/
func TestCipher_RoundTrip(t *testing.T) {
	cipher, err := sec.NewCipher(testKeyHex)
	require.NoError(t, err)

	envelope, err := cipher.EncryptString("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	plaintext, err := cipher.DecryptString(envelope)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", plaintext)
}

/*
TestCipher_EnvelopeShape verifies the three-segment envelope format.
*/
func TestCipher_EnvelopeShape(t *testing.T) {
	cipher, err := sec.NewCipher(testKeyHex)
	require.NoError(t, err)

	envelope, err := cipher.EncryptString("secret")
	require.NoError(t, err)
	assert.Len(t, strings.Split(envelope, ":"), 3)
}

/*
TestCipher_FreshNoncePerCall verifies that encrypting the same plaintext
twice yields different envelopes.
*/
func TestCipher_FreshNoncePerCall(t *testing.T) {
	cipher, err := sec.NewCipher(testKeyHex)
	require.NoError(t, err)

	first, err := cipher.EncryptString("secret")
	require.NoError(t, err)
	second, err := cipher.EncryptString("secret")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

/*
TestCipher_WrongKeyFailsClosed verifies that decrypting with a different
key fails with the single opaque decryption error.
*/
func TestCipher_WrongKeyFailsClosed(t *testing.T) {
	cipher, err := sec.NewCipher(testKeyHex)
	require.NoError(t, err)
	other, err := sec.NewCipher("1f1e1d1c1b1a191817161514131211100f0e0d0c0b0a09080706050403020100")
	require.NoError(t, err)

	envelope, err := cipher.EncryptString("secret")
	require.NoError(t, err)

	_, err = other.DecryptString(envelope)
	assert.ErrorIs(t, err, sec.ErrDecryptionFailed)
}

/*
TestCipher_TamperFailsClosed verifies that flipping any part of the
envelope breaks authentication.
*/
func TestCipher_TamperFailsClosed(t *testing.T) {
	cipher, err := sec.NewCipher(testKeyHex)
	require.NoError(t, err)

	envelope, err := cipher.EncryptString("secret")
	require.NoError(t, err)

	segments := strings.Split(envelope, ":")
	require.Len(t, segments, 3)

	for i := range segments {
		tampered := make([]string, 3)
		copy(tampered, segments)
		// Prepending valid base64 keeps the segment decodable but changes
		// the bytes under the MAC.
		tampered[i] = "AAAA" + tampered[i]

		_, err := cipher.DecryptString(strings.Join(tampered, ":"))
		assert.ErrorIs(t, err, sec.ErrDecryptionFailed, "segment %d", i)
	}
}

/*
TestCipher_MalformedEnvelopesFailClosed verifies that structurally broken
envelopes never decrypt and never panic.
*/
func TestCipher_MalformedEnvelopesFailClosed(t *testing.T) {
	cipher, err := sec.NewCipher(testKeyHex)
	require.NoError(t, err)

	malformed := []string{
		"",
		"not-an-envelope",
		"only:two",
		"a:b:c:d",
		"!!!:???:***",
		"AAAA:AAAA",
	}
	for _, envelope := range malformed {
		_, err := cipher.DecryptString(envelope)
		assert.ErrorIs(t, err, sec.ErrDecryptionFailed, "envelope %q", envelope)
	}
}

/*
TestNewCipher_KeyValidation verifies that unusable keys are rejected at
startup rather than at first use.
*/
func TestNewCipher_KeyValidation(t *testing.T) {
	badKeys := []string{
		"",
		"too-short",
		"00010203",               // 4 bytes
		strings.Repeat("zz", 32), // not hex, not base64, wrong raw length
		strings.Repeat("0", 31),  // odd hex digits, wrong raw length
	}
	for _, key := range badKeys {
		_, err := sec.NewCipher(key)
		assert.ErrorIs(t, err, sec.ErrEncryptionMisconfigured, "key %q", key)
	}

	// Hex, and raw 32-byte material, both work.
	_, err := sec.NewCipher(testKeyHex)
	assert.NoError(t, err)
	_, err = sec.NewCipher(strings.Repeat("k", 32))
	assert.NoError(t, err)
}
