package dbtask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return []byte("01234567890123456789012345678901")
}

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor(testKey())
	require.NoError(t, err)

	ciphertext, err := enc.EncryptField("9800000000")
	require.NoError(t, err)
	assert.NotEqual(t, "9800000000", ciphertext)

	plaintext, err := enc.DecryptField(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "9800000000", plaintext)
}

func TestEncryptor_EmptyFieldPassesThrough(t *testing.T) {
	enc, err := NewEncryptor(testKey())
	require.NoError(t, err)

	ciphertext, err := enc.EncryptField("")
	require.NoError(t, err)
	assert.Equal(t, "", ciphertext)

	plaintext, err := enc.DecryptField("")
	require.NoError(t, err)
	assert.Equal(t, "", plaintext)
}

func TestEncryptor_NondeterministicCiphertext(t *testing.T) {
	enc, err := NewEncryptor(testKey())
	require.NoError(t, err)

	a, err := enc.EncryptField("9800000000")
	require.NoError(t, err)
	b, err := enc.EncryptField("9800000000")
	require.NoError(t, err)

	// Each call draws a fresh nonce, so equal plaintexts never produce equal
	// ciphertext — this is exactly why phone lookup uses HashPhone instead
	// of comparing encrypted columns.
	assert.NotEqual(t, a, b)
}

func TestEncryptor_HashPhone_DeterministicAndKeyed(t *testing.T) {
	enc, err := NewEncryptor(testKey())
	require.NoError(t, err)

	h1 := enc.HashPhone("9800000000")
	h2 := enc.HashPhone("9800000000")
	assert.Equal(t, h1, h2)

	other, err := NewEncryptor([]byte("98765432109876543210987654321098"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, other.HashPhone("9800000000"))
}

func TestNewEncryptor_RejectsShortKey(t *testing.T) {
	_, err := NewEncryptor([]byte("too-short"))
	assert.Error(t, err)
}
