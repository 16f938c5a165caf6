package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestEncryptDecrypt(t *testing.T) {
	sealed, err := Encrypt([]byte("access-token"), testKey)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "access-token")

	plain, err := Decrypt(sealed, testKey)
	require.NoError(t, err)
	assert.Equal(t, "access-token", plain)
}

func TestEncryptEmpty(t *testing.T) {
	sealed, err := Encrypt(nil, testKey)
	require.NoError(t, err)
	assert.Empty(t, sealed)

	plain, err := Decrypt("", testKey)
	require.NoError(t, err)
	assert.Empty(t, plain)
}

func TestDecryptWrongKey(t *testing.T) {
	sealed, err := Encrypt([]byte("access-token"), testKey)
	require.NoError(t, err)

	_, err = Decrypt(sealed, []byte("fedcba9876543210fedcba9876543210"))
	assert.Error(t, err)
}

func TestDecryptTooShort(t *testing.T) {
	_, err := Decrypt("YWJj", testKey)
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}
