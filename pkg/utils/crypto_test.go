package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	sealed, err := Encrypt([]byte("access-token"), key)
	require.NoError(t, err)
	assert.NotEqual(t, "access-token", sealed)

	plain, err := Decrypt(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, "access-token", plain)

	_, err = Decrypt(sealed, []byte("fedcba9876543210fedcba9876543210"))
	assert.Error(t, err)
}

func TestTokenCipherPassthrough(t *testing.T) {
	c := NewTokenCipher("")
	assert.False(t, c.Enabled())

	sealed, err := c.Seal("tok")
	require.NoError(t, err)
	assert.Equal(t, "tok", sealed)

	plain, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "tok", plain)
}

func TestTokenCipherRoundTrip(t *testing.T) {
	c := NewTokenCipher("0123456789abcdef")

	sealed, err := c.Seal("tok")
	require.NoError(t, err)
	assert.NotEqual(t, "tok", sealed)

	plain, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "tok", plain)

	empty, err := c.Seal("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
