package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHasher(t *testing.T) {
	for _, alg := range []string{HashAlgSHA256, HashAlgSHA512, HashAlgBcrypt} {
		h, err := NewHasher(alg)
		require.NoError(t, err, alg)
		require.NotNil(t, h)
	}

	_, err := NewHasher("md5")
	require.Error(t, err)
}

func TestHasher_RoundTrip(t *testing.T) {
	for _, alg := range []string{HashAlgSHA256, HashAlgSHA512, HashAlgBcrypt} {
		t.Run(alg, func(t *testing.T) {
			h, err := NewHasher(alg)
			require.NoError(t, err)

			hash, err := h.Hash("my-secret-key")
			require.NoError(t, err)
			require.NotEmpty(t, hash)

			// The stored value is never the plaintext.
			assert.NotContains(t, hash, "my-secret-key")

			// Verification succeeds only for the exact original secret.
			assert.True(t, h.Compare("my-secret-key", hash))
			assert.False(t, h.Compare("my-secret-kez", hash))
			assert.False(t, h.Compare("", hash))
		})
	}
}

func TestHasher_DigestsAreDeterministic(t *testing.T) {
	h, err := NewHasher(HashAlgSHA256)
	require.NoError(t, err)

	h1, _ := h.Hash("key")
	h2, _ := h.Hash("key")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestGenerateKey(t *testing.T) {
	key, prefix, err := GenerateKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "ak_"))
	assert.Equal(t, key[:8], prefix)
	assert.Greater(t, len(key), 40)

	other, _, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestGenerateEncryptionKey(t *testing.T) {
	k, err := GenerateEncryptionKey()
	require.NoError(t, err)
	assert.Len(t, k, 64)

	other, err := GenerateEncryptionKey()
	require.NoError(t, err)
	assert.NotEqual(t, k, other)
}
