package security

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCipherRejectsBadKeyLength(t *testing.T) {
	_, err := NewCipher(make([]byte, 16))
	require.Error(t, err)

	_, err = NewCipher(make([]byte, 32))
	require.NoError(t, err)
}

func TestNewCipherFromPasswordRejectsEmpty(t *testing.T) {
	_, err := NewCipherFromPassword("")
	require.Error(t, err)

	_, err = NewCipherFromPassword("hunter2")
	require.NoError(t, err)
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	key := bytes.Repeat([]byte("k"), 32)
	c, err := NewCipher(key)
	require.NoError(t, err)

	for _, plaintext := range [][]byte{
		[]byte("hello world"),
		[]byte(`{"a":1}`),
		bytes.Repeat([]byte("x"), 4096),
	} {
		ciphertext, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		require.NotEqual(t, plaintext, ciphertext)

		decrypted, err := c.Decrypt(ciphertext)
		require.NoError(t, err)
		require.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptRejectsEmpty(t *testing.T) {
	c, _ := NewCipher(make([]byte, 32))
	_, err := c.Encrypt(nil)
	require.Error(t, err)
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	c, _ := NewCipher(make([]byte, 32))
	_, err := c.Decrypt([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	c1, _ := NewCipher(bytes.Repeat([]byte("a"), 32))
	c2, _ := NewCipher(bytes.Repeat([]byte("b"), 32))

	ciphertext, err := c1.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = c2.Decrypt(ciphertext)
	require.Error(t, err)
}

func TestDeriveKeyFromClusterIDIsDeterministic(t *testing.T) {
	k1 := DeriveKeyFromClusterID("cluster-123")
	k2 := DeriveKeyFromClusterID("cluster-123")
	require.Equal(t, k1, k2)
	require.Len(t, k1, 32)

	k3 := DeriveKeyFromClusterID("cluster-456")
	require.NotEqual(t, k1, k3)
}

func TestChallengeResponseRoundtrip(t *testing.T) {
	key := DeriveKeyFromClusterID("cluster-xyz")
	challenge, err := NewChallenge()
	require.NoError(t, err)
	require.Len(t, challenge, 32)

	response := RespondToChallenge(key, challenge)
	require.True(t, VerifyChallengeResponse(key, challenge, response))

	wrongKey := DeriveKeyFromClusterID("cluster-other")
	require.False(t, VerifyChallengeResponse(wrongKey, challenge, response))
}
