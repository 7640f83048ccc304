package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox_RoundTrip(t *testing.T) {
	box, err := NewBox("correct horse battery staple")
	require.NoError(t, err)

	sealed, err := box.Encrypt("sk-test-123")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "sk-test-123")

	plain, err := box.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", plain)
}

func TestBox_EncryptUsesFreshNonce(t *testing.T) {
	box, err := NewBox("k")
	require.NoError(t, err)

	a, err := box.Encrypt("same")
	require.NoError(t, err)
	b, err := box.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBox_DecryptWithWrongKey(t *testing.T) {
	a, err := NewBox("one")
	require.NoError(t, err)
	b, err := NewBox("two")
	require.NoError(t, err)

	sealed, err := a.Encrypt("secret")
	require.NoError(t, err)

	_, err = b.Decrypt(sealed)
	assert.Error(t, err)
}

func TestBox_DecryptMalformed(t *testing.T) {
	box, err := NewBox("k")
	require.NoError(t, err)

	_, err = box.Decrypt("not base64!!")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = box.Decrypt("c2hvcnQ=")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewBox_EmptyKey(t *testing.T) {
	_, err := NewBox("")
	assert.Error(t, err)
}
