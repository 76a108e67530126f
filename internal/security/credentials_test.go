package security

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	payload, err := EncryptToken("ghp_abcdef1234567890", "correct horse battery staple")
	require.NoError(t, err)

	assert.Equal(t, 1, payload.Version)
	assert.NotEmpty(t, payload.Salt)
	assert.NotEmpty(t, payload.Nonce)
	assert.NotEmpty(t, payload.Ciphertext)
	assert.NotContains(t, payload.Ciphertext, "ghp_")

	token, err := DecryptToken(payload, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, "ghp_abcdef1234567890", token)
}

func TestEncryptProducesFreshSaltAndNonce(t *testing.T) {
	first, err := EncryptToken("token", "pass")
	require.NoError(t, err)
	second, err := EncryptToken("token", "pass")
	require.NoError(t, err)

	assert.NotEqual(t, first.Salt, second.Salt)
	assert.NotEqual(t, first.Nonce, second.Nonce)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)
}

func TestDecryptWrongPassphrase(t *testing.T) {
	payload, err := EncryptToken("secret-token", "right")
	require.NoError(t, err)

	token, err := DecryptToken(payload, "wrong")

	assert.Empty(t, token)
	assert.ErrorContains(t, err, "failed to decrypt token")
}

func TestDecryptCorruptPayload(t *testing.T) {
	payload, err := EncryptToken("secret-token", "pass")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(p *EncryptedPayload)
	}{
		{"bad salt encoding", func(p *EncryptedPayload) { p.Salt = "%%%" }},
		{"bad nonce encoding", func(p *EncryptedPayload) { p.Nonce = "%%%" }},
		{"bad ciphertext encoding", func(p *EncryptedPayload) { p.Ciphertext = "%%%" }},
		{"truncated nonce", func(p *EncryptedPayload) { p.Nonce = "QQ==" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrupt := *payload
			tt.mutate(&corrupt)
			_, err := DecryptToken(&corrupt, "pass")
			assert.Error(t, err)
		})
	}
}

func TestLoadTokenFile(t *testing.T) {
	payload, err := EncryptToken("ghp_filetoken", "passphrase")
	require.NoError(t, err)
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "credentials.enc")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	token, err := LoadTokenFile(path, "passphrase")
	require.NoError(t, err)
	assert.Equal(t, "ghp_filetoken", token)
}

func TestLoadTokenFileErrors(t *testing.T) {
	t.Run("empty passphrase", func(t *testing.T) {
		_, err := LoadTokenFile("irrelevant", "   ")
		assert.ErrorContains(t, err, "passphrase is empty")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTokenFile(filepath.Join(t.TempDir(), "absent.enc"), "pass")
		assert.ErrorContains(t, err, "failed to read credential file")
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "garbage.enc")
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))
		_, err := LoadTokenFile(path, "pass")
		assert.ErrorContains(t, err, "failed to parse credential file")
	})
}
