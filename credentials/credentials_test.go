package credentials

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKey is 32 bytes hex-encoded, used via the env key provider so tests
// never touch the system keyring.
const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("MAILACTION_CONFIG_DIR", t.TempDir())
	t.Setenv("MAILACTION_ENCRYPTION_KEY", testKey)

	store, err := NewStore()
	require.NoError(t, err)
	return store
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	creds := &Credentials{
		CompletionKey: "sk-test-abc123",
		SearchKey:     "adm-test-xyz789",
	}
	require.NoError(t, store.Save(creds))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test-abc123", loaded.CompletionKey)
	assert.Equal(t, "adm-test-xyz789", loaded.SearchKey)
	assert.False(t, loaded.LastUpdated.IsZero())
}

func TestSaveEncryptsAtRest(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(&Credentials{CompletionKey: "sk-plaintext-secret"}))

	dir := os.Getenv("MAILACTION_CONFIG_DIR")
	data, err := os.ReadFile(filepath.Join(dir, DefaultCredentialsFile))
	require.NoError(t, err)

	assert.NotContains(t, string(data), "sk-plaintext-secret")
}

func TestLoadMissingFile(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestLoadWrongKeyFails(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MAILACTION_CONFIG_DIR", dir)
	t.Setenv("MAILACTION_ENCRYPTION_KEY", testKey)

	store, err := NewStore()
	require.NoError(t, err)
	require.NoError(t, store.Save(&Credentials{CompletionKey: "sk-secret"}))

	t.Setenv("MAILACTION_ENCRYPTION_KEY", strings.Repeat("ff", 32))
	other, err := NewStore()
	require.NoError(t, err)

	_, err = other.Load()
	assert.ErrorIs(t, err, ErrEncryptionFailed)
}

func TestDeleteAndExists(t *testing.T) {
	store := newTestStore(t)

	assert.False(t, store.Exists())
	require.NoError(t, store.Save(&Credentials{CompletionKey: "sk-x"}))
	assert.True(t, store.Exists())

	require.NoError(t, store.Delete())
	assert.False(t, store.Exists())

	// Deleting again is not an error.
	assert.NoError(t, store.Delete())
}

func TestGetActiveCredentialsEnvOverride(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(&Credentials{CompletionKey: "sk-stored", SearchKey: "adm-stored"}))

	t.Setenv("MAILACTION_OPENAI_KEY", "sk-env")

	creds, err := store.GetActiveCredentials()
	require.NoError(t, err)
	assert.Equal(t, "sk-env", creds.CompletionKey)
	// Environment takes over entirely; the stored search key is not mixed in.
	assert.Empty(t, creds.SearchKey)
}

func TestGetActiveCredentialsFallsBackToStore(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(&Credentials{CompletionKey: "sk-stored"}))

	creds, err := store.GetActiveCredentials()
	require.NoError(t, err)
	assert.Equal(t, "sk-stored", creds.CompletionKey)
}

func TestEnvKeyProviderValidation(t *testing.T) {
	t.Setenv("MAILACTION_ENCRYPTION_KEY", "deadbeef")
	_, err := envKeyProvider{}.GetKey()
	assert.Error(t, err)

	t.Setenv("MAILACTION_ENCRYPTION_KEY", "zz")
	_, err = envKeyProvider{}.GetKey()
	assert.Error(t, err)

	t.Setenv("MAILACTION_ENCRYPTION_KEY", testKey)
	key, err := envKeyProvider{}.GetKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestMaskCredential(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", "*****"},
		{"sk-abcdefgh1234", "sk-a*******1234"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskCredential(tt.in))
	}
}
