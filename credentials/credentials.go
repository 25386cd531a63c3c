// Package credentials provides secure storage for the external service
// keys the pipeline needs: the completion-service key and the search admin
// key. Keys live in ~/.mailaction/credentials.yaml, encrypted at rest with
// AES-GCM.
//
// Encryption Key Storage:
// The encryption key is stored in the system keyring:
//   - macOS: Keychain
//   - Windows: Credential Manager
//   - Linux: Secret Service (libsecret)
//
// For CI/testing environments, set MAILACTION_ENCRYPTION_KEY to a
// 64-character hex string (32 bytes).
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// Credential storage constants.
const (
	DefaultCredentialsFile = "credentials.yaml"

	keyringService = "mailaction"
	keyringUser    = "encryption-key"
	keySize        = 32
)

// Common errors.
var (
	// ErrNoCredentials is returned when no credentials are stored.
	ErrNoCredentials = errors.New("no credentials stored")
	// ErrEncryptionFailed is returned when encryption or decryption fails.
	ErrEncryptionFailed = errors.New("encryption failed")
)

// Credentials holds the stored service keys.
type Credentials struct {
	// CompletionKey is the completion/embedding service key (encrypted at rest).
	CompletionKey string `yaml:"completion_key,omitempty"`
	// SearchKey is the search index admin key (encrypted at rest).
	SearchKey string `yaml:"search_key,omitempty"`
	// LastUpdated is when the credentials were last written.
	LastUpdated time.Time `yaml:"last_updated"`
}

// KeyProvider supplies the at-rest encryption key.
type KeyProvider interface {
	GetKey() ([]byte, error)
	Description() string
}

// envKeyProvider reads the key from MAILACTION_ENCRYPTION_KEY.
type envKeyProvider struct{}

func (envKeyProvider) GetKey() ([]byte, error) {
	key, err := hex.DecodeString(os.Getenv("MAILACTION_ENCRYPTION_KEY"))
	if err != nil {
		return nil, fmt.Errorf("decoding MAILACTION_ENCRYPTION_KEY: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("MAILACTION_ENCRYPTION_KEY must be %d hex-encoded bytes", keySize)
	}
	return key, nil
}

func (envKeyProvider) Description() string { return "environment variable" }

// keyringKeyProvider stores the key in the OS keyring, generating one on
// first use.
type keyringKeyProvider struct{}

func (keyringKeyProvider) GetKey() ([]byte, error) {
	stored, err := keyring.Get(keyringService, keyringUser)
	if err == nil {
		key, decErr := hex.DecodeString(stored)
		if decErr == nil && len(key) == keySize {
			return key, nil
		}
		return nil, fmt.Errorf("stored encryption key is corrupted")
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("reading keyring: %w", err)
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating encryption key: %w", err)
	}
	if err := keyring.Set(keyringService, keyringUser, hex.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("storing encryption key: %w", err)
	}
	return key, nil
}

func (keyringKeyProvider) Description() string { return "system keyring" }

// defaultKeyProvider prefers the environment override, then the keyring.
func defaultKeyProvider() KeyProvider {
	if os.Getenv("MAILACTION_ENCRYPTION_KEY") != "" {
		return envKeyProvider{}
	}
	return keyringKeyProvider{}
}

// Store manages credential storage operations.
type Store struct {
	credentialsDir string
	encryptionKey  []byte
}

// NewStore creates a credential store using the default key provider.
func NewStore() (*Store, error) {
	return NewStoreWithKeyProvider(defaultKeyProvider())
}

// NewStoreWithKeyProvider creates a credential store with a custom key
// provider. Primarily used for testing.
func NewStoreWithKeyProvider(provider KeyProvider) (*Store, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return nil, fmt.Errorf("getting credentials directory: %w", err)
	}
	key, err := provider.GetKey()
	if err != nil {
		return nil, fmt.Errorf("getting encryption key: %w", err)
	}
	return &Store{credentialsDir: dir, encryptionKey: key}, nil
}

// CredentialsDir returns the credentials directory path.
// Uses $MAILACTION_CONFIG_DIR if set, otherwise ~/.mailaction
func CredentialsDir() (string, error) {
	if dir := os.Getenv("MAILACTION_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".mailaction"), nil
}

// Save stores credentials, encrypting the key fields.
func (s *Store) Save(creds *Credentials) error {
	if err := os.MkdirAll(s.credentialsDir, 0700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}

	storage := *creds
	storage.LastUpdated = time.Now()

	var err error
	if storage.CompletionKey != "" {
		if storage.CompletionKey, err = s.encrypt(storage.CompletionKey); err != nil {
			return fmt.Errorf("encrypting completion key: %w", err)
		}
	}
	if storage.SearchKey != "" {
		if storage.SearchKey, err = s.encrypt(storage.SearchKey); err != nil {
			return fmt.Errorf("encrypting search key: %w", err)
		}
	}

	data, err := yaml.Marshal(&storage)
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	path := filepath.Join(s.credentialsDir, DefaultCredentialsFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}
	return nil
}

// Load reads and decrypts stored credentials.
func (s *Store) Load() (*Credentials, error) {
	path := filepath.Join(s.credentialsDir, DefaultCredentialsFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.CompletionKey != "" {
		if creds.CompletionKey, err = s.decrypt(creds.CompletionKey); err != nil {
			return nil, fmt.Errorf("decrypting completion key: %w", err)
		}
	}
	if creds.SearchKey != "" {
		if creds.SearchKey, err = s.decrypt(creds.SearchKey); err != nil {
			return nil, fmt.Errorf("decrypting search key: %w", err)
		}
	}
	return &creds, nil
}

// Delete removes stored credentials.
func (s *Store) Delete() error {
	path := filepath.Join(s.credentialsDir, DefaultCredentialsFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing credentials file: %w", err)
	}
	return nil
}

// Exists reports whether a credentials file is present.
func (s *Store) Exists() bool {
	path := filepath.Join(s.credentialsDir, DefaultCredentialsFile)
	_, err := os.Stat(path)
	return err == nil
}

// GetActiveCredentials returns the effective keys. Environment variables
// override the stored file so CI runs need no keyring.
func (s *Store) GetActiveCredentials() (*Credentials, error) {
	envCompletion := os.Getenv("MAILACTION_OPENAI_KEY")
	envSearch := os.Getenv("MAILACTION_SEARCH_KEY")
	if envCompletion != "" || envSearch != "" {
		return &Credentials{CompletionKey: envCompletion, SearchKey: envSearch}, nil
	}
	return s.Load()
}

// encrypt encrypts a string using AES-GCM.
func (s *Store) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("%w: creating cipher: %v", ErrEncryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: creating GCM: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: generating nonce: %v", ErrEncryptionFailed, err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts an AES-GCM encrypted string.
func (s *Store) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decoding base64: %v", ErrEncryptionFailed, err)
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("%w: creating cipher: %v", ErrEncryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: creating GCM: %v", ErrEncryptionFailed, err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrEncryptionFailed)
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", fmt.Errorf("%w: decryption failed: %v", ErrEncryptionFailed, err)
	}
	return string(plaintext), nil
}

// MaskCredential returns a masked version of a key for display.
func MaskCredential(cred string) string {
	if len(cred) <= 8 {
		return strings.Repeat("*", len(cred))
	}
	return cred[:4] + strings.Repeat("*", len(cred)-8) + cred[len(cred)-4:]
}
