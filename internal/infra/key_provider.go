package infra

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
)

const (
	keyFileName = ".key"
	keySize     = 32 // 256-bit SQLCipher key

	// KeyEnv supplies the blocklist key as base64, bypassing the key file.
	KeyEnv = "POMOMON_BLOCKLIST_KEY"
)

// ErrKeyReadOnly is returned when storing into a provider that cannot persist keys.
var ErrKeyReadOnly = errors.New("key provider is read-only")

// decodeKey parses a base64 key, tolerating surrounding whitespace.
func decodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	return key, nil
}

// FileKeyProvider keeps the blocklist key as base64 in a 0600 file beside the database.
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{keyPath: filepath.Join(dataDir, keyFileName)}
}

func (p *FileKeyProvider) GetKey() ([]byte, error) {
	encoded, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return decodeKey(string(encoded))
}

// StoreKey atomically writes the key with restricted permissions.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := AtomicWrite(p.keyPath, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// EnvKeyProvider reads the key from an environment variable, for users who
// keep it in a password manager rather than on disk.
type EnvKeyProvider struct {
	name   string
	lookup func(string) (string, bool)
}

// NewEnvKeyProvider reads the key from the named variable.
func NewEnvKeyProvider(name string) *EnvKeyProvider {
	return &EnvKeyProvider{name: name, lookup: os.LookupEnv}
}

func (p *EnvKeyProvider) GetKey() ([]byte, error) {
	encoded, ok := p.lookup(p.name)
	if !ok {
		return nil, fmt.Errorf("%s is not set", p.name)
	}
	key, err := decodeKey(encoded)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	return key, nil
}

func (p *EnvKeyProvider) StoreKey([]byte) error {
	return ErrKeyReadOnly
}

func (p *EnvKeyProvider) KeyExists() bool {
	v, ok := p.lookup(p.name)
	return ok && strings.TrimSpace(v) != ""
}

// KeyProviderFor returns the env provider when KeyEnv is set, else the key file in dataDir.
func KeyProviderFor(dataDir string) domain.KeyProvider {
	if env := NewEnvKeyProvider(KeyEnv); env.KeyExists() {
		return env
	}
	return NewFileKeyProvider(dataDir)
}

// GenerateKey creates a new random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the provider's key, generating and storing one on first use.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

var (
	_ domain.KeyProvider = (*FileKeyProvider)(nil)
	_ domain.KeyProvider = (*EnvKeyProvider)(nil)
)
