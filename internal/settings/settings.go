// Package settings keeps the internal API key that authenticates requests
// to the backend proxy. The key is stored encrypted on local disk.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"whale-futures/observability"
)

const settingsFile = "settings.enc"

// KeySource tells where the active key came from
type KeySource string

const (
	SourceStored KeySource = "stored"
	SourceEnv    KeySource = "env"
	SourceNone   KeySource = "none"
)

// Settings is the persisted document
type Settings struct {
	InternalAPIKey string    `json:"internal_api_key,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitzero"`
}

// KeyStatus describes the active key without revealing it
type KeyStatus struct {
	Configured bool      `json:"configured"`
	Masked     string    `json:"masked,omitempty"`
	Source     KeySource `json:"source"`
	UpdatedAt  time.Time `json:"updatedAt,omitzero"`
}

// Store manages the encrypted settings file
type Store struct {
	mu       sync.RWMutex
	filePath string
	settings Settings
	crypto   *Crypto
	envKey   string
}

// NewStore opens the settings in dataDir, creating the directory when
// needed. envKey is used whenever no key has been stored.
func NewStore(dataDir, passphrase, envKey string) (*Store, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".whale-futures")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	store := &Store{
		filePath: filepath.Join(dataDir, settingsFile),
		crypto:   NewCrypto(passphrase),
		envKey:   strings.TrimSpace(envKey),
	}

	if err := store.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		observability.Warn("failed to load settings, starting empty", "path", store.filePath, "error", err)
	}

	return store, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	decrypted, err := s.crypto.Decrypt(data)
	if err != nil {
		return fmt.Errorf("failed to decrypt settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(decrypted, &settings); err != nil {
		return fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

// saveLocked writes the settings file; the caller holds s.mu
func (s *Store) saveLocked() error {
	data, err := json.Marshal(s.settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	encrypted, err := s.crypto.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt settings: %w", err)
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, encrypted, 0600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}

// APIKey returns the stored key, or the environment key when none is stored.
// It implements services.KeyProvider.
func (s *Store) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings.InternalAPIKey != "" {
		return s.settings.InternalAPIKey
	}
	return s.envKey
}

// SetAPIKey stores key after trimming it. An empty key clears the stored one.
func (s *Store) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return s.ClearAPIKey()
	}
	if err := ValidateAPIKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.InternalAPIKey = key
	s.settings.UpdatedAt = time.Now().UTC()
	return s.saveLocked()
}

// ClearAPIKey removes the stored key. The environment key, if any, becomes
// active again.
func (s *Store) ClearAPIKey() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.InternalAPIKey = ""
	s.settings.UpdatedAt = time.Now().UTC()
	return s.saveLocked()
}

// HasAPIKey reports whether any key is active
func (s *Store) HasAPIKey() bool {
	return s.APIKey() != ""
}

// MaskedAPIKey returns the active key with all but its last four characters hidden
func (s *Store) MaskedAPIKey() string {
	return maskString(s.APIKey())
}

// Status describes the active key
func (s *Store) Status() KeyStatus {
	s.mu.RLock()
	stored, updated := s.settings.InternalAPIKey, s.settings.UpdatedAt
	s.mu.RUnlock()

	switch {
	case stored != "":
		return KeyStatus{Configured: true, Masked: maskString(stored), Source: SourceStored, UpdatedAt: updated}
	case s.envKey != "":
		return KeyStatus{Configured: true, Masked: maskString(s.envKey), Source: SourceEnv}
	default:
		return KeyStatus{Source: SourceNone}
	}
}

// maskString masks a string showing only last 4 characters
func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
