package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

// Key names a persisted token entry.
type Key string

const (
	KeyAccessToken  Key = "accessToken"
	KeyRefreshToken Key = "refreshToken"
	KeyCSRFToken    Key = "csrfToken"
)

// Keys lists every entry a session owns.
var Keys = []Key{KeyAccessToken, KeyRefreshToken, KeyCSRFToken}

// ErrInvalidKey is returned for a key not listed in Keys.
var ErrInvalidKey = errors.New("invalid token key")

// Valid reports whether k is one of Keys.
func (k Key) Valid() bool {
	return slices.Contains(Keys, k)
}

// Store is a process-wide key-value store for token strings.
// It performs no validation of the values it holds.
type Store interface {
	// Get returns the stored value and whether it was present.
	Get(key Key) (string, bool)
	// Set stores a value, replacing any previous one.
	Set(key Key, value string) error
	// Clear removes a value. Clearing an absent key is not an error.
	Clear(key Key) error
}

const tokensFile = "tokens.json"

// tokensConfig represents the on-disk token file.
type tokensConfig struct {
	Version int            `json:"version"`
	Tokens  map[Key]string `json:"tokens"`
}

// FileStore persists tokens in a JSON file so they survive restarts.
// Reads are served from memory; every write is flushed to disk.
type FileStore struct {
	baseDir string

	mu     sync.RWMutex
	tokens map[Key]string
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens (or creates) a token store.
// If baseDir is empty, uses ~/.laudofy/
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".laudofy")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	s := &FileStore{baseDir: baseDir, tokens: make(map[Key]string)}

	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}
	s.tokens = cfg.Tokens

	log.Debug().Str("baseDir", baseDir).Int("entries", len(s.tokens)).Msg("token store initialized")

	return s, nil
}

// Dir returns the directory holding the token file.
func (s *FileStore) Dir() string {
	return s.baseDir
}

func (s *FileStore) Get(key Key) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.tokens[key]
	return v, ok
}

func (s *FileStore) Set(key Key, value string) error {
	if !key.Valid() {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.tokens[key]
	s.tokens[key] = value

	if err := s.saveConfig(); err != nil {
		// keep memory consistent with disk
		if had {
			s.tokens[key] = prev
		} else {
			delete(s.tokens, key)
		}
		return err
	}

	return nil
}

func (s *FileStore) Clear(key Key) error {
	if !key.Valid() {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.tokens[key]
	if !had {
		return nil
	}
	delete(s.tokens, key)

	if err := s.saveConfig(); err != nil {
		s.tokens[key] = prev
		return err
	}

	return nil
}

// loadConfig reads the token file, returning an empty config when absent.
func (s *FileStore) loadConfig() (*tokensConfig, error) {
	configPath := filepath.Join(s.baseDir, tokensFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &tokensConfig{Version: 1, Tokens: make(map[Key]string)}, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var cfg tokensConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}

	if cfg.Tokens == nil {
		cfg.Tokens = make(map[Key]string)
	}

	return &cfg, nil
}

// saveConfig writes the token file atomically. Caller holds mu.
func (s *FileStore) saveConfig() error {
	cfg := tokensConfig{Version: 1, Tokens: s.tokens}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	configPath := filepath.Join(s.baseDir, tokensFile)
	tempPath := configPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save token file: %w", err)
	}

	return nil
}

// MemoryStore keeps tokens in memory only. Useful for tests and
// short-lived processes.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[Key]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[Key]string)}
}

func (m *MemoryStore) Get(key Key) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.tokens[key]
	return v, ok
}

func (m *MemoryStore) Set(key Key, value string) error {
	if !key.Valid() {
		return ErrInvalidKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[key] = value
	return nil
}

func (m *MemoryStore) Clear(key Key) error {
	if !key.Valid() {
		return ErrInvalidKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tokens, key)
	return nil
}

// ClearAll removes every session entry from the store. Failures are
// joined so one bad key does not stop the rest.
func ClearAll(s Store) error {
	var errs []error
	for _, k := range Keys {
		if err := s.Clear(k); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}
