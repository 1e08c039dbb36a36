package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
)

// CriticalityStore owns the persisted criticality rules. Readers get deep-copied
// snapshots; every successful save or reset bumps the version.
type CriticalityStore struct {
	mu        sync.RWMutex
	path      string
	cfg       domain.CriticalityConfig
	version   int64
	updatedAt time.Time
}

// CriticalitySnapshot is the rule set together with its version.
type CriticalitySnapshot struct {
	Config    domain.CriticalityConfig `json:"config"`
	Version   int64                    `json:"version"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// NewCriticalityStore loads rules from path. A missing or unreadable file falls
// back to the built-in defaults.
func NewCriticalityStore(path string) *CriticalityStore {
	s := &CriticalityStore{
		path:      path,
		cfg:       domain.DefaultCriticalityConfig(),
		updatedAt: time.Now(),
	}

	cfg, err := readCriticalityFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Str("path", path).Msg("no criticality config file, using defaults")
	case err != nil:
		log.Warn().Err(err).Str("path", path).Msg("failed to load criticality config, using defaults")
	default:
		s.cfg = cfg
		s.version = 1
	}
	return s
}

func readCriticalityFile(path string) (domain.CriticalityConfig, error) {
	var cfg domain.CriticalityConfig
	if path == "" {
		return cfg, fs.ErrNotExist
	}
	if _, err := os.Stat(path); err != nil {
		return cfg, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Snapshot returns a copy of the current rules.
func (s *CriticalityStore) Snapshot() CriticalitySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CriticalitySnapshot{Config: s.cfg.Clone(), Version: s.version, UpdatedAt: s.updatedAt}
}

// Config returns a copy of the current rules without version information.
func (s *CriticalityStore) Config() domain.CriticalityConfig {
	return s.Snapshot().Config
}

// Save validates and persists cfg, replacing the current rules.
func (s *CriticalityStore) Save(cfg domain.CriticalityConfig) (CriticalitySnapshot, error) {
	if err := cfg.Validate(); err != nil {
		return CriticalitySnapshot{}, err
	}
	return s.replace(cfg.Clone())
}

// Reset restores and persists the built-in defaults.
func (s *CriticalityStore) Reset() (CriticalitySnapshot, error) {
	return s.replace(domain.DefaultCriticalityConfig())
}

func (s *CriticalityStore) replace(cfg domain.CriticalityConfig) (CriticalitySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.path, cfg); err != nil {
		return CriticalitySnapshot{}, err
	}

	s.cfg = cfg
	s.version++
	s.updatedAt = time.Now()
	log.Info().Int64("version", s.version).Str("path", s.path).Msg("criticality config saved")

	return CriticalitySnapshot{Config: s.cfg.Clone(), Version: s.version, UpdatedAt: s.updatedAt}, nil
}

func writeFileAtomic(path string, cfg domain.CriticalityConfig) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode criticality config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".criticality-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
