package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"secure-scrub/internal/domain"
)

// ErrExists is returned by Create when the settings file is already present.
var ErrExists = errors.New("settings file already exists")

// Store defines persistence operations for settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// YAMLStore persists settings in a single YAML file on disk.
type YAMLStore struct {
	path string
}

// NewYAMLStore creates a YAML-backed settings store.
func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: path}
}

// Path returns the backing file path.
func (s *YAMLStore) Path() string {
	return s.path
}

// Load reads settings from disk or returns defaults when missing. Keys absent
// from the file keep their default values.
func (s *YAMLStore) Load() (domain.Settings, error) {
	cfg := DefaultSettings()
	if s.path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return domain.Settings{}, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return cfg, nil
}

// Save writes settings as YAML and creates parent directories.
func (s *YAMLStore) Save(cfg domain.Settings) error {
	data, err := s.encode(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Create writes settings only if no file exists yet.
func (s *YAMLStore) Create(cfg domain.Settings) error {
	data, err := s.encode(cfg)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExists
		}
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

func (s *YAMLStore) encode(cfg domain.Settings) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, err
	}
	return yaml.Marshal(cfg)
}
