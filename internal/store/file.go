package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/raphaelgruber/agentdesk/internal/models"
	"gopkg.in/yaml.v3"
)

// FileStore keeps the identity in a YAML file.
type FileStore struct {
	path string
}

// identityFile is the on-disk layout.
type identityFile struct {
	Agent models.AgentIdentity `yaml:"agent"`
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultIdentityPath returns ~/.config/agentdesk/identity.yaml.
func DefaultIdentityPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "agentdesk", "identity.yaml")
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(_ context.Context) (models.AgentIdentity, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.AgentIdentity{}, ErrNoIdentity
	}
	if err != nil {
		return models.AgentIdentity{}, fmt.Errorf("read identity: %w", err)
	}

	var f identityFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return models.AgentIdentity{}, fmt.Errorf("parse identity: %w", err)
	}
	identity := f.Agent.Normalize()
	if identity.AgentID == "" {
		return models.AgentIdentity{}, ErrNoIdentity
	}
	if err := identity.Validate(); err != nil {
		return models.AgentIdentity{}, fmt.Errorf("load identity: %w", err)
	}
	return identity, nil
}

func (s *FileStore) Save(_ context.Context, identity models.AgentIdentity) error {
	identity = identity.Normalize()
	if err := identity.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(identityFile{Agent: identity})
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
