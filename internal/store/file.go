package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pscheid92/sessionkeeper/internal/crypto"
	"github.com/pscheid92/sessionkeeper/internal/identity"
	"github.com/pscheid92/sessionkeeper/internal/metrics"
)

// FileStore persists the slot as a single JSON file, optionally encrypted at
// rest. Writes go through a temp file and rename so a crash never leaves a
// half-written slot.
type FileStore struct {
	path    string
	crypter crypto.Service
}

// NewFileStore creates a FileStore at path. crypter may be crypto.NoopService{}
// for unencrypted slots.
func NewFileStore(path string, crypter crypto.Service) *FileStore {
	return &FileStore{path: path, crypter: crypter}
}

func (s *FileStore) Save(_ context.Context, tokens *identity.TokenPair) error {
	err := s.save(tokens)
	metrics.ObserveStoreOp("save", err)
	return err
}

func (s *FileStore) save(tokens *identity.TokenPair) error {
	payload, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	sealed, err := s.crypter.Encrypt(string(payload))
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(sealed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set session file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context) (*identity.TokenPair, error) {
	tokens, err := s.load()
	metrics.ObserveStoreOp("load", err)
	return tokens, err
}

func (s *FileStore) load() (*identity.TokenPair, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	opened, err := s.crypter.Decrypt(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session: %w", err)
	}

	var tokens identity.TokenPair
	if err := json.Unmarshal([]byte(opened), &tokens); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &tokens, nil
}

func (s *FileStore) Clear(_ context.Context) error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	metrics.ObserveStoreOp("clear", err)
	if err != nil {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
