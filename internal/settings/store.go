// Package settings persists the frontend's settings document as a single
// JSON file.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ErrInvalidDocument is returned by Save when the document is not JSON.
var ErrInvalidDocument = errors.New("settings must be valid JSON")

// Store reads and overwrites one JSON document on disk.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewStore creates a store backed by path. The file is created on the
// first Save.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the saved document, or JSON null when nothing has been saved.
func (s *Store) Get() (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return json.RawMessage("null"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("settings file %s is not valid JSON", s.path)
	}
	return json.RawMessage(data), nil
}

// Save replaces the document wholesale.
func (s *Store) Save(doc json.RawMessage) error {
	if !json.Valid(doc) {
		return ErrInvalidDocument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write settings: %w", err)
	}

	s.logger.Info("settings saved", "path", s.path, "bytes", len(doc))
	return nil
}
