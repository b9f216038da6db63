// Package state persists the record of the currently provisioned VM as a
// JSON file, so deploy, status and destroy survive a process restart.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/seantiz/cloudlaunch/internal/model"
)

// ErrNoState is returned when no VM has been provisioned yet.
var ErrNoState = errors.New("no infrastructure state found")

// Store holds at most one VM state record on disk. All access is serialized
// so concurrent handlers never observe a half-written file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a state store backed by the JSON file at path. The
// parent directory is created if missing.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Store{path: path}, nil
}

// Save writes the VM state, replacing any previous record. The write goes
// through a temp file and rename so a crash never leaves a torn file.
func (s *Store) Save(state *model.VMState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

// Load returns the saved VM state, or ErrNoState when nothing has been
// provisioned.
func (s *Store) Load() (*model.VMState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var state model.VMState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &state, nil
}

// Clear removes the saved state. Clearing an already-empty store is not an
// error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}
