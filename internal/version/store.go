// Releasekeeper - Versioned Deployment with Safe Rollback
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/releasekeeper

package version

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio"
)

// Store persists the currently deployed version.
//
// Current returns ErrUnknown when no record exists. SetCurrent overwrites the
// previous value; no history is kept. Reset removes the record so that
// subsequent Current calls report ErrUnknown again.
type Store interface {
	Current() (Version, error)
	SetCurrent(v Version) error
	Reset() error
}

// FileStore keeps the version as a single line in a file under the
// deployment root.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the version file.
func (s *FileStore) Path() string {
	return s.path
}

// Current reads the version file.
func (s *FileStore) Current() (Version, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Version{}, ErrUnknown
	}
	if err != nil {
		return Version{}, fmt.Errorf("read version file: %w", err)
	}

	line := strings.TrimSpace(string(data))
	if line == "" {
		return Version{}, ErrUnknown
	}

	v, err := Parse(line)
	if err != nil {
		return Version{}, fmt.Errorf("version file %s: %w", s.path, err)
	}
	return v, nil
}

// SetCurrent replaces the version file atomically.
func (s *FileStore) SetCurrent(v Version) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create version file directory: %w", err)
	}
	if err := renameio.WriteFile(s.path, []byte(v.String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("write version file: %w", err)
	}
	return nil
}

// Reset deletes the version file. A missing file is not an error.
func (s *FileStore) Reset() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove version file: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store used by tests and dry runs.
type MemoryStore struct {
	mu  sync.Mutex
	v   Version
	set bool

	// Writes counts SetCurrent and Reset calls.
	Writes int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWith returns a store holding v.
func NewMemoryStoreWith(v Version) *MemoryStore {
	return &MemoryStore{v: v, set: true}
}

func (s *MemoryStore) Current() (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return Version{}, ErrUnknown
	}
	return s.v, nil
}

func (s *MemoryStore) SetCurrent(v Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = v
	s.set = true
	s.Writes++
	return nil
}

func (s *MemoryStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = Version{}
	s.set = false
	s.Writes++
	return nil
}
