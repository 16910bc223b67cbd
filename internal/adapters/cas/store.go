// Package cas implements the per-target build record store.
package cas

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// Store implements ports.BuildInfoStore using a flat JSON file.
type Store struct {
	path  string
	mu    sync.RWMutex
	cache map[string]domain.BuildInfo
}

// NewStore creates a store that is not yet bound to a file.
func NewStore() *Store {
	return &Store{cache: make(map[string]domain.BuildInfo)}
}

// Open binds the store to the file at path and loads its records.
func (s *Store) Open(path string) error {
	s.mu.Lock()
	s.path = filepath.Clean(path)
	s.cache = make(map[string]domain.BuildInfo)
	s.mu.Unlock()
	return s.load()
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	//nolint:gosec // Path is cleaned and provided by trusted caller
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return zerr.With(zerr.Wrap(err, "failed to read build info store"), "path", s.path)
	}

	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, &s.cache); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to unmarshal build info store"), "path", s.path)
	}

	return nil
}

func (s *Store) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return zerr.New("build info store is not open")
	}

	data, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		return zerr.Wrap(err, "failed to marshal build info store")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create directory for build info store")
	}

	if err := renameio.WriteFile(s.path, data, domain.FilePerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write build info store"), "path", s.path)
	}

	return nil
}

// Get retrieves the build info for a given target name.
func (s *Store) Get(target string) (*domain.BuildInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.cache[target]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// Put stores the build info.
func (s *Store) Put(info domain.BuildInfo) error {
	s.mu.Lock()
	s.cache[info.Target] = info
	s.mu.Unlock()

	return s.save()
}

// Reset discards every record and removes the backing file.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = make(map[string]domain.BuildInfo)
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return zerr.With(zerr.Wrap(err, "failed to reset build info store"), "path", s.path)
	}
	return nil
}
