// Package prefs persists small pieces of local state as serialized
// key-value entries.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

// Store reads and writes JSON-encoded values by key. Implementations are safe
// for concurrent use.
type Store interface {
	Put(key string, v any) error
	// Get decodes the value stored under key into v. ok is false if the key
	// is absent.
	Get(key string, v any) (ok bool, err error)
	Delete(key string) error
}

// MemoryStore keeps entries in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]json.RawMessage
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]json.RawMessage)}
}

// Put implements Store.
func (s *MemoryStore) Put(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = b
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(key string, v any) (bool, error) {
	s.mu.RLock()
	b, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// FileStore keeps all entries in one JSON object on disk. Every write
// replaces the file atomically.
type FileStore struct {
	mu   sync.Mutex
	path string
	mem  *MemoryStore
}

// OpenFileStore loads path if it exists. The parent directory is created.
func OpenFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create prefs dir: %w", err)
	}
	s := &FileStore{path: path, mem: NewMemoryStore()}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read prefs: %w", err)
	}
	if len(b) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s.mem.entries); err != nil {
		return nil, fmt.Errorf("parse prefs %s: %w", path, err)
	}
	return s, nil
}

// Put implements Store.
func (s *FileStore) Put(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Put(key, v); err != nil {
		return err
	}
	return s.flushLocked()
}

// Get implements Store.
func (s *FileStore) Get(key string, v any) (bool, error) {
	return s.mem.Get(key, v)
}

// Delete implements Store.
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Delete(key); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	s.mem.mu.RLock()
	b, err := json.MarshalIndent(s.mem.entries, "", "  ")
	s.mem.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	if err := renameio.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write prefs %s: %w", s.path, err)
	}
	return nil
}
