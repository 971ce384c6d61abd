// Package state provides state.Store implementations that keep component
// state documents outside the filesystem.
package state

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	txstate "github.com/gxo-labs/txinstall/pkg/txinstall/v1/state"
)

// MemoryStore implements txstate.Store with a map guarded by a sync.RWMutex.
// Documents are copied on the way in and out, so callers never share a
// buffer with the store. It suits tests and dry runs where state must not
// outlive the process.
type MemoryStore struct {
	docs map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

// Exists reports whether a document is stored at path.
func (s *MemoryStore) Exists(path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[path]
	return ok, nil
}

// Read returns a copy of the document at path.
func (s *MemoryStore) Read(path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[path]
	if !ok {
		return nil, fmt.Errorf("no state document at '%s'", path)
	}
	return bytes.Clone(data), nil
}

// Write stores a copy of data at path.
func (s *MemoryStore) Write(path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("state document path cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = bytes.Clone(data)
	return nil
}

// Remove deletes the document at path, if any.
func (s *MemoryStore) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, path)
	return nil
}

// Paths lists the stored paths in sorted order.
func (s *MemoryStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.docs))
	for p := range s.docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

var _ txstate.Store = (*MemoryStore)(nil)
