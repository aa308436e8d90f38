// Package memory stores objects in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Store keeps objects in a map and returns memory:// URIs.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
	fail error
}

// New creates an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// FailWith makes every subsequent PutObject return err; nil restores normal behaviour.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// PutObject persists the content and returns a URI.
func (s *Store) PutObject(_ context.Context, key string, _ string, data io.Reader) (string, error) {
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.data[key] = byteData
	return "memory://" + key, nil
}

// Object returns a copy of the stored object.
func (s *Store) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	return append([]byte(nil), data...), ok
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
