// Package memory provides a process-local [kv.Store]. Values are lost when
// the process exits; it is the default backend for kiosk and test setups.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/tutorvoz/pkg/kv"
)

var _ kv.Store = (*Store)(nil)

// Store is an in-memory [kv.Store]. The zero value is ready to use.
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string]string)}
}

// Get returns the value stored under key or [kv.ErrNotFound].
func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return "", fmt.Errorf("memory: get %q: %w", key, kv.ErrNotFound)
	}
	return v, nil
}

// Set stores value under key.
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]string)
	}
	s.data[key] = value
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
