// Package mock provides a test double for the kv.Store interface.
//
// Use Store to pre-seed raw values (including malformed ones) and to inject
// read or write failures.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tutorvoz/pkg/kv"
)

// SetCall records a single invocation of Set.
type SetCall struct {
	Key   string
	Value string
}

// Store is a mock implementation of kv.Store.
type Store struct {
	mu sync.Mutex

	// Data holds the stored values. Tests may pre-populate it.
	Data map[string]string

	// GetErr, if non-nil, is returned by every Get call.
	GetErr error

	// SetErr, if non-nil, is returned by every Set call and the value is not
	// stored.
	SetErr error

	// SetCalls records every call to Set in order, including failed ones.
	SetCalls []SetCall
}

// Get returns Data[key], GetErr, or kv.ErrNotFound.
func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return "", s.GetErr
	}
	v, ok := s.Data[key]
	if !ok {
		return "", kv.ErrNotFound
	}
	return v, nil
}

// Set records the call and stores value unless SetErr is set.
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetCalls = append(s.SetCalls, SetCall{Key: key, Value: value})
	if s.SetErr != nil {
		return s.SetErr
	}
	if s.Data == nil {
		s.Data = make(map[string]string)
	}
	s.Data[key] = value
	return nil
}

// SetCallCount returns the number of Set calls. Thread-safe.
func (s *Store) SetCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SetCalls)
}

// Ensure Store implements kv.Store at compile time.
var _ kv.Store = (*Store)(nil)
