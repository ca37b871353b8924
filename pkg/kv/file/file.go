// Package file provides a [kv.Store] persisted as a single JSON object in a
// local file. Every Set rewrites the file through a temporary file and an
// atomic rename, so a crash never leaves a half-written document behind.
//
// It is intended for a single tutor process per file; concurrent writers in
// different processes are not coordinated.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrWong99/tutorvoz/pkg/kv"
)

var (
	_ kv.Store  = (*Store)(nil)
	_ kv.Pinger = (*Store)(nil)
)

// Store persists key-value pairs as a JSON object in the file at path.
// Thread-safe for concurrent use within one process.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a Store backed by path. The file and its parent directory are
// created lazily on the first Set.
func New(path string) *Store {
	return &Store{path: path}
}

// Get returns the value stored under key or [kv.ErrNotFound].
func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return "", err
	}
	v, ok := data[key]
	if !ok {
		return "", fmt.Errorf("file: get %q: %w", key, kv.ErrNotFound)
	}
	return v, nil
}

// Set stores value under key and rewrites the file.
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	data[key] = value
	return s.write(data)
}

// Ping reports whether the backing file is readable (or not yet created).
func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.read()
	return err
}

// read loads the whole document. A missing file is an empty document.
// Must be called with s.mu held.
func (s *Store) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("file: read %q: %w", s.path, err)
	}
	data := make(map[string]string)
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("file: decode %q: %w", s.path, err)
	}
	return data, nil
}

// write replaces the document atomically. Must be called with s.mu held.
func (s *Store) write(data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file: create dir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: rename: %w", err)
	}
	return nil
}
