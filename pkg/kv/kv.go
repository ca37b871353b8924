// Package kv defines the Store interface for the small key-value persistence
// backends that hold user preferences.
//
// A Store maps string keys to opaque string values. Values are typically JSON
// documents written by higher layers (see internal/profile). Stores offer no
// transactional guarantees: the last Set for a key wins.
//
// Implementations must be safe for concurrent use.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by [Store.Get] when no value is stored under the
// requested key.
var ErrNotFound = errors.New("kv: key not found")

// Store is the abstraction over any key-value persistence backend.
type Store interface {
	// Get returns the value stored under key. It returns [ErrNotFound] (possibly
	// wrapped) when the key has never been written.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
}

// Pinger is implemented by stores backed by an external resource (a database
// file or server) that can be probed for readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
