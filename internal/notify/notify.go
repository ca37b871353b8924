// Package notify provides an ordered observer list used by the voice
// engines to fan out profile changes and lifecycle events.
package notify

import (
	"slices"
	"sync"
)

// Hub delivers values to subscribers in registration order. The zero value
// is ready to use and safe for concurrent use.
//
// Publish runs callbacks synchronously on the calling goroutine, outside the
// hub's lock, so a callback may subscribe, unsubscribe or publish again.
type Hub[T any] struct {
	mu   sync.Mutex
	seq  int
	subs []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function that unregisters it.
// Unsubscribing twice is harmless.
func (h *Hub[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	id := h.seq
	h.subs = append(h.subs, subscriber[T]{id: id, fn: fn})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.subs = slices.DeleteFunc(h.subs, func(s subscriber[T]) bool { return s.id == id })
	}
}

// Publish calls every current subscriber with v.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	subs := slices.Clone(h.subs)
	h.mu.Unlock()
	for _, s := range subs {
		s.fn(v)
	}
}

// Len returns the number of subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
