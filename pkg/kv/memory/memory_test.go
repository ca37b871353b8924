package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrWong99/tutorvoz/pkg/kv"
	"github.com/MrWong99/tutorvoz/pkg/kv/memory"
)

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Get(missing): err = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, "a", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "a")
	if err != nil || got != "1" {
		t.Fatalf("Get(a) = %q, %v; want %q, nil", got, err, "1")
	}
}

func TestStore_ZeroValue(t *testing.T) {
	t.Parallel()

	var s memory.Store
	if err := s.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Set on zero value: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestStore_ConcurrentWriters(t *testing.T) {
	t.Parallel()

	s := memory.New()
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Set(context.Background(), "k", string(rune('a'+i%26)))
		}()
	}
	wg.Wait()
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}
