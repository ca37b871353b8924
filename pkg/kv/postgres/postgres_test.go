package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/MrWong99/tutorvoz/pkg/kv"
	"github.com/MrWong99/tutorvoz/pkg/kv/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if TUTORVOZ_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TUTORVOZ_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TUTORVOZ_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

func TestStore_Integration(t *testing.T) {
	dsn := testDSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	table := fmt.Sprintf("tutorvoz_kv_test_%d", time.Now().UnixNano())
	s, err := postgres.New(ctx, dsn, postgres.WithTable(table))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := s.Get(ctx, "voice"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Get before Set: err = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, "voice", "a"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "voice", "b"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "voice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "b" {
		t.Errorf("Get = %q, want %q", got, "b")
	}
	// Migrate is idempotent.
	if err := s.Migrate(ctx); err != nil {
		t.Errorf("second Migrate: %v", err)
	}
}
