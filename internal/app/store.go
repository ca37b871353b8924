package app

import (
	"context"
	"fmt"

	"github.com/MrWong99/tutorvoz/internal/config"
	"github.com/MrWong99/tutorvoz/pkg/kv"
	"github.com/MrWong99/tutorvoz/pkg/kv/file"
	"github.com/MrWong99/tutorvoz/pkg/kv/memory"
	"github.com/MrWong99/tutorvoz/pkg/kv/postgres"
	"github.com/MrWong99/tutorvoz/pkg/kv/sqlite"
)

// openStore opens the preference store selected by cfg. The returned closer
// is nil for stores without resources to release.
func openStore(ctx context.Context, cfg config.StorageConfig) (kv.Store, func() error, error) {
	switch cfg.Backend {
	case config.StorageMemory, "":
		return memory.New(), nil, nil
	case config.StorageFile:
		return file.New(cfg.Path), nil, nil
	case config.StorageSQLite:
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoragePostgres:
		s, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
