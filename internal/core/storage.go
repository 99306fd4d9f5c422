package core

import (
	"context"
	"fmt"

	"creaturecore/internal/infra/persistence/memory"
	"creaturecore/internal/infra/persistence/postgres"
	"creaturecore/internal/infra/persistence/sqlite"
	"creaturecore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and configures a backend. An empty driver means
// memory.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenPersistentStore opens the backend named by opts with engine evaluated
// before every commit.
func OpenPersistentStore(ctx context.Context, opts StorageOptions, engine *domain.RulesEngine) (domain.PersistentStore, error) {
	switch opts.Driver {
	case "", StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(opts.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(ctx, opts.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", opts.Driver)
	}
}
