package core

import (
	"context"
	"fmt"

	"inmoelegance/internal/infra/persistence/memory"
	"inmoelegance/internal/infra/persistence/postgres"
	"inmoelegance/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and configures the persistent store.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenPersistentStore opens the backend named by opts.Driver. An empty driver
// selects sqlite.
func OpenPersistentStore(ctx context.Context, opts StorageOptions, engine *RulesEngine) (PersistentStore, error) {
	driver := opts.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(opts.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(ctx, opts.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
