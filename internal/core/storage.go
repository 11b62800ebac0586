package core

import (
	"fmt"
	"time"

	"dentalcore/internal/config"
	"dentalcore/internal/infra/persistence/memory"
	"dentalcore/internal/infra/persistence/postgres"
	"dentalcore/internal/infra/persistence/sqlite"
	"dentalcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore opens the backend named by cfg.Driver, sqlite when
// empty. now stamps deleted_at and may be nil.
func OpenPersistentStore(cfg config.StorageConfig, now func() time.Time) (domain.PersistentStore, error) {
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		store := memory.NewStore()
		store.SetClock(now)
		return store, nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, sqlite.WithClock(now))
	case StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, postgres.WithClock(now))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
