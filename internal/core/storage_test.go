package core

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"dentalcore/internal/config"
	"dentalcore/internal/infra/persistence/postgres"
	"dentalcore/internal/infra/persistence/postgres/testutil"
	"dentalcore/pkg/domain"
)

func TestOpenPersistentStoreDrivers(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	now := func() time.Time { return at }
	dir := t.TempDir()

	cases := []struct {
		cfg  config.StorageConfig
		want string
	}{
		{config.StorageConfig{Driver: "memory"}, "memory"},
		{config.StorageConfig{Driver: "sqlite", SQLitePath: filepath.Join(dir, "a.db")}, "sqlite"},
		{config.StorageConfig{SQLitePath: filepath.Join(dir, "b.db")}, "sqlite"},
	}
	for _, tc := range cases {
		store, err := OpenPersistentStore(tc.cfg, now)
		if err != nil {
			t.Fatalf("open %+v: %v", tc.cfg, err)
		}
		if store.Driver() != tc.want {
			t.Fatalf("driver %s want %s", store.Driver(), tc.want)
		}
		ctx := context.Background()
		pid, err := store.RegisterPatient(ctx, domain.PatientInput{Name: "A", Phone: "1"})
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		if err := store.DeletePatient(ctx, pid); err != nil {
			t.Fatalf("delete: %v", err)
		}
		deleted, err := store.DeletedPatients(ctx)
		if err != nil || len(deleted) != 1 || !deleted[0].DeletedAt.Equal(at) {
			t.Fatalf("%s clock not applied: %+v err=%v", tc.want, deleted, err)
		}
		_ = store.Close()
	}
}

func TestOpenPersistentStorePostgres(t *testing.T) {
	db, _ := testutil.NewStubDB()
	var gotDSN string
	restore := postgres.OverrideSQLOpen(func(_, dsn string) (*sql.DB, error) {
		gotDSN = dsn
		return db, nil
	})
	defer restore()

	store, err := OpenPersistentStore(config.StorageConfig{Driver: "postgres", PostgresDSN: "postgres://clinic"}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()
	if store.Driver() != postgres.DriverName || gotDSN != "postgres://clinic" {
		t.Fatalf("driver %s dsn %s", store.Driver(), gotDSN)
	}
}

func TestOpenPersistentStoreUnknown(t *testing.T) {
	if _, err := OpenPersistentStore(config.StorageConfig{Driver: "mysql"}, nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
