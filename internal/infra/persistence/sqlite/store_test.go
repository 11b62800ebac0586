package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"dentalcore/internal/infra/persistence/contract"
	"dentalcore/pkg/domain"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "clinic.db"), opts...)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestContract(t *testing.T) {
	contract.Run(t, func(t *testing.T) domain.PersistentStore {
		return newTestStore(t)
	})
}

func TestContractInMemoryDatabase(t *testing.T) {
	contract.Run(t, func(t *testing.T) domain.PersistentStore {
		store, err := NewStore(MemoryPath)
		if err != nil {
			t.Fatalf("NewStore: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "clinic.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	pid, err := store.RegisterPatient(ctx, domain.PatientInput{Name: "Juan", DOB: "1990-01-01", Phone: "0917"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := store.RecordTreatment(ctx, domain.TreatmentInput{PatientID: pid, Date: "2023-10-25", Description: "Root Canal", Cost: domain.Float(8500)}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if reopened.Path() != path {
		t.Fatalf("unexpected path %q", reopened.Path())
	}
	hist, err := reopened.PatientHistory(ctx, pid)
	if err != nil || len(hist) != 1 || *hist[0].Cost != 8500 {
		t.Fatalf("history after reopen: %+v err=%v", hist, err)
	}
	// Ids keep increasing across sessions.
	next, err := reopened.RegisterPatient(ctx, domain.PatientInput{Name: "Maria", Phone: "0918"})
	if err != nil || next <= pid {
		t.Fatalf("next id %d after %d err=%v", next, pid, err)
	}
}

func TestSchemaColumns(t *testing.T) {
	store := newTestStore(t)
	want := map[string][]string{
		"patients":         {"patient_id", "name", "dob", "phone"},
		"treatments":       {"treatment_id", "patient_id", "date", "description", "cost"},
		"deleted_patients": {"patient_id", "name", "dob", "phone", "deleted_at"},
		"users":            {"username", "password"},
	}
	for table, cols := range want {
		rows, err := store.DB().Query(`SELECT name FROM pragma_table_info(?)`, table)
		if err != nil {
			t.Fatalf("table_info %s: %v", table, err)
		}
		var got []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				t.Fatalf("scan: %v", err)
			}
			got = append(got, name)
		}
		_ = rows.Close()
		if !reflect.DeepEqual(got, cols) {
			t.Fatalf("%s columns: got %v want %v", table, got, cols)
		}
	}
}

func TestForeignKeysEnforcedOnRawInsert(t *testing.T) {
	store := newTestStore(t)
	_, err := store.DB().Exec(`INSERT INTO treatments (patient_id, date, description) VALUES (99, '2023-10-25', 'x')`)
	if err == nil {
		t.Fatalf("expected foreign key failure")
	}
	if !errors.Is(classify(err), domain.ErrForeignKeyViolation) {
		t.Fatalf("expected foreign key classification, got %v", err)
	}
}

func TestDeletedAtUsesClock(t *testing.T) {
	ctx := context.Background()
	first := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	now := first
	store := newTestStore(t, WithClock(func() time.Time { return now }))

	a, _ := store.RegisterPatient(ctx, domain.PatientInput{Name: "A", Phone: "001"})
	b, _ := store.RegisterPatient(ctx, domain.PatientInput{Name: "B", Phone: "002"})
	if err := store.DeletePatient(ctx, b); err != nil {
		t.Fatalf("delete b: %v", err)
	}
	now = first.Add(1500 * time.Millisecond)
	if err := store.DeletePatient(ctx, a); err != nil {
		t.Fatalf("delete a: %v", err)
	}
	deleted, err := store.DeletedPatients(ctx)
	if err != nil {
		t.Fatalf("deleted: %v", err)
	}
	if len(deleted) != 2 || deleted[0].ID != b || deleted[1].ID != a {
		t.Fatalf("audit order: %+v", deleted)
	}
	if !deleted[0].DeletedAt.Equal(first) || !deleted[1].DeletedAt.Equal(now) {
		t.Fatalf("timestamps: %v %v", deleted[0].DeletedAt, deleted[1].DeletedAt)
	}
}

func TestClassifyPassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("disk full")
	if classify(plain) != plain {
		t.Fatalf("non-sqlite errors must pass through")
	}
}

func TestDSNAppendsPragmas(t *testing.T) {
	if got := dsn("a.db"); got != "a.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)" {
		t.Fatalf("unexpected dsn %q", got)
	}
	if got := dsn("file:a.db?mode=rwc"); got != "file:a.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)" {
		t.Fatalf("unexpected dsn %q", got)
	}
}
