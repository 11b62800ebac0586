package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"dentalcore/internal/infra/persistence/contract"
	"dentalcore/internal/infra/persistence/postgres/testutil"
	"dentalcore/pkg/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

func newStubStore(t *testing.T, opts ...Option) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore("ignored", opts...)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, conn
}

func TestNewStoreAppliesSchema(t *testing.T) {
	var gotDriver, gotDSN string
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driverName, dsn
		return db, nil
	})
	defer restore()

	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	if gotDriver != "pgx" || gotDSN != defaultDSN {
		t.Fatalf("unexpected open args %q %q", gotDriver, gotDSN)
	}
	if len(conn.Execs) != len(schema) {
		t.Fatalf("expected %d ddl statements, got %d", len(schema), len(conn.Execs))
	}
	for _, table := range []string{"patients", "treatments", "deleted_patients", "users"} {
		if conn.ExecCount("CREATE TABLE IF NOT EXISTS "+table+" (") != 1 {
			t.Fatalf("missing ddl for %s", table)
		}
	}
	if store.Driver() != DriverName {
		t.Fatalf("unexpected driver %q", store.Driver())
	}
}

func TestNewStoreFailures(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("dial") })
	if _, err := NewStore("x"); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open error, got %v", err)
	}
	restore()

	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	if _, err := NewStore("x"); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping error, got %v", err)
	}
	restore()

	db, conn = testutil.NewStubDB()
	conn.FailExecOn = "CREATE TABLE IF NOT EXISTS users"
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore("x"); err == nil || !strings.Contains(err.Error(), "execute ddl") {
		t.Fatalf("expected ddl error, got %v", err)
	}
}

func TestRegisterPatientReturnsGeneratedID(t *testing.T) {
	store, conn := newStubStore(t)
	conn.On("INSERT INTO patients", []string{"patient_id"}, []driver.Value{int64(7)})

	id, err := store.RegisterPatient(context.Background(), domain.PatientInput{Name: " Juan ", Phone: "0917"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}
	args := conn.QueryArgs[len(conn.QueryArgs)-1]
	if args[0] != "Juan" || args[1] != nil || args[2] != "0917" {
		t.Fatalf("unexpected bound args %v", args)
	}
}

func TestConstraintViolationsAreClassified(t *testing.T) {
	ctx := context.Background()
	store, conn := newStubStore(t)

	conn.QueryErr = &pgconn.PgError{Code: codeUniqueViolation, Message: "duplicate key value violates unique constraint"}
	if _, err := store.RegisterPatient(ctx, domain.PatientInput{Name: "Maria", Phone: "0917"}); !errors.Is(err, domain.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	conn.QueryErr = &pgconn.PgError{Code: codeForeignKeyViolation, Message: "violates foreign key constraint"}
	_, err := store.RecordTreatment(ctx, domain.TreatmentInput{PatientID: 9, Date: "2023-10-25", Description: "Root Canal"})
	if !errors.Is(err, domain.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}

	conn.QueryErr = nil
	conn.ExecErr = &pgconn.PgError{Code: codeUniqueViolation}
	if err := store.UpdatePatient(ctx, 1, domain.PatientInput{Name: "Juan", Phone: "0917"}); !errors.Is(err, domain.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey on update, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	plain := errors.New("connection reset")
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"unique", &pgconn.PgError{Code: "23505"}, domain.ErrDuplicateKey},
		{"foreign key", &pgconn.PgError{Code: "23503"}, domain.ErrForeignKeyViolation},
		{"other sqlstate", &pgconn.PgError{Code: "40001"}, nil},
		{"not pg", plain, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.in)
			if tc.want == nil {
				if got != tc.in {
					t.Fatalf("expected error passed through, got %v", got)
				}
				return
			}
			if !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestUpdatePatientMissing(t *testing.T) {
	store, conn := newStubStore(t)
	conn.RowsAffected = 0
	err := store.UpdatePatient(context.Background(), 42, domain.PatientInput{Name: "Ghost", Phone: "000"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeletePatientRunsInTransaction(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	store, conn := newStubStore(t, WithClock(func() time.Time { return at }))

	if err := store.DeletePatient(context.Background(), 5); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if conn.Committed != 1 {
		t.Fatalf("expected commit, got %d", conn.Committed)
	}
	for _, frag := range []string{"INSERT INTO deleted_patients", "DELETE FROM treatments", "DELETE FROM patients"} {
		if conn.ExecCount(frag) != 1 {
			t.Fatalf("expected %q once, execs=%v", frag, conn.Execs)
		}
	}
	archive := conn.ExecArgs[len(schema)]
	if ts, ok := archive[0].(time.Time); !ok || !ts.Equal(at) {
		t.Fatalf("deleted_at not bound from clock: %v", archive)
	}
}

func TestDeletePatientMissingRollsBack(t *testing.T) {
	store, conn := newStubStore(t)
	conn.RowsAffected = 0
	if err := store.DeletePatient(context.Background(), 5); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if conn.Committed != 0 || conn.RolledBack != 1 {
		t.Fatalf("expected rollback only, commit=%d rollback=%d", conn.Committed, conn.RolledBack)
	}
	if conn.ExecCount("DELETE FROM") != 0 {
		t.Fatalf("no rows should be deleted: %v", conn.Execs)
	}
}

func TestDeletePatientFailureRollsBack(t *testing.T) {
	store, conn := newStubStore(t)
	conn.FailExecOn = "DELETE FROM patients"
	if err := store.DeletePatient(context.Background(), 5); err == nil {
		t.Fatalf("expected error")
	}
	if conn.Committed != 0 || conn.RolledBack != 1 {
		t.Fatalf("expected rollback, commit=%d rollback=%d", conn.Committed, conn.RolledBack)
	}

	conn.FailExecOn = ""
	conn.FailCommit = true
	if err := store.DeletePatient(context.Background(), 5); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
}

func TestSearchBindsEscapedPattern(t *testing.T) {
	store, conn := newStubStore(t)
	conn.On("FROM patients", []string{"patient_id", "name", "dob", "phone"},
		[]driver.Value{int64(3), "Discount 50% Club", nil, "1002"})

	got, err := store.SearchPatients(context.Background(), "50%")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Discount 50% Club" || got[0].DOB != "" {
		t.Fatalf("unexpected rows %+v", got)
	}
	if arg := conn.QueryArgs[len(conn.QueryArgs)-1][0]; arg != `%50\%%` {
		t.Fatalf("pattern not escaped: %v", arg)
	}
	if !strings.Contains(conn.Queries[len(conn.Queries)-1], `ESCAPE '\'`) {
		t.Fatalf("query must declare escape character")
	}
}

func TestReportQueriesScanRows(t *testing.T) {
	ctx := context.Background()
	store, conn := newStubStore(t)
	conn.On("SELECT DISTINCT substr", []string{"month"}, []driver.Value{"2023-10"}, []driver.Value{"2023-09"})
	conn.On("COUNT(*)", []string{"description", "count"}, []driver.Value{"Root Canal", int64(2)})
	conn.On("SUM(cost)", []string{"description", "total"}, []driver.Value{"Root Canal", float64(16500)})

	months, err := store.AvailableMonths(ctx)
	if err != nil || len(months) != 2 || months[0] != "2023-10" {
		t.Fatalf("months: %v err=%v", months, err)
	}
	counts, err := store.CountsByMonth(ctx, "2023-10")
	if err != nil || len(counts) != 1 || counts[0].Count != 2 {
		t.Fatalf("counts: %+v err=%v", counts, err)
	}
	revenue, err := store.RevenueByMonth(ctx, "2023-10")
	if err != nil || len(revenue) != 1 || revenue[0].Total != 16500 {
		t.Fatalf("revenue: %+v err=%v", revenue, err)
	}
	if _, err := store.RevenueByMonth(ctx, "October"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestHistoryAndDeletedScan(t *testing.T) {
	ctx := context.Background()
	store, conn := newStubStore(t)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	conn.On("FROM treatments WHERE patient_id", []string{"treatment_id", "date", "description", "cost"},
		[]driver.Value{int64(1), "2023-10-25", "Root Canal", float64(8500)},
		[]driver.Value{int64(2), "2023-10-26", "Cleaning", nil})
	conn.On("FROM deleted_patients", []string{"patient_id", "name", "dob", "phone", "deleted_at"},
		[]driver.Value{int64(4), "Juan", "1990-01-01", "0917", at})

	hist, err := store.PatientHistory(ctx, 1)
	if err != nil || len(hist) != 2 {
		t.Fatalf("history: %+v err=%v", hist, err)
	}
	if hist[0].Cost == nil || *hist[0].Cost != 8500 || hist[1].Cost != nil {
		t.Fatalf("cost nullability lost: %+v", hist)
	}
	deleted, err := store.DeletedPatients(ctx)
	if err != nil || len(deleted) != 1 || !deleted[0].DeletedAt.Equal(at) || deleted[0].Phone != "0917" {
		t.Fatalf("deleted: %+v err=%v", deleted, err)
	}
}

func TestUsersRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, conn := newStubStore(t)
	if _, ok, err := store.LookupUser(ctx, "admin"); ok || err != nil {
		t.Fatalf("unknown user: ok=%v err=%v", ok, err)
	}
	if err := store.PutUser(ctx, domain.User{Username: "admin", PasswordHash: []byte("h")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if conn.ExecCount("ON CONFLICT (username)") != 1 {
		t.Fatalf("expected upsert, execs=%v", conn.Execs)
	}
	conn.On("FROM users", []string{"password"}, []driver.Value{"h"})
	u, ok, err := store.LookupUser(ctx, "admin")
	if err != nil || !ok || string(u.PasswordHash) != "h" {
		t.Fatalf("lookup: %+v ok=%v err=%v", u, ok, err)
	}
	if err := store.PutUser(ctx, domain.User{Username: "admin"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

// TestContract runs the shared suite against a live server when
// DENTALCORE_TEST_POSTGRES_DSN is set.
func TestContract(t *testing.T) {
	dsn := os.Getenv("DENTALCORE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DENTALCORE_TEST_POSTGRES_DSN not set")
	}
	contract.Run(t, func(t *testing.T) domain.PersistentStore {
		store, err := NewStore(dsn)
		if err != nil {
			t.Fatalf("NewStore: %v", err)
		}
		ctx := context.Background()
		if _, err := store.DB().ExecContext(ctx,
			`DROP TABLE IF EXISTS treatments, deleted_patients, users, patients CASCADE`); err != nil {
			t.Fatalf("reset: %v", err)
		}
		if err := applySchema(ctx, store.DB()); err != nil {
			t.Fatalf("schema: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}
