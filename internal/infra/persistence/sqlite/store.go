// Package sqlite provides the default embedded persistent store backed by a
// single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dentalcore/pkg/domain"

	msqlite "modernc.org/sqlite" // pure go sqlite driver
	sqlite3 "modernc.org/sqlite/lib"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	// DriverName identifies this backend in configuration.
	DriverName = "sqlite"
	// DefaultPath is used when no file path is configured.
	DefaultPath = "dental_clinic.db"
	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"
)

// deleted_at is stored as fixed-width UTC text so it sorts chronologically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS patients (
		patient_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		dob TEXT,
		phone TEXT UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS treatments (
		treatment_id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		description TEXT NOT NULL,
		cost REAL,
		FOREIGN KEY (patient_id) REFERENCES patients(patient_id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_treatments_patient ON treatments(patient_id)`,
	`CREATE INDEX IF NOT EXISTS idx_treatments_date ON treatments(date)`,
	`CREATE TABLE IF NOT EXISTS deleted_patients (
		patient_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		dob TEXT,
		phone TEXT NOT NULL,
		deleted_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL
	)`,
}

// Store persists patients, treatments, the deletion audit log and users in
// relational tables. It owns a single connection for its whole lifetime.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the clock used for deleted_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore opens (creating if needed) the SQLite database at path and applies
// the schema. An empty path falls back to DefaultPath.
func NewStore(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open(DriverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One process-wide connection: foreign key pragmas are per connection and
	// every :memory: connection would otherwise see its own database.
	db.SetMaxOpenConns(1)
	ctx := context.Background()
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	s := &Store{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Driver returns the backend identifier.
func (s *Store) Driver() string { return DriverName }

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// RegisterPatient inserts a new patient and returns its generated id.
func (s *Store) RegisterPatient(ctx context.Context, in domain.PatientInput) (int64, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO patients (name, dob, phone) VALUES (?, ?, ?)`,
		in.Name, nullString(in.DOB), in.Phone)
	if err != nil {
		return 0, fmt.Errorf("insert patient: %w", classify(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("patient id: %w", err)
	}
	return id, nil
}

// ListPatients returns every patient ordered by name.
func (s *Store) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT patient_id, name, dob, phone FROM patients ORDER BY name ASC, patient_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("select patients: %w", err)
	}
	return scanPatients(rows)
}

// SearchPatients returns patients whose id, name, phone or dob contains query
// as a literal substring, newest id first.
func (s *Store) SearchPatients(ctx context.Context, query string) ([]domain.Patient, error) {
	pattern := domain.ContainsPattern(query)
	rows, err := s.db.QueryContext(ctx, `SELECT patient_id, name, dob, phone FROM patients
		WHERE CAST(patient_id AS TEXT) LIKE ? ESCAPE '\'
		   OR name LIKE ? ESCAPE '\'
		   OR phone LIKE ? ESCAPE '\'
		   OR dob LIKE ? ESCAPE '\'
		ORDER BY patient_id DESC`, pattern, pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	return scanPatients(rows)
}

// GetPatient loads a single patient.
func (s *Store) GetPatient(ctx context.Context, id int64) (domain.Patient, error) {
	var (
		p   domain.Patient
		dob sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT patient_id, name, dob, phone FROM patients WHERE patient_id = ?`, id).
		Scan(&p.ID, &p.Name, &dob, &p.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Patient{}, domain.NotFoundError{Entity: domain.EntityPatient, ID: id}
	}
	if err != nil {
		return domain.Patient{}, fmt.Errorf("select patient: %w", err)
	}
	p.DOB = dob.String
	return p, nil
}

// UpdatePatient overwrites name, dob and phone of an existing patient.
func (s *Store) UpdatePatient(ctx context.Context, id int64, in domain.PatientInput) error {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE patients SET name = ?, dob = ?, phone = ? WHERE patient_id = ?`,
		in.Name, nullString(in.DOB), in.Phone, id)
	if err != nil {
		return fmt.Errorf("update patient: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if n == 0 {
		return domain.NotFoundError{Entity: domain.EntityPatient, ID: id}
	}
	return nil
}

// DeletePatient archives the patient row, removes its treatments and the
// patient in one transaction.
func (s *Store) DeletePatient(ctx context.Context, id int64) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx, `INSERT INTO deleted_patients (patient_id, name, dob, phone, deleted_at)
		SELECT patient_id, name, dob, phone, ? FROM patients WHERE patient_id = ?`,
		s.now().UTC().Format(timestampLayout), id)
	if err != nil {
		return fmt.Errorf("archive patient: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive patient: %w", err)
	}
	if n == 0 {
		return domain.NotFoundError{Entity: domain.EntityPatient, ID: id}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM treatments WHERE patient_id = ?`, id); err != nil {
		return fmt.Errorf("delete treatments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM patients WHERE patient_id = ?`, id); err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeletedPatients returns the deletion audit log, oldest first.
func (s *Store) DeletedPatients(ctx context.Context) ([]domain.DeletedPatient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT patient_id, name, dob, phone, deleted_at
		FROM deleted_patients ORDER BY deleted_at ASC, patient_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("select deleted patients: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.DeletedPatient
	for rows.Next() {
		var (
			d         domain.DeletedPatient
			dob       sql.NullString
			deletedAt string
		)
		if err := rows.Scan(&d.ID, &d.Name, &dob, &d.Phone, &deletedAt); err != nil {
			return nil, fmt.Errorf("scan deleted patient: %w", err)
		}
		d.DOB = dob.String
		if d.DeletedAt, err = time.Parse(time.RFC3339Nano, deletedAt); err != nil {
			return nil, fmt.Errorf("parse deleted_at: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted patients: %w", err)
	}
	return out, nil
}

// RecordTreatment inserts a treatment for an existing patient.
func (s *Store) RecordTreatment(ctx context.Context, in domain.TreatmentInput) (int64, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO treatments (patient_id, date, description, cost) VALUES (?, ?, ?, ?)`,
		in.PatientID, in.Date, in.Description, nullFloat(in.Cost))
	if err != nil {
		return 0, fmt.Errorf("insert treatment: %w", classify(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("treatment id: %w", err)
	}
	return id, nil
}

// PatientHistory returns the patient's treatments by date, then insertion order.
func (s *Store) PatientHistory(ctx context.Context, patientID int64) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT treatment_id, date, description, cost
		FROM treatments WHERE patient_id = ? ORDER BY date ASC, treatment_id ASC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.HistoryEntry
	for rows.Next() {
		var (
			e    domain.HistoryEntry
			cost sql.NullFloat64
		)
		if err := rows.Scan(&e.TreatmentID, &e.Date, &e.Description, &cost); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if cost.Valid {
			e.Cost = domain.Float(cost.Float64)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// AvailableMonths lists the distinct treatment months, newest first.
func (s *Store) AvailableMonths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT substr(date, 1, 7) AS month FROM treatments ORDER BY month DESC`)
	if err != nil {
		return nil, fmt.Errorf("select months: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan month: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate months: %w", err)
	}
	return out, nil
}

// CountsByMonth groups the month's treatments by description and counts them.
func (s *Store) CountsByMonth(ctx context.Context, month string) ([]domain.DescriptionCount, error) {
	if err := domain.ValidateMonth(month); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT description, COUNT(*) FROM treatments
		WHERE substr(date, 1, 7) = ? GROUP BY description ORDER BY description`, month)
	if err != nil {
		return nil, fmt.Errorf("count treatments: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.DescriptionCount
	for rows.Next() {
		var c domain.DescriptionCount
		if err := rows.Scan(&c.Description, &c.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return out, nil
}

// RevenueByMonth groups the month's treatments by description and sums their
// cost. TOTAL yields 0.0 for groups whose costs are all null.
func (s *Store) RevenueByMonth(ctx context.Context, month string) ([]domain.DescriptionRevenue, error) {
	if err := domain.ValidateMonth(month); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT description, TOTAL(cost) FROM treatments
		WHERE substr(date, 1, 7) = ? GROUP BY description ORDER BY description`, month)
	if err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.DescriptionRevenue
	for rows.Next() {
		var r domain.DescriptionRevenue
		if err := rows.Scan(&r.Description, &r.Total); err != nil {
			return nil, fmt.Errorf("scan revenue: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revenue: %w", err)
	}
	return out, nil
}

// PutUser inserts or replaces a credential record.
func (s *Store) PutUser(ctx context.Context, user domain.User) error {
	if strings.TrimSpace(user.Username) == "" || len(user.PasswordHash) == 0 {
		return fmt.Errorf("%w: username and password hash are required", domain.ErrInvalidInput)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO users (username, password) VALUES (?, ?)
		ON CONFLICT(username) DO UPDATE SET password = excluded.password`,
		user.Username, string(user.PasswordHash)); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// LookupUser loads the credential record for username.
func (s *Store) LookupUser(ctx context.Context, username string) (domain.User, bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT password FROM users WHERE username = ?`, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("select user: %w", err)
	}
	return domain.User{Username: username, PasswordHash: []byte(hash)}, true, nil
}

func scanPatients(rows *sql.Rows) ([]domain.Patient, error) {
	defer func() { _ = rows.Close() }()
	var out []domain.Patient
	for rows.Next() {
		var (
			p   domain.Patient
			dob sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &dob, &p.Phone); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		p.DOB = dob.String
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return out, nil
}

// classify maps SQLite constraint failures onto the domain taxonomy. Anything
// else is returned untouched so real faults still surface.
func classify(err error) error {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %s", domain.ErrDuplicateKey, se.Error())
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%w: %s", domain.ErrForeignKeyViolation, se.Error())
	}
	if se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		msg := se.Error()
		switch {
		case strings.Contains(msg, "UNIQUE"):
			return fmt.Errorf("%w: %s", domain.ErrDuplicateKey, msg)
		case strings.Contains(msg, "FOREIGN KEY"):
			return fmt.Errorf("%w: %s", domain.ErrForeignKeyViolation, msg)
		}
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
