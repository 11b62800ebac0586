package domain

import "context"

// PatientRepository covers patient CRUD and the soft-delete audit log.
type PatientRepository interface {
	RegisterPatient(ctx context.Context, in PatientInput) (int64, error)
	ListPatients(ctx context.Context) ([]Patient, error)
	SearchPatients(ctx context.Context, query string) ([]Patient, error)
	GetPatient(ctx context.Context, id int64) (Patient, error)
	UpdatePatient(ctx context.Context, id int64, in PatientInput) error
	// DeletePatient archives the patient, removes its treatments and the
	// patient row as one atomic unit.
	DeletePatient(ctx context.Context, id int64) error
	DeletedPatients(ctx context.Context) ([]DeletedPatient, error)
}

// TreatmentRepository covers treatment recording and per-patient history.
type TreatmentRepository interface {
	RecordTreatment(ctx context.Context, in TreatmentInput) (int64, error)
	PatientHistory(ctx context.Context, patientID int64) ([]HistoryEntry, error)
}

// ReportRepository covers the month-grouped aggregate queries.
type ReportRepository interface {
	AvailableMonths(ctx context.Context) ([]string, error)
	CountsByMonth(ctx context.Context, month string) ([]DescriptionCount, error)
	RevenueByMonth(ctx context.Context, month string) ([]DescriptionRevenue, error)
}

// UserRepository stores login credentials. Hashing happens above the store.
type UserRepository interface {
	PutUser(ctx context.Context, user User) error
	// LookupUser returns the stored user and whether it exists.
	LookupUser(ctx context.Context, username string) (User, bool, error)
}

// PersistentStore is the full contract every backend implements.
type PersistentStore interface {
	PatientRepository
	TreatmentRepository
	ReportRepository
	UserRepository
	Driver() string
	Close() error
}
