// Package core wraps a persistent store with credential checks, report export
// and per-operation instrumentation.
package core

import (
	"context"
	"errors"
	"strconv"
	"time"

	"dentalcore/internal/auth"
	"dentalcore/internal/report"
	"dentalcore/pkg/domain"
)

const (
	opRegisterPatient = "register_patient"
	opListPatients    = "list_patients"
	opSearchPatients  = "search_patients"
	opGetPatient      = "get_patient"
	opUpdatePatient   = "update_patient"
	opDeletePatient   = "delete_patient"
	opDeletedPatients = "list_deleted_patients"
	opRecordTreatment = "record_treatment"
	opPatientHistory  = "patient_history"
	opAvailableMonths = "available_months"
	opCountsByMonth   = "counts_by_month"
	opRevenueByMonth  = "revenue_by_month"
	opVerifyLogin     = "verify_login"
	opAddUser         = "add_user"
	opExportReport    = "export_report"
)

// ErrExportUnavailable is returned by ExportMonthReport when no exporter is
// configured.
var ErrExportUnavailable = errors.New("report export not configured")

// ReportExporter renders and stores month reports.
type ReportExporter interface {
	ExportMonth(ctx context.Context, month string, formats ...report.Format) ([]report.Artifact, error)
}

// Service exposes the clinic operations over a PersistentStore.
type Service struct {
	store    domain.PersistentStore
	hasher   auth.PasswordHasher
	auth     *auth.Authenticator
	exporter ReportExporter
	logger   Logger
	clock    Clock
	metrics  MetricsRecorder
	tracer   Tracer
	audit    AuditRecorder
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the operation logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the clock used for audit timestamps.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the span source.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithHasher replaces the bcrypt password hasher.
func WithHasher(h auth.PasswordHasher) Option {
	return func(s *Service) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithReportExporter enables ExportMonthReport.
func WithReportExporter(e ReportExporter) Option {
	return func(s *Service) { s.exporter = e }
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		clock:   systemClock{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		audit:   noopAudit{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.auth = auth.NewAuthenticator(store, s.hasher)
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Close releases the store.
func (s *Service) Close() error { return s.store.Close() }

// Catalog returns the treatment types offered for selection.
func (s *Service) Catalog() []string { return domain.TreatmentCatalog() }

// RegisterPatient stores a new patient and returns its id.
func (s *Service) RegisterPatient(ctx context.Context, in domain.PatientInput) (int64, error) {
	var id int64
	err := s.run(ctx, opRegisterPatient, func(ctx context.Context) (string, error) {
		var err error
		id, err = s.store.RegisterPatient(ctx, in)
		return idString(id), err
	})
	return id, err
}

// ListPatients returns every patient ordered by name.
func (s *Service) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	var out []domain.Patient
	err := s.run(ctx, opListPatients, func(ctx context.Context) (string, error) {
		var err error
		out, err = s.store.ListPatients(ctx)
		return "", err
	})
	return out, err
}

// SearchPatients matches query literally against id, name, phone and dob.
func (s *Service) SearchPatients(ctx context.Context, query string) ([]domain.Patient, error) {
	var out []domain.Patient
	err := s.run(ctx, opSearchPatients, func(ctx context.Context) (string, error) {
		var err error
		out, err = s.store.SearchPatients(ctx, query)
		return "", err
	})
	return out, err
}

// GetPatient loads a single patient.
func (s *Service) GetPatient(ctx context.Context, id int64) (domain.Patient, error) {
	var out domain.Patient
	err := s.run(ctx, opGetPatient, func(ctx context.Context) (string, error) {
		var err error
		out, err = s.store.GetPatient(ctx, id)
		return idString(id), err
	})
	return out, err
}

// UpdatePatient overwrites the patient's fields.
func (s *Service) UpdatePatient(ctx context.Context, id int64, in domain.PatientInput) error {
	return s.run(ctx, opUpdatePatient, func(ctx context.Context) (string, error) {
		return idString(id), s.store.UpdatePatient(ctx, id, in)
	})
}

// DeletePatient archives and removes the patient with its treatments.
func (s *Service) DeletePatient(ctx context.Context, id int64) error {
	return s.run(ctx, opDeletePatient, func(ctx context.Context) (string, error) {
		return idString(id), s.store.DeletePatient(ctx, id)
	})
}

// DeletedPatients returns the deletion audit log, oldest first.
func (s *Service) DeletedPatients(ctx context.Context) ([]domain.DeletedPatient, error) {
	var out []domain.DeletedPatient
	err := s.run(ctx, opDeletedPatients, func(ctx context.Context) (string, error) {
		var err error
		out, err = s.store.DeletedPatients(ctx)
		return "", err
	})
	return out, err
}

// RecordTreatment stores a treatment for an existing patient.
func (s *Service) RecordTreatment(ctx context.Context, in domain.TreatmentInput) (int64, error) {
	var id int64
	err := s.run(ctx, opRecordTreatment, func(ctx context.Context) (string, error) {
		var err error
		id, err = s.store.RecordTreatment(ctx, in)
		return idString(id), err
	})
	return id, err
}

// PatientHistory returns a patient's treatments, oldest first.
func (s *Service) PatientHistory(ctx context.Context, patientID int64) ([]domain.HistoryEntry, error) {
	var out []domain.HistoryEntry
	err := s.run(ctx, opPatientHistory, func(ctx context.Context) (string, error) {
		var err error
		out, err = s.store.PatientHistory(ctx, patientID)
		return idString(patientID), err
	})
	return out, err
}

// AvailableMonths lists months with at least one treatment, newest first.
func (s *Service) AvailableMonths(ctx context.Context) ([]string, error) {
	var out []string
	err := s.run(ctx, opAvailableMonths, func(ctx context.Context) (string, error) {
		var err error
		out, err = s.store.AvailableMonths(ctx)
		return "", err
	})
	return out, err
}

// CountsByMonth groups a month's treatments by description.
func (s *Service) CountsByMonth(ctx context.Context, month string) ([]domain.DescriptionCount, error) {
	var out []domain.DescriptionCount
	err := s.run(ctx, opCountsByMonth, func(ctx context.Context) (string, error) {
		var err error
		out, err = s.store.CountsByMonth(ctx, month)
		return month, err
	})
	return out, err
}

// RevenueByMonth sums a month's costs by description.
func (s *Service) RevenueByMonth(ctx context.Context, month string) ([]domain.DescriptionRevenue, error) {
	var out []domain.DescriptionRevenue
	err := s.run(ctx, opRevenueByMonth, func(ctx context.Context) (string, error) {
		var err error
		out, err = s.store.RevenueByMonth(ctx, month)
		return month, err
	})
	return out, err
}

// VerifyLogin reports whether the credentials match a stored user. A rejected
// login is audited as denied, not as an error.
func (s *Service) VerifyLogin(ctx context.Context, username, password string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, opVerifyLogin)
	start := time.Now()
	ok, err := s.auth.Verify(ctx, username, password)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, opVerifyLogin, err == nil, duration)

	status := AuditStatusSuccess
	switch {
	case err != nil:
		status = AuditStatusError
		s.logger.Error("service operation failed", "operation", opVerifyLogin, "error", err)
	case !ok:
		status = AuditStatusDenied
		s.logger.Warn("login rejected", "username", username)
	default:
		s.logger.Debug("service operation completed", "operation", opVerifyLogin, "duration", duration)
	}
	s.recordAudit(ctx, opVerifyLogin, username, status, duration, err)
	return ok, err
}

// AddUser creates or replaces a login with a freshly hashed password.
func (s *Service) AddUser(ctx context.Context, username, password string) error {
	return s.run(ctx, opAddUser, func(ctx context.Context) (string, error) {
		return username, s.auth.AddUser(ctx, username, password)
	})
}

// ExportMonthReport renders and stores the month's report artifacts.
func (s *Service) ExportMonthReport(ctx context.Context, month string, formats ...report.Format) ([]report.Artifact, error) {
	var out []report.Artifact
	err := s.run(ctx, opExportReport, func(ctx context.Context) (string, error) {
		if s.exporter == nil {
			return month, ErrExportUnavailable
		}
		var err error
		out, err = s.exporter.ExportMonth(ctx, month, formats...)
		if len(out) > 0 {
			return out[0].ExportID, err
		}
		return month, err
	})
	return out, err
}

// run instruments fn with a span, a metrics observation, a log line and, for
// audited operations, an audit entry. fn returns the affected entity id.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	entityID, err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	if err != nil {
		if domain.IsConstraint(err) {
			s.logger.Warn("service operation rejected", "operation", op, "entity_id", entityID, "error", err)
		} else {
			s.logger.Error("service operation failed", "operation", op, "entity_id", entityID, "error", err)
		}
		s.recordAudit(ctx, op, entityID, AuditStatusError, duration, err)
		return err
	}
	s.logger.Debug("service operation completed", "operation", op, "entity_id", entityID, "duration", duration)
	s.recordAudit(ctx, op, entityID, AuditStatusSuccess, duration, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, status AuditStatus, duration time.Duration, err error) {
	target, ok := auditedOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    target.entity,
		Action:    target.action,
		EntityID:  entityID,
		Status:    status,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

func idString(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
