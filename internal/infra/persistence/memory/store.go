// Package memory provides an in-memory implementation of the persistent store
// used for tests and ephemeral environments.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"dentalcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

// DriverName identifies this backend in configuration.
const DriverName = "memory"

type memoryState struct {
	patients      map[int64]domain.Patient
	phones        map[string]int64
	treatments    map[int64]domain.Treatment
	deleted       []domain.DeletedPatient
	users         map[string]domain.User
	nextPatient   int64
	nextTreatment int64
}

func newMemoryState() memoryState {
	return memoryState{
		patients:      make(map[int64]domain.Patient),
		phones:        make(map[string]int64),
		treatments:    make(map[int64]domain.Treatment),
		users:         make(map[string]domain.User),
		nextPatient:   1,
		nextTreatment: 1,
	}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		patients:      make(map[int64]domain.Patient, len(s.patients)),
		phones:        make(map[string]int64, len(s.phones)),
		treatments:    make(map[int64]domain.Treatment, len(s.treatments)),
		deleted:       append([]domain.DeletedPatient(nil), s.deleted...),
		users:         make(map[string]domain.User, len(s.users)),
		nextPatient:   s.nextPatient,
		nextTreatment: s.nextTreatment,
	}
	for k, v := range s.patients {
		out.patients[k] = v
	}
	for k, v := range s.phones {
		out.phones[k] = v
	}
	for k, v := range s.treatments {
		v.Cost = cloneCost(v.Cost)
		out.treatments[k] = v
	}
	for k, v := range s.users {
		v.PasswordHash = append([]byte(nil), v.PasswordHash...)
		out.users[k] = v
	}
	return out
}

// Store keeps all records in process memory. Mutations run against a cloned
// state that replaces the live state only when they succeed.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the clock used for deleted_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.nowFn = now
	}
}

func (s *Store) update(fn func(*memoryState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	if err := fn(&next); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *Store) view(fn func(*memoryState) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.state)
}

// Driver returns the backend identifier.
func (s *Store) Driver() string { return DriverName }

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// RegisterPatient inserts a new patient and returns its generated id.
func (s *Store) RegisterPatient(_ context.Context, in domain.PatientInput) (int64, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := s.update(func(st *memoryState) error {
		if _, taken := st.phones[in.Phone]; taken {
			return duplicatePhone(in.Phone)
		}
		id = st.nextPatient
		st.nextPatient++
		st.patients[id] = domain.Patient{ID: id, Name: in.Name, DOB: in.DOB, Phone: in.Phone}
		st.phones[in.Phone] = id
		return nil
	})
	return id, err
}

// ListPatients returns every patient ordered by name, then id.
func (s *Store) ListPatients(_ context.Context) ([]domain.Patient, error) {
	var out []domain.Patient
	_ = s.view(func(st *memoryState) error {
		for _, p := range st.patients {
			out = append(out, p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SearchPatients returns patients whose id, name, phone or dob contains query,
// ignoring ASCII case, newest id first.
func (s *Store) SearchPatients(_ context.Context, query string) ([]domain.Patient, error) {
	needle := asciiLower(query)
	var out []domain.Patient
	_ = s.view(func(st *memoryState) error {
		for _, p := range st.patients {
			fields := []string{strconv.FormatInt(p.ID, 10), p.Name, p.Phone}
			if p.DOB != "" {
				fields = append(fields, p.DOB)
			}
			for _, f := range fields {
				if strings.Contains(asciiLower(f), needle) {
					out = append(out, p)
					break
				}
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// GetPatient loads a single patient.
func (s *Store) GetPatient(_ context.Context, id int64) (domain.Patient, error) {
	var p domain.Patient
	err := s.view(func(st *memoryState) error {
		found, ok := st.patients[id]
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityPatient, ID: id}
		}
		p = found
		return nil
	})
	return p, err
}

// UpdatePatient overwrites name, dob and phone of an existing patient.
func (s *Store) UpdatePatient(_ context.Context, id int64, in domain.PatientInput) error {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return err
	}
	return s.update(func(st *memoryState) error {
		current, ok := st.patients[id]
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityPatient, ID: id}
		}
		if owner, taken := st.phones[in.Phone]; taken && owner != id {
			return duplicatePhone(in.Phone)
		}
		delete(st.phones, current.Phone)
		st.phones[in.Phone] = id
		st.patients[id] = domain.Patient{ID: id, Name: in.Name, DOB: in.DOB, Phone: in.Phone}
		return nil
	})
}

// DeletePatient archives the patient, removes its treatments and the patient.
func (s *Store) DeletePatient(_ context.Context, id int64) error {
	now := s.nowFn().UTC()
	return s.update(func(st *memoryState) error {
		p, ok := st.patients[id]
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityPatient, ID: id}
		}
		st.deleted = append(st.deleted, domain.DeletedPatient{Patient: p, DeletedAt: now})
		for tid, t := range st.treatments {
			if t.PatientID == id {
				delete(st.treatments, tid)
			}
		}
		delete(st.phones, p.Phone)
		delete(st.patients, id)
		return nil
	})
}

// DeletedPatients returns the deletion audit log, oldest first.
func (s *Store) DeletedPatients(_ context.Context) ([]domain.DeletedPatient, error) {
	var out []domain.DeletedPatient
	_ = s.view(func(st *memoryState) error {
		out = append(out, st.deleted...)
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DeletedAt.Equal(out[j].DeletedAt) {
			return out[i].DeletedAt.Before(out[j].DeletedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RecordTreatment inserts a treatment for an existing patient.
func (s *Store) RecordTreatment(_ context.Context, in domain.TreatmentInput) (int64, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := s.update(func(st *memoryState) error {
		if _, ok := st.patients[in.PatientID]; !ok {
			return missingPatient(in.PatientID)
		}
		id = st.nextTreatment
		st.nextTreatment++
		st.treatments[id] = domain.Treatment{
			ID:          id,
			PatientID:   in.PatientID,
			Date:        in.Date,
			Description: in.Description,
			Cost:        cloneCost(in.Cost),
		}
		return nil
	})
	return id, err
}

// PatientHistory returns the patient's treatments by date, then insertion order.
func (s *Store) PatientHistory(_ context.Context, patientID int64) ([]domain.HistoryEntry, error) {
	var rows []domain.Treatment
	_ = s.view(func(st *memoryState) error {
		for _, t := range st.treatments {
			if t.PatientID == patientID {
				rows = append(rows, t)
			}
		}
		return nil
	})
	sortTreatments(rows)
	out := make([]domain.HistoryEntry, 0, len(rows))
	for _, t := range rows {
		out = append(out, domain.HistoryEntry{TreatmentID: t.ID, Date: t.Date, Description: t.Description, Cost: cloneCost(t.Cost)})
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// AvailableMonths lists the distinct treatment months, newest first.
func (s *Store) AvailableMonths(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	_ = s.view(func(st *memoryState) error {
		for _, t := range st.treatments {
			seen[domain.MonthOf(t.Date)] = struct{}{}
		}
		return nil
	})
	var out []string
	for m := range seen {
		out = append(out, m)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

// CountsByMonth groups the month's treatments by description and counts them.
func (s *Store) CountsByMonth(_ context.Context, month string) ([]domain.DescriptionCount, error) {
	if err := domain.ValidateMonth(month); err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	s.eachInMonth(month, func(t domain.Treatment) { counts[t.Description]++ })
	var out []domain.DescriptionCount
	for desc, n := range counts {
		out = append(out, domain.DescriptionCount{Description: desc, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Description < out[j].Description })
	return out, nil
}

// RevenueByMonth groups the month's treatments by description and sums their
// cost, counting null costs as zero.
func (s *Store) RevenueByMonth(_ context.Context, month string) ([]domain.DescriptionRevenue, error) {
	if err := domain.ValidateMonth(month); err != nil {
		return nil, err
	}
	totals := make(map[string]float64)
	// Summed in id order for a stable result.
	s.eachInMonth(month, func(t domain.Treatment) { totals[t.Description] += domain.CostValue(t.Cost) })
	var out []domain.DescriptionRevenue
	for desc, total := range totals {
		out = append(out, domain.DescriptionRevenue{Description: desc, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Description < out[j].Description })
	return out, nil
}

func (s *Store) eachInMonth(month string, fn func(domain.Treatment)) {
	var rows []domain.Treatment
	_ = s.view(func(st *memoryState) error {
		for _, t := range st.treatments {
			if domain.MonthOf(t.Date) == month {
				rows = append(rows, t)
			}
		}
		return nil
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	for _, t := range rows {
		fn(t)
	}
}

// PutUser inserts or replaces a credential record.
func (s *Store) PutUser(_ context.Context, user domain.User) error {
	if strings.TrimSpace(user.Username) == "" || len(user.PasswordHash) == 0 {
		return invalidUser()
	}
	return s.update(func(st *memoryState) error {
		st.users[user.Username] = domain.User{Username: user.Username, PasswordHash: append([]byte(nil), user.PasswordHash...)}
		return nil
	})
}

// LookupUser loads the credential record for username.
func (s *Store) LookupUser(_ context.Context, username string) (domain.User, bool, error) {
	var (
		u  domain.User
		ok bool
	)
	_ = s.view(func(st *memoryState) error {
		u, ok = st.users[username]
		return nil
	})
	if ok {
		u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	}
	return u, ok, nil
}

func sortTreatments(rows []domain.Treatment) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].ID < rows[j].ID
	})
}

func cloneCost(c *float64) *float64 {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

// asciiLower mirrors SQL LIKE's default ASCII-only case folding.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
