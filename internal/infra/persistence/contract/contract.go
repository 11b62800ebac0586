// Package contract holds the behavioural suite every persistent store backend
// must pass. Backend test files call Run with a factory returning a fresh,
// empty store.
package contract

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sort"
	"strconv"
	"testing"
	"time"

	"dentalcore/pkg/domain"
)

// Factory returns an empty store. Implementations register cleanup with t.
type Factory func(t *testing.T) domain.PersistentStore

// Run executes the full behavioural suite against stores built by factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(*testing.T, domain.PersistentStore)
	}{
		{"RegisterAndGet", testRegisterAndGet},
		{"RegisterValidation", testRegisterValidation},
		{"DuplicatePhone", testDuplicatePhone},
		{"ListOrderedByName", testListOrderedByName},
		{"ListIdempotent", testListIdempotent},
		{"SearchFields", testSearchFields},
		{"SearchLiteralInput", testSearchLiteralInput},
		{"GetMissing", testGetMissing},
		{"Update", testUpdate},
		{"UpdateMissing", testUpdateMissing},
		{"RecordUnknownPatient", testRecordUnknownPatient},
		{"RecordValidation", testRecordValidation},
		{"HistoryOrdering", testHistoryOrdering},
		{"DeleteCascade", testDeleteCascade},
		{"DeleteMissing", testDeleteMissing},
		{"IDsNotReused", testIDsNotReused},
		{"AvailableMonths", testAvailableMonths},
		{"MonthlyRevenue", testMonthlyRevenue},
		{"AggregatesMatchRows", testAggregatesMatchRows},
		{"MalformedMonth", testMalformedMonth},
		{"Users", testUsers},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, factory(t))
		})
	}
}

func mustRegister(t *testing.T, s domain.PersistentStore, name, dob, phone string) int64 {
	t.Helper()
	id, err := s.RegisterPatient(context.Background(), domain.PatientInput{Name: name, DOB: dob, Phone: phone})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return id
}

func mustRecord(t *testing.T, s domain.PersistentStore, pid int64, date, desc string, cost *float64) int64 {
	t.Helper()
	id, err := s.RecordTreatment(context.Background(), domain.TreatmentInput{
		PatientID: pid, Date: date, Description: desc, Cost: cost,
	})
	if err != nil {
		t.Fatalf("record %s on %s: %v", desc, date, err)
	}
	return id
}

func patientIDs(ps []domain.Patient) []int64 {
	out := make([]int64, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func testRegisterAndGet(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	first := mustRegister(t, s, "  Juan Dela Cruz ", "1990-01-01", "09171234567")
	second := mustRegister(t, s, "Maria Clara", "", "09181234567")
	if first <= 0 || second <= first {
		t.Fatalf("expected increasing positive ids, got %d then %d", first, second)
	}
	got, err := s.GetPatient(ctx, first)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := domain.Patient{ID: first, Name: "Juan Dela Cruz", DOB: "1990-01-01", Phone: "09171234567"}
	if got != want {
		t.Fatalf("get: got %+v want %+v", got, want)
	}
	got, err = s.GetPatient(ctx, second)
	if err != nil {
		t.Fatalf("get second: %v", err)
	}
	if got.DOB != "" {
		t.Fatalf("absent dob should read back empty, got %q", got.DOB)
	}
}

func testRegisterValidation(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	for name, in := range map[string]domain.PatientInput{
		"blank name":  {Name: " ", Phone: "0917"},
		"blank phone": {Name: "Juan", Phone: ""},
		"bad dob":     {Name: "Juan", DOB: "1990/01/01", Phone: "0917"},
	} {
		if _, err := s.RegisterPatient(ctx, in); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
	all, err := s.ListPatients(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("rejected input must not create rows, got %d", len(all))
	}
}

func testDuplicatePhone(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	mustRegister(t, s, "Juan Dela Cruz", "1990-01-01", "09171234567")
	_, err := s.RegisterPatient(ctx, domain.PatientInput{Name: "Maria", DOB: "1992-01-01", Phone: "09171234567"})
	if !errors.Is(err, domain.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	all, err := s.ListPatients(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].Name != "Juan Dela Cruz" {
		t.Fatalf("duplicate must leave store unchanged, got %+v", all)
	}
}

func testListOrderedByName(t *testing.T, s domain.PersistentStore) {
	c := mustRegister(t, s, "Carlos", "", "003")
	a := mustRegister(t, s, "Ana", "", "001")
	b := mustRegister(t, s, "Bea", "", "002")
	a2 := mustRegister(t, s, "Ana", "", "004")
	all, err := s.ListPatients(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got, want := patientIDs(all), []int64{a, a2, b, c}; !reflect.DeepEqual(got, want) {
		t.Fatalf("list order: got %v want %v", got, want)
	}
}

func testListIdempotent(t *testing.T, s domain.PersistentStore) {
	mustRegister(t, s, "Juan", "", "001")
	mustRegister(t, s, "Maria", "1992-01-01", "002")
	ctx := context.Background()
	first, err := s.ListPatients(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	second, err := s.ListPatients(ctx)
	if err != nil {
		t.Fatalf("list again: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated reads differ: %+v vs %+v", first, second)
	}
}

func testSearchFields(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	juan := mustRegister(t, s, "Juan Dela Cruz", "1990-01-01", "09171234567")
	maria := mustRegister(t, s, "Maria Clara", "1992-05-17", "09998887777")
	pedro := mustRegister(t, s, "Pedro", "", "0288881234")

	cases := []struct {
		query string
		want  []int64
	}{
		{"juan", []int64{juan}},
		{"CLARA", []int64{maria}},
		{"0917", []int64{juan}},
		{"8888", []int64{pedro}},
		{"1992-05", []int64{maria}},
		{"a", []int64{maria, juan}},
		{"", []int64{pedro, maria, juan}},
		{"nobody", nil},
	}
	for _, tc := range cases {
		got, err := s.SearchPatients(ctx, tc.query)
		if err != nil {
			t.Fatalf("search %q: %v", tc.query, err)
		}
		ids := patientIDs(got)
		if len(tc.want) == 0 && len(ids) == 0 {
			continue
		}
		if !reflect.DeepEqual(ids, tc.want) {
			t.Fatalf("search %q: got %v want %v", tc.query, ids, tc.want)
		}
	}

	byID, err := s.SearchPatients(ctx, strconv.FormatInt(pedro, 10))
	if err != nil {
		t.Fatalf("search by id: %v", err)
	}
	found := false
	for _, p := range byID {
		if p.ID == pedro {
			found = true
		}
	}
	if !found {
		t.Fatalf("search by id %d did not return the patient", pedro)
	}
}

func testSearchLiteralInput(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	obrien := mustRegister(t, s, "Sean O'Brien", "", "1001")
	pct := mustRegister(t, s, "Discount 50% Club", "", "1002")
	under := mustRegister(t, s, "snake_case", "", "1003")
	mustRegister(t, s, "Plain Patient", "", "1004")

	cases := []struct {
		query string
		want  []int64
	}{
		{"O'Brien", []int64{obrien}},
		{"'; DROP TABLE patients; --", nil},
		{"%", []int64{pct}},
		{"50%", []int64{pct}},
		{"_", []int64{under}},
		{`\`, nil},
	}
	for _, tc := range cases {
		got, err := s.SearchPatients(ctx, tc.query)
		if err != nil {
			t.Fatalf("search %q: %v", tc.query, err)
		}
		ids := patientIDs(got)
		if len(tc.want) == 0 && len(ids) == 0 {
			continue
		}
		if !reflect.DeepEqual(ids, tc.want) {
			t.Fatalf("search %q: got %v want %v", tc.query, ids, tc.want)
		}
	}
	all, err := s.ListPatients(ctx)
	if err != nil {
		t.Fatalf("list after hostile search: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("hostile search altered table, %d rows", len(all))
	}
}

func testGetMissing(t *testing.T, s domain.PersistentStore) {
	_, err := s.GetPatient(context.Background(), 4242)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var nf domain.NotFoundError
	if !errors.As(err, &nf) || nf.ID != 4242 || nf.Entity != domain.EntityPatient {
		t.Fatalf("expected NotFoundError for patient 4242, got %#v", err)
	}
}

func testUpdate(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	id := mustRegister(t, s, "Juan", "1990-01-01", "001")
	other := mustRegister(t, s, "Maria", "", "002")

	if err := s.UpdatePatient(ctx, id, domain.PatientInput{Name: "Juan Updated", Phone: "001"}); err != nil {
		t.Fatalf("update keeping phone: %v", err)
	}
	got, err := s.GetPatient(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Juan Updated" || got.DOB != "" || got.Phone != "001" {
		t.Fatalf("update not applied: %+v", got)
	}

	err = s.UpdatePatient(ctx, id, domain.PatientInput{Name: "Juan", Phone: "002"})
	if !errors.Is(err, domain.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey when taking another phone, got %v", err)
	}
	if got, _ := s.GetPatient(ctx, id); got.Phone != "001" {
		t.Fatalf("failed update must not change row, got %+v", got)
	}
	if got, _ := s.GetPatient(ctx, other); got.Phone != "002" {
		t.Fatalf("other patient changed: %+v", got)
	}

	if err := s.UpdatePatient(ctx, id, domain.PatientInput{Name: "", Phone: "001"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func testUpdateMissing(t *testing.T, s domain.PersistentStore) {
	err := s.UpdatePatient(context.Background(), 99, domain.PatientInput{Name: "Ghost", Phone: "000"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testRecordUnknownPatient(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	_, err := s.RecordTreatment(ctx, domain.TreatmentInput{
		PatientID: 777, Date: "2023-10-25", Description: "Root Canal", Cost: domain.Float(8500),
	})
	if !errors.Is(err, domain.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}
	months, err := s.AvailableMonths(ctx)
	if err != nil {
		t.Fatalf("months: %v", err)
	}
	if len(months) != 0 {
		t.Fatalf("rejected treatment must not create rows, months=%v", months)
	}
}

func testRecordValidation(t *testing.T, s domain.PersistentStore) {
	pid := mustRegister(t, s, "Juan", "", "001")
	ctx := context.Background()
	for name, in := range map[string]domain.TreatmentInput{
		"no date":        {PatientID: pid, Description: "Root Canal"},
		"bad date":       {PatientID: pid, Date: "25/10/2023", Description: "Root Canal"},
		"no description": {PatientID: pid, Date: "2023-10-25"},
		"nan cost":       {PatientID: pid, Date: "2023-10-25", Description: "Root Canal", Cost: domain.Float(math.NaN())},
		"infinite cost":  {PatientID: pid, Date: "2023-10-25", Description: "Root Canal", Cost: domain.Float(math.Inf(1))},
	} {
		if _, err := s.RecordTreatment(ctx, in); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
	hist, err := s.PatientHistory(ctx, pid)
	if err != nil || len(hist) != 0 {
		t.Fatalf("rejected treatments must not be stored: %+v err=%v", hist, err)
	}
	revenue, err := s.RevenueByMonth(ctx, "2023-10")
	if err != nil || len(revenue) != 0 {
		t.Fatalf("rejected treatments must not reach revenue: %+v err=%v", revenue, err)
	}
}

func testHistoryOrdering(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	pid := mustRegister(t, s, "Juan", "", "001")
	other := mustRegister(t, s, "Maria", "", "002")
	late := mustRecord(t, s, pid, "2023-10-27", "Filling", domain.Float(1200))
	early := mustRecord(t, s, pid, "2023-10-25", "Root Canal", domain.Float(8500))
	sameDay := mustRecord(t, s, pid, "2023-10-25", "Cleaning", nil)
	mustRecord(t, s, other, "2023-10-26", "Extraction", domain.Float(3000))

	hist, err := s.PatientHistory(ctx, pid)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 entries, got %+v", hist)
	}
	gotIDs := []int64{hist[0].TreatmentID, hist[1].TreatmentID, hist[2].TreatmentID}
	if want := []int64{early, sameDay, late}; !reflect.DeepEqual(gotIDs, want) {
		t.Fatalf("history order: got %v want %v", gotIDs, want)
	}
	if hist[1].Cost != nil {
		t.Fatalf("null cost must read back nil, got %v", *hist[1].Cost)
	}
	if hist[0].Cost == nil || *hist[0].Cost != 8500 || hist[0].Description != "Root Canal" || hist[0].Date != "2023-10-25" {
		t.Fatalf("unexpected first entry %+v", hist[0])
	}

	empty, err := s.PatientHistory(ctx, 12345)
	if err != nil {
		t.Fatalf("history of unknown patient: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("unknown patient should have no history, got %+v", empty)
	}
}

func testDeleteCascade(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	before := time.Now().Add(-time.Hour)
	pid := mustRegister(t, s, "Juan Dela Cruz", "1990-01-01", "09171234567")
	keep := mustRegister(t, s, "Maria", "", "09181234567")
	mustRecord(t, s, pid, "2023-10-25", "Root Canal", domain.Float(8500))
	mustRecord(t, s, pid, "2023-10-26", "Filling", domain.Float(1200))
	mustRecord(t, s, keep, "2023-10-26", "Filling", domain.Float(1000))

	if err := s.DeletePatient(ctx, pid); err != nil {
		t.Fatalf("delete: %v", err)
	}
	hist, err := s.PatientHistory(ctx, pid)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 0 {
		t.Fatalf("treatments must cascade, got %+v", hist)
	}
	found, err := s.SearchPatients(ctx, "09171234567")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("deleted patient still searchable: %+v", found)
	}
	if _, err := s.GetPatient(ctx, pid); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted patient still readable: %v", err)
	}
	kept, err := s.PatientHistory(ctx, keep)
	if err != nil || len(kept) != 1 {
		t.Fatalf("other patient's history affected: %+v err=%v", kept, err)
	}
	counts, err := s.CountsByMonth(ctx, "2023-10")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if want := []domain.DescriptionCount{{Description: "Filling", Count: 1}}; !reflect.DeepEqual(counts, want) {
		t.Fatalf("reports still include deleted treatments: %+v", counts)
	}

	deleted, err := s.DeletedPatients(ctx)
	if err != nil {
		t.Fatalf("deleted patients: %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("expected one audit row, got %+v", deleted)
	}
	d := deleted[0]
	if d.Patient != (domain.Patient{ID: pid, Name: "Juan Dela Cruz", DOB: "1990-01-01", Phone: "09171234567"}) {
		t.Fatalf("audit row mismatch: %+v", d.Patient)
	}
	if d.DeletedAt.Before(before) || d.DeletedAt.After(time.Now().Add(time.Hour)) {
		t.Fatalf("deleted_at out of range: %v", d.DeletedAt)
	}

	// The phone is free again once the patient is gone.
	mustRegister(t, s, "Juan Returns", "", "09171234567")
}

func testDeleteMissing(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	if err := s.DeletePatient(ctx, 31337); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	deleted, err := s.DeletedPatients(ctx)
	if err != nil {
		t.Fatalf("deleted patients: %v", err)
	}
	if len(deleted) != 0 {
		t.Fatalf("failed delete must not write audit rows: %+v", deleted)
	}
}

func testIDsNotReused(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	first := mustRegister(t, s, "A", "", "001")
	second := mustRegister(t, s, "B", "", "002")
	if err := s.DeletePatient(ctx, second); err != nil {
		t.Fatalf("delete: %v", err)
	}
	third := mustRegister(t, s, "C", "", "003")
	if third <= second || third == first {
		t.Fatalf("id %d reused after deleting %d", third, second)
	}
}

func testAvailableMonths(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	months, err := s.AvailableMonths(ctx)
	if err != nil {
		t.Fatalf("months on empty store: %v", err)
	}
	if len(months) != 0 {
		t.Fatalf("expected no months, got %v", months)
	}
	pid := mustRegister(t, s, "Juan", "", "001")
	mustRecord(t, s, pid, "2023-09-30", "Cleaning", domain.Float(800))
	mustRecord(t, s, pid, "2023-10-01", "Filling", domain.Float(1200))
	mustRecord(t, s, pid, "2023-10-15", "Filling", domain.Float(1200))
	mustRecord(t, s, pid, "2023-09-02", "Cleaning", nil)

	months, err = s.AvailableMonths(ctx)
	if err != nil {
		t.Fatalf("months: %v", err)
	}
	if want := []string{"2023-10", "2023-09"}; !reflect.DeepEqual(months, want) {
		t.Fatalf("months: got %v want %v", months, want)
	}
}

func testMonthlyRevenue(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	pid := mustRegister(t, s, "Juan", "", "001")
	mustRecord(t, s, pid, "2023-10-25", "Root Canal", domain.Float(8500))
	mustRecord(t, s, pid, "2023-10-26", "Root Canal", domain.Float(8000))
	mustRecord(t, s, pid, "2023-10-27", "Filling", domain.Float(1200))
	mustRecord(t, s, pid, "2023-10-28", "Consultation", nil)
	mustRecord(t, s, pid, "2023-11-01", "Root Canal", domain.Float(9000))

	revenue, err := s.RevenueByMonth(ctx, "2023-10")
	if err != nil {
		t.Fatalf("revenue: %v", err)
	}
	want := []domain.DescriptionRevenue{
		{Description: "Consultation", Total: 0},
		{Description: "Filling", Total: 1200},
		{Description: "Root Canal", Total: 16500},
	}
	if !reflect.DeepEqual(revenue, want) {
		t.Fatalf("revenue: got %+v want %+v", revenue, want)
	}

	counts, err := s.CountsByMonth(ctx, "2023-10")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	wantCounts := []domain.DescriptionCount{
		{Description: "Consultation", Count: 1},
		{Description: "Filling", Count: 1},
		{Description: "Root Canal", Count: 2},
	}
	if !reflect.DeepEqual(counts, wantCounts) {
		t.Fatalf("counts: got %+v want %+v", counts, wantCounts)
	}

	none, err := s.CountsByMonth(ctx, "2024-01")
	if err != nil {
		t.Fatalf("counts for empty month: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected empty month, got %+v", none)
	}
}

func testAggregatesMatchRows(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	a := mustRegister(t, s, "A", "", "001")
	b := mustRegister(t, s, "B", "", "002")
	type row struct {
		pid  int64
		date string
		desc string
		cost *float64
	}
	rows := []row{
		{a, "2023-10-01", domain.TreatmentCleaning, domain.Float(1500)},
		{b, "2023-10-02", domain.TreatmentCleaning, domain.Float(1500.25)},
		{a, "2023-10-03", domain.TreatmentFilling, nil},
		{b, "2023-10-31", domain.TreatmentExtraction, domain.Float(2500.5)},
		{a, "2023-09-30", domain.TreatmentExtraction, domain.Float(9999)},
		{b, "2023-11-01", domain.TreatmentRootCanal, domain.Float(7000)},
	}
	var (
		wantCount int64
		wantSum   float64
	)
	for _, r := range rows {
		mustRecord(t, s, r.pid, r.date, r.desc, r.cost)
		if domain.MonthOf(r.date) == "2023-10" {
			wantCount++
			wantSum += domain.CostValue(r.cost)
		}
	}
	counts, err := s.CountsByMonth(ctx, "2023-10")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	var gotCount int64
	for _, c := range counts {
		gotCount += c.Count
	}
	revenue, err := s.RevenueByMonth(ctx, "2023-10")
	if err != nil {
		t.Fatalf("revenue: %v", err)
	}
	var gotSum float64
	descs := make([]string, 0, len(revenue))
	for _, r := range revenue {
		gotSum += r.Total
		descs = append(descs, r.Description)
	}
	if gotCount != wantCount {
		t.Fatalf("count total: got %d want %d", gotCount, wantCount)
	}
	if math.Abs(gotSum-wantSum) > 1e-9 {
		t.Fatalf("revenue total: got %v want %v", gotSum, wantSum)
	}
	if !sort.StringsAreSorted(descs) || len(descs) != 3 {
		t.Fatalf("revenue groups should be distinct and sorted: %v", descs)
	}
}

func testMalformedMonth(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	for _, m := range []string{"", "2023-1", "Oct 2023", "2023-10-01"} {
		if _, err := s.CountsByMonth(ctx, m); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("counts %q: expected ErrInvalidInput, got %v", m, err)
		}
		if _, err := s.RevenueByMonth(ctx, m); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("revenue %q: expected ErrInvalidInput, got %v", m, err)
		}
	}
}

func testUsers(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	if _, ok, err := s.LookupUser(ctx, "admin"); err != nil || ok {
		t.Fatalf("unknown user: ok=%v err=%v", ok, err)
	}
	if err := s.PutUser(ctx, domain.User{Username: "admin", PasswordHash: []byte("hash-1")}); err != nil {
		t.Fatalf("put user: %v", err)
	}
	if err := s.PutUser(ctx, domain.User{Username: "admin", PasswordHash: []byte("hash-2")}); err != nil {
		t.Fatalf("replace user: %v", err)
	}
	u, ok, err := s.LookupUser(ctx, "admin")
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if u.Username != "admin" || string(u.PasswordHash) != "hash-2" {
		t.Fatalf("lookup returned %+v", u)
	}
	if _, ok, _ := s.LookupUser(ctx, "ADMIN"); ok {
		t.Fatalf("usernames are case-sensitive")
	}
	if err := s.PutUser(ctx, domain.User{Username: " ", PasswordHash: []byte("x")}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank username, got %v", err)
	}
	if err := s.PutUser(ctx, domain.User{Username: "nurse"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing hash, got %v", err)
	}
}
