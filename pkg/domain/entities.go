// Package domain defines the persistent entities, value types, and store
// contracts used by dentalcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in errors and audit entries.
const (
	// EntityPatient identifies a patient record.
	EntityPatient EntityType = "patient"
	// EntityTreatment identifies a treatment record.
	EntityTreatment EntityType = "treatment"
	// EntityUser identifies a login credential record.
	EntityUser EntityType = "user"
	// EntityReport identifies an exported month report.
	EntityReport EntityType = "report"
)

// DateLayout is the textual layout used for every stored date.
const DateLayout = "2006-01-02"

// MonthLayout is the textual layout of a reporting month.
const MonthLayout = "2006-01"

// Patient is a registered clinic patient. Phone is the business key and is
// unique across all patients.
type Patient struct {
	ID    int64  `json:"patient_id"`
	Name  string `json:"name"`
	DOB   string `json:"dob,omitempty"` // YYYY-MM-DD, empty when unknown
	Phone string `json:"phone"`
}

// PatientInput carries the mutable patient fields for register and update.
type PatientInput struct {
	Name  string
	DOB   string
	Phone string
}

// Treatment is a single procedure performed for a patient.
type Treatment struct {
	ID          int64    `json:"treatment_id"`
	PatientID   int64    `json:"patient_id"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Cost        *float64 `json:"cost,omitempty"`
}

// TreatmentInput carries the fields of a treatment to record.
type TreatmentInput struct {
	PatientID   int64
	Date        string
	Description string
	Cost        *float64
}

// HistoryEntry is one row of a patient's treatment history.
type HistoryEntry struct {
	TreatmentID int64    `json:"treatment_id"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Cost        *float64 `json:"cost,omitempty"`
}

// DeletedPatient is the archived copy of a patient taken right before deletion.
type DeletedPatient struct {
	Patient
	DeletedAt time.Time `json:"deleted_at"`
}

// DescriptionCount is a (description, count) chart tuple.
type DescriptionCount struct {
	Description string `json:"description"`
	Count       int64  `json:"count"`
}

// DescriptionRevenue is a (description, total_cost) chart tuple. Total is zero
// when every treatment in the group has a null cost.
type DescriptionRevenue struct {
	Description string  `json:"description"`
	Total       float64 `json:"total_cost"`
}

// User is a stored login credential. PasswordHash never holds plaintext.
type User struct {
	Username     string
	PasswordHash []byte
}

// Float returns a pointer to v, convenient for optional costs.
func Float(v float64) *float64 { return &v }

// CostValue returns the cost or zero when it is null.
func CostValue(c *float64) float64 {
	if c == nil {
		return 0
	}
	return *c
}
