package domain

import (
	"math"
	"strings"
	"time"
)

// Normalize trims surrounding whitespace from every field.
func (in PatientInput) Normalize() PatientInput {
	return PatientInput{
		Name:  strings.TrimSpace(in.Name),
		DOB:   strings.TrimSpace(in.DOB),
		Phone: strings.TrimSpace(in.Phone),
	}
}

// Validate checks required fields and the optional date of birth.
func (in PatientInput) Validate() error {
	if in.Name == "" {
		return invalid("patient name is required")
	}
	if in.Phone == "" {
		return invalid("patient phone is required")
	}
	if in.DOB != "" {
		if err := ValidateDate(in.DOB); err != nil {
			return err
		}
	}
	return nil
}

// Normalize trims the textual fields.
func (in TreatmentInput) Normalize() TreatmentInput {
	in.Date = strings.TrimSpace(in.Date)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

// Validate checks the treatment date, description and cost. Patient
// existence is the store's concern.
func (in TreatmentInput) Validate() error {
	if in.Date == "" {
		return invalid("treatment date is required")
	}
	if err := ValidateDate(in.Date); err != nil {
		return err
	}
	if in.Description == "" {
		return invalid("treatment description is required")
	}
	if in.Cost != nil && (math.IsNaN(*in.Cost) || math.IsInf(*in.Cost, 0)) {
		return invalid("treatment cost %v is not a finite number", *in.Cost)
	}
	return nil
}

// ValidateDate requires a YYYY-MM-DD calendar date.
func ValidateDate(s string) error {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return invalid("date %q is not YYYY-MM-DD", s)
	}
	return nil
}

// ValidateMonth requires a YYYY-MM reporting month.
func ValidateMonth(s string) error {
	if _, err := time.Parse(MonthLayout, s); err != nil {
		return invalid("month %q is not YYYY-MM", s)
	}
	return nil
}

// MonthOf returns the YYYY-MM prefix of a YYYY-MM-DD date.
func MonthOf(date string) string {
	if len(date) < len(MonthLayout) {
		return date
	}
	return date[:len(MonthLayout)]
}

// ValidateCredentials rejects empty usernames and passwords.
func ValidateCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" {
		return invalid("username is required")
	}
	if password == "" {
		return invalid("password is required")
	}
	return nil
}

// EscapeLike escapes the LIKE wildcards and the escape character itself so the
// pattern matches s literally. Use with ESCAPE '\'.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ContainsPattern wraps an escaped substring in LIKE wildcards.
func ContainsPattern(query string) string {
	return "%" + EscapeLike(query) + "%"
}
