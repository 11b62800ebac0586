package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every store implementation. Callers match with
// errors.Is; stores wrap these with context.
var (
	// ErrInvalidInput reports a missing or malformed required field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateKey reports a unique constraint violation on patient phone.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrForeignKeyViolation reports a treatment referencing an unknown patient.
	ErrForeignKeyViolation = errors.New("foreign key violation")
	// ErrNotFound reports an operation targeting a nonexistent id.
	ErrNotFound = errors.New("not found")
)

// NotFoundError identifies the missing record. It matches ErrNotFound.
type NotFoundError struct {
	Entity EntityType
	ID     int64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// IsConstraint reports whether err is one of the expected constraint failures
// rather than a fault in the store itself.
func IsConstraint(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrForeignKeyViolation) ||
		errors.Is(err, ErrNotFound)
}
