package memory

import (
	"fmt"

	"dentalcore/pkg/domain"
)

func duplicatePhone(phone string) error {
	return fmt.Errorf("%w: phone %q already registered", domain.ErrDuplicateKey, phone)
}

func missingPatient(id int64) error {
	return fmt.Errorf("%w: patient %d does not exist", domain.ErrForeignKeyViolation, id)
}

func invalidUser() error {
	return fmt.Errorf("%w: username and password hash are required", domain.ErrInvalidInput)
}
