// Package authtest provides testify mocks for the auth collaborators.
package authtest

import (
	"github.com/stretchr/testify/mock"
)

// PasswordHasher is a testify mock of auth.PasswordHasher.
type PasswordHasher struct{ mock.Mock }

// Hash records the call and returns the configured hash and error.
func (m *PasswordHasher) Hash(p []byte) ([]byte, error) {
	args := m.Called(p)
	hash, _ := args.Get(0).([]byte)
	return hash, args.Error(1)
}

// Compare records the call and returns the configured error.
func (m *PasswordHasher) Compare(stored, supplied []byte) error {
	return m.Called(stored, supplied).Error(0)
}
