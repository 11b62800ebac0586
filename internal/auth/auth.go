// Package auth gates access to the clinic data behind a username and password
// checked against bcrypt hashes in the users table.
package auth

import (
	"context"
	"errors"
	"fmt"

	"dentalcore/pkg/domain"

	"golang.org/x/crypto/bcrypt"
)

// Authenticator verifies and provisions credentials.
type Authenticator struct {
	users  domain.UserRepository
	hasher PasswordHasher
}

// NewAuthenticator builds an Authenticator. A nil hasher uses BcryptHasher.
func NewAuthenticator(users domain.UserRepository, hasher PasswordHasher) *Authenticator {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	return &Authenticator{users: users, hasher: hasher}
}

// Verify reports whether username exists and password matches its stored
// hash. An unknown user and a wrong password both yield false without error.
// Storage failures and unreadable stored hashes are returned as errors.
func (a *Authenticator) Verify(ctx context.Context, username, password string) (bool, error) {
	user, ok, err := a.users.LookupUser(ctx, username)
	if err != nil {
		return false, fmt.Errorf("lookup user: %w", err)
	}
	if !ok {
		return false, nil
	}
	err = a.hasher.Compare(user.PasswordHash, []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("compare stored hash for %q: %w", username, err)
	}
	return true, nil
}

// AddUser stores username with a freshly hashed password, replacing any
// existing record.
func (a *Authenticator) AddUser(ctx context.Context, username, password string) error {
	if err := domain.ValidateCredentials(username, password); err != nil {
		return err
	}
	hash, err := a.hasher.Hash([]byte(password))
	if err != nil {
		return err
	}
	if err := a.users.PutUser(ctx, domain.User{Username: username, PasswordHash: hash}); err != nil {
		return fmt.Errorf("store user: %w", err)
	}
	return nil
}
