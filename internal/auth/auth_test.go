package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"dentalcore/internal/auth"
	"dentalcore/internal/auth/authtest"
	"dentalcore/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestVerifyWithBcrypt(t *testing.T) {
	ctx := context.Background()
	store := newUsers()
	a := auth.NewAuthenticator(store, auth.BcryptHasher{Cost: bcrypt.MinCost})

	require.NoError(t, a.AddUser(ctx, "admin", "admin"))

	ok, err := a.Verify(ctx, "admin", "admin")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Verify(ctx, "admin", "wrong")
	require.NoError(t, err)
	assert.False(t, ok, "wrong password")

	ok, err = a.Verify(ctx, "nobody", "admin")
	require.NoError(t, err)
	assert.False(t, ok, "unknown user")

	u, found, err := store.LookupUser(ctx, "admin")
	require.NoError(t, err)
	require.True(t, found)
	assert.NotEqual(t, "admin", string(u.PasswordHash), "password must not be stored in plaintext")
	assert.True(t, strings.HasPrefix(string(u.PasswordHash), "$2"))
}

func TestAddUserReplacesPassword(t *testing.T) {
	ctx := context.Background()
	a := auth.NewAuthenticator(newUsers(), auth.BcryptHasher{Cost: bcrypt.MinCost})
	require.NoError(t, a.AddUser(ctx, "admin", "first"))
	require.NoError(t, a.AddUser(ctx, "admin", "second"))

	ok, _ := a.Verify(ctx, "admin", "first")
	assert.False(t, ok)
	ok, _ = a.Verify(ctx, "admin", "second")
	assert.True(t, ok)
}

func TestAddUserValidation(t *testing.T) {
	ctx := context.Background()
	hasher := new(authtest.PasswordHasher)
	a := auth.NewAuthenticator(newUsers(), hasher)

	assert.ErrorIs(t, a.AddUser(ctx, "", "pw"), domain.ErrInvalidInput)
	assert.ErrorIs(t, a.AddUser(ctx, "admin", ""), domain.ErrInvalidInput)
	hasher.AssertNotCalled(t, "Hash", mock.Anything)
}

func TestBcryptRejectsOverlongPassword(t *testing.T) {
	_, err := auth.BcryptHasher{Cost: bcrypt.MinCost}.Hash([]byte(strings.Repeat("x", 73)))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestVerifyUsesHasher(t *testing.T) {
	ctx := context.Background()
	store := newUsers()
	hasher := new(authtest.PasswordHasher)
	hasher.On("Hash", []byte("pw")).Return([]byte("hashed-pw"), nil)
	hasher.On("Compare", []byte("hashed-pw"), []byte("pw")).Return(nil)
	hasher.On("Compare", []byte("hashed-pw"), []byte("bad")).Return(bcrypt.ErrMismatchedHashAndPassword)

	a := auth.NewAuthenticator(store, hasher)
	require.NoError(t, a.AddUser(ctx, "nurse", "pw"))

	ok, err := a.Verify(ctx, "nurse", "pw")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.Verify(ctx, "nurse", "bad")
	require.NoError(t, err)
	assert.False(t, ok)
	hasher.AssertExpectations(t)
}

func TestHashFailureIsReturned(t *testing.T) {
	hasher := new(authtest.PasswordHasher)
	boom := errors.New("entropy exhausted")
	hasher.On("Hash", mock.Anything).Return(nil, boom)
	a := auth.NewAuthenticator(newUsers(), hasher)
	assert.ErrorIs(t, a.AddUser(context.Background(), "admin", "pw"), boom)
}

type users struct {
	mu   sync.Mutex
	byID map[string]domain.User
}

func newUsers() *users { return &users{byID: map[string]domain.User{}} }

func (u *users) PutUser(_ context.Context, user domain.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.byID[user.Username] = user
	return nil
}

func (u *users) LookupUser(_ context.Context, username string) (domain.User, bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.byID[username]
	return user, ok, nil
}

type failingUsers struct{ err error }

func (f failingUsers) PutUser(context.Context, domain.User) error { return f.err }
func (f failingUsers) LookupUser(context.Context, string) (domain.User, bool, error) {
	return domain.User{}, false, f.err
}

func TestVerifySurfacesStorageErrors(t *testing.T) {
	boom := errors.New("database is locked")
	a := auth.NewAuthenticator(failingUsers{err: boom}, nil)
	ok, err := a.Verify(context.Background(), "admin", "admin")
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestVerifyReportsUnreadableHash(t *testing.T) {
	ctx := context.Background()
	store := newUsers()
	// A legacy row holding the plaintext password instead of a bcrypt hash.
	require.NoError(t, store.PutUser(ctx, domain.User{Username: "admin", PasswordHash: []byte("admin")}))

	a := auth.NewAuthenticator(store, auth.BcryptHasher{Cost: bcrypt.MinCost})
	ok, err := a.Verify(ctx, "admin", "admin")
	assert.False(t, ok)
	assert.ErrorIs(t, err, bcrypt.ErrHashTooShort)
}

func TestVerifyReturnsHasherFaults(t *testing.T) {
	ctx := context.Background()
	store := newUsers()
	require.NoError(t, store.PutUser(ctx, domain.User{Username: "nurse", PasswordHash: []byte("$2a$99$bogus")}))
	hasher := new(authtest.PasswordHasher)
	hasher.On("Compare", []byte("$2a$99$bogus"), []byte("pw")).Return(bcrypt.InvalidCostError(99))

	ok, err := auth.NewAuthenticator(store, hasher).Verify(ctx, "nurse", "pw")
	assert.False(t, ok)
	var costErr bcrypt.InvalidCostError
	assert.ErrorAs(t, err, &costErr)
	hasher.AssertExpectations(t)
}
