// Package auth owns player accounts, password hashing and the signed session
// tokens that identify the acting player on every battle request.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Account is a registered player. UID is the identity used inside battles.
type Account struct {
	UID          string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// ErrAccountNotFound is returned when an account lookup yields no results.
var ErrAccountNotFound = errors.New("account not found")

// ErrAccountExists is returned when attempting to create a duplicate username.
var ErrAccountExists = errors.New("account already exists")

// ErrInvalidCredentials is returned when authentication fails.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Accounts persists player accounts.
type Accounts interface {
	// Create registers username with a bcrypt hash of password.
	// Postcondition: returns ErrAccountExists when username is taken.
	Create(ctx context.Context, username, password string) (Account, error)
	// Authenticate returns the account when password matches.
	// Postcondition: returns ErrAccountNotFound or ErrInvalidCredentials on failure.
	Authenticate(ctx context.Context, username, password string) (Account, error)
}

// HashPassword creates a bcrypt hash of the given password.
//
// Precondition: password must be non-empty and at most 72 bytes.
// Postcondition: Returns a bcrypt hash string.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
//
// Postcondition: Returns true if password matches the hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// MemoryAccounts is an in-process Accounts used by standalone servers and tests.
type MemoryAccounts struct {
	mu     sync.Mutex
	byName map[string]Account
	clock  func() time.Time
	newUID func() string
}

// NewMemoryAccounts returns an empty MemoryAccounts.
func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{
		byName: make(map[string]Account),
		clock:  time.Now,
		newUID: uuid.NewString,
	}
}

// Create implements Accounts.
func (m *MemoryAccounts) Create(_ context.Context, username, password string) (Account, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[username]; ok {
		return Account{}, ErrAccountExists
	}
	acct := Account{
		UID:          m.newUID(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    m.clock(),
	}
	m.byName[username] = acct
	return acct, nil
}

// Authenticate implements Accounts.
func (m *MemoryAccounts) Authenticate(_ context.Context, username, password string) (Account, error) {
	m.mu.Lock()
	acct, ok := m.byName[username]
	m.mu.Unlock()
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	if !CheckPassword(password, acct.PasswordHash) {
		return Account{}, ErrInvalidCredentials
	}
	return acct, nil
}
