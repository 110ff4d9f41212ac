package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"rollbook-server-go/db"
)

var (
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrEmptyCredentials   = errors.New("username and password are required")
)

// HashPassword returns a salted one-way hash of pwd
func HashPassword(pwd string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether pwd matches hash
func CheckPassword(hash, pwd string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pwd)) == nil
}

// Accounts registers and authenticates users against a db.Store
type Accounts struct {
	store db.Store
}

// NewAccounts creates Accounts backed by store
func NewAccounts(store db.Store) *Accounts {
	return &Accounts{store: store}
}

// Register stores a new account. Existing usernames are left untouched.
func (a *Accounts) Register(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return ErrEmptyCredentials
	}
	accounts, err := a.store.LoadAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}
	if _, ok := accounts[username]; ok {
		return ErrUsernameExists
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	accounts[username] = hash
	if err := a.store.SaveAccounts(ctx, accounts); err != nil {
		return fmt.Errorf("failed to save accounts: %w", err)
	}
	return nil
}

// Authenticate fails with ErrInvalidCredentials for unknown users and wrong
// passwords alike.
func (a *Accounts) Authenticate(ctx context.Context, username, password string) error {
	accounts, err := a.store.LoadAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}
	hash, ok := accounts[username]
	if !ok || !CheckPassword(hash, password) {
		return ErrInvalidCredentials
	}
	return nil
}

// SetPassword creates the account or replaces its hash
func (a *Accounts) SetPassword(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return ErrEmptyCredentials
	}
	accounts, err := a.store.LoadAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	accounts[username] = hash
	if err := a.store.SaveAccounts(ctx, accounts); err != nil {
		return fmt.Errorf("failed to save accounts: %w", err)
	}
	return nil
}
