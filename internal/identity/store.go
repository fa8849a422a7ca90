// Package identity adapts the credential store that owns email/password
// identities. The registration flow only needs three operations: look up an
// identity by email, create one, and delete one as compensation.
package identity

//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks Store

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Errors reported by identity stores. Anything else is an infrastructure
// failure of the store itself.
var (
	ErrNotFound       = errors.New("identity not found")
	ErrEmailExists    = errors.New("email already registered")
	ErrWeakCredential = errors.New("password rejected by credential policy")
	ErrInvalidEmail   = errors.New("email rejected by identity store")
)

const (
	// DefaultBcryptCost is the cost used when none is configured.
	DefaultBcryptCost = 12

	// MinPasswordLength is the credential policy of the store. The
	// registration validator enforces the same floor up front.
	MinPasswordLength = 6

	// bcrypt ignores input past 72 bytes; longer passwords are rejected
	// rather than silently truncated.
	maxPasswordBytes = 72
)

// Handle is the opaque identifier the store assigns to an identity.
type Handle string

func (h Handle) String() string {
	return string(h)
}

// Credentials are the inputs to Create.
type Credentials struct {
	Email       string
	Password    string
	DisplayName string
}

// Store is the identity provider contract.
type Store interface {
	// FindByEmail returns ErrNotFound when no identity uses email.
	FindByEmail(ctx context.Context, email string) (Handle, error)

	// Create returns ErrEmailExists, ErrWeakCredential or ErrInvalidEmail
	// for rejections.
	Create(ctx context.Context, creds Credentials) (Handle, error)

	// Delete returns ErrNotFound when the identity is already gone.
	Delete(ctx context.Context, handle Handle) error
}

// NormalizeEmail is the lookup key for an email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// checkEmail accepts a bare RFC 5322 address and nothing else.
func checkEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

func checkPassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > maxPasswordBytes {
		return ErrWeakCredential
	}
	return nil
}

func hashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
