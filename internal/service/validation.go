package service

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minUsernameLength = 3
	minPasswordLength = 6
)

var usernamePattern = regexp.MustCompile(`(?i)^[a-z0-9_.]+$`)

var (
	errUsernameTooShort = errors.New("username must be at least 3 characters")
	errUsernameSpace    = errors.New("username must not contain whitespace")
	errUsernameCharset  = errors.New("username may only contain letters, digits, '_' and '.'")
	errPasswordTooShort = errors.New("password must be at least 6 characters")
	errEmailRequired    = errors.New("email is required")
)

// ValidateRegistration checks a registration request before any store is
// touched. Email format is left to the identity store.
func ValidateRegistration(username, email, password string) error {
	if utf8.RuneCountInString(username) < minUsernameLength {
		return newError(KindInvalidInput, errUsernameTooShort)
	}
	if strings.IndexFunc(username, unicode.IsSpace) >= 0 {
		return newError(KindInvalidInput, errUsernameSpace)
	}
	if !usernamePattern.MatchString(username) {
		return newError(KindInvalidInput, errUsernameCharset)
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return newError(KindInvalidInput, errPasswordTooShort)
	}
	if strings.TrimSpace(email) == "" {
		return newError(KindInvalidInput, errEmailRequired)
	}
	return nil
}
