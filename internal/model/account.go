package model

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Collections owned by the registration flow.
const (
	AccountCollection = "account"
	QuotaCollection   = "ip_registration_count"
)

// Field names shared by the document store queries.
const (
	FieldUsername   = "username"
	FieldQuotaCount = "count"
	FieldCreatedAt  = "createdAt"
)

// AvatarPlaceholderBase is the placeholder image service used for new accounts.
const AvatarPlaceholderBase = "https://placehold.co/120x120?text="

// Account is the profile document created for every registered identity.
// It is keyed by the identity handle issued by the identity store.
type Account struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Bio         string    `json:"bio"`
	AvatarURL   string    `json:"avatarUrl"`
	CoverURL    string    `json:"coverUrl"`
	Friends     []string  `json:"friends"`
	Blocked     []string  `json:"blocked"`
	NeedsSetup  bool      `json:"needsSetup"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewAccount builds the initial profile for a freshly created identity.
// username is the caller-supplied value; it is stored lowercased while
// DisplayName keeps the original casing. CreatedAt is left zero: the
// document store assigns it at commit.
func NewAccount(uid, email, username string) *Account {
	return &Account{
		UID:         uid,
		Email:       email,
		Username:    NormalizeUsername(username),
		DisplayName: username,
		Bio:         "",
		AvatarURL:   AvatarURL(username),
		CoverURL:    "",
		Friends:     []string{},
		Blocked:     []string{},
		NeedsSetup:  false,
	}
}

// NormalizeUsername returns the form used for uniqueness checks.
func NormalizeUsername(username string) string {
	return strings.ToLower(username)
}

// AvatarURL derives the placeholder avatar from the first character of the
// original username, uppercased.
func AvatarURL(username string) string {
	r, _ := utf8.DecodeRuneInString(username)
	if r == utf8.RuneError {
		return AvatarPlaceholderBase
	}
	return AvatarPlaceholderBase + string(unicode.ToUpper(r))
}

// QuotaCounter tracks how many accounts were created from one source address.
type QuotaCounter struct {
	Address string `json:"address"`
	Count   int    `json:"count"`
}
