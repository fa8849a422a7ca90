package service

import "errors"

// Kind classifies every way a registration can end in failure. The set is
// closed: handlers switch on it and metrics label by it.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindEmailAlreadyExists
	KindUsernameAlreadyExists
	KindQuotaExceeded
	KindWeakCredential
	KindIdentityLookupFailed
	KindIdentityCreateFailed
	KindTransactionFailed
	// KindCompensationFailed is logged and queued, never returned to callers.
	KindCompensationFailed
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown",
	KindInvalidInput:          "invalid_input",
	KindEmailAlreadyExists:    "email_already_exists",
	KindUsernameAlreadyExists: "username_already_exists",
	KindQuotaExceeded:         "quota_exceeded",
	KindWeakCredential:        "weak_credential",
	KindIdentityLookupFailed:  "identity_lookup_failed",
	KindIdentityCreateFailed:  "identity_create_failed",
	KindTransactionFailed:     "transaction_failed",
	KindCompensationFailed:    "compensation_failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Business reports whether the kind is a rule violation attributable to the
// request rather than to infrastructure.
func (k Kind) Business() bool {
	switch k {
	case KindInvalidInput, KindEmailAlreadyExists, KindUsernameAlreadyExists,
		KindQuotaExceeded, KindWeakCredential:
		return true
	}
	return false
}

// Error is a classified registration failure. Err holds the underlying cause
// for logs; it is never shown to clients.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrQuotaExceeded)
// holds regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// ===== Registration Errors =====
var (
	ErrInvalidInput          = &Error{Kind: KindInvalidInput}
	ErrEmailAlreadyExists    = &Error{Kind: KindEmailAlreadyExists}
	ErrUsernameAlreadyExists = &Error{Kind: KindUsernameAlreadyExists}
	ErrQuotaExceeded         = &Error{Kind: KindQuotaExceeded}
	ErrWeakCredential        = &Error{Kind: KindWeakCredential}
	ErrIdentityLookupFailed  = &Error{Kind: KindIdentityLookupFailed}
	ErrIdentityCreateFailed  = &Error{Kind: KindIdentityCreateFailed}
	ErrTransactionFailed     = &Error{Kind: KindTransactionFailed}
	ErrCompensationFailed    = &Error{Kind: KindCompensationFailed}
)

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// KindOf extracts the failure kind from err. Unclassified errors are
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
