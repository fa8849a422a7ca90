package model

// MaxRequestBodyBytes caps request bodies; registration payloads are tiny.
const MaxRequestBodyBytes = 64 << 10

// RegisterRequest is the body of POST /v1/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResponse is returned on a successful registration.
type RegisterResponse struct {
	Message string `json:"message"`
	UID     string `json:"uid,omitempty"`
}

// Stable user-facing messages. Callers may switch on these; they never carry
// internal causes.
const (
	MsgRegistrationSuccessful = "registration successful"
	MsgInvalidRegistration    = "invalid registration data"
	MsgEmailInUse             = "email already in use"
	MsgUsernameInUse          = "username already in use"
	MsgQuotaExceeded          = "address registration limit reached"
	MsgWeakCredential         = "password must meet minimum length"
	MsgEmailLookupFailed      = "could not verify email"
	MsgRegistrationFailed     = "registration failed"
	MsgNotReady               = "server configuration error"
)
