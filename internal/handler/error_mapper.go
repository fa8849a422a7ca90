package handler

import (
	"errors"

	"github.com/forgo/qola/api/internal/model"
	"github.com/forgo/qola/api/internal/service"
)

// MapRegistrationError converts a registration failure to the response the
// client sees. Only the stable message and code are exposed; the cause stays
// in the logs. quotaLimit is reported on quota rejections when positive.
func MapRegistrationError(err error, quotaLimit int) *model.ProblemDetails {
	if err == nil {
		return nil
	}

	switch {
	// ===== Validation → 400 =====
	case errors.Is(err, service.ErrInvalidInput):
		return model.NewBadRequestError(model.MsgInvalidRegistration, model.ErrCodeInvalidInput)
	case errors.Is(err, service.ErrWeakCredential):
		return model.NewBadRequestError(model.MsgWeakCredential, model.ErrCodeWeakCredential)

	// ===== Conflict → 409 =====
	case errors.Is(err, service.ErrEmailAlreadyExists):
		return model.NewConflictError(model.MsgEmailInUse, model.ErrCodeEmailInUse)
	case errors.Is(err, service.ErrUsernameAlreadyExists):
		return model.NewConflictError(model.MsgUsernameInUse, model.ErrCodeUsernameInUse)

	// ===== Quota → 429 =====
	case errors.Is(err, service.ErrQuotaExceeded):
		return model.NewQuotaExceededError(model.MsgQuotaExceeded, quotaLimit)

	// ===== Identity provider unreachable → 503 =====
	case errors.Is(err, service.ErrIdentityLookupFailed):
		return model.NewServiceUnavailableError(model.MsgEmailLookupFailed, model.ErrCodeIdentityUnavailable)

	// ===== Default → 500 =====
	default:
		return model.NewInternalError(model.MsgRegistrationFailed)
	}
}
