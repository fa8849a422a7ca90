package handler

import (
	"context"
	"net/http"

	"github.com/forgo/qola/api/internal/middleware"
	"github.com/forgo/qola/api/internal/model"
	"github.com/forgo/qola/api/internal/service"
)

// Registrar runs one registration.
type Registrar interface {
	Register(ctx context.Context, req service.RegisterRequest) (*service.RegisterResult, error)
}

// RegistrationHandler handles account registration
type RegistrationHandler struct {
	registrar  Registrar
	quotaLimit int
}

// NewRegistrationHandler creates a new registration handler. quotaLimit is
// echoed to clients rejected by the per-address quota.
func NewRegistrationHandler(registrar Registrar, quotaLimit int) *RegistrationHandler {
	return &RegistrationHandler{
		registrar:  registrar,
		quotaLimit: quotaLimit,
	}
}

// Register handles POST /v1/auth/register
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, model.NewBadRequestError(model.MsgInvalidRegistration, model.ErrCodeInvalidInput))
		return
	}

	ctx := r.Context()
	result, err := h.registrar.Register(ctx, service.RegisterRequest{
		Username:      req.Username,
		Email:         req.Email,
		Password:      req.Password,
		SourceAddress: middleware.GetClientAddress(ctx),
		RequestID:     middleware.GetRequestID(ctx),
	})
	if err != nil {
		WriteError(w, MapRegistrationError(err, h.quotaLimit))
		return
	}

	WriteData(w, http.StatusCreated, model.RegisterResponse{
		Message: model.MsgRegistrationSuccessful,
		UID:     result.Handle.String(),
	}, nil)
}
