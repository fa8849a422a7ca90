package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/qola/api/internal/identity"
	"github.com/forgo/qola/api/internal/middleware"
	"github.com/forgo/qola/api/internal/model"
	"github.com/forgo/qola/api/internal/service"
)

type stubRegistrar struct {
	got    service.RegisterRequest
	calls  int
	result *service.RegisterResult
	err    error
}

func (s *stubRegistrar) Register(ctx context.Context, req service.RegisterRequest) (*service.RegisterResult, error) {
	s.calls++
	s.got = req
	return s.result, s.err
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) model.ProblemDetails {
	t.Helper()
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var p model.ProblemDetails
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
	return p
}

func TestRegister_Success_Returns201(t *testing.T) {
	t.Parallel()

	reg := &stubRegistrar{result: &service.RegisterResult{Handle: identity.Handle("h-1")}}
	h := NewRegistrationHandler(reg, 3)

	body := `{"username":"Alice_01","email":"alice@example.com","password":"hunter22"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", strings.NewReader(body))
	req = req.WithContext(context.WithValue(req.Context(), middleware.ClientAddressKey, "1.2.3.4"))
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-9"))
	rr := httptest.NewRecorder()

	h.Register(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var resp struct {
		Data model.RegisterResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, model.MsgRegistrationSuccessful, resp.Data.Message)
	assert.Equal(t, "h-1", resp.Data.UID)

	assert.Equal(t, service.RegisterRequest{
		Username:      "Alice_01",
		Email:         "alice@example.com",
		Password:      "hunter22",
		SourceAddress: "1.2.3.4",
		RequestID:     "req-9",
	}, reg.got)
}

func TestRegister_MalformedBody_Returns400WithoutCallingService(t *testing.T) {
	t.Parallel()

	for _, body := range []string{``, `{`, `[]`, `{"username":"a","extra":1}`} {
		reg := &stubRegistrar{}
		h := NewRegistrationHandler(reg, 3)

		req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", strings.NewReader(body))
		rr := httptest.NewRecorder()
		h.Register(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "body %q", body)
		assert.Equal(t, 0, reg.calls, "body %q", body)
		p := decodeProblem(t, rr)
		assert.Equal(t, model.MsgInvalidRegistration, p.Detail)
	}
}

func TestRegister_ServiceError_IsMapped(t *testing.T) {
	t.Parallel()

	reg := &stubRegistrar{err: &service.Error{Kind: service.KindUsernameAlreadyExists, Err: errors.New("taken by h-0")}}
	h := NewRegistrationHandler(reg, 3)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register",
		strings.NewReader(`{"username":"bob","email":"b@x.com","password":"secret1"}`))
	rr := httptest.NewRecorder()
	h.Register(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	p := decodeProblem(t, rr)
	assert.Equal(t, model.MsgUsernameInUse, p.Detail)
	assert.Equal(t, model.ErrCodeUsernameInUse, p.Code)
	assert.NotContains(t, rr.Body.String(), "h-0")
}

func TestMapRegistrationError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind       service.Kind
		wantStatus int
		wantDetail string
		wantCode   model.ErrorCode
	}{
		{service.KindInvalidInput, http.StatusBadRequest, model.MsgInvalidRegistration, model.ErrCodeInvalidInput},
		{service.KindEmailAlreadyExists, http.StatusConflict, model.MsgEmailInUse, model.ErrCodeEmailInUse},
		{service.KindUsernameAlreadyExists, http.StatusConflict, model.MsgUsernameInUse, model.ErrCodeUsernameInUse},
		{service.KindQuotaExceeded, http.StatusTooManyRequests, model.MsgQuotaExceeded, model.ErrCodeQuotaExceeded},
		{service.KindWeakCredential, http.StatusBadRequest, model.MsgWeakCredential, model.ErrCodeWeakCredential},
		{service.KindIdentityLookupFailed, http.StatusServiceUnavailable, model.MsgEmailLookupFailed, model.ErrCodeIdentityUnavailable},
		{service.KindIdentityCreateFailed, http.StatusInternalServerError, model.MsgRegistrationFailed, model.ErrCodeInternal},
		{service.KindTransactionFailed, http.StatusInternalServerError, model.MsgRegistrationFailed, model.ErrCodeInternal},
		{service.KindUnknown, http.StatusInternalServerError, model.MsgRegistrationFailed, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := &service.Error{Kind: tt.kind, Err: errors.New("internal cause")}
			p := MapRegistrationError(err, 3)

			assert.Equal(t, tt.wantStatus, p.Status)
			assert.Equal(t, tt.wantDetail, p.Detail)
			assert.Equal(t, tt.wantCode, p.Code)
			assert.NotContains(t, p.Detail, "internal cause")
		})
	}
}

func TestMapRegistrationError_QuotaCarriesLimit(t *testing.T) {
	t.Parallel()

	p := MapRegistrationError(service.ErrQuotaExceeded, 3)
	require.NotNil(t, p.Limit)
	assert.Equal(t, 3, *p.Limit)

	assert.Nil(t, MapRegistrationError(nil, 3))
	assert.Equal(t, http.StatusInternalServerError, MapRegistrationError(errors.New("plain"), 3).Status)
}
