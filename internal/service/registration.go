package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/forgo/qola/api/internal/audit"
	"github.com/forgo/qola/api/internal/database"
	"github.com/forgo/qola/api/internal/identity"
	"github.com/forgo/qola/api/internal/metrics"
	"github.com/forgo/qola/api/internal/model"
)

const (
	// DefaultStepTimeout bounds each store call of a registration.
	DefaultStepTimeout = 5 * time.Second

	// DefaultCompensationTimeout bounds the compensating delete.
	DefaultCompensationTimeout = 5 * time.Second

	// DefaultAuditTimeout bounds each audit emit.
	DefaultAuditTimeout = 2 * time.Second
)

// Step names used for metrics and spans.
const (
	stepEmailCheck     = "email_check"
	stepIdentityCreate = "identity_create"
	stepTransaction    = "transaction"
	stepCompensation   = "compensation"
)

// Compensation results used as metric labels.
const (
	compensationDeleted     = "deleted"
	compensationAlreadyGone = "already_gone"
	compensationFailed      = "failed"
)

// AccountRepository defines the account storage the coordinator needs
type AccountRepository interface {
	UsernameTaken(ctx context.Context, tx database.Txn, normalized string) (bool, error)
	Stage(tx database.Txn, acct *model.Account)
}

// CompensationQueue records identities whose compensating delete failed.
type CompensationQueue interface {
	Enqueue(ctx context.Context, handle, reason string) error
}

// RegistrationService coordinates account creation across the identity store
// and the document store.
type RegistrationService struct {
	identity            identity.Store
	store               database.DocumentStore
	accounts            AccountRepository
	quota               *QuotaTracker
	compensations       CompensationQueue
	audit               audit.Publisher
	metrics             *metrics.Metrics
	tracer              trace.Tracer
	logger              *slog.Logger
	stepTimeout         time.Duration
	compensationTimeout time.Duration
	auditTimeout        time.Duration
}

// RegistrationServiceConfig holds configuration for the registration service
type RegistrationServiceConfig struct {
	Identity      identity.Store
	Store         database.DocumentStore
	Accounts      AccountRepository
	Quota         *QuotaTracker
	Compensations CompensationQueue
	Audit         audit.Publisher
	Metrics       *metrics.Metrics
	Tracer        trace.Tracer
	Logger        *slog.Logger

	StepTimeout         time.Duration
	CompensationTimeout time.Duration
	AuditTimeout        time.Duration
}

// NewRegistrationService creates a new registration service
func NewRegistrationService(cfg RegistrationServiceConfig) *RegistrationService {
	s := &RegistrationService{
		identity:            cfg.Identity,
		store:               cfg.Store,
		accounts:            cfg.Accounts,
		quota:               cfg.Quota,
		compensations:       cfg.Compensations,
		audit:               cfg.Audit,
		metrics:             cfg.Metrics,
		tracer:              cfg.Tracer,
		logger:              cfg.Logger,
		stepTimeout:         cfg.StepTimeout,
		compensationTimeout: cfg.CompensationTimeout,
		auditTimeout:        cfg.AuditTimeout,
	}
	if s.audit == nil {
		s.audit = audit.NopPublisher{}
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/forgo/qola/api/internal/service")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.stepTimeout <= 0 {
		s.stepTimeout = DefaultStepTimeout
	}
	if s.compensationTimeout <= 0 {
		s.compensationTimeout = DefaultCompensationTimeout
	}
	if s.auditTimeout <= 0 {
		s.auditTimeout = DefaultAuditTimeout
	}
	return s
}

// RegisterRequest is one registration attempt. SourceAddress is the
// normalized client address, or "" when it could not be resolved.
type RegisterRequest struct {
	Username      string
	Email         string
	Password      string
	SourceAddress string
	RequestID     string
}

// RegisterResult represents a successful registration
type RegisterResult struct {
	Handle  identity.Handle
	Account *model.Account
}

// Register runs the registration saga: validate, check the email, create the
// identity, then commit the account and quota in one document transaction.
// When the transaction fails after the identity exists, the identity is
// deleted before the error is returned. Returned errors are always *Error.
func (s *RegistrationService) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	ctx, span := s.tracer.Start(ctx, "RegistrationService.Register",
		trace.WithAttributes(attribute.Bool("registration.has_address", req.SourceAddress != "")))
	defer span.End()

	sg := newSaga()
	logger := s.logger.With(
		slog.String("request_id", req.RequestID),
		slog.String("address", req.SourceAddress),
	)

	if err := ValidateRegistration(req.Username, req.Email, req.Password); err != nil {
		sg.mustTransition(StateFailed)
		return nil, s.finishFailed(ctx, span, logger, req, "", err)
	}

	email := identity.NormalizeEmail(req.Email)

	sg.mustTransition(StateEmailChecking)
	if err := s.checkEmail(ctx, email); err != nil {
		sg.mustTransition(StateFailed)
		return nil, s.finishFailed(ctx, span, logger, req, "", err)
	}

	sg.mustTransition(StateIdentityCreating)
	handle, err := s.createIdentity(ctx, email, req)
	if err != nil {
		sg.mustTransition(StateFailed)
		return nil, s.finishFailed(ctx, span, logger, req, "", err)
	}
	logger = logger.With(slog.String("handle", handle.String()))

	sg.mustTransition(StateTxCommitting)
	acct := model.NewAccount(handle.String(), email, req.Username)
	if err := s.commitAccount(ctx, acct, req.SourceAddress); err != nil {
		sg.mustTransition(StateCompensating)
		s.compensate(ctx, logger, req, handle, KindOf(err))
		sg.mustTransition(StateFailed)
		return nil, s.finishFailed(ctx, span, logger, req, handle, err)
	}

	sg.mustTransition(StateSucceeded)
	s.metrics.ObserveRegistration(StateSucceeded.String())
	s.emit(ctx, logger, audit.Event{
		Action:    audit.ActionRegistrationSucceeded,
		Handle:    handle.String(),
		Address:   req.SourceAddress,
		RequestID: req.RequestID,
		Outcome:   StateSucceeded.String(),
	})
	logger.InfoContext(ctx, "registration succeeded", slog.String("username", acct.Username))
	span.SetAttributes(attribute.String("registration.outcome", StateSucceeded.String()))

	return &RegisterResult{Handle: handle, Account: acct}, nil
}

func (s *RegistrationService) checkEmail(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()
	defer s.metrics.ObserveStep(stepEmailCheck, time.Now())

	_, err := s.identity.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return newError(KindEmailAlreadyExists, nil)
	case errors.Is(err, identity.ErrNotFound):
		return nil
	default:
		return newError(KindIdentityLookupFailed, err)
	}
}

func (s *RegistrationService) createIdentity(ctx context.Context, email string, req RegisterRequest) (identity.Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()
	defer s.metrics.ObserveStep(stepIdentityCreate, time.Now())

	handle, err := s.identity.Create(ctx, identity.Credentials{
		Email:       email,
		Password:    req.Password,
		DisplayName: req.Username,
	})
	switch {
	case err == nil:
		return handle, nil
	case errors.Is(err, identity.ErrEmailExists):
		// Lost the race with a concurrent registration after the pre-check.
		return "", newError(KindEmailAlreadyExists, err)
	case errors.Is(err, identity.ErrWeakCredential):
		return "", newError(KindWeakCredential, err)
	case errors.Is(err, identity.ErrInvalidEmail):
		return "", newError(KindInvalidInput, err)
	default:
		return "", newError(KindIdentityCreateFailed, err)
	}
}

// commitAccount runs the document transaction: quota, username uniqueness,
// account write. Business rejections keep their kind; anything else is
// KindTransactionFailed.
func (s *RegistrationService) commitAccount(ctx context.Context, acct *model.Account, address string) error {
	ctx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()
	defer s.metrics.ObserveStep(stepTransaction, time.Now())

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx database.Txn) error {
		if err := s.quota.CheckAndReserve(ctx, tx, address); err != nil {
			return err
		}

		taken, err := s.accounts.UsernameTaken(ctx, tx, acct.Username)
		if err != nil {
			return fmt.Errorf("query username: %w", err)
		}
		if taken {
			return newError(KindUsernameAlreadyExists, fmt.Errorf("%q is taken", acct.Username))
		}

		s.accounts.Stage(tx, acct)
		return nil
	})
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) && classified.Kind.Business() {
		return classified
	}
	return newError(KindTransactionFailed, err)
}

// compensate deletes the identity created by this saga. It runs detached
// from the request's cancellation and bounded by its own timeout. A failed
// delete is queued for the retrier and never changes the returned error.
func (s *RegistrationService) compensate(ctx context.Context, logger *slog.Logger, req RegisterRequest, handle identity.Handle, reason Kind) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()
	defer s.metrics.ObserveStep(stepCompensation, time.Now())

	event := audit.Event{
		Handle:    handle.String(),
		Address:   req.SourceAddress,
		RequestID: req.RequestID,
		Reason:    reason.String(),
	}

	err := s.identity.Delete(ctx, handle)
	switch {
	case err == nil:
		s.metrics.ObserveCompensation(compensationDeleted)
	case errors.Is(err, identity.ErrNotFound):
		s.metrics.ObserveCompensation(compensationAlreadyGone)
	default:
		cerr := newError(KindCompensationFailed, err)
		s.metrics.ObserveCompensation(compensationFailed)
		logger.ErrorContext(ctx, "compensation failed",
			slog.String("reason", reason.String()),
			slog.String("error", cerr.Error()),
		)
		event.Action = audit.ActionCompensationFailed
		s.emit(ctx, logger, event)

		if s.compensations != nil {
			if qerr := s.compensations.Enqueue(ctx, handle.String(), reason.String()); qerr != nil {
				logger.ErrorContext(ctx, "failed to queue compensation", slog.String("error", qerr.Error()))
			}
		}
		return
	}

	event.Action = audit.ActionRegistrationCompensated
	s.emit(ctx, logger, event)
	logger.InfoContext(ctx, "identity compensated", slog.String("reason", reason.String()))
}

func (s *RegistrationService) finishFailed(ctx context.Context, span trace.Span, logger *slog.Logger, req RegisterRequest, handle identity.Handle, err error) error {
	kind := KindOf(err)
	s.metrics.ObserveRegistration(kind.String())
	span.SetAttributes(attribute.String("registration.outcome", kind.String()))

	attrs := []any{slog.String("kind", kind.String()), slog.String("error", err.Error())}
	if kind.Business() {
		logger.InfoContext(ctx, "registration rejected", attrs...)
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		logger.ErrorContext(ctx, "registration failed", attrs...)
	}

	s.emit(ctx, logger, audit.Event{
		Action:    audit.ActionRegistrationFailed,
		Handle:    handle.String(),
		Address:   req.SourceAddress,
		RequestID: req.RequestID,
		Outcome:   kind.String(),
	})
	return err
}

// emit publishes event detached from the request's cancellation and bounded
// by the audit timeout, so a slow broker delays a response by at most that.
func (s *RegistrationService) emit(ctx context.Context, logger *slog.Logger, event audit.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.auditTimeout)
	defer cancel()

	if err := s.audit.Emit(ctx, event); err != nil {
		logger.WarnContext(ctx, "audit emit failed",
			slog.String("action", event.Action),
			slog.String("error", err.Error()),
		)
	}
}
