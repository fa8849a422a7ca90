// Package audit publishes registration lifecycle events.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Registration lifecycle actions.
const (
	ActionRegistrationSucceeded          = "registration.succeeded"
	ActionRegistrationFailed             = "registration.failed"
	ActionRegistrationCompensated        = "registration.compensated"
	ActionCompensationFailed             = "registration.compensation_failed"
	ActionCompensationAbandoned          = "registration.compensation_abandoned"
	ActionCompensationSkippedLiveAccount = "registration.compensation_skipped"
)

// Event is one audit record. Emails and passwords never appear here; the
// identity handle is the correlation key.
type Event struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Handle    string    `json:"handle,omitempty"`
	Address   string    `json:"address,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Publisher emits audit events.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

func encode(event Event) ([]byte, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return json.Marshal(event)
}

// LogPublisher writes events to a structured logger. Used when no broker is
// configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher that logs at info level.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Emit(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "audit event",
		slog.String("action", event.Action),
		slog.String("handle", event.Handle),
		slog.String("address", event.Address),
		slog.String("request_id", event.RequestID),
		slog.String("outcome", event.Outcome),
		slog.String("reason", event.Reason),
	)
	return nil
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) error { return nil }
