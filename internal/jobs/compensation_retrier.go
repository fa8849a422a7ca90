package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/forgo/qola/api/internal/audit"
	"github.com/forgo/qola/api/internal/identity"
	"github.com/forgo/qola/api/internal/metrics"
	"github.com/forgo/qola/api/internal/repository"
)

const (
	defaultRetryInterval   = 30 * time.Second
	defaultMaxAttempts     = 10
	defaultBatchSize       = 50
	defaultDeleteTimeout   = 5 * time.Second
	defaultAuditTimeout    = 2 * time.Second
	maxCompensationBackoff = time.Hour
)

// AccountChecker reports whether an account document exists for a handle.
type AccountChecker interface {
	Exists(ctx context.Context, uid string) (bool, error)
}

// CompensationRetrier drains the pending-compensation queue, deleting
// identities whose compensating delete failed during registration.
type CompensationRetrier struct {
	queue       repository.CompensationQueue
	identity    identity.Store
	accounts    AccountChecker
	audit       audit.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	interval    time.Duration
	maxAttempts int
	batchSize   int
	now         func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// CompensationRetrierConfig holds configuration for the retrier
type CompensationRetrierConfig struct {
	Queue       repository.CompensationQueue
	Identity    identity.Store
	Accounts    AccountChecker
	Audit       audit.Publisher
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Interval    time.Duration
	MaxAttempts int
	BatchSize   int
}

// NewCompensationRetrier creates a new compensation retrier job
func NewCompensationRetrier(cfg CompensationRetrierConfig) *CompensationRetrier {
	r := &CompensationRetrier{
		queue:       cfg.Queue,
		identity:    cfg.Identity,
		accounts:    cfg.Accounts,
		audit:       cfg.Audit,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		batchSize:   cfg.BatchSize,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
	if r.interval <= 0 {
		r.interval = defaultRetryInterval
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.audit == nil {
		r.audit = audit.NopPublisher{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Start begins the retrier job
func (r *CompensationRetrier) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run()
	r.logger.Info("compensation retrier started", slog.Duration("interval", r.interval))
}

// Stop gracefully stops the retrier job
func (r *CompensationRetrier) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("compensation retrier stopped")
}

// IsRunning returns whether the retrier is running
func (r *CompensationRetrier) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *CompensationRetrier) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("compensation retry pass failed", slog.String("error", err.Error()))
			}
			cancel()
		case <-r.stopCh:
			return
		}
	}
}

// RunOnce processes every entry that is due and returns how many were
// attempted.
func (r *CompensationRetrier) RunOnce(ctx context.Context) (int, error) {
	due, err := r.queue.Due(ctx, r.now(), r.batchSize)
	if err != nil {
		return 0, err
	}

	for _, pending := range due {
		if ctx.Err() != nil {
			break
		}
		r.retry(ctx, pending)
	}

	if n, err := r.queue.Len(ctx); err == nil {
		r.metrics.SetPendingCompensations(n)
	}
	return len(due), nil
}

func (r *CompensationRetrier) retry(ctx context.Context, pending repository.PendingCompensation) {
	logger := r.logger.With(
		slog.String("handle", pending.Handle),
		slog.Int("attempts", pending.Attempts),
	)
	event := audit.Event{Handle: pending.Handle, Reason: pending.Reason}

	// An account for this handle means the registration did commit; deleting
	// the identity now would orphan a live account.
	live, err := r.accounts.Exists(ctx, pending.Handle)
	if err != nil {
		logger.Warn("account lookup failed", slog.String("error", err.Error()))
		r.backoff(ctx, logger, pending, event)
		return
	}
	if live {
		r.done(ctx, logger, pending.Handle)
		r.metrics.ObserveCompensation("skipped_live_account")
		event.Action = audit.ActionCompensationSkippedLiveAccount
		r.emit(ctx, logger, event)
		logger.Warn("compensation skipped, account exists")
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, defaultDeleteTimeout)
	err = r.identity.Delete(deleteCtx, identity.Handle(pending.Handle))
	cancel()

	switch {
	case err == nil:
		r.metrics.ObserveCompensation("deleted")
	case errors.Is(err, identity.ErrNotFound):
		r.metrics.ObserveCompensation("already_gone")
	default:
		logger.Warn("compensation retry failed", slog.String("error", err.Error()))
		r.metrics.ObserveCompensation("failed")
		r.backoff(ctx, logger, pending, event)
		return
	}

	r.done(ctx, logger, pending.Handle)
	event.Action = audit.ActionRegistrationCompensated
	r.emit(ctx, logger, event)
	logger.Info("identity compensated on retry")
}

func (r *CompensationRetrier) backoff(ctx context.Context, logger *slog.Logger, pending repository.PendingCompensation, event audit.Event) {
	attempts := pending.Attempts + 1
	if attempts >= r.maxAttempts {
		r.done(ctx, logger, pending.Handle)
		r.metrics.ObserveCompensation("abandoned")
		event.Action = audit.ActionCompensationAbandoned
		r.emit(ctx, logger, event)
		logger.Error("compensation abandoned", slog.Int("max_attempts", r.maxAttempts))
		return
	}

	next := r.now().Add(r.delay(attempts))
	if err := r.queue.Reschedule(ctx, pending.Handle, attempts, next); err != nil {
		logger.Error("failed to reschedule compensation", slog.String("error", err.Error()))
	}
}

// delay doubles per attempt starting at the poll interval.
func (r *CompensationRetrier) delay(attempts int) time.Duration {
	d := r.interval
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxCompensationBackoff {
			return maxCompensationBackoff
		}
	}
	return d
}

func (r *CompensationRetrier) done(ctx context.Context, logger *slog.Logger, handle string) {
	if err := r.queue.Remove(ctx, handle); err != nil {
		logger.Error("failed to remove compensation", slog.String("error", err.Error()))
	}
}

func (r *CompensationRetrier) emit(ctx context.Context, logger *slog.Logger, event audit.Event) {
	ctx, cancel := context.WithTimeout(ctx, defaultAuditTimeout)
	defer cancel()

	if err := r.audit.Emit(ctx, event); err != nil {
		logger.Warn("audit emit failed", slog.String("error", err.Error()))
	}
}
