package service

import (
	"context"
	"fmt"

	"github.com/forgo/qola/api/internal/database"
)

// DefaultQuotaCeiling is the number of accounts one source address may create.
const DefaultQuotaCeiling = 3

// QuotaRepository defines the counter storage the tracker needs
type QuotaRepository interface {
	CountTx(ctx context.Context, tx database.Txn, address string) (int64, error)
	StageIncrement(tx database.Txn, address string)
}

// QuotaTracker enforces the per-address registration ceiling inside a
// document transaction.
type QuotaTracker struct {
	repo    QuotaRepository
	ceiling int64
}

// NewQuotaTracker creates a tracker. A ceiling <= 0 uses DefaultQuotaCeiling.
func NewQuotaTracker(repo QuotaRepository, ceiling int) *QuotaTracker {
	if ceiling <= 0 {
		ceiling = DefaultQuotaCeiling
	}
	return &QuotaTracker{repo: repo, ceiling: int64(ceiling)}
}

// Ceiling returns the configured limit.
func (t *QuotaTracker) Ceiling() int {
	return int(t.ceiling)
}

// CheckAndReserve reads the counter for address and, when it is below the
// ceiling, stages an increment in tx. At the ceiling it returns
// ErrQuotaExceeded and stages nothing. An empty address is unlimited.
func (t *QuotaTracker) CheckAndReserve(ctx context.Context, tx database.Txn, address string) error {
	if address == "" {
		return nil
	}

	count, err := t.repo.CountTx(ctx, tx, address)
	if err != nil {
		return fmt.Errorf("read quota: %w", err)
	}
	if count >= t.ceiling {
		return newError(KindQuotaExceeded, fmt.Errorf("%s has %d registrations", address, count))
	}

	t.repo.StageIncrement(tx, address)
	return nil
}
