package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/forgo/qola/api/internal/identity"
	"github.com/forgo/qola/api/internal/identity/mocks"
	"github.com/forgo/qola/api/internal/metrics"
	"github.com/forgo/qola/api/internal/repository"
)

type stubAccounts struct {
	live map[string]bool
	err  error
}

func (s stubAccounts) Exists(ctx context.Context, uid string) (bool, error) {
	return s.live[uid], s.err
}

func newTestRetrier(t *testing.T, ids identity.Store, accounts AccountChecker, queue repository.CompensationQueue) (*CompensationRetrier, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	r := NewCompensationRetrier(CompensationRetrierConfig{
		Queue:       queue,
		Identity:    ids,
		Accounts:    accounts,
		Metrics:     m,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Interval:    time.Second,
		MaxAttempts: 3,
	})
	// Everything enqueued during the test is due.
	r.now = func() time.Time { return time.Now().Add(time.Minute) }
	return r, m
}

func TestCompensationRetrier_DeletesPendingIdentity(t *testing.T) {
	ctrl := gomock.NewController(t)
	ids := mocks.NewMockStore(ctrl)
	queue := repository.NewMemoryCompensationQueue()
	ctx := context.Background()
	require.NoError(t, queue.Enqueue(ctx, "h-1", "transaction_failed"))

	ids.EXPECT().Delete(gomock.Any(), identity.Handle("h-1")).Return(nil)

	r, m := newTestRetrier(t, ids, stubAccounts{}, queue)
	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	left, _ := queue.Len(ctx)
	assert.Zero(t, left)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compensations.WithLabelValues("deleted")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PendingCompensations))
}

func TestCompensationRetrier_NotFoundCountsAsDone(t *testing.T) {
	ctrl := gomock.NewController(t)
	ids := mocks.NewMockStore(ctrl)
	queue := repository.NewMemoryCompensationQueue()
	ctx := context.Background()
	require.NoError(t, queue.Enqueue(ctx, "h-1", "quota_exceeded"))

	ids.EXPECT().Delete(gomock.Any(), identity.Handle("h-1")).Return(identity.ErrNotFound)

	r, _ := newTestRetrier(t, ids, stubAccounts{}, queue)
	_, err := r.RunOnce(ctx)
	require.NoError(t, err)

	left, _ := queue.Len(ctx)
	assert.Zero(t, left)
}

func TestCompensationRetrier_SkipsLiveAccount(t *testing.T) {
	ctrl := gomock.NewController(t)
	ids := mocks.NewMockStore(ctrl)
	queue := repository.NewMemoryCompensationQueue()
	ctx := context.Background()
	require.NoError(t, queue.Enqueue(ctx, "h-live", "transaction_failed"))

	// No Delete expected.
	r, m := newTestRetrier(t, ids, stubAccounts{live: map[string]bool{"h-live": true}}, queue)
	_, err := r.RunOnce(ctx)
	require.NoError(t, err)

	left, _ := queue.Len(ctx)
	assert.Zero(t, left)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compensations.WithLabelValues("skipped_live_account")))
}

func TestCompensationRetrier_BacksOffThenAbandons(t *testing.T) {
	ctrl := gomock.NewController(t)
	ids := mocks.NewMockStore(ctrl)
	queue := repository.NewMemoryCompensationQueue()
	ctx := context.Background()
	require.NoError(t, queue.Enqueue(ctx, "h-1", "transaction_failed"))

	ids.EXPECT().Delete(gomock.Any(), identity.Handle("h-1")).Return(errors.New("provider down")).Times(3)

	r, m := newTestRetrier(t, ids, stubAccounts{}, queue)
	far := time.Now().Add(24 * time.Hour)
	r.now = func() time.Time { return far }

	for i := 1; i <= 2; i++ {
		_, err := r.RunOnce(ctx)
		require.NoError(t, err)

		due, err := queue.Due(ctx, far.Add(48*time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, i, due[0].Attempts)
		assert.True(t, due[0].NextAttempt.After(far))

		far = far.Add(48 * time.Hour)
	}

	_, err := r.RunOnce(ctx)
	require.NoError(t, err)

	left, _ := queue.Len(ctx)
	assert.Zero(t, left, "entry must be abandoned after max attempts")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compensations.WithLabelValues("abandoned")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Compensations.WithLabelValues("failed")))
}

func TestCompensationRetrier_AccountLookupErrorReschedules(t *testing.T) {
	ctrl := gomock.NewController(t)
	ids := mocks.NewMockStore(ctrl)
	queue := repository.NewMemoryCompensationQueue()
	ctx := context.Background()
	require.NoError(t, queue.Enqueue(ctx, "h-1", "transaction_failed"))

	r, _ := newTestRetrier(t, ids, stubAccounts{err: errors.New("db down")}, queue)
	_, err := r.RunOnce(ctx)
	require.NoError(t, err)

	left, _ := queue.Len(ctx)
	assert.Equal(t, int64(1), left)
}

func TestCompensationRetrier_Delay(t *testing.T) {
	r := NewCompensationRetrier(CompensationRetrierConfig{Interval: time.Minute})
	assert.Equal(t, time.Minute, r.delay(1))
	assert.Equal(t, 2*time.Minute, r.delay(2))
	assert.Equal(t, 8*time.Minute, r.delay(4))
	assert.Equal(t, maxCompensationBackoff, r.delay(20))
}

func TestCompensationRetrier_StartStop(t *testing.T) {
	r := NewCompensationRetrier(CompensationRetrierConfig{
		Queue:  repository.NewMemoryCompensationQueue(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	r.Start()
	r.Start()
	assert.True(t, r.IsRunning())
	r.Stop()
	r.Stop()
	assert.False(t, r.IsRunning())
}
