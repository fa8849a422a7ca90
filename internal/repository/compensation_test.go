package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCompensationQueue_Lifecycle(t *testing.T) {
	t.Parallel()
	q := NewMemoryCompensationQueue()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return base }
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "h-1", "username already in use"))
	require.NoError(t, q.Enqueue(ctx, "h-1", "duplicate enqueue keeps one entry"))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	due, err := q.Due(ctx, base, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "h-1", due[0].Handle)
	assert.Equal(t, 0, due[0].Attempts)

	require.NoError(t, q.Reschedule(ctx, "h-1", 1, base.Add(time.Minute)))
	due, err = q.Due(ctx, base, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = q.Due(ctx, base.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)

	require.NoError(t, q.Remove(ctx, "h-1"))
	n, _ = q.Len(ctx)
	assert.Equal(t, int64(0), n)
}

func TestMemoryCompensationQueue_RescheduleUnknown(t *testing.T) {
	t.Parallel()
	q := NewMemoryCompensationQueue()

	err := q.Reschedule(context.Background(), "ghost", 1, time.Now())
	assert.ErrorIs(t, err, ErrCompensationNotQueued)
}

func TestMemoryCompensationQueue_DueOrderAndLimit(t *testing.T) {
	t.Parallel()
	q := NewMemoryCompensationQueue()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i, h := range []string{"c", "a", "b"} {
		at := base.Add(time.Duration(i) * time.Second)
		q.now = func() time.Time { return at }
		require.NoError(t, q.Enqueue(ctx, h, "r"))
	}

	due, err := q.Due(ctx, base.Add(time.Hour), 2)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "c", due[0].Handle)
	assert.Equal(t, "a", due[1].Handle)
}
