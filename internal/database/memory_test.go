package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var counterKey = Key{Collection: "counter", ID: "a"}

func TestMemoryStore_GetMissing(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()

	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx Txn) error {
		_, err := tx.Get(ctx, counterKey)
		return err
	})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_IncrementCreatesDocument(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := store.RunTransaction(ctx, func(ctx context.Context, tx Txn) error {
			tx.Increment(counterKey, "count", 1)
			return nil
		})
		require.NoError(t, err)
	}

	doc, ok := store.Snapshot(counterKey)
	require.True(t, ok)
	assert.Equal(t, int64(3), Int(doc["count"]))
}

func TestMemoryStore_BodyErrorWritesNothing(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	sentinel := errors.New("abort")

	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx Txn) error {
		tx.Set(Key{Collection: "account", ID: "u1"}, Document{"username": "alice"}, SetOptions{})
		tx.Increment(counterKey, "count", 1)
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 0, store.Count("account"))
	assert.Equal(t, 0, store.Count("counter"))
}

func TestMemoryStore_ServerTimestampIsMonotonic(t *testing.T) {
	t.Parallel()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithMemoryClock(func() time.Time { return fixed }))
	ctx := context.Background()

	for _, id := range []string{"u1", "u2"} {
		id := id
		err := store.RunTransaction(ctx, func(ctx context.Context, tx Txn) error {
			tx.Set(Key{Collection: "account", ID: id}, Document{"created_at": ServerTimestamp}, SetOptions{})
			return nil
		})
		require.NoError(t, err)
	}

	first, _ := store.Snapshot(Key{Collection: "account", ID: "u1"})
	second, _ := store.Snapshot(Key{Collection: "account", ID: "u2"})
	t1 := Time(first["created_at"])
	t2 := Time(second["created_at"])
	assert.Equal(t, fixed, t1)
	assert.True(t, t2.After(t1), "expected %v after %v", t2, t1)
}

func TestMemoryStore_MergeKeepsExistingFields(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	ctx := context.Background()
	key := Key{Collection: "account", ID: "u1"}

	require.NoError(t, store.RunTransaction(ctx, func(ctx context.Context, tx Txn) error {
		tx.Set(key, Document{"username": "alice", "bio": ""}, SetOptions{})
		return nil
	}))
	require.NoError(t, store.RunTransaction(ctx, func(ctx context.Context, tx Txn) error {
		tx.Set(key, Document{"bio": "hi"}, SetOptions{Merge: true})
		return nil
	}))

	doc, _ := store.Snapshot(key)
	assert.Equal(t, "alice", doc["username"])
	assert.Equal(t, "hi", doc["bio"])
}

func TestMemoryStore_ConflictingReadRetries(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	ctx := context.Background()

	fired := false
	store.beforeCommit = func() {
		if fired {
			return
		}
		fired = true
		// Competing writer lands between our read and our commit.
		err := store.RunTransaction(ctx, func(ctx context.Context, tx Txn) error {
			tx.Increment(counterKey, "count", 1)
			return nil
		})
		require.NoError(t, err)
	}

	attempts := 0
	var seen int64
	err := store.RunTransaction(ctx, func(ctx context.Context, tx Txn) error {
		attempts++
		doc, err := tx.Get(ctx, counterKey)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		seen = Int(doc["count"])
		tx.Increment(counterKey, "count", 1)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, int64(1), seen)
	doc, _ := store.Snapshot(counterKey)
	assert.Equal(t, int64(2), Int(doc["count"]))
}

func TestMemoryStore_QueryConflictDetected(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore(WithMemoryMaxAttempts(1))
	ctx := context.Background()

	store.beforeCommit = func() {
		store.beforeCommit = nil
		require.NoError(t, store.RunTransaction(ctx, func(ctx context.Context, tx Txn) error {
			tx.Set(Key{Collection: "account", ID: "other"}, Document{"username": "alice"}, SetOptions{})
			return nil
		}))
	}

	err := store.RunTransaction(ctx, func(ctx context.Context, tx Txn) error {
		docs, err := tx.QueryEquals(ctx, "account", "username", "alice")
		if err != nil {
			return err
		}
		if len(docs) > 0 {
			return errors.New("taken")
		}
		tx.Set(Key{Collection: "account", ID: "mine"}, Document{"username": "alice"}, SetOptions{})
		return nil
	})

	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, store.Count("account"))
}

func TestMemoryStore_InvalidIdentifier(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()

	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx Txn) error {
		tx.Increment(counterKey, "count; DROP", 1)
		return nil
	})

	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestMemoryStore_ClosedStore(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Ping(context.Background()), ErrConnection)
	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx Txn) error {
		_, err := tx.Get(ctx, counterKey)
		return err
	})
	assert.ErrorIs(t, err, ErrConnection)
}

func TestRunWithRetry_StopsOnCanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := runWithRetry(ctx, 3, func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestRunWithRetry_ExhaustsAttempts(t *testing.T) {
	t.Parallel()
	calls := 0
	err := runWithRetry(context.Background(), 3, func(ctx context.Context) error {
		calls++
		return ErrConflict
	})

	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 3, calls)
}
