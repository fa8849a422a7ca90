//go:build integration

package database_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/qola/api/internal/database"
	"github.com/forgo/qola/api/internal/testing/testdb"
)

func TestSurrealDB_CommitAppliesAllWrites(t *testing.T) {
	tdb := testdb.New(t)
	ctx := testdb.Ctx(t)

	acct := database.Key{Collection: "account", ID: "h1"}
	quota := database.Key{Collection: "ip_registration_count", ID: "1.2.3.4"}

	err := tdb.DB.RunTransaction(ctx, func(ctx context.Context, tx database.Txn) error {
		tx.Set(acct, database.Document{"username": "alice", "created_at": database.ServerTimestamp}, database.SetOptions{})
		tx.Increment(quota, "count", 1)
		return nil
	})
	require.NoError(t, err)

	err = tdb.DB.RunTransaction(ctx, func(ctx context.Context, tx database.Txn) error {
		doc, err := tx.Get(ctx, acct)
		require.NoError(t, err)
		assert.Equal(t, "alice", doc["username"])
		assert.False(t, database.Time(doc["created_at"]).IsZero())

		q, err := tx.Get(ctx, quota)
		require.NoError(t, err)
		assert.EqualValues(t, 1, database.Int(q["count"]))
		return nil
	})
	require.NoError(t, err)
}

func TestSurrealDB_BodyErrorWritesNothing(t *testing.T) {
	tdb := testdb.New(t)
	ctx := testdb.Ctx(t)
	key := database.Key{Collection: "account", ID: "h2"}
	boom := errors.New("boom")

	err := tdb.DB.RunTransaction(ctx, func(ctx context.Context, tx database.Txn) error {
		tx.Set(key, database.Document{"username": "bob"}, database.SetOptions{})
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = tdb.DB.RunTransaction(ctx, func(ctx context.Context, tx database.Txn) error {
		_, err := tx.Get(ctx, key)
		return err
	})
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestSurrealDB_ConcurrentUsernameClaims_OneWinner(t *testing.T) {
	tdb := testdb.New(t)
	ctx := testdb.Ctx(t)

	claim := func(id string) error {
		return tdb.DB.RunTransaction(ctx, func(ctx context.Context, tx database.Txn) error {
			docs, err := tx.QueryEquals(ctx, "account", "username", "carol")
			if err != nil {
				return err
			}
			if len(docs) > 0 {
				return errTaken
			}
			tx.Set(database.Key{Collection: "account", ID: id}, database.Document{"username": "carol"}, database.SetOptions{})
			return nil
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"h3", "h4"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = claim(id)
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, errTaken) || errors.Is(err, database.ErrConflict), "unexpected error %v", err)
	}
	assert.Equal(t, 1, wins)
}

var errTaken = errors.New("username taken")
