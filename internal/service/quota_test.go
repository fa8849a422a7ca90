package service

import (
	"context"
	"errors"
	"testing"

	"github.com/forgo/qola/api/internal/database"
	"github.com/forgo/qola/api/internal/model"
	"github.com/forgo/qola/api/internal/repository"
)

func runTx(t *testing.T, store database.DocumentStore, fn database.TxFunc) error {
	t.Helper()
	return store.RunTransaction(context.Background(), fn)
}

func TestQuotaTracker_ReservesUpToCeiling(t *testing.T) {
	store := database.NewMemoryStore()
	tracker := NewQuotaTracker(repository.NewQuotaRepository(store), 2)
	key := database.Key{Collection: model.QuotaCollection, ID: "1.2.3.4"}

	for i := 0; i < 2; i++ {
		if err := runTx(t, store, func(ctx context.Context, tx database.Txn) error {
			return tracker.CheckAndReserve(ctx, tx, "1.2.3.4")
		}); err != nil {
			t.Fatalf("reserve %d: %v", i+1, err)
		}
	}

	err := runTx(t, store, func(ctx context.Context, tx database.Txn) error {
		return tracker.CheckAndReserve(ctx, tx, "1.2.3.4")
	})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	doc, ok := store.Snapshot(key)
	if !ok {
		t.Fatal("counter missing")
	}
	if got := database.Int(doc[model.FieldQuotaCount]); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
}

func TestQuotaTracker_EmptyAddressIsUnlimited(t *testing.T) {
	store := database.NewMemoryStore()
	tracker := NewQuotaTracker(repository.NewQuotaRepository(store), 1)

	for i := 0; i < 5; i++ {
		if err := runTx(t, store, func(ctx context.Context, tx database.Txn) error {
			return tracker.CheckAndReserve(ctx, tx, "")
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if n := store.Count(model.QuotaCollection); n != 0 {
		t.Errorf("expected no counters, got %d", n)
	}
}

func TestQuotaTracker_DefaultCeiling(t *testing.T) {
	tracker := NewQuotaTracker(nil, 0)
	if tracker.Ceiling() != DefaultQuotaCeiling {
		t.Errorf("Ceiling() = %d", tracker.Ceiling())
	}
}
