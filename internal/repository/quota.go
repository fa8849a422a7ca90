package repository

import (
	"context"
	"errors"

	"github.com/forgo/qola/api/internal/database"
	"github.com/forgo/qola/api/internal/model"
)

// QuotaRepository handles per-address registration counters
type QuotaRepository struct {
	store database.DocumentStore
}

// NewQuotaRepository creates a new quota repository
func NewQuotaRepository(store database.DocumentStore) *QuotaRepository {
	return &QuotaRepository{store: store}
}

func quotaKey(address string) database.Key {
	return database.Key{Collection: model.QuotaCollection, ID: address}
}

// CountTx reads the counter for address inside tx. An absent counter is zero.
func (r *QuotaRepository) CountTx(ctx context.Context, tx database.Txn, address string) (int64, error) {
	doc, err := tx.Get(ctx, quotaKey(address))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return database.Int(doc[model.FieldQuotaCount]), nil
}

// StageIncrement adds one to the counter for address when tx commits.
func (r *QuotaRepository) StageIncrement(tx database.Txn, address string) {
	tx.Increment(quotaKey(address), model.FieldQuotaCount, 1)
}

// Get reads the counter outside a registration.
func (r *QuotaRepository) Get(ctx context.Context, address string) (*model.QuotaCounter, error) {
	var count int64
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx database.Txn) error {
		var err error
		count, err = r.CountTx(ctx, tx, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &model.QuotaCounter{Address: address, Count: int(count)}, nil
}
