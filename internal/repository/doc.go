// Package repository implements the data access layer for the Qola API.
//
// Repositories translate between model types and the stores that hold them.
// Account and quota repositories work on the document store; their staging
// methods take a database.Txn so the registration coordinator can combine
// them in one atomic transaction.
//
// # Transactional Access
//
//	err := store.RunTransaction(ctx, func(ctx context.Context, tx database.Txn) error {
//	    taken, err := accounts.UsernameTaken(ctx, tx, "alice_01")
//	    if err != nil || taken {
//	        return err
//	    }
//	    accounts.Stage(tx, acct)
//	    quotas.StageIncrement(tx, "1.2.3.4")
//	    return nil
//	})
//
// # Pending Compensations
//
// CompensationQueue persists identity handles whose compensating delete
// failed. RedisCompensationQueue keeps them in a sorted set scored by the
// next attempt time; MemoryCompensationQueue serves tests and development.
package repository
