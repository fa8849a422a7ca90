// Package testdb provides real backing stores for integration tests.
//
// All helpers are compiled only with the integration build tag:
//
//	go test -tags integration ./...
//
// # Document store
//
//	tdb := testdb.New(t) // migrated SurrealDB in a fresh namespace
//
// # Identity store
//
//	db := testdb.NewPostgres(t) // migrated, identities table emptied
//
// # Compensation queue
//
//	client := testdb.NewRedis(t)
//	queue := repository.NewRedisCompensationQueue(client, testdb.UniquePrefix())
//
// Containers are started once per test binary and reaped by Ryuk.
package testdb
