// Package database provides document store connectivity for the Qola API.
//
// Two implementations of DocumentStore are provided:
//
//   - SurrealDB: production store. Transaction reads run immediately; commit
//     renders one BEGIN/COMMIT TRANSACTION script that re-checks every read
//     (by document _version or query cardinality) before applying writes.
//   - MemoryStore: in-process store with the same optimistic semantics, used
//     by tests and by local development without a database.
//
// # Connection Management
//
// Connect to SurrealDB:
//
//	store := database.NewSurrealDB(database.Config{
//	    Host:      "localhost",
//	    Port:      "8000",
//	    Namespace: "qola",
//	    Database:  "main",
//	    User:      "root",
//	    Password:  "secret",
//	})
//	if err := store.Connect(ctx); err != nil { ... }
//
// Migrate applies the embedded schema the registration flow relies on,
// including the unique index on account.username.
//
// # Error Types
//
//   - ErrNotFound: Document does not exist
//   - ErrConflict: Transaction lost an optimistic race
//   - ErrConnection: Database connection failed
//   - ErrQuery: Query failed for any other reason
package database
