// Package database provides the document store abstraction layer for Qola.
//
// This package defines the DocumentStore interface: keyed documents grouped
// in collections, equality queries, and multi-document atomic transactions
// with optimistic concurrency. Business code runs a transaction body through
// RunTransaction and never sees the underlying query language.
//
// # Transaction Semantics
//
// Reads inside a transaction execute immediately and are remembered. Writes
// (Set, Increment) are staged in memory. At commit the store re-validates
// every read; if any document or query result changed since it was read the
// commit fails with ErrConflict and nothing is written. Otherwise all staged
// writes are applied atomically.
//
// RunTransaction retries the body on ErrConflict up to MaxAttempts times. The
// body must therefore be deterministic given the documents it reads. An error
// returned by the body aborts the transaction without writing and is passed
// back unchanged, so callers can match their own sentinel errors with
// errors.Is.
//
// # Error Handling
//
// Standard errors are defined for common failure cases:
//   - ErrNotFound: Document does not exist
//   - ErrConflict: Optimistic validation or unique index failure at commit
//   - ErrConnection: Store connection issues
//   - ErrQuery: Query execution failures
//
// # Usage Example
//
//	err := store.RunTransaction(ctx, func(ctx context.Context, tx database.Txn) error {
//	    doc, err := tx.Get(ctx, database.Key{Collection: "counter", ID: "a"})
//	    if err != nil && !errors.Is(err, database.ErrNotFound) {
//	        return err
//	    }
//	    tx.Increment(database.Key{Collection: "counter", ID: "a"}, "count", 1)
//	    return nil
//	})
package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Standard errors for document store operations.
// Use errors.Is() to check these error types in calling code.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a concurrent transaction invalidated this one's
	// reads, or a unique index rejected a write.
	ErrConflict = errors.New("transaction conflict")

	// ErrConnection indicates a failure to connect to or communicate with the store.
	ErrConnection = errors.New("database connection error")

	// ErrQuery indicates a query execution failure (syntax error, invalid reference, etc.).
	ErrQuery = errors.New("query error")

	// ErrInvalidIdentifier indicates a collection or field name that cannot be
	// used in a query.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// DefaultMaxAttempts is used when Config.MaxAttempts is not positive.
const DefaultMaxAttempts = 3

// Key addresses one document.
type Key struct {
	Collection string
	ID         string
}

func (k Key) String() string {
	return k.Collection + ":" + k.ID
}

// Document is a schemaless document body.
type Document map[string]interface{}

type serverTimestamp struct{}

// ServerTimestamp placed as a field value in Set is replaced by the store's
// commit time. Commit times are monotonic per store.
var ServerTimestamp = serverTimestamp{}

// SetOptions controls how Set combines with an existing document.
type SetOptions struct {
	// Merge keeps fields of an existing document that the new body omits.
	Merge bool
}

// Txn is the view of the store inside RunTransaction.
type Txn interface {
	// Get reads one document. Returns ErrNotFound when absent.
	Get(ctx context.Context, key Key) (Document, error)

	// QueryEquals returns all documents in collection whose field equals value.
	QueryEquals(ctx context.Context, collection, field string, value interface{}) ([]Document, error)

	// Set stages a write of doc under key.
	Set(key Key, doc Document, opts SetOptions)

	// Increment stages an atomic numeric increment. An absent document or
	// field counts as zero.
	Increment(key Key, field string, delta int64)
}

// TxFunc is a transaction body.
type TxFunc func(ctx context.Context, tx Txn) error

// DocumentStore defines the interface for document store operations
type DocumentStore interface {
	// Connection management
	Connect(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error

	// RunTransaction executes fn and commits its staged writes atomically.
	RunTransaction(ctx context.Context, fn TxFunc) error
}

// Config holds database configuration
type Config struct {
	Host      string
	Port      string
	User      string
	Password  string
	Namespace string
	Database  string

	// MaxAttempts bounds RunTransaction retries on ErrConflict.
	MaxAttempts int
}

func (c Config) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateIdentifier reports whether name can be used as a collection or
// field name.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// attemptFunc runs one transaction attempt.
type attemptFunc func(ctx context.Context) error

// runWithRetry retries attempt while it fails with ErrConflict.
func runWithRetry(ctx context.Context, maxAttempts int, attempt attemptFunc) error {
	var err error
	for i := 0; i < maxAttempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}
		err = attempt(ctx)
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
		if i < maxAttempts-1 {
			backoff(ctx, i)
		}
	}
	return fmt.Errorf("after %d attempts: %w", maxAttempts, err)
}

func backoff(ctx context.Context, attempt int) {
	d := time.Duration(attempt+1) * 5 * time.Millisecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
