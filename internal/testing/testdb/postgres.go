//go:build integration

package testdb

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/forgo/qola/api/internal/identity"
)

const postgresImage = "postgres:16-alpine"

var (
	postgresOnce sync.Once
	postgresDSN  string
	postgresErr  error
)

// NewPostgres returns a migrated identity database with the identities
// table emptied. Tests using it must not run in parallel with each other.
func NewPostgres(t *testing.T) *sql.DB {
	t.Helper()

	postgresOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		container, err := tcpostgres.Run(ctx, postgresImage,
			tcpostgres.WithDatabase("qola_identity"),
			tcpostgres.WithUsername("qola"),
			tcpostgres.WithPassword("qola"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			postgresErr = err
			return
		}
		postgresDSN, postgresErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	if postgresErr != nil {
		t.Fatalf("testdb: postgres container: %v", postgresErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := identity.OpenPostgres(ctx, postgresDSN)
	if err != nil {
		t.Fatalf("testdb: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := identity.Migrate(ctx, db); err != nil {
		t.Fatalf("testdb: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE identities`); err != nil {
		t.Fatalf("testdb: truncate identities: %v", err)
	}
	return db
}
