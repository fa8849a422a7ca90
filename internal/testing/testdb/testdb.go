//go:build integration

package testdb

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/forgo/qola/api/internal/database"
)

const surrealImage = "surrealdb/surrealdb:v2.1.4"

// TestDB provides an isolated document store for testing.
// Each TestDB instance gets a unique namespace to ensure test isolation.
type TestDB struct {
	DB        *database.SurrealDB
	Namespace string
	Database  string
}

var (
	surrealOnce sync.Once
	surrealCfg  database.Config
	surrealErr  error

	// counterMu protects the namespace counter
	counterMu sync.Mutex
	counter   int64
)

// surrealConfig returns the connection settings of a SurrealDB shared by
// the whole test binary, starting a container on first use.
func surrealConfig() (database.Config, error) {
	surrealOnce.Do(func() {
		if host := os.Getenv("TEST_DB_HOST"); host != "" {
			surrealCfg = database.Config{
				Host:     host,
				Port:     envOr("TEST_DB_PORT", "8000"),
				User:     envOr("TEST_DB_USER", "root"),
				Password: envOr("TEST_DB_PASSWORD", "root"),
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        surrealImage,
				ExposedPorts: []string{"8000/tcp"},
				Cmd:          []string{"start", "--user", "root", "--pass", "root", "memory"},
				WaitingFor:   wait.ForListeningPort("8000/tcp").WithStartupTimeout(time.Minute),
			},
			Started: true,
		})
		if err != nil {
			surrealErr = fmt.Errorf("start surrealdb container: %w", err)
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			surrealErr = fmt.Errorf("surrealdb host: %w", err)
			return
		}
		port, err := container.MappedPort(ctx, "8000/tcp")
		if err != nil {
			surrealErr = fmt.Errorf("surrealdb port: %w", err)
			return
		}

		// Ryuk removes the container when the test binary exits.
		surrealCfg = database.Config{
			Host:     host,
			Port:     port.Port(),
			User:     "root",
			Password: "root",
		}
	})
	return surrealCfg, surrealErr
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// uniqueNamespace generates a unique namespace for test isolation
func uniqueNamespace() string {
	counterMu.Lock()
	defer counterMu.Unlock()
	counter++
	return fmt.Sprintf("test_%d_%d", time.Now().UnixNano(), counter)
}

// New connects to the shared SurrealDB in a fresh namespace and applies the
// embedded migrations. The namespace is removed when the test ends.
func New(t *testing.T) *TestDB {
	t.Helper()

	cfg, err := surrealConfig()
	if err != nil {
		t.Fatalf("testdb: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg.Namespace = uniqueNamespace()
	cfg.Database = "test"

	db := database.NewSurrealDB(cfg)
	if err := db.Connect(ctx); err != nil {
		t.Fatalf("testdb: failed to connect: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("testdb: migration failed: %v", err)
	}

	tdb := &TestDB{
		DB:        db,
		Namespace: cfg.Namespace,
		Database:  cfg.Database,
	}
	t.Cleanup(tdb.Close)
	return tdb
}

// Close cleans up the test database by removing the namespace.
func (tdb *TestDB) Close() {
	if tdb.DB == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = tdb.DB.Execute(ctx, fmt.Sprintf("REMOVE NAMESPACE %s", tdb.Namespace), nil)
	_ = tdb.DB.Close()
	tdb.DB = nil
}

// Ctx returns a context with a reasonable timeout for test operations.
func Ctx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
