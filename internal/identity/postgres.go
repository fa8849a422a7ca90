package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/forgo/qola/api/internal/identity/migrations"
)

const uniqueViolation = "23505"

// PostgresConfig configures PostgresStore.
type PostgresConfig struct {
	BcryptCost int
}

// PostgresStore keeps identities in a Postgres table.
type PostgresStore struct {
	db         *sql.DB
	bcryptCost int
	newHandle  func() string
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB, cfg PostgresConfig) *PostgresStore {
	return &PostgresStore{
		db:         db,
		bcryptCost: cfg.BcryptCost,
		newHandle:  uuid.NewString,
	}
}

// OpenPostgres opens a pgx-backed *sql.DB and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open identity database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping identity database: %w", err)
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate identity schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (Handle, error) {
	query := `SELECT id FROM identities WHERE email = $1`

	var id string
	err := s.db.QueryRowContext(ctx, query, NormalizeEmail(email)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return Handle(id), nil
}

func (s *PostgresStore) Create(ctx context.Context, creds Credentials) (Handle, error) {
	email := NormalizeEmail(creds.Email)
	if err := checkEmail(email); err != nil {
		return "", err
	}
	if err := checkPassword(creds.Password); err != nil {
		return "", err
	}

	hash, err := hashPassword(creds.Password, s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	query := `INSERT INTO identities (id, email, password_hash, display_name)
		VALUES ($1, $2, $3, $4)`

	id := s.newHandle()
	if _, err := s.db.ExecContext(ctx, query, id, email, hash, creds.DisplayName); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", ErrEmailExists
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return Handle(id), nil
}

func (s *PostgresStore) Delete(ctx context.Context, handle Handle) error {
	query := `DELETE FROM identities WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, string(handle))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
