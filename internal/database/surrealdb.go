package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

//go:embed migrations/*.surql
var migrationFS embed.FS

// conflictMarkers are the error fragments SurrealDB reports when a commit
// loses a race: our own guard THROW, a unique index rejection, or the
// engine's optimistic conflict.
var conflictMarkers = []string{
	ErrConflict.Error(),
	"already contains",
	"read or write conflict",
	"Resource busy",
}

const notExecutedMarker = "not executed due to a failed transaction"

// SurrealDB implements the DocumentStore interface for SurrealDB
type SurrealDB struct {
	db     *surrealdb.DB
	config Config
}

// NewSurrealDB creates a new SurrealDB instance
func NewSurrealDB(cfg Config) *SurrealDB {
	return &SurrealDB{
		config: cfg,
	}
}

// Connect establishes a connection to SurrealDB
func (s *SurrealDB) Connect(ctx context.Context) error {
	endpoint := fmt.Sprintf("ws://%s:%s", s.config.Host, s.config.Port)

	db, err := surrealdb.FromEndpointURLString(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	// Sign in as root user
	_, err = db.SignIn(ctx, &surrealdb.Auth{
		Username: s.config.User,
		Password: s.config.Password,
	})
	if err != nil {
		_ = db.Close(ctx)
		return fmt.Errorf("%w: signin failed: %v", ErrConnection, err)
	}

	if err := db.Use(ctx, s.config.Namespace, s.config.Database); err != nil {
		_ = db.Close(ctx)
		return fmt.Errorf("%w: use failed: %v", ErrConnection, err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SurrealDB) Close() error {
	if s.db != nil {
		return s.db.Close(context.Background())
	}
	return nil
}

// Ping checks the database connection
func (s *SurrealDB) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrConnection
	}
	if _, err := s.db.Version(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// Migrate applies the embedded .surql migrations in lexical order as one
// transaction. Every statement uses IF NOT EXISTS so reapplying is harmless.
func (s *SurrealDB) Migrate(ctx context.Context) error {
	batch, err := migrationBatch(migrationFS)
	if err != nil {
		return err
	}
	if err := batch.Execute(ctx, s); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func migrationBatch(fsys fs.FS) (*AtomicBatch, error) {
	names, err := fs.Glob(fsys, "migrations/*.surql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	batch := NewAtomicBatch()
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		batch.Add(strings.TrimSpace(string(content)), nil)
	}
	return batch, nil
}

// Query executes a query script and returns one {status, result} entry per statement.
func (s *SurrealDB) Query(ctx context.Context, query string, vars map[string]interface{}) ([]interface{}, error) {
	if s.db == nil {
		return nil, ErrConnection
	}

	results, err := surrealdb.Query[interface{}](ctx, s.db, query, vars)
	if err != nil {
		return nil, classifyError(err.Error())
	}

	if results == nil {
		return nil, nil
	}

	output := make([]interface{}, 0, len(*results))
	var failures []string
	for _, r := range *results {
		if r.Status != "OK" {
			msg := "statement failed"
			if r.Error != nil {
				msg = r.Error.Message
			}
			failures = append(failures, msg)
			continue
		}
		output = append(output, map[string]interface{}{
			"status": r.Status,
			"result": r.Result,
		})
	}
	if len(failures) > 0 {
		return nil, classifyFailures(failures)
	}

	return output, nil
}

// Execute runs a query without returning results
func (s *SurrealDB) Execute(ctx context.Context, query string, vars map[string]interface{}) error {
	_, err := s.Query(ctx, query, vars)
	return err
}

// RunTransaction runs fn against a fresh transaction and commits it,
// retrying on ErrConflict.
func (s *SurrealDB) RunTransaction(ctx context.Context, fn TxFunc) error {
	if s.db == nil {
		return ErrConnection
	}
	return runWithRetry(ctx, s.config.maxAttempts(), func(ctx context.Context) error {
		tx := newSurrealTxn(s)
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.commit(ctx)
	})
}

func classifyError(msg string) error {
	for _, marker := range conflictMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s", ErrConflict, msg)
		}
	}
	return fmt.Errorf("%w: %s", ErrQuery, msg)
}

// classifyFailures picks the statement error that caused a failed
// transaction; the other statements only report that they were skipped.
func classifyFailures(msgs []string) error {
	cause := msgs[0]
	for _, msg := range msgs {
		if !strings.Contains(msg, notExecutedMarker) {
			cause = msg
			break
		}
	}
	return classifyError(cause)
}

// surrealTxn records reads as guards and stages writes until commit.
type surrealTxn struct {
	q      Querier
	guards []statement
	writes []write
	err    error
}

type statement struct {
	query string
	vars  map[string]interface{}
}

type write struct {
	statements []statement
}

func newSurrealTxn(q Querier) *surrealTxn {
	return &surrealTxn{q: q}
}

func (t *surrealTxn) Get(ctx context.Context, key Key) (Document, error) {
	if err := ValidateIdentifier(key.Collection); err != nil {
		return nil, err
	}

	vars := map[string]interface{}{"tb": key.Collection, "id": key.ID}
	results, err := t.q.Query(ctx, "SELECT * FROM type::thing($tb, $id)", vars)
	if err != nil {
		return nil, err
	}

	var doc Document
	version := int64(-1)
	if rs := rows(results, 0); len(rs) > 0 {
		if d, ok := decodeDocument(rs[0]); ok {
			doc = d
			version = Int(doc[versionField])
			delete(doc, versionField)
		}
	}

	t.guards = append(t.guards, statement{
		query: `IF ((SELECT VALUE (_version ?? 0) FROM type::thing($tb, $id))[0] ?? -1) != $expected { THROW "` + ErrConflict.Error() + `" }`,
		vars:  map[string]interface{}{"tb": key.Collection, "id": key.ID, "expected": version},
	})

	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (t *surrealTxn) QueryEquals(ctx context.Context, collection, field string, value interface{}) ([]Document, error) {
	if err := ValidateIdentifier(collection); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier(field); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = $value", collection, field)
	results, err := t.q.Query(ctx, query, map[string]interface{}{"value": value})
	if err != nil {
		return nil, err
	}

	rs := rows(results, 0)
	docs := make([]Document, 0, len(rs))
	for _, r := range rs {
		if d, ok := decodeDocument(r); ok {
			delete(d, versionField)
			docs = append(docs, d)
		}
	}

	t.guards = append(t.guards, statement{
		query: fmt.Sprintf(`IF array::len((SELECT VALUE id FROM %s WHERE %s = $value)) != $expected { THROW "%s" }`,
			collection, field, ErrConflict.Error()),
		vars: map[string]interface{}{"value": value, "expected": len(docs)},
	})

	return docs, nil
}

func (t *surrealTxn) Set(key Key, doc Document, opts SetOptions) {
	if err := ValidateIdentifier(key.Collection); err != nil {
		t.fail(err)
		return
	}

	body := make(map[string]interface{}, len(doc))
	var stamped []string
	for k, v := range doc {
		if k == "id" || k == versionField {
			continue
		}
		if _, ok := v.(serverTimestamp); ok {
			if err := ValidateIdentifier(k); err != nil {
				t.fail(err)
				return
			}
			stamped = append(stamped, k)
			continue
		}
		body[k] = v
	}
	sort.Strings(stamped)

	mode := "CONTENT"
	if opts.Merge {
		mode = "MERGE"
	}

	assignments := []string{"_version = $prev + 1"}
	for _, f := range stamped {
		assignments = append(assignments, f+" = time::now()")
	}

	vars := map[string]interface{}{"tb": key.Collection, "id": key.ID}
	t.writes = append(t.writes, write{statements: []statement{
		{query: "LET $prev = (SELECT VALUE (_version ?? 0) FROM type::thing($tb, $id))[0] ?? 0", vars: vars},
		{query: "UPSERT type::thing($tb, $id) " + mode + " $doc RETURN NONE", vars: map[string]interface{}{"tb": key.Collection, "id": key.ID, "doc": body}},
		{query: "UPDATE type::thing($tb, $id) SET " + strings.Join(assignments, ", ") + " RETURN NONE", vars: vars},
	}})
}

func (t *surrealTxn) Increment(key Key, field string, delta int64) {
	if err := ValidateIdentifier(key.Collection); err != nil {
		t.fail(err)
		return
	}
	if err := ValidateIdentifier(field); err != nil {
		t.fail(err)
		return
	}

	query := fmt.Sprintf("UPSERT type::thing($tb, $id) SET %s = (%s ?? 0) + $delta, _version = (_version ?? 0) + 1 RETURN NONE", field, field)
	t.writes = append(t.writes, write{statements: []statement{
		{query: query, vars: map[string]interface{}{"tb": key.Collection, "id": key.ID, "delta": delta}},
	}})
}

func (t *surrealTxn) fail(err error) {
	if t.err == nil {
		t.err = err
	}
}

// script renders guards followed by writes into one transaction script.
func (t *surrealTxn) script() *TxBuilder {
	tb := NewTxBuilder()
	for _, g := range t.guards {
		tb.Add(g.query, g.vars)
	}
	for _, w := range t.writes {
		for _, stmt := range w.statements {
			tb.Add(stmt.query, stmt.vars)
		}
	}
	return tb
}

func (t *surrealTxn) commit(ctx context.Context) error {
	if t.err != nil {
		return t.err
	}
	if len(t.writes) == 0 {
		return nil
	}

	if _, err := ExecuteTransaction(ctx, t.q, t.script()); err != nil {
		if errors.Is(err, ErrConflict) {
			return err
		}
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}
