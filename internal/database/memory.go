package database

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process DocumentStore with the same optimistic
// transaction semantics as SurrealDB. Reads are validated against document
// versions at commit.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]*memRecord
	maxAttempts int
	now         func() time.Time
	lastCommit  time.Time
	closed      bool

	// beforeCommit, when set, runs inside commit before validation.
	// Tests use it to interleave a competing transaction.
	beforeCommit func()
}

type memRecord struct {
	doc     Document
	version int64
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the commit clock.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		m.now = now
	}
}

// WithMemoryMaxAttempts bounds conflict retries.
func WithMemoryMaxAttempts(n int) MemoryOption {
	return func(m *MemoryStore) {
		m.maxAttempts = n
	}
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		collections: make(map[string]map[string]*memRecord),
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = DefaultMaxAttempts
	}
	return m
}

func (m *MemoryStore) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrConnection
	}
	return nil
}

func (m *MemoryStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	return runWithRetry(ctx, m.maxAttempts, func(ctx context.Context) error {
		tx := &memTxn{store: m, reads: make(map[Key]int64)}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.commit()
	})
}

// Snapshot returns a copy of one document outside any transaction.
func (m *MemoryStore) Snapshot(key Key) (Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.collections[key.Collection][key.ID]
	if !ok {
		return nil, false
	}
	return copyDocument(rec.doc), true
}

// Count returns the number of documents in a collection.
func (m *MemoryStore) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collections[collection])
}

func (m *MemoryStore) versionOf(key Key) int64 {
	rec, ok := m.collections[key.Collection][key.ID]
	if !ok {
		return -1
	}
	return rec.version
}

func (m *MemoryStore) matching(collection, field string, value interface{}) []string {
	var ids []string
	for id, rec := range m.collections[collection] {
		if reflect.DeepEqual(rec.doc[field], value) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// commitTime is strictly increasing even if the wall clock is not.
func (m *MemoryStore) commitTime() time.Time {
	t := m.now().UTC()
	if !t.After(m.lastCommit) {
		t = m.lastCommit.Add(time.Microsecond)
	}
	m.lastCommit = t
	return t
}

type memQuery struct {
	collection string
	field      string
	value      interface{}
	ids        []string
}

type memWrite struct {
	key   Key
	doc   Document
	merge bool
	field string
	delta int64
	incr  bool
}

type memTxn struct {
	store   *MemoryStore
	reads   map[Key]int64
	queries []memQuery
	writes  []memWrite
	err     error
}

func (t *memTxn) Get(ctx context.Context, key Key) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier(key.Collection); err != nil {
		return nil, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.closed {
		return nil, ErrConnection
	}

	rec, ok := t.store.collections[key.Collection][key.ID]
	if !ok {
		t.reads[key] = -1
		return nil, ErrNotFound
	}
	t.reads[key] = rec.version
	return copyDocument(rec.doc), nil
}

func (t *memTxn) QueryEquals(ctx context.Context, collection, field string, value interface{}) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier(collection); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier(field); err != nil {
		return nil, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.closed {
		return nil, ErrConnection
	}

	ids := t.store.matching(collection, field, value)
	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, copyDocument(t.store.collections[collection][id].doc))
	}
	t.queries = append(t.queries, memQuery{collection: collection, field: field, value: value, ids: ids})
	return docs, nil
}

func (t *memTxn) Set(key Key, doc Document, opts SetOptions) {
	if err := ValidateIdentifier(key.Collection); err != nil {
		t.fail(err)
		return
	}
	t.writes = append(t.writes, memWrite{key: key, doc: copyDocument(doc), merge: opts.Merge})
}

func (t *memTxn) Increment(key Key, field string, delta int64) {
	if err := ValidateIdentifier(key.Collection); err != nil {
		t.fail(err)
		return
	}
	if err := ValidateIdentifier(field); err != nil {
		t.fail(err)
		return
	}
	t.writes = append(t.writes, memWrite{key: key, field: field, delta: delta, incr: true})
}

func (t *memTxn) fail(err error) {
	if t.err == nil {
		t.err = err
	}
}

func (t *memTxn) commit() error {
	if t.err != nil {
		return t.err
	}
	if len(t.writes) == 0 {
		return nil
	}

	if t.store.beforeCommit != nil {
		t.store.beforeCommit()
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrConnection
	}

	for key, version := range t.reads {
		if s.versionOf(key) != version {
			return fmt.Errorf("%w: %s changed", ErrConflict, key)
		}
	}
	for _, q := range t.queries {
		if !reflect.DeepEqual(s.matching(q.collection, q.field, q.value), q.ids) {
			return fmt.Errorf("%w: %s.%s result changed", ErrConflict, q.collection, q.field)
		}
	}

	now := s.commitTime()
	for _, w := range t.writes {
		coll, ok := s.collections[w.key.Collection]
		if !ok {
			coll = make(map[string]*memRecord)
			s.collections[w.key.Collection] = coll
		}
		rec, exists := coll[w.key.ID]
		if !exists {
			rec = &memRecord{doc: Document{}, version: 0}
			coll[w.key.ID] = rec
		}

		switch {
		case w.incr:
			rec.doc[w.field] = Int(rec.doc[w.field]) + w.delta
		case w.merge:
			for k, v := range stamp(w.doc, now) {
				rec.doc[k] = v
			}
		default:
			rec.doc = stamp(w.doc, now)
		}
		rec.version++
	}
	return nil
}

// stamp replaces ServerTimestamp sentinels with the commit time.
func stamp(doc Document, now time.Time) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}

func copyDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		switch tv := v.(type) {
		case []string:
			out[k] = append([]string{}, tv...)
		case []interface{}:
			out[k] = append([]interface{}{}, tv...)
		default:
			out[k] = v
		}
	}
	return out
}
