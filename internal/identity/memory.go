package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type memIdentity struct {
	email        string
	passwordHash string
	displayName  string
}

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu         sync.RWMutex
	byHandle   map[Handle]memIdentity
	byEmail    map[string]Handle
	bcryptCost int
}

// NewMemoryStore creates an empty store. A bcryptCost of 0 uses bcrypt.MinCost
// so tests stay fast.
func NewMemoryStore(bcryptCost int) *MemoryStore {
	if bcryptCost == 0 {
		bcryptCost = 4
	}
	return &MemoryStore{
		byHandle:   make(map[Handle]memIdentity),
		byEmail:    make(map[string]Handle),
		bcryptCost: bcryptCost,
	}
}

// Ping reports ctx cancellation only; the store is always reachable.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) FindByEmail(ctx context.Context, email string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return "", ErrNotFound
	}
	return h, nil
}

func (m *MemoryStore) Create(ctx context.Context, creds Credentials) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	email := NormalizeEmail(creds.Email)
	if err := checkEmail(email); err != nil {
		return "", err
	}
	if err := checkPassword(creds.Password); err != nil {
		return "", err
	}
	hash, err := hashPassword(creds.Password, m.bcryptCost)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[email]; ok {
		return "", ErrEmailExists
	}
	h := Handle(uuid.NewString())
	m.byHandle[h] = memIdentity{email: email, passwordHash: hash, displayName: creds.DisplayName}
	m.byEmail[email] = h
	return h, nil
}

func (m *MemoryStore) Delete(ctx context.Context, handle Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ident, ok := m.byHandle[handle]
	if !ok {
		return ErrNotFound
	}
	delete(m.byHandle, handle)
	delete(m.byEmail, ident.email)
	return nil
}

// Len returns the number of identities.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byHandle)
}

// Exists reports whether handle is present.
func (m *MemoryStore) Exists(handle Handle) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byHandle[handle]
	return ok
}

// Authenticate checks a password against the stored hash.
func (m *MemoryStore) Authenticate(email, password string) (Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return "", false
	}
	return h, VerifyPassword(password, m.byHandle[h].passwordHash)
}
