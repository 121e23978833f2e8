package store

import (
	"sort"
	"sync"

	"secondhand/pkg/domain"
)

// MemoryStore keeps emulator state in-process. It backs tests and
// credential-less local development.
type MemoryStore struct {
	mu         sync.RWMutex
	identities map[string]Identity // key: identity ID
	email      map[string]string   // email -> identity ID
	profiles   map[string]domain.UserProfile
	books      map[string]domain.Book
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[string]Identity),
		email:      make(map[string]string),
		profiles:   make(map[string]domain.UserProfile),
		books:      make(map[string]domain.Book),
	}
}

// SaveIdentity registers a credential record.
func (m *MemoryStore) SaveIdentity(id Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[id.ID] = id
	m.email[id.Email] = id.ID
	return nil
}

// GetIdentityByEmail looks up a credential record by email.
func (m *MemoryStore) GetIdentityByEmail(email string) (Identity, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[email]; ok {
		ident, exists := m.identities[id]
		return ident, exists, nil
	}
	return Identity{}, false, nil
}

// GetIdentityByID returns a credential record by ID.
func (m *MemoryStore) GetIdentityByID(id string) (Identity, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ident, ok := m.identities[id]
	return ident, ok, nil
}

// SaveProfile stores or replaces a profile row.
func (m *MemoryStore) SaveProfile(p domain.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
	return nil
}

// GetProfile retrieves a profile row.
func (m *MemoryStore) GetProfile(id string) (domain.UserProfile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	return p, ok, nil
}

// SaveBook stores or replaces a listing.
func (m *MemoryStore) SaveBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[b.ID] = b
	return nil
}

// GetBook retrieves a listing by ID.
func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// ListBooks returns matching listings newest first.
func (m *MemoryStore) ListBooks(f BookFilter) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.books))
	for _, b := range m.books {
		if f.ID != "" && b.ID != f.ID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.SellerID != "" && b.SellerID != f.SellerID {
			continue
		}
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}
