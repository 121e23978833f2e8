package store

import (
	"sync"

	"secondhand/internal/util"
)

// MemoryRefreshTokenStore keeps refresh tokens in-process.
type MemoryRefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[string]string // token -> user ID
}

// NewMemoryRefreshTokenStore initializes an empty token store.
func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{tokens: make(map[string]string)}
}

// NewToken creates a refresh token for a user.
func (s *MemoryRefreshTokenStore) NewToken(userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := util.NewID()
	s.tokens[token] = userID
	return token, nil
}

// GetUserIDByToken resolves a token to its user ID.
func (s *MemoryRefreshTokenStore) GetUserIDByToken(token string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.tokens[token]
	return uid, ok, nil
}

// DeleteToken removes a token mapping.
func (s *MemoryRefreshTokenStore) DeleteToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}
