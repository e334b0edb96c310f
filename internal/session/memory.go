package session

import (
	"context"
	"sync"

	"github.com/phenopolis/twofactor/internal/models"
)

// MemoryStore is an in-process Store used in tests and single-node
// development setups.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.LoginSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]models.LoginSession)}
}

func (s *MemoryStore) Read(ctx context.Context, token string) (*models.LoginSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := sess
	return &copied, nil
}

func (s *MemoryStore) Write(ctx context.Context, token string, session *models.LoginSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[token] = *session
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}
