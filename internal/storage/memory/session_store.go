package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type sessionEntry struct {
	ident     domain.Identity
	expiresAt time.Time
}

// sessionStoreInMemory — in-memory реализация SessionStore для локальной
// разработки и тестов. Протухшие сессии отбрасываются при чтении.
type sessionStoreInMemory struct {
	mu       sync.RWMutex
	sessions map[string]sessionEntry
}

// NewSessionStore создаёт пустое in-memory хранилище сессий.
func NewSessionStore() domain.SessionStore {
	return &sessionStoreInMemory{sessions: make(map[string]sessionEntry)}
}

// Identity возвращает идентичность по токену или ErrUnauthenticated.
func (s *sessionStoreInMemory) Identity(_ context.Context, token string) (domain.Identity, error) {
	s.mu.RLock()
	entry, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return domain.Anonymous(), domain.ErrUnauthenticated
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return domain.Anonymous(), domain.ErrUnauthenticated
	}
	return entry.ident, nil
}

// Put сохраняет сессию; ttl <= 0 означает сессию без истечения.
func (s *sessionStoreInMemory) Put(_ context.Context, token string, ident domain.Identity, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = sessionEntry{ident: ident, expiresAt: expiresAt}
	return nil
}

// Delete завершает сессию.
func (s *sessionStoreInMemory) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

var _ domain.SessionStore = (*sessionStoreInMemory)(nil)
