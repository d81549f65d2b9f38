package repository

import (
	"context"
	"sync"

	"adherence-agent/internal/domain"
)

// MemoryStore is a process-local store for the console and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.ConversationContext
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]domain.ConversationContext)}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (domain.ConversationContext, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cc, ok := s.sessions[sessionID]
	if !ok {
		return domain.ConversationContext{}, false, nil
	}
	return cc.Clone(), true, nil
}

func (s *MemoryStore) Save(_ context.Context, cc domain.ConversationContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[cc.SessionID] = cc.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}
