package store

import (
	"context"
	"sync"

	"github.com/Protocol-Lattice/stroke-agent/pkg/models"
)

// InMemoryStore implements HistoryStore for tests and lightweight deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]models.Message
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]models.Message)}
}

func (s *InMemoryStore) Load(_ context.Context, sessionID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Message(nil), s.sessions[sessionID]...), nil
}

func (s *InMemoryStore) Save(_ context.Context, sessionID string, history []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append([]models.Message(nil), history...)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

var _ HistoryStore = (*InMemoryStore)(nil)
