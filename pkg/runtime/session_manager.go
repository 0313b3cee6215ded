package runtime

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Protocol-Lattice/stroke-agent/pkg/agent"
)

type sessionManager struct {
	runtime *Runtime

	mu       sync.RWMutex
	sessions map[string]*Session
}

func newSessionManager(rt *Runtime) *sessionManager {
	return &sessionManager{
		runtime:  rt,
		sessions: make(map[string]*Session),
	}
}

// open returns the active session with id or restores it from the store.
// An empty id yields a fresh session with a generated identifier.
func (m *sessionManager) open(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	if s, err := m.get(id); err == nil {
		return s, nil
	}

	history, err := m.runtime.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("restore session %s: %w", id, err)
	}
	session := &Session{runtime: m.runtime, id: id, conv: agent.NewConversation(history)}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		return existing, nil
	}
	m.sessions[id] = session
	return session, nil
}

func (m *sessionManager) get(id string) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return session, nil
}

func (m *sessionManager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *sessionManager) activeIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
