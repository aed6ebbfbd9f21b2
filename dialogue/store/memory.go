package store

import (
	"context"
	"sync"

	"github.com/marlowe-ai/convopipe/dialogue"
)

// MemoryStore is an in-process, non-durable Store used for tests and
// single-instance deployments that don't need restart survival.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]dialogue.DialogueContext
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]dialogue.DialogueContext)}
}

func (m *MemoryStore) SaveSession(ctx context.Context, session dialogue.DialogueContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.SessionID] = session
	return nil
}

func (m *MemoryStore) LoadSession(ctx context.Context, sessionID string) (dialogue.DialogueContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return dialogue.DialogueContext{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}
