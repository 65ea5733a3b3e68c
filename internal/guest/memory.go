package guest

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("guest session %s already exists", s.ID)
	}
	m.sessions[s.ID] = clone(s)
	return nil
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	out := clone(&s)
	return &out, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[s.ID]
	if !ok {
		return fmt.Errorf("guest session %s not found", s.ID)
	}
	if s.IsVerified {
		stored.IsVerified = true
		stored.VerifiedPhone = s.VerifiedPhone
	}
	m.sessions[s.ID] = clone(&stored)
	return nil
}

func clone(s *Session) Session {
	out := *s
	if s.VerifiedPhone != nil {
		p := *s.VerifiedPhone
		out.VerifiedPhone = &p
	}
	return out
}
