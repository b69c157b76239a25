package session

import (
	"context"
	"sync"

	"e2e_messaging/internal/model"
)

type (
	// Store persists one SessionState per peer of a single local user.
	// GetSessionState returns nil, nil when no state exists.
	Store interface {
		GetSessionState(ctx context.Context, peerID string) (*model.SessionState, error)
		UpdateSessionState(ctx context.Context, peerID string, state *model.SessionState) error
		DeleteSessionState(ctx context.Context, peerID string) error
	}

	MemoryStore struct {
		mu     sync.RWMutex
		states map[string]*model.SessionState
	}
)

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*model.SessionState)}
}

func (m *MemoryStore) GetSessionState(_ context.Context, peerID string) (*model.SessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[peerID].Clone(), nil
}

func (m *MemoryStore) UpdateSessionState(_ context.Context, peerID string, state *model.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[peerID] = state.Clone()
	return nil
}

func (m *MemoryStore) DeleteSessionState(_ context.Context, peerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, peerID)
	return nil
}
