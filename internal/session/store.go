package session

import (
	"context"
	"sync"
)

// Store is the injectable keyed backend behind the Registry. Production
// wiring uses MemoryStore; a Redis-backed store is available for
// deployments that want the registry to survive a process restart.
// Get returns (nil, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, callControlID string) (*CallSession, error)
	Put(ctx context.Context, sess *CallSession) error
	Delete(ctx context.Context, callControlID string) error
	Len(ctx context.Context) (int, error)
	List(ctx context.Context) ([]*CallSession, error)
}

// MemoryStore implements Store with a process-wide map. Values are cloned
// on the way in and out so only the Registry's per-key critical section
// can observe intermediate state.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*CallSession)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (*CallSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id].Clone(), nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, sess *CallSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.CallControlID] = sess.Clone()
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len implements Store.
func (m *MemoryStore) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]*CallSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*CallSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	return out, nil
}
