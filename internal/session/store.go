package session

import (
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned by Load for unknown or expired sessions
var ErrNotFound = errors.New("session not found")

// Store persists sessions at the process boundary
type Store interface {
	Load(id string) (*Session, error)
	Save(s *Session) error
	Delete(id string) error
	Sweep(maxAge time.Duration) int
}

// MemoryStore keeps sessions in process memory; credentials never leave the server
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	maxAge   time.Duration
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store whose sessions expire after maxAge of inactivity
func NewMemoryStore(maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		maxAge:   maxAge,
	}
}

// Load returns a copy so callers mutate it explicitly and Save it back
func (m *MemoryStore) Load(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok || m.expired(s, time.Now()) {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) Save(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

// Sweep removes sessions idle for longer than maxAge and returns how many were removed
func (m *MemoryStore) Sweep(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *MemoryStore) expired(s Session, now time.Time) bool {
	return m.maxAge > 0 && now.Sub(s.UpdatedAt) > m.maxAge
}
