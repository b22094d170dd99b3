package profile

import (
	"context"
	"sync"
)

// InMemoryStore implements Store using an in-memory map.
// Thread-safe for concurrent access.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewInMemoryStore creates a new in-memory profile store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		profiles: make(map[string]*Profile),
	}
}

// GetProfile returns a copy of the stored profile.
func (s *InMemoryStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return p.Clone(), nil
}

// Put stores a copy of the profile, replacing any previous one.
func (s *InMemoryStore) Put(p *Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p.Clone()
}

// Delete removes the profile for userID.
func (s *InMemoryStore) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, userID)
}
