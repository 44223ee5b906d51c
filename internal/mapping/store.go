// Package mapping holds the runtime channel mapping: source channel ID to
// target channel ID. The store is the single owner of this mutable state;
// the dispatcher reads it and the admin command surface mutates it. It is
// process-memory only and does not survive restarts.
package mapping

import "sync"

type Store struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewStore creates a store seeded from the initial mapping. The seed map is
// copied, so later mutations never touch the caller's map.
func NewStore(initial map[string]string) *Store {
	m := make(map[string]string, len(initial))
	for k, v := range initial {
		m[k] = v
	}
	return &Store{m: m}
}

// Resolve returns the target channel for a source channel.
func (s *Store) Resolve(sourceID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	target, ok := s.m[sourceID]
	return target, ok
}

// Add inserts or replaces a mapping.
func (s *Store) Add(sourceID, targetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sourceID] = targetID
}

// Remove deletes a mapping and returns the target it pointed at.
func (s *Store) Remove(sourceID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.m[sourceID]
	if ok {
		delete(s.m, sourceID)
	}
	return target, ok
}

// All returns a copy of the current mapping.
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

// Len returns the number of mappings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
