package memory

import (
	"context"
	"sync"
)

// PresenceStore is an in-memory implementation of app.PresenceRegistry.
type PresenceStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]struct{}
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{
		sessions: make(map[string]map[string]struct{}),
	}
}

// Register adds a live session and returns how many the participant now has.
func (s *PresenceStore) Register(_ context.Context, participantID, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, ok := s.sessions[participantID]
	if !ok {
		live = make(map[string]struct{})
		s.sessions[participantID] = live
	}
	live[sessionID] = struct{}{}
	return len(live), nil
}

func (s *PresenceStore) Release(_ context.Context, participantID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, ok := s.sessions[participantID]
	if !ok {
		return nil
	}
	delete(live, sessionID)
	if len(live) == 0 {
		delete(s.sessions, participantID)
	}
	return nil
}

// Live reports the participant's session count.
func (s *PresenceStore) Live(participantID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[participantID])
}
