package memory

import (
	"context"
	"sync"

	"physics-race-service/internal/domain"
)

// ParticipantStore is an in-memory implementation of app.ParticipantStore.
// A single mutex makes every resolution atomic; the resolved set keeps a
// question from being applied twice for the same participant.
type ParticipantStore struct {
	mu           sync.Mutex
	participants map[string]domain.Participant
	resolved     map[string]map[int]struct{}
}

func NewParticipantStore(seed ...domain.Participant) *ParticipantStore {
	s := &ParticipantStore{
		participants: make(map[string]domain.Participant),
		resolved:     make(map[string]map[int]struct{}),
	}
	for _, p := range seed {
		_ = s.SaveParticipant(context.Background(), p)
	}
	return s
}

// SaveParticipant creates or replaces a record (registration happens out of band).
func (s *ParticipantStore) SaveParticipant(_ context.Context, p domain.Participant) error {
	if p.CurrentQuestion < 1 {
		p.CurrentQuestion = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.ID] = p
	return nil
}

func (s *ParticipantStore) GetParticipant(_ context.Context, id string) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *ParticipantStore) ApplyResolution(_ context.Context, id string, r domain.Resolution) (domain.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[id]
	if !ok {
		return domain.Outcome{}, domain.ErrParticipantNotFound
	}
	ledger := s.resolved[id]
	_, done := ledger[r.Question]

	out := domain.ApplyResolution(p, r, done)
	if out.Applied {
		if ledger == nil {
			ledger = make(map[int]struct{})
			s.resolved[id] = ledger
		}
		ledger[r.Question] = struct{}{}
		s.participants[id] = out.Participant
	}
	return out, nil
}

func (s *ParticipantStore) Leaderboard(_ context.Context, n int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	all := make([]domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		all = append(all, p)
	}
	s.mu.Unlock()
	return domain.RankParticipants(all, n), nil
}
