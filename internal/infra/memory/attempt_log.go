package memory

import (
	"context"
	"sync"

	"physics-race-service/internal/domain"
)

// AttemptLog keeps answer attempts in insertion order.
type AttemptLog struct {
	mu   sync.Mutex
	seen map[string]struct{}
	rows []domain.AnswerAttempt
}

func NewAttemptLog() *AttemptLog {
	return &AttemptLog{seen: make(map[string]struct{})}
}

func (l *AttemptLog) AppendAttempt(_ context.Context, a domain.AnswerAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := a.Key()
	if _, ok := l.seen[key]; ok {
		return domain.ErrDuplicateAttempt
	}
	l.seen[key] = struct{}{}
	l.rows = append(l.rows, a)
	return nil
}

// Attempts returns the logged attempts of one participant.
func (l *AttemptLog) Attempts(participantID string) []domain.AnswerAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.AnswerAttempt
	for _, a := range l.rows {
		if a.ParticipantID == participantID {
			out = append(out, a)
		}
	}
	return out
}
