package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"physics-race-service/internal/catalog"
	"physics-race-service/internal/domain"
)

// ParticipantStore abstracts the shared participant records (in-memory, Redis, Postgres).
// ApplyResolution must be atomic and apply a question's resolution at most once.
type ParticipantStore interface {
	GetParticipant(ctx context.Context, id string) (domain.Participant, error)
	ApplyResolution(ctx context.Context, id string, r domain.Resolution) (domain.Outcome, error)
	Leaderboard(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
}

// AttemptLog is the append-only answer log. Retried writes return
// domain.ErrDuplicateAttempt.
type AttemptLog interface {
	AppendAttempt(ctx context.Context, attempt domain.AnswerAttempt) error
}

// ChangeFeed pushes participant ids whose records changed.
type ChangeFeed interface {
	Publish(ctx context.Context, participantID string) error
	Listen(ctx context.Context) (<-chan string, func(), error)
}

// CatalogRepository loads the question catalog (from cache/backing store).
type CatalogRepository interface {
	GetCatalog(ctx context.Context) (*catalog.Catalog, error)
}

// PresenceRegistry tracks live engine sessions per participant.
type PresenceRegistry interface {
	Register(ctx context.Context, participantID, sessionID string) (int, error)
	Release(ctx context.Context, participantID, sessionID string) error
}

const (
	DefaultLeaderboardSize = 50
	DefaultPollInterval    = 5 * time.Second
)

type Options struct {
	PollInterval    time.Duration
	LeaderboardSize int
}

// Synchronizer commits participant state changes and keeps a ranked,
// eventually consistent leaderboard flowing to subscribers.
type Synchronizer struct {
	participants ParticipantStore
	attempts     AttemptLog
	feed         ChangeFeed
	pollInterval time.Duration
	size         int
	now          func() time.Time
	hub          *hub

	mu       sync.Mutex
	lastPush time.Time
}

func NewSynchronizer(participants ParticipantStore, attempts AttemptLog, feed ChangeFeed, opts Options) *Synchronizer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.LeaderboardSize <= 0 {
		opts.LeaderboardSize = DefaultLeaderboardSize
	}
	return &Synchronizer{
		participants: participants,
		attempts:     attempts,
		feed:         feed,
		pollInterval: opts.PollInterval,
		size:         opts.LeaderboardSize,
		now:          time.Now,
		hub:          newHub(),
	}
}

// Participant re-reads the authoritative record; sessions call it on every (re)load.
func (s *Synchronizer) Participant(ctx context.Context, id string) (domain.Participant, error) {
	return s.participants.GetParticipant(ctx, id)
}

// Commit applies a resolution atomically in the store and announces the change.
func (s *Synchronizer) Commit(ctx context.Context, participantID string, r domain.Resolution) (domain.Outcome, error) {
	if r.At.IsZero() {
		r.At = s.now()
	}
	out, err := s.participants.ApplyResolution(ctx, participantID, r)
	if err != nil {
		return domain.Outcome{}, err
	}
	if out.Applied && s.feed != nil {
		if err := s.feed.Publish(ctx, participantID); err != nil {
			// the poll fallback still picks the change up
			log.Printf("publish change for %s: %v", participantID, err)
		}
	}
	return out, nil
}

// Append writes an attempt row. Duplicates from retried calls are logged and
// dropped: scores come from the participant record, not from the log.
func (s *Synchronizer) Append(ctx context.Context, attempt domain.AnswerAttempt) error {
	err := s.attempts.AppendAttempt(ctx, attempt)
	if errors.Is(err, domain.ErrDuplicateAttempt) {
		log.Printf("duplicate attempt %s ignored", attempt.Key())
		return nil
	}
	return err
}

// FetchTop returns the ranked top n (default size when n <= 0).
func (s *Synchronizer) FetchTop(ctx context.Context, n int) (domain.Leaderboard, error) {
	if n <= 0 {
		n = s.size
	}
	entries, err := s.participants.Leaderboard(ctx, n)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return domain.NewLeaderboard(entries, s.now()), nil
}

// Subscribe returns a channel of leaderboard snapshots, starting with the
// current one. The cancel func is idempotent and also runs when ctx ends.
func (s *Synchronizer) Subscribe(ctx context.Context) (<-chan domain.Leaderboard, func(), error) {
	lb, err := s.FetchTop(ctx, s.size)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.subscribe(lb)
	stop := context.AfterFunc(ctx, cancel)
	return ch, func() {
		stop()
		cancel()
	}, nil
}

// Run refreshes subscribers on every pushed change and on a poll ticker.
// A poll tick is skipped when a push refresh happened within the interval.
func (s *Synchronizer) Run(ctx context.Context) error {
	var changes <-chan string
	if s.feed != nil {
		ch, stop, err := s.feed.Listen(ctx)
		if err != nil {
			log.Printf("change feed unavailable, polling only: %v", err)
		} else {
			changes = ch
			defer stop()
		}
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			drain(changes)
			s.mu.Lock()
			s.lastPush = s.now()
			s.mu.Unlock()
			s.refresh(ctx)
		case <-ticker.C:
			if s.pushedRecently() {
				continue
			}
			s.refresh(ctx)
		}
	}
}

func (s *Synchronizer) pushedRecently() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lastPush.IsZero() && s.now().Sub(s.lastPush) < s.pollInterval
}

func (s *Synchronizer) refresh(ctx context.Context) {
	if s.hub.size() == 0 {
		return
	}
	lb, err := s.FetchTop(ctx, s.size)
	if err != nil {
		log.Printf("refresh leaderboard: %v", err)
		return
	}
	s.hub.broadcast(lb)
}

// drain collapses a burst of change notifications into one refresh.
func drain(ch <-chan string) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
