package app_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"physics-race-service/internal/app"
	"physics-race-service/internal/domain"
	"physics-race-service/internal/infra/memory"
)

func TestCommitUpdatesLeaderboard(t *testing.T) {
	ctx := context.Background()
	syncer, _ := newTestSynchronizer(time.Hour)

	if _, err := syncer.Commit(ctx, "u2", domain.Resolution{Kind: domain.ResolutionCorrect, Question: 1, Points: 5}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	lb, err := syncer.FetchTop(ctx, 10)
	if err != nil {
		t.Fatalf("fetch top: %v", err)
	}
	if len(lb.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(lb.Entries))
	}
	if lb.Entries[0].ParticipantID != "u2" || lb.Entries[0].TotalScore != 5 {
		t.Fatalf("expected Bob to lead with 5 points, got %+v", lb.Entries[0])
	}
}

func TestSubscribeReceivesPushedUpdates(t *testing.T) {
	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	syncer, _ := newTestSynchronizer(time.Hour)

	ch, cancel, err := syncer.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()
	<-ch // initial snapshot

	go func() { _ = syncer.Run(ctx) }()
	// give Run a moment to attach to the feed
	time.Sleep(20 * time.Millisecond)

	if _, err := syncer.Commit(ctx, "u1", domain.Resolution{Kind: domain.ResolutionCorrect, Question: 1, Points: 4}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	select {
	case update := <-ch:
		if update.Entries[0].ParticipantID != "u1" || update.Entries[0].TotalScore != 4 {
			t.Fatalf("expected u1 with 4 points on top, got %+v", update.Entries)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for pushed leaderboard")
	}
}

func TestPollRefreshesWithoutFeed(t *testing.T) {
	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	store := seededStore()
	syncer := app.NewSynchronizer(store, memory.NewAttemptLog(), nil, app.Options{PollInterval: 10 * time.Millisecond})

	ch, cancel, err := syncer.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()
	<-ch

	go func() { _ = syncer.Run(ctx) }()
	if _, err := store.ApplyResolution(ctx, "u1", domain.Resolution{Kind: domain.ResolutionCorrect, Question: 1, Points: 3}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case update := <-ch:
			if len(update.Entries) > 0 && update.Entries[0].TotalScore == 3 {
				return
			}
		case <-deadline:
			t.Fatalf("poll never delivered the new score")
		}
	}
}

func TestDuplicateAttemptLeavesScoreUnchanged(t *testing.T) {
	ctx := context.Background()
	syncer, attempts := newTestSynchronizer(time.Hour)
	attempt := domain.AnswerAttempt{ID: "a1", ParticipantID: "u1", QuestionNumber: 1, AttemptNumber: 1, PointsEarned: 5, IsCorrect: true}

	if err := syncer.Append(ctx, attempt); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := syncer.Append(ctx, attempt); err != nil {
		t.Fatalf("duplicate append should be swallowed, got %v", err)
	}
	if n := len(attempts.Attempts("u1")); n != 1 {
		t.Fatalf("expected one logged attempt, got %d", n)
	}
	p, err := syncer.Participant(ctx, "u1")
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	if p.TotalScore != 0 {
		t.Fatalf("attempt log must not move the score, got %d", p.TotalScore)
	}
}

func TestSubscribeCancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	syncer, _ := newTestSynchronizer(time.Hour)

	ch, cancel, err := syncer.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	<-ch
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after cancel")
	}
}

func TestSubscribeContextCancelClosesChannel(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	syncer, _ := newTestSynchronizer(time.Hour)

	ch, cancel, err := syncer.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()
	<-ch

	cancelCtx()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected channel closed after context cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel still open after context cancel")
	}
}

func TestPushedChangesSuppressPollReads(t *testing.T) {
	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	store := &countingStore{ParticipantStore: seededStore()}
	poll := 200 * time.Millisecond
	syncer := app.NewSynchronizer(store, memory.NewAttemptLog(), memory.NewChangeFeed(), app.Options{PollInterval: poll})

	ch, cancel, err := syncer.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()
	go func() {
		for range ch {
		}
	}()

	go func() { _ = syncer.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	const commits = 12
	for i := 1; i <= commits; i++ {
		if _, err := syncer.Commit(ctx, "u1", domain.Resolution{Kind: domain.ResolutionCorrect, Question: i, Points: 1}); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	// one read for the subscribe snapshot, at most one per pushed change
	if reads := store.reads.Load(); reads > commits+1 {
		t.Fatalf("expected at most %d leaderboard reads, got %d", commits+1, reads)
	}
}

func newTestSynchronizer(poll time.Duration) (*app.Synchronizer, *memory.AttemptLog) {
	attempts := memory.NewAttemptLog()
	return app.NewSynchronizer(seededStore(), attempts, memory.NewChangeFeed(), app.Options{PollInterval: poll}), attempts
}

func seededStore() *memory.ParticipantStore {
	return memory.NewParticipantStore(
		domain.Participant{ID: "u1", DisplayName: "Alice", Active: true, NameConfirmed: true, CurrentQuestion: 1},
		domain.Participant{ID: "u2", DisplayName: "Bob", Active: true, NameConfirmed: true, CurrentQuestion: 1},
	)
}

type countingStore struct {
	*memory.ParticipantStore
	reads atomic.Int64
}

func (s *countingStore) Leaderboard(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	s.reads.Add(1)
	return s.ParticipantStore.Leaderboard(ctx, n)
}
