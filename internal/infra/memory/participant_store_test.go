package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"physics-race-service/internal/domain"
)

func TestParticipantStoreAppliesResolutionOnce(t *testing.T) {
	store := NewParticipantStore(domain.Participant{ID: "p1", DisplayName: "Ada", Active: true, NameConfirmed: true})
	ctx := context.Background()
	res := domain.Resolution{Kind: domain.ResolutionCorrect, Question: 1, Points: 5, At: time.Now()}

	out, err := store.ApplyResolution(ctx, "p1", res)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !out.Applied || out.Participant.TotalScore != 5 || out.Participant.CurrentQuestion != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}

	again, err := store.ApplyResolution(ctx, "p1", res)
	if err != nil {
		t.Fatalf("apply again: %v", err)
	}
	if again.Applied {
		t.Fatalf("expected second resolution to be ignored")
	}
	p, _ := store.GetParticipant(ctx, "p1")
	if p.TotalScore != 5 {
		t.Fatalf("expected score 5, got %d", p.TotalScore)
	}
}

func TestParticipantStoreConcurrentResolution(t *testing.T) {
	store := NewParticipantStore(domain.Participant{ID: "p1"})
	ctx := context.Background()
	res := domain.Resolution{Kind: domain.ResolutionCorrect, Question: 1, Points: 4}

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := store.ApplyResolution(ctx, "p1", res)
			if err != nil {
				t.Errorf("apply: %v", err)
				return
			}
			if out.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Fatalf("expected exactly one applied resolution, got %d", applied)
	}
	p, _ := store.GetParticipant(ctx, "p1")
	if p.TotalScore != 4 {
		t.Fatalf("expected score 4, got %d", p.TotalScore)
	}
}

func TestParticipantStoreUnknownParticipant(t *testing.T) {
	store := NewParticipantStore()
	if _, err := store.GetParticipant(context.Background(), "ghost"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
	_, err := store.ApplyResolution(context.Background(), "ghost", domain.Resolution{Kind: domain.ResolutionSkipped, Question: 1})
	if !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestParticipantStoreLeaderboardListsConfirmedOnly(t *testing.T) {
	now := time.Now()
	store := NewParticipantStore(
		domain.Participant{ID: "a", DisplayName: "A", TotalScore: 10, Active: true, NameConfirmed: true, LastActivity: now},
		domain.Participant{ID: "b", DisplayName: "B", TotalScore: 20, Active: true, NameConfirmed: true, LastActivity: now},
		domain.Participant{ID: "c", DisplayName: "C", TotalScore: 99, Active: true, NameConfirmed: false},
		domain.Participant{ID: "d", DisplayName: "D", TotalScore: 50, Active: false, NameConfirmed: true},
	)

	entries, err := store.Leaderboard(context.Background(), 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 listed participants, got %d", len(entries))
	}
	if entries[0].ParticipantID != "b" || entries[0].Rank != 1 || entries[1].ParticipantID != "a" {
		t.Fatalf("unexpected order %+v", entries)
	}
}
