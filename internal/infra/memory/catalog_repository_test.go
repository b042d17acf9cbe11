package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"physics-race-service/internal/catalog"
	"physics-race-service/internal/domain"
)

func TestCatalogRepositoryCaches(t *testing.T) {
	loader := &countingLoader{Loader: catalog.NewStaticLoader(sampleQuestions())}
	repo := NewCatalogRepository(loader, time.Minute)

	cat, err := repo.GetCatalog(context.Background())
	if err != nil {
		t.Fatalf("get catalog: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("expected 2 questions, got %d", cat.Len())
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetCatalog(context.Background()); err != nil {
		t.Fatalf("get catalog 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestCatalogRepositoryReloadsAfterExpiry(t *testing.T) {
	loader := &countingLoader{Loader: catalog.NewStaticLoader(sampleQuestions())}
	repo := NewCatalogRepository(loader, time.Minute)
	now := time.Now()
	repo.clock = func() time.Time { return now }

	if _, err := repo.GetCatalog(context.Background()); err != nil {
		t.Fatalf("get catalog: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetCatalog(context.Background()); err != nil {
		t.Fatalf("get catalog after expiry: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls)
	}
}

func TestCatalogRepositoryRejectsInvalidCatalog(t *testing.T) {
	gap := []domain.Question{
		{Number: 1, SceneStart: 0, SceneEnd: 10},
		{Number: 3, SceneStart: 10, SceneEnd: 20},
	}
	repo := NewCatalogRepository(catalog.NewStaticLoader(gap), time.Minute)

	_, err := repo.GetCatalog(context.Background())
	if !errors.Is(err, domain.ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
}

type countingLoader struct {
	catalog.Loader
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	l.calls++
	return l.Loader.LoadQuestions(ctx)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{Number: 1, SceneStart: 0, SceneEnd: 30, CorrectAnswer: 9.81, TolerancePct: 2, Prompt: "Acceleration of the falling ball in m/s²?"},
		{Number: 2, SceneStart: 30, SceneEnd: 60, CorrectAnswer: 12, Prompt: "Distance travelled in metres?"},
	}
}
