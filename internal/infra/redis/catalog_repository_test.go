package redis

import (
	"context"
	"testing"
	"time"

	"physics-race-service/internal/catalog"
)

func TestCatalogRepositoryCachesInRedis(t *testing.T) {
	mr, client := newMiniredis(t)

	loader := &countingLoader{Loader: catalog.NewStaticLoader(sampleQuestions())}
	repo := NewCatalogRepository(client, loader, time.Minute)

	cat, err := repo.GetCatalog(context.Background())
	if err != nil {
		t.Fatalf("get catalog: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists(catalogKey) {
		t.Fatalf("expected catalog hash in redis")
	}

	// Second call should hit cache, loader not incremented.
	again, err := repo.GetCatalog(context.Background())
	if err != nil {
		t.Fatalf("get catalog 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	q, ok := again.FindByNumber(1)
	if !ok || q.CorrectAnswer != 9.81 || q.Prompt != cat.Questions()[0].Prompt {
		t.Fatalf("cached question mismatch: %+v", q)
	}
}

func TestCatalogRepositoryReloadsAfterExpiry(t *testing.T) {
	mr, client := newMiniredis(t)

	loader := &countingLoader{Loader: catalog.NewStaticLoader(sampleQuestions())}
	repo := NewCatalogRepository(client, loader, time.Minute)

	if _, err := repo.GetCatalog(context.Background()); err != nil {
		t.Fatalf("get catalog: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := repo.GetCatalog(context.Background()); err != nil {
		t.Fatalf("get catalog after expiry: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls=%d", loader.calls)
	}
}

func TestCatalogRepositoryIgnoresDamagedCache(t *testing.T) {
	mr, client := newMiniredis(t)
	mr.HSet(catalogKey, "1", "not json")

	loader := &countingLoader{Loader: catalog.NewStaticLoader(sampleQuestions())}
	repo := NewCatalogRepository(client, loader, time.Minute)

	cat, err := repo.GetCatalog(context.Background())
	if err != nil {
		t.Fatalf("get catalog: %v", err)
	}
	if loader.calls != 1 || cat.Len() != 2 {
		t.Fatalf("expected loader fallback, calls=%d len=%d", loader.calls, cat.Len())
	}
}
