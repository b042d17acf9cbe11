package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"physics-race-service/internal/catalog"
	"physics-race-service/internal/domain"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := newClient(mr)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
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
