package catalog

import (
	"context"
	"errors"
	"testing"

	"physics-race-service/internal/domain"
)

func TestNewOrdersAndValidates(t *testing.T) {
	cat, err := New([]domain.Question{
		{Number: 2, SceneStart: 30, SceneEnd: 60, CorrectAnswer: 9.81},
		{Number: 1, SceneStart: 0, SceneEnd: 30, CorrectAnswer: 3},
	})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("expected 2 questions, got %d", cat.Len())
	}
	if q := cat.Questions()[0]; q.Number != 1 {
		t.Fatalf("expected ordered questions, first is %d", q.Number)
	}
}

func TestNewRejectsBrokenCatalogs(t *testing.T) {
	cases := map[string][]domain.Question{
		"empty":       nil,
		"gap":         {{Number: 1, SceneEnd: 10}, {Number: 3, SceneStart: 10, SceneEnd: 20}},
		"not one":     {{Number: 2, SceneEnd: 10}},
		"empty scene": {{Number: 1, SceneStart: 10, SceneEnd: 10}},
		"tolerance":   {{Number: 1, SceneEnd: 10, TolerancePct: -1}},
	}
	for name, questions := range cases {
		if _, err := New(questions); !errors.Is(err, domain.ErrInvalidCatalog) {
			t.Fatalf("%s: expected invalid catalog, got %v", name, err)
		}
	}
}

func TestFindByNumber(t *testing.T) {
	cat := sampleCatalog(t)
	if q, ok := cat.FindByNumber(2); !ok || q.SceneStart != 30 {
		t.Fatalf("expected question 2, got %+v ok=%v", q, ok)
	}
	if _, ok := cat.FindByNumber(0); ok {
		t.Fatalf("expected miss for 0")
	}
	if _, ok := cat.FindByNumber(4); ok {
		t.Fatalf("expected miss past the end")
	}
}

func TestFindBySceneEndWindow(t *testing.T) {
	cat := sampleCatalog(t)

	if q, ok := cat.FindBySceneEnd(29.85, 0.2, 0.5); !ok || q.Number != 1 {
		t.Fatalf("expected question 1 inside lookback, got %+v ok=%v", q, ok)
	}
	if q, ok := cat.FindBySceneEnd(60.4, 0.2, 0.5); !ok || q.Number != 2 {
		t.Fatalf("expected question 2 inside lookahead, got %+v ok=%v", q, ok)
	}
	if _, ok := cat.FindBySceneEnd(45, 0.2, 0.5); ok {
		t.Fatalf("expected no window mid-scene")
	}
}

func TestLoadWrapsLoaderFailure(t *testing.T) {
	_, err := Load(context.Background(), failingLoader{})
	if !errors.Is(err, domain.ErrCatalogUnavailable) {
		t.Fatalf("expected catalog unavailable, got %v", err)
	}
}

type failingLoader struct{}

func (failingLoader) LoadQuestions(context.Context) ([]domain.Question, error) {
	return nil, errors.New("connection refused")
}

func sampleCatalog(t *testing.T) *Catalog {
	t.Helper()
	cat, err := Load(context.Background(), NewStaticLoader([]domain.Question{
		{Number: 1, SceneStart: 0, SceneEnd: 30, CorrectAnswer: 3},
		{Number: 2, SceneStart: 30, SceneEnd: 60, CorrectAnswer: 9.81, TolerancePct: 2},
		{Number: 3, SceneStart: 75, SceneEnd: 90, CorrectAnswer: 0},
	}))
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return cat
}
