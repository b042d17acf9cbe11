package catalog

import (
	"context"
	"fmt"
	"sort"

	"physics-race-service/internal/domain"
)

// Loader fetches the raw question rows from a backing store.
type Loader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
}

// Catalog is the ordered, validated question list for one competition.
// It is immutable once built and safe for concurrent use.
type Catalog struct {
	questions []domain.Question
}

// New validates questions and returns them ordered by number.
func New(questions []domain.Question) (*Catalog, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", domain.ErrInvalidCatalog)
	}
	ordered := make([]domain.Question, len(questions))
	copy(ordered, questions)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	for i, q := range ordered {
		if q.Number != i+1 {
			return nil, fmt.Errorf("%w: expected question %d, found %d", domain.ErrInvalidCatalog, i+1, q.Number)
		}
		if q.SceneStart < 0 || q.SceneStart >= q.SceneEnd {
			return nil, fmt.Errorf("%w: question %d scene [%g, %g) is empty", domain.ErrInvalidCatalog, q.Number, q.SceneStart, q.SceneEnd)
		}
		if q.TolerancePct < 0 {
			return nil, fmt.Errorf("%w: question %d has negative tolerance", domain.ErrInvalidCatalog, q.Number)
		}
	}
	return &Catalog{questions: ordered}, nil
}

// Load reads and validates the catalog. Any failure is reported as
// domain.ErrCatalogUnavailable.
func Load(ctx context.Context, loader Loader) (*Catalog, error) {
	questions, err := loader.LoadQuestions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
	}
	cat, err := New(questions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
	}
	return cat, nil
}

// Len is the number of questions N.
func (c *Catalog) Len() int {
	return len(c.questions)
}

// Questions returns a copy of the ordered questions.
func (c *Catalog) Questions() []domain.Question {
	out := make([]domain.Question, len(c.questions))
	copy(out, c.questions)
	return out
}

// FindByNumber returns question n (1-based).
func (c *Catalog) FindByNumber(n int) (domain.Question, bool) {
	if n < 1 || n > len(c.questions) {
		return domain.Question{}, false
	}
	return c.questions[n-1], true
}

// FindBySceneEnd returns the first question whose boundary window
// [SceneEnd-lookback, SceneEnd+lookahead] contains t.
func (c *Catalog) FindBySceneEnd(t, lookback, lookahead float64) (domain.Question, bool) {
	for _, q := range c.questions {
		if t >= q.SceneEnd-lookback && t <= q.SceneEnd+lookahead {
			return q, true
		}
	}
	return domain.Question{}, false
}

// StaticLoader serves a fixed question list (useful for tests/demos).
type StaticLoader struct {
	questions []domain.Question
}

func NewStaticLoader(questions []domain.Question) *StaticLoader {
	return &StaticLoader{questions: questions}
}

func (l *StaticLoader) LoadQuestions(context.Context) ([]domain.Question, error) {
	out := make([]domain.Question, len(l.questions))
	copy(out, l.questions)
	return out, nil
}
