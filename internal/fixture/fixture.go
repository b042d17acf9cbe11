package fixture

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"physics-race-service/internal/catalog"
	"physics-race-service/internal/domain"
)

// Fixture is a development data set: the question catalog plus
// pre-registered participants.
type Fixture struct {
	Questions    []domain.Question    `yaml:"questions"`
	Participants []domain.Participant `yaml:"participants"`
}

// ParticipantWriter is implemented by every participant store.
type ParticipantWriter interface {
	SaveParticipant(ctx context.Context, p domain.Participant) error
}

// Load reads a YAML fixture from path.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML fixture and validates its catalog.
func Parse(data []byte) (*Fixture, error) {
	f := &Fixture{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if _, err := catalog.New(f.Questions); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(f.Participants))
	for _, p := range f.Participants {
		if p.ID == "" {
			return nil, errors.New("fixture participant without id")
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate fixture participant %s", p.ID)
		}
		seen[p.ID] = true
	}
	return f, nil
}

// LoadQuestions makes the fixture usable as a catalog.Loader.
func (f *Fixture) LoadQuestions(context.Context) ([]domain.Question, error) {
	out := make([]domain.Question, len(f.Questions))
	copy(out, f.Questions)
	return out, nil
}

// SeedParticipants writes every fixture participant to w.
func (f *Fixture) SeedParticipants(ctx context.Context, w ParticipantWriter) error {
	for _, p := range f.Participants {
		if err := w.SaveParticipant(ctx, p); err != nil {
			return fmt.Errorf("seed participant %s: %w", p.ID, err)
		}
	}
	return nil
}
