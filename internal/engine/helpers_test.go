package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"physics-race-service/internal/catalog"
	"physics-race-service/internal/domain"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]domain.Question{
		{Number: 1, SceneStart: 0, SceneEnd: 30, CorrectAnswer: 3, Prompt: "How many seconds does the ball fly?"},
		{Number: 2, SceneStart: 30, SceneEnd: 60, CorrectAnswer: 9.81, TolerancePct: 2, Prompt: "Estimate g."},
		{Number: 3, SceneStart: 75, SceneEnd: 90, CorrectAnswer: 100, TolerancePct: 5, Prompt: "Speed in m/s?"},
		{Number: 4, SceneStart: 90, SceneEnd: 120, CorrectAnswer: 42},
		{Number: 5, SceneStart: 120, SceneEnd: 150, CorrectAnswer: 7},
		{Number: 6, SceneStart: 150, SceneEnd: 180, CorrectAnswer: 0, TolerancePct: 10},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Cooldown = 0
	cfg.CommitTimeout = 2 * time.Second
	cfg.StreamRetries = 1
	cfg.RetryInterval = time.Millisecond
	return cfg
}

type fakePlayer struct {
	mu       sync.Mutex
	calls    []string
	position float64
	failSeek bool
}

func (p *fakePlayer) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fakePlayer) Play() error {
	p.record("play")
	return nil
}

func (p *fakePlayer) Pause() error {
	p.record("pause")
	return nil
}

func (p *fakePlayer) Seek(at float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSeek {
		return errors.New("media error")
	}
	p.calls = append(p.calls, fmt.Sprintf("seek %g", at))
	p.position = at
	return nil
}

func (p *fakePlayer) Mute(muted bool) error {
	p.record(fmt.Sprintf("mute %t", muted))
	return nil
}

func (p *fakePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *fakePlayer) setFailSeek(fail bool) {
	p.mu.Lock()
	p.failSeek = fail
	p.mu.Unlock()
}

// reset forgets recorded calls and returns them.
func (p *fakePlayer) reset() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	calls := p.calls
	p.calls = nil
	return calls
}

type fakeBoard struct {
	mu          sync.Mutex
	participant domain.Participant
	resolved    map[int]bool
	attempts    []domain.AnswerAttempt
	commitErr   error
	entered     chan struct{}
	gate        chan struct{}
}

func newFakeBoard(p domain.Participant) *fakeBoard {
	return &fakeBoard{participant: p, resolved: make(map[int]bool)}
}

func (b *fakeBoard) Commit(ctx context.Context, _ string, r domain.Resolution) (domain.Outcome, error) {
	if b.gate != nil {
		b.entered <- struct{}{}
		select {
		case <-b.gate:
		case <-ctx.Done():
			return domain.Outcome{}, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.commitErr != nil {
		return domain.Outcome{}, b.commitErr
	}
	out := domain.ApplyResolution(b.participant, r, b.resolved[r.Question])
	if out.Applied {
		b.participant = out.Participant
		b.resolved[r.Question] = true
	}
	return out, nil
}

func (b *fakeBoard) Append(_ context.Context, a domain.AnswerAttempt) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = append(b.attempts, a)
	return nil
}

func (b *fakeBoard) loggedAttempts() []domain.AnswerAttempt {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.AnswerAttempt, len(b.attempts))
	copy(out, b.attempts)
	return out
}

type recorder struct {
	mu        sync.Mutex
	scores    []int
	questions []int
	notices   []string
	completed int
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnScoreChange: func(total int) {
			r.mu.Lock()
			r.scores = append(r.scores, total)
			r.mu.Unlock()
		},
		OnQuestion: func(q domain.Question, _ int) {
			r.mu.Lock()
			r.questions = append(r.questions, q.Number)
			r.mu.Unlock()
		},
		OnNotice: func(message string) {
			r.mu.Lock()
			r.notices = append(r.notices, message)
			r.mu.Unlock()
		},
		OnCompleted: func(domain.Participant) {
			r.mu.Lock()
			r.completed++
			r.mu.Unlock()
		},
	}
}

type harness struct {
	machine *Machine
	player  *fakePlayer
	board   *fakeBoard
	events  *recorder
}

func newHarness(t *testing.T, p domain.Participant) *harness {
	t.Helper()
	h := &harness{
		player: &fakePlayer{},
		board:  newFakeBoard(p),
		events: &recorder{},
	}
	h.machine = NewMachine(testCatalog(t), p, h.player, h.board, testConfig(), h.events.hooks())
	t.Cleanup(h.machine.Close)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.machine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func (h *harness) openAt(t *testing.T, sample float64) QuestionOpen {
	t.Helper()
	if err := h.machine.Observe(context.Background(), sample); err != nil {
		t.Fatalf("observe %g: %v", sample, err)
	}
	open, ok := h.machine.State().(QuestionOpen)
	if !ok {
		t.Fatalf("expected open question at %g, state is %v", sample, h.machine.State())
	}
	return open
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
