package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"physics-race-service/internal/catalog"
	"physics-race-service/internal/domain"
)

// ErrClosed is returned once the session has been torn down.
var ErrClosed = errors.New("engine session closed")

// Scoreboard persists resolutions and attempts. app.Synchronizer implements it.
type Scoreboard interface {
	Commit(ctx context.Context, participantID string, r domain.Resolution) (domain.Outcome, error)
	Append(ctx context.Context, attempt domain.AnswerAttempt) error
}

// Config tunes one engine session.
type Config struct {
	Cooldown      time.Duration
	CommitTimeout time.Duration
	Lookback      float64
	Lookahead     float64
	StreamRetries int
	RetryInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Cooldown:      2 * time.Second,
		CommitTimeout: 5 * time.Second,
		Lookback:      DefaultLookback,
		Lookahead:     DefaultLookahead,
		StreamRetries: 3,
		RetryInterval: 250 * time.Millisecond,
	}
}

// Hooks let the host page mirror engine state in its own chrome. Nil hooks are skipped.
type Hooks struct {
	OnScoreChange       func(total int)
	OnParticipantChange func(p domain.Participant)
	OnQuestion          func(q domain.Question, attempt int)
	OnFeedback          func(f Feedback)
	OnNotice            func(message string)
	OnCompleted         func(p domain.Participant)
}

type persistResult struct {
	question domain.Question
	attempt  int
	step     step
	outcome  domain.Outcome
	err      error
}

// Machine drives one participant through the catalog. Every state change
// goes through transition; effects run after the lock is released so input
// arriving during I/O observes Resolving and is rejected.
type Machine struct {
	catalog *catalog.Catalog
	clock   *SceneClock
	player  *Controller
	board   Scoreboard
	cfg     Config
	hooks   Hooks
	now     func() time.Time

	mu          sync.Mutex
	state       State
	participant domain.Participant
	ctx         context.Context
	timer       *time.Timer
	closed      bool
}

// NewMachine prepares a session for p, which must be freshly read from the store.
func NewMachine(cat *catalog.Catalog, p domain.Participant, player Player, board Scoreboard, cfg Config, hooks Hooks) *Machine {
	return &Machine{
		catalog:     cat,
		clock:       NewSceneClock(cat, cfg.Lookback, cfg.Lookahead),
		player:      NewController(player, cfg.StreamRetries, cfg.RetryInterval),
		board:       board,
		cfg:         cfg,
		hooks:       hooks,
		now:         time.Now,
		state:       Playing{},
		participant: p,
		ctx:         context.Background(),
	}
}

// Start positions playback at the participant's current question, or
// completes immediately when every question is already resolved.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	var effects []effect
	if m.participant.CurrentQuestion > m.catalog.Len() {
		m.state = Completed{}
		effects = []effect{stopPlayback{}, complete{}}
	} else {
		q, _ := m.catalog.FindByNumber(m.frontier())
		m.state = Playing{}
		effects = []effect{resumePlayback{seek: true, at: q.SceneStart}}
	}
	m.mu.Unlock()

	_, err := m.run(ctx, effects)
	return err
}

// Observe feeds one playback position sample from the player.
func (m *Machine) Observe(ctx context.Context, t float64) error {
	m.mu.Lock()
	if _, ok := m.state.(Playing); !ok || m.closed {
		m.mu.Unlock()
		return nil
	}
	q, reached := m.clock.Observe(t)
	m.mu.Unlock()
	if !reached {
		return nil
	}
	_, err := m.dispatch(ctx, questionReached{question: q})
	return err
}

// Submit evaluates a raw answer for the open question. Invalid input is
// rejected before it can consume an attempt.
func (m *Machine) Submit(ctx context.Context, raw string) (Feedback, error) {
	value, err := ParseAnswer(raw)
	if err != nil {
		return Feedback{}, err
	}
	return m.dispatch(ctx, submitted{value: value})
}

// Skip forfeits the open question.
func (m *Machine) Skip(ctx context.Context) (Feedback, error) {
	return m.dispatch(ctx, skipped{})
}

// ReplayScene rewinds the open question's scene without spending an attempt.
func (m *Machine) ReplayScene(ctx context.Context) error {
	_, err := m.dispatch(ctx, replayRequested{})
	return err
}

// Mute toggles audio; it has no effect on progression.
func (m *Machine) Mute(ctx context.Context, muted bool) error {
	return m.player.Mute(ctx, muted)
}

// StreamFailed halts progression after the player reported a broken stream.
func (m *Machine) StreamFailed(ctx context.Context, cause error) {
	if _, err := m.dispatch(ctx, streamFailed{err: &StreamError{Op: "report", Err: cause}}); err != nil && !errors.Is(err, ErrClosed) {
		log.Printf("stream failure for %s: %v", m.Participant().ID, err)
	}
}

// Recover re-seeks the stream and, when that works, lifts the stall.
func (m *Machine) Recover(ctx context.Context) error {
	m.mu.Lock()
	stalled, ok := m.state.(Stalled)
	at := m.player.CurrentTime()
	if _, playing := stalled.Resume.(Playing); ok && playing {
		if q, found := m.catalog.FindByNumber(m.frontier()); found && at < q.SceneStart {
			at = q.SceneStart
		}
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if err := m.player.Seek(ctx, at); err != nil {
		m.hooks.notice("the video is still unavailable")
		return err
	}
	_, err := m.dispatch(ctx, streamRecovered{})
	return err
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Participant returns the engine's latest view of the participant record.
func (m *Machine) Participant() domain.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.participant
}

// Close stops pending timers; later input fails with ErrClosed.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
	}
}

func (m *Machine) dispatch(ctx context.Context, ev event) (Feedback, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Feedback{}, ErrClosed
	}

	var changed *domain.Participant
	prevScore := m.participant.TotalScore
	if r, ok := ev.(resolved); ok && r.result.step != stepRetry {
		// the participant is replaced before the transition reads the frontier
		m.participant = r.result.outcome.Participant
		p := m.participant
		changed = &p
	}

	next, effects, err := m.transition(m.state, ev)
	if err != nil {
		m.mu.Unlock()
		return Feedback{}, err
	}
	m.state = next
	m.mu.Unlock()

	if changed != nil {
		m.hooks.participantChanged(*changed)
		if changed.TotalScore != prevScore {
			m.hooks.scoreChanged(changed.TotalScore)
		}
	}
	return m.run(ctx, effects)
}

// transition is the single authority on state changes. It reads the
// participant and catalog but performs no I/O. Callers hold m.mu.
func (m *Machine) transition(s State, ev event) (State, []effect, error) {
	if f, ok := ev.(streamFailed); ok {
		switch cur := s.(type) {
		case Completed:
			return s, nil, nil
		case Stalled:
			cur.Err = f.err
			return cur, nil, nil
		}
		return Stalled{Resume: s, Err: f.err}, []effect{notice{message: "the video stream was interrupted; progression is paused until it recovers"}}, nil
	}

	switch cur := s.(type) {
	case Playing:
		return m.fromPlaying(cur, ev)
	case QuestionOpen:
		return m.fromQuestionOpen(cur, ev)
	case Resolving:
		return m.fromResolving(cur, ev)
	case Cooldown:
		return m.fromCooldown(cur, ev)
	case Stalled:
		return m.fromStalled(cur, ev)
	case Completed:
		switch ev.(type) {
		case submitted, skipped, replayRequested:
			return s, nil, domain.ErrCompleted
		}
		return s, nil, nil
	}
	return s, nil, fmt.Errorf("unknown state %v", s)
}

func (m *Machine) fromPlaying(cur Playing, ev event) (State, []effect, error) {
	switch e := ev.(type) {
	case questionReached:
		frontier := m.frontier()
		switch {
		case e.question.Number < frontier:
			return cur, nil, nil
		case e.question.Number > frontier:
			// jumped past an unresolved scene: back to the frontier
			q, _ := m.catalog.FindByNumber(frontier)
			return cur, []effect{resumePlayback{seek: true, at: q.SceneStart}}, nil
		}
		open := QuestionOpen{Question: e.question, Attempt: 1}
		if cur.Replay != nil && cur.Replay.Question.Number == e.question.Number {
			open.Attempt = cur.Replay.Attempt
		}
		return open, []effect{pausePlayback{}, holdClock{}, showQuestion{open: open}}, nil
	case submitted, skipped, replayRequested:
		return cur, nil, domain.ErrNoOpenQuestion
	}
	return cur, nil, nil
}

func (m *Machine) fromQuestionOpen(cur QuestionOpen, ev event) (State, []effect, error) {
	switch e := ev.(type) {
	case submitted:
		st := stepRetry
		switch {
		case Evaluate(cur.Question, e.value):
			st = stepCorrect
		case cur.Attempt >= MaxAttempts:
			st = stepExhausted
		}
		return Resolving{Question: cur.Question, Attempt: cur.Attempt, Step: st},
			[]effect{persist{question: cur.Question, attempt: cur.Attempt, step: st}}, nil
	case skipped:
		return Resolving{Question: cur.Question, Attempt: cur.Attempt, Step: stepSkip},
			[]effect{persist{question: cur.Question, attempt: cur.Attempt, step: stepSkip}}, nil
	case replayRequested:
		open := cur
		return Playing{Replay: &open}, []effect{releaseClock{}, replayScene{question: cur.Question}}, nil
	}
	return cur, nil, nil
}

func (m *Machine) fromResolving(cur Resolving, ev event) (State, []effect, error) {
	switch e := ev.(type) {
	case submitted, skipped, replayRequested:
		return cur, nil, domain.ErrBusy
	case resolved:
		r := e.result
		fb := Feedback{
			Question:   r.question.Number,
			Attempt:    r.attempt,
			TotalScore: m.participant.TotalScore,
		}
		var effects []effect
		if r.err != nil {
			fb.Notice = "your result could not be saved right now; the competition continues"
			effects = append(effects, notice{message: fb.Notice})
		} else if r.step != stepRetry && !r.outcome.Applied {
			fb.Notice = fmt.Sprintf("question %d was already resolved in another session", r.question.Number)
			effects = append(effects, notice{message: fb.Notice})
		}

		if r.step == stepRetry {
			fb.AttemptsLeft = MaxAttempts - r.attempt
			open := QuestionOpen{Question: cur.Question, Attempt: cur.Attempt + 1}
			return open, append(effects, showFeedback{feedback: fb}), nil
		}

		fb.Correct = r.step == stepCorrect
		fb.Skipped = r.step == stepSkip
		fb.Exhausted = r.step == stepExhausted
		fb.Awarded = r.outcome.Delta
		effects = append(effects, showFeedback{feedback: fb})

		next, ok := m.catalog.FindByNumber(m.frontier())
		if !ok {
			return Completed{}, append(effects, releaseClock{}, stopPlayback{}, complete{}), nil
		}
		return Cooldown{From: cur.Question, Next: next}, append(effects, startCooldown{}), nil
	}
	return cur, nil, nil
}

func (m *Machine) fromCooldown(cur Cooldown, ev event) (State, []effect, error) {
	switch ev.(type) {
	case submitted, skipped, replayRequested:
		return cur, nil, domain.ErrBusy
	case cooldownElapsed:
		contiguous := cur.Next.SceneStart >= cur.From.SceneStart && cur.Next.SceneStart <= cur.From.SceneEnd+m.cfg.Lookahead
		return Playing{}, []effect{releaseClock{}, resumePlayback{seek: !contiguous, at: cur.Next.SceneStart}}, nil
	}
	return cur, nil, nil
}

func (m *Machine) fromStalled(cur Stalled, ev event) (State, []effect, error) {
	switch ev.(type) {
	case submitted, skipped, replayRequested:
		return cur, nil, domain.ErrStreamHalted
	case streamRecovered:
		if _, ok := cur.Resume.(Playing); ok {
			return cur.Resume, []effect{resumePlayback{}}, nil
		}
		return cur.Resume, nil, nil
	}

	// persistence and timers keep flowing underneath the stall; only
	// playback commands wait for the stream
	inner, effects, err := m.transition(cur.Resume, ev)
	if err != nil {
		return cur, nil, err
	}
	kept := effects[:0]
	for _, e := range effects {
		if !isPlaybackEffect(e) {
			kept = append(kept, e)
		}
	}
	if _, done := inner.(Completed); done {
		return inner, kept, nil
	}
	return Stalled{Resume: inner, Err: cur.Err}, kept, nil
}

// run executes effects in order. Playback failures halt progression.
func (m *Machine) run(ctx context.Context, effects []effect) (Feedback, error) {
	var fb Feedback
	var streamErr error
	for _, e := range effects {
		if streamErr != nil && isPlaybackEffect(e) {
			continue
		}
		switch e := e.(type) {
		case pausePlayback, stopPlayback:
			streamErr = m.player.Pause(ctx)
		case resumePlayback:
			if e.seek {
				m.clock.Rearm()
				streamErr = m.player.Seek(ctx, e.at)
			}
			if streamErr == nil {
				streamErr = m.player.Play(ctx)
			}
		case replayScene:
			m.clock.Rearm()
			streamErr = m.player.ReplayScene(ctx, e.question)
		case holdClock:
			m.clock.Hold()
		case releaseClock:
			m.clock.Release()
		case showQuestion:
			m.hooks.question(e.open.Question, e.open.Attempt)
		case persist:
			inner, err := m.dispatch(ctx, resolved{result: m.persist(ctx, e)})
			if err != nil {
				return fb, err
			}
			fb = inner
		case showFeedback:
			fb = e.feedback
			m.hooks.feedback(e.feedback)
		case startCooldown:
			m.scheduleCooldown()
		case notice:
			m.hooks.notice(e.message)
		case complete:
			p := m.Participant()
			log.Printf("participant %s completed with %d points", p.ID, p.TotalScore)
			m.hooks.completed(p)
		}
	}

	if streamErr != nil {
		log.Printf("playback failed for %s: %v", m.Participant().ID, streamErr)
		if _, err := m.dispatch(ctx, streamFailed{err: streamErr}); err != nil && !errors.Is(err, ErrClosed) {
			return fb, err
		}
		return fb, streamErr
	}
	return fb, nil
}

// persist commits the resolution (if any) and appends the attempt. A store
// failure never blocks the competitor: the resolution is applied locally,
// the host is notified, and playback resumes. The store stays authoritative
// on the next reload, so a failed commit can under-count but never double-count.
func (m *Machine) persist(ctx context.Context, e persist) persistResult {
	p := m.Participant()
	now := m.now()
	result := persistResult{
		question: e.question,
		attempt:  e.attempt,
		step:     e.step,
		outcome:  domain.Outcome{Participant: p},
	}
	attempt := domain.AnswerAttempt{
		ID:             uuid.NewString(),
		ParticipantID:  p.ID,
		QuestionNumber: e.question.Number,
		AttemptNumber:  e.attempt,
		IsCorrect:      e.step == stepCorrect,
		IsSkipped:      e.step == stepSkip,
		CreatedAt:      now,
	}

	if kind, ok := e.step.resolution(); ok {
		r := domain.Resolution{Kind: kind, Question: e.question.Number, At: now}
		if kind == domain.ResolutionCorrect {
			r.Points = PointsForAttempt(e.attempt)
		}
		commitCtx, cancel := context.WithTimeout(ctx, m.cfg.CommitTimeout)
		out, err := m.board.Commit(commitCtx, p.ID, r)
		cancel()
		if err != nil {
			log.Printf("commit q%d for %s failed: %v", e.question.Number, p.ID, err)
			result.err = fmt.Errorf("%w: %w", domain.ErrCommitFailure, err)
			out = domain.ApplyResolution(p, r, false)
		}
		result.outcome = out
		attempt.PointsEarned = out.Delta
	}

	appendCtx, cancel := context.WithTimeout(ctx, m.cfg.CommitTimeout)
	defer cancel()
	if err := m.board.Append(appendCtx, attempt); err != nil && !errors.Is(err, domain.ErrDuplicateAttempt) {
		log.Printf("append attempt q%d#%d for %s failed: %v", attempt.QuestionNumber, attempt.AttemptNumber, p.ID, err)
		if result.err == nil {
			result.err = fmt.Errorf("%w: %w", domain.ErrCommitFailure, err)
		}
	}
	return result
}

func (m *Machine) scheduleCooldown() {
	if m.cfg.Cooldown <= 0 {
		m.elapse()
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.timer = time.AfterFunc(m.cfg.Cooldown, m.elapse)
}

func (m *Machine) elapse() {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	if _, err := m.dispatch(ctx, cooldownElapsed{}); err != nil && !errors.Is(err, ErrClosed) {
		log.Printf("resume after cooldown: %v", err)
	}
}

// frontier is the participant's current question, never below 1. Callers hold m.mu.
func (m *Machine) frontier() int {
	return max(1, m.participant.CurrentQuestion)
}

func (h Hooks) scoreChanged(total int) {
	if h.OnScoreChange != nil {
		h.OnScoreChange(total)
	}
}

func (h Hooks) participantChanged(p domain.Participant) {
	if h.OnParticipantChange != nil {
		h.OnParticipantChange(p)
	}
}

func (h Hooks) question(q domain.Question, attempt int) {
	if h.OnQuestion != nil {
		h.OnQuestion(q, attempt)
	}
}

func (h Hooks) feedback(f Feedback) {
	if h.OnFeedback != nil {
		h.OnFeedback(f)
	}
}

func (h Hooks) notice(message string) {
	if h.OnNotice != nil {
		h.OnNotice(message)
	}
}

func (h Hooks) completed(p domain.Participant) {
	if h.OnCompleted != nil {
		h.OnCompleted(p)
	}
}
