package engine

import (
	"fmt"

	"physics-race-service/internal/domain"
)

// State is one participant's position in the question lifecycle. The
// concrete types below are the only implementations.
type State interface {
	fmt.Stringer
	state()
}

// Playing: the video runs and the scene clock is armed. Replay is set when
// the participant rewound an open question; reopening it keeps the attempt.
type Playing struct {
	Replay *QuestionOpen
}

// QuestionOpen: playback paused, prompt shown, waiting for an answer.
type QuestionOpen struct {
	Question domain.Question
	Attempt  int
}

// Resolving: an answer or skip is being persisted; input is rejected.
type Resolving struct {
	Question domain.Question
	Attempt  int
	Step     step
}

// Cooldown: feedback is shown before playback resumes at Next.
type Cooldown struct {
	From domain.Question
	Next domain.Question
}

// Stalled: the stream failed; Resume is restored once it recovers.
type Stalled struct {
	Resume State
	Err    error
}

// Completed is terminal: every question has been resolved.
type Completed struct{}

func (Playing) state()      {}
func (QuestionOpen) state() {}
func (Resolving) state()    {}
func (Cooldown) state()     {}
func (Stalled) state()      {}
func (Completed) state()    {}

func (s Playing) String() string {
	if s.Replay != nil {
		return fmt.Sprintf("playing(replay q%d)", s.Replay.Question.Number)
	}
	return "playing"
}

func (s QuestionOpen) String() string {
	return fmt.Sprintf("question-open(q%d, attempt %d)", s.Question.Number, s.Attempt)
}

func (s Resolving) String() string {
	return fmt.Sprintf("resolving(q%d, %s)", s.Question.Number, s.Step)
}

func (s Cooldown) String() string {
	return fmt.Sprintf("cooldown(q%d -> q%d)", s.From.Number, s.Next.Number)
}

func (s Stalled) String() string {
	return fmt.Sprintf("stalled(%v)", s.Err)
}

func (Completed) String() string { return "completed" }

// step is the kind of work a Resolving state waits for.
type step int

const (
	stepRetry step = iota + 1
	stepCorrect
	stepExhausted
	stepSkip
)

func (s step) String() string {
	switch s {
	case stepRetry:
		return "retry"
	case stepCorrect:
		return "correct"
	case stepExhausted:
		return "exhausted"
	case stepSkip:
		return "skip"
	}
	return "unknown"
}

func (s step) resolution() (domain.ResolutionKind, bool) {
	switch s {
	case stepCorrect:
		return domain.ResolutionCorrect, true
	case stepExhausted:
		return domain.ResolutionExhausted, true
	case stepSkip:
		return domain.ResolutionSkipped, true
	}
	return 0, false
}

// Events fed to the transition function.
type (
	event interface{ event() }

	questionReached struct{ question domain.Question }
	submitted       struct{ value float64 }
	skipped         struct{}
	replayRequested struct{}
	// resolved carries the participant after persistence (authoritative or
	// optimistic) back into the machine.
	resolved        struct{ result persistResult }
	cooldownElapsed struct{}
	streamFailed    struct{ err error }
	streamRecovered struct{}
)

func (questionReached) event() {}
func (submitted) event()       {}
func (skipped) event()         {}
func (replayRequested) event() {}
func (resolved) event()        {}
func (cooldownElapsed) event() {}
func (streamFailed) event()    {}
func (streamRecovered) event() {}

// Effects returned by the transition function and executed by the runner.
type (
	effect interface{ effect() }

	pausePlayback struct{}
	stopPlayback  struct{}
	// resumePlayback plays from the current position, seeking first when seek is set.
	resumePlayback struct {
		seek bool
		at   float64
	}
	// replayScene rewinds to the open question's scene start and plays.
	replayScene  struct{ question domain.Question }
	holdClock    struct{}
	releaseClock struct{}
	showQuestion struct{ open QuestionOpen }
	persist      struct {
		question domain.Question
		attempt  int
		step     step
	}
	showFeedback  struct{ feedback Feedback }
	startCooldown struct{}
	notice        struct{ message string }
	complete      struct{}
)

func (pausePlayback) effect()  {}
func (stopPlayback) effect()   {}
func (resumePlayback) effect() {}
func (replayScene) effect()    {}
func (holdClock) effect()      {}
func (releaseClock) effect()   {}
func (showQuestion) effect()   {}
func (persist) effect()        {}
func (showFeedback) effect()   {}
func (startCooldown) effect()  {}
func (notice) effect()         {}
func (complete) effect()       {}

func isPlaybackEffect(e effect) bool {
	switch e.(type) {
	case pausePlayback, stopPlayback, resumePlayback, replayScene:
		return true
	}
	return false
}

// Feedback is what the participant sees after a submit or skip.
type Feedback struct {
	Question     int    `json:"question"`
	Attempt      int    `json:"attempt"`
	Correct      bool   `json:"correct"`
	Skipped      bool   `json:"skipped"`
	Exhausted    bool   `json:"exhausted"`
	Awarded      int    `json:"awarded"`
	AttemptsLeft int    `json:"attemptsLeft"`
	TotalScore   int    `json:"totalScore"`
	Notice       string `json:"notice,omitempty"`
}
