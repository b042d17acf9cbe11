package domain

import (
	"fmt"
	"time"
)

// Question is one physics question bound to a scene of the competition video.
// Scene bounds are seconds from the start of the stream.
type Question struct {
	Number        int     `json:"number" yaml:"number"`
	SceneStart    float64 `json:"sceneStart" yaml:"sceneStart"`
	SceneEnd      float64 `json:"sceneEnd" yaml:"sceneEnd"`
	CorrectAnswer float64 `json:"correctAnswer" yaml:"correctAnswer"`
	TolerancePct  float64 `json:"tolerancePct" yaml:"tolerancePct"`
	Prompt        string  `json:"prompt" yaml:"prompt"`
}

// Participant is the authoritative competitor record held by the shared store.
type Participant struct {
	ID              string    `json:"id" yaml:"id"`
	DisplayName     string    `json:"displayName" yaml:"displayName"`
	TotalScore      int       `json:"totalScore" yaml:"totalScore"`
	CurrentQuestion int       `json:"currentQuestion" yaml:"currentQuestion"`
	SkipCount       int       `json:"skipCount" yaml:"skipCount"`
	LastActivity    time.Time `json:"lastActivity" yaml:"lastActivity"`
	Active          bool      `json:"active" yaml:"active"`
	NameConfirmed   bool      `json:"nameConfirmed" yaml:"nameConfirmed"`
	Version         int64     `json:"version" yaml:"-"`
}

// ResolutionKind tells how a question was closed for a participant.
type ResolutionKind int

const (
	ResolutionCorrect ResolutionKind = iota + 1
	ResolutionExhausted
	ResolutionSkipped
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionCorrect:
		return "correct"
	case ResolutionExhausted:
		return "exhausted"
	case ResolutionSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("resolution(%d)", int(k))
	}
}

// ParseResolutionKind is the inverse of ResolutionKind.String.
func ParseResolutionKind(raw string) (ResolutionKind, error) {
	switch raw {
	case "correct":
		return ResolutionCorrect, nil
	case "exhausted":
		return ResolutionExhausted, nil
	case "skipped":
		return ResolutionSkipped, nil
	}
	return 0, fmt.Errorf("unknown resolution kind %q", raw)
}

// Resolution is the single mutation committed when a question closes.
// Points is only read for ResolutionCorrect; the skip penalty is derived
// from the stored skip count inside the atomic update.
type Resolution struct {
	Kind     ResolutionKind
	Question int
	Points   int
	At       time.Time
}

// Outcome reports what the store actually applied for a Resolution.
type Outcome struct {
	Participant Participant
	Delta       int
	Applied     bool
}

// AnswerAttempt is one row of the append-only attempt log.
type AnswerAttempt struct {
	ID             string    `json:"id"`
	ParticipantID  string    `json:"participantId"`
	QuestionNumber int       `json:"questionNumber"`
	AttemptNumber  int       `json:"attemptNumber"`
	PointsEarned   int       `json:"pointsEarned"`
	IsCorrect      bool      `json:"isCorrect"`
	IsSkipped      bool      `json:"isSkipped"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Key identifies retried writes of the same attempt.
func (a AnswerAttempt) Key() string {
	return fmt.Sprintf("%s:%d:%d:%t", a.ParticipantID, a.QuestionNumber, a.AttemptNumber, a.IsSkipped)
}

// LeaderboardEntry is a ranked, read-only projection of a Participant.
type LeaderboardEntry struct {
	Rank            int       `json:"rank"`
	ParticipantID   string    `json:"participantId"`
	DisplayName     string    `json:"displayName"`
	TotalScore      int       `json:"totalScore"`
	CurrentQuestion int       `json:"currentQuestion"`
	LastActivity    time.Time `json:"lastActivity"`
}

// Leaderboard captures the ordered scoreboard at a point in time.
type Leaderboard struct {
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
