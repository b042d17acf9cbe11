package domain

import (
	"sort"
	"time"
)

// FreeSkips is the number of skips a participant can use without penalty.
const FreeSkips = 3

// SkipPenalty returns the score delta for a skip given the skips already used.
func SkipPenalty(skipCount int) int {
	if skipCount >= FreeSkips {
		return -1
	}
	return 0
}

// NextQuestion advances the pointer past answered without ever moving it back.
func NextQuestion(answered, current int) int {
	if answered >= current {
		return answered + 1
	}
	return current
}

// ApplyResolution computes the participant record after r. Stores call it
// inside their atomic section; resolved reports whether the question was
// already closed for this participant, in which case nothing changes.
func ApplyResolution(p Participant, r Resolution, resolved bool) Outcome {
	if resolved {
		return Outcome{Participant: p}
	}

	delta := 0
	switch r.Kind {
	case ResolutionCorrect:
		delta = r.Points
	case ResolutionSkipped:
		delta = SkipPenalty(p.SkipCount)
		p.SkipCount++
	}
	p.TotalScore += delta
	p.CurrentQuestion = NextQuestion(r.Question, p.CurrentQuestion)
	if !r.At.IsZero() {
		p.LastActivity = r.At
	}
	p.Version++
	return Outcome{Participant: p, Delta: delta, Applied: true}
}

// RanksBefore reports whether a ranks ahead of b on the leaderboard.
func RanksBefore(a, b Participant) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	if a.CurrentQuestion != b.CurrentQuestion {
		return a.CurrentQuestion > b.CurrentQuestion
	}
	if !a.LastActivity.Equal(b.LastActivity) {
		return a.LastActivity.After(b.LastActivity)
	}
	return a.ID < b.ID
}

// Listed reports whether p may appear on the leaderboard.
func Listed(p Participant) bool {
	return p.Active && p.NameConfirmed
}

// RankParticipants filters and orders participants, keeping at most n entries (n <= 0 keeps all).
func RankParticipants(participants []Participant, n int) []LeaderboardEntry {
	listed := make([]Participant, 0, len(participants))
	for _, p := range participants {
		if Listed(p) {
			listed = append(listed, p)
		}
	}
	sort.Slice(listed, func(i, j int) bool {
		return RanksBefore(listed[i], listed[j])
	})
	if n > 0 && len(listed) > n {
		listed = listed[:n]
	}
	return Entries(listed)
}

// Entries numbers already-ordered participants as leaderboard rows.
func Entries(ordered []Participant) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(ordered))
	for i, p := range ordered {
		entries = append(entries, LeaderboardEntry{
			Rank:            i + 1,
			ParticipantID:   p.ID,
			DisplayName:     p.DisplayName,
			TotalScore:      p.TotalScore,
			CurrentQuestion: p.CurrentQuestion,
			LastActivity:    p.LastActivity,
		})
	}
	return entries
}

// NewLeaderboard stamps entries with the refresh time.
func NewLeaderboard(entries []LeaderboardEntry, now time.Time) Leaderboard {
	return Leaderboard{Entries: entries, UpdatedAt: now}
}
