package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"physics-race-service/internal/domain"
)

type attemptRow struct {
	bun.BaseModel `bun:"table:answer_attempts"`

	ID             string    `bun:"id,pk,type:uuid"`
	ParticipantID  string    `bun:"participant_id,notnull"`
	QuestionNumber int       `bun:"question_number,notnull"`
	AttemptNumber  int       `bun:"attempt_number,notnull"`
	PointsEarned   int       `bun:"points_earned,notnull"`
	IsCorrect      bool      `bun:"is_correct,notnull"`
	IsSkipped      bool      `bun:"is_skipped,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

// AttemptLog appends answer attempts to the answer_attempts table.
type AttemptLog struct {
	db *bun.DB
}

func NewAttemptLog(db *bun.DB) *AttemptLog {
	return &AttemptLog{db: db}
}

func (l *AttemptLog) AppendAttempt(ctx context.Context, a domain.AnswerAttempt) error {
	row := attemptRow{
		ID:             a.ID,
		ParticipantID:  a.ParticipantID,
		QuestionNumber: a.QuestionNumber,
		AttemptNumber:  a.AttemptNumber,
		PointsEarned:   a.PointsEarned,
		IsCorrect:      a.IsCorrect,
		IsSkipped:      a.IsSkipped,
		CreatedAt:      a.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	res, err := l.db.NewInsert().
		Model(&row).
		On("CONFLICT (participant_id, question_number, attempt_number, is_skipped) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrDuplicateAttempt
	}
	return nil
}

// Attempts returns the logged attempts of one participant in order.
func (l *AttemptLog) Attempts(ctx context.Context, participantID string) ([]domain.AnswerAttempt, error) {
	var rows []attemptRow
	err := l.db.NewSelect().
		Model(&rows).
		Where("participant_id = ?", participantID).
		Order("question_number ASC", "attempt_number ASC", "created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	out := make([]domain.AnswerAttempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.AnswerAttempt{
			ID:             r.ID,
			ParticipantID:  r.ParticipantID,
			QuestionNumber: r.QuestionNumber,
			AttemptNumber:  r.AttemptNumber,
			PointsEarned:   r.PointsEarned,
			IsCorrect:      r.IsCorrect,
			IsSkipped:      r.IsSkipped,
			CreatedAt:      r.CreatedAt,
		})
	}
	return out, nil
}
