package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"physics-race-service/internal/domain"
)

const selectParticipant = `SELECT id, display_name, total_score, current_question, skip_count, last_activity, active, name_confirmed, version FROM participants`

// ParticipantStore keeps participant records in Postgres. A resolution
// locks the participant row and claims (participant, question) in
// question_resolutions; a lost claim means another session got there first.
type ParticipantStore struct {
	pool *pgxpool.Pool
}

func NewParticipantStore(pool *pgxpool.Pool) *ParticipantStore {
	return &ParticipantStore{pool: pool}
}

func (s *ParticipantStore) SaveParticipant(ctx context.Context, p domain.Participant) error {
	if p.CurrentQuestion < 1 {
		p.CurrentQuestion = 1
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO participants (id, display_name, total_score, current_question, skip_count, last_activity, active, name_confirmed, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	display_name = EXCLUDED.display_name,
	total_score = EXCLUDED.total_score,
	current_question = EXCLUDED.current_question,
	skip_count = EXCLUDED.skip_count,
	last_activity = EXCLUDED.last_activity,
	active = EXCLUDED.active,
	name_confirmed = EXCLUDED.name_confirmed,
	version = EXCLUDED.version`,
		p.ID, p.DisplayName, p.TotalScore, p.CurrentQuestion, p.SkipCount, nullTime(p.LastActivity), p.Active, p.NameConfirmed, p.Version)
	if err != nil {
		return fmt.Errorf("save participant %s: %w", p.ID, err)
	}
	return nil
}

func (s *ParticipantStore) GetParticipant(ctx context.Context, id string) (domain.Participant, error) {
	return scanParticipant(s.pool.QueryRow(ctx, selectParticipant+` WHERE id = $1`, id))
}

func (s *ParticipantStore) ApplyResolution(ctx context.Context, id string, r domain.Resolution) (domain.Outcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Outcome{}, err
	}
	defer tx.Rollback(ctx)

	p, err := scanParticipant(tx.QueryRow(ctx, selectParticipant+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return domain.Outcome{}, err
	}

	out := domain.ApplyResolution(p, r, false)
	tag, err := tx.Exec(ctx, `
INSERT INTO question_resolutions (participant_id, question_number, kind, points, resolved_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (participant_id, question_number) DO NOTHING`,
		id, r.Question, r.Kind.String(), out.Delta, nullTime(r.At))
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("claim question %d: %w", r.Question, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ApplyResolution(p, r, true), nil
	}

	np := out.Participant
	_, err = tx.Exec(ctx, `
UPDATE participants SET total_score = $2, current_question = $3, skip_count = $4, last_activity = $5, version = $6
WHERE id = $1`,
		id, np.TotalScore, np.CurrentQuestion, np.SkipCount, nullTime(np.LastActivity), np.Version)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("update participant %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Outcome{}, err
	}
	return out, nil
}

func (s *ParticipantStore) Leaderboard(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	var limit interface{}
	if n > 0 {
		limit = n
	}
	rows, err := s.pool.Query(ctx, selectParticipant+`
WHERE active AND name_confirmed
ORDER BY total_score DESC, current_question DESC, last_activity DESC NULLS LAST, id ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var ordered []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return domain.Entries(ordered), nil
}

func scanParticipant(row pgx.Row) (domain.Participant, error) {
	var p domain.Participant
	var last *time.Time
	err := row.Scan(&p.ID, &p.DisplayName, &p.TotalScore, &p.CurrentQuestion, &p.SkipCount, &last, &p.Active, &p.NameConfirmed, &p.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, domain.ErrParticipantNotFound
	}
	if err != nil {
		return p, fmt.Errorf("scan participant: %w", err)
	}
	if last != nil {
		p.LastActivity = *last
	}
	return p, nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
