package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"physics-race-service/internal/domain"
)

// CatalogLoader loads the question catalog from Postgres.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT number, scene_start, scene_end, correct_answer, tolerance_pct, prompt FROM questions ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.Number, &q.SceneStart, &q.SceneEnd, &q.CorrectAnswer, &q.TolerancePct, &q.Prompt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return questions, nil
}

// ReplaceQuestions swaps the whole catalog in one transaction.
func (l *CatalogLoader) ReplaceQuestions(ctx context.Context, questions []domain.Question) error {
	return l.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM questions`); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, q := range questions {
			batch.Queue(`INSERT INTO questions (number, scene_start, scene_end, correct_answer, tolerance_pct, prompt) VALUES ($1, $2, $3, $4, $5, $6)`,
				q.Number, q.SceneStart, q.SceneEnd, q.CorrectAnswer, q.TolerancePct, q.Prompt)
		}
		results := tx.SendBatch(ctx, batch)
		for range questions {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("insert question: %w", err)
			}
		}
		return results.Close()
	})
}
