package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"physics-race-service/internal/domain"
)

// AttemptLog appends attempts to a per-participant list:
//
//	RPUSH attempts:{participantID} {attempt json}
//
// A SETNX marker per attempt key turns retried writes into ErrDuplicateAttempt.
type AttemptLog struct {
	client *redis.Client
	// markerTTL bounds how long retried writes are recognised (0 keeps markers).
	markerTTL time.Duration
}

func NewAttemptLog(client *redis.Client, markerTTL time.Duration) *AttemptLog {
	return &AttemptLog{client: client, markerTTL: markerTTL}
}

func (l *AttemptLog) AppendAttempt(ctx context.Context, a domain.AnswerAttempt) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	marker := "attempt:" + a.Key()
	fresh, err := l.client.SetNX(ctx, marker, a.ID, l.markerTTL).Result()
	if err != nil {
		return err
	}
	if !fresh {
		return domain.ErrDuplicateAttempt
	}
	if err := l.client.RPush(ctx, attemptsKey(a.ParticipantID), raw).Err(); err != nil {
		// the row was not written, so a retry must not look like a duplicate
		if delErr := l.client.Del(context.WithoutCancel(ctx), marker).Err(); delErr != nil {
			log.Printf("release attempt marker %s: %v", marker, delErr)
		}
		return fmt.Errorf("append attempt %s: %w", a.Key(), err)
	}
	return nil
}

// Attempts returns the logged attempts of one participant in order.
func (l *AttemptLog) Attempts(ctx context.Context, participantID string) ([]domain.AnswerAttempt, error) {
	rows, err := l.client.LRange(ctx, attemptsKey(participantID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.AnswerAttempt, 0, len(rows))
	for _, raw := range rows {
		var a domain.AnswerAttempt
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func attemptsKey(participantID string) string {
	return "attempts:" + participantID
}
