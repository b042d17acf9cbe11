package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceStore marks live engine sessions per participant so every
// instance can tell when a competitor has more than one tab open.
// Sets expire after ttl as a best-effort liveness marker for crashed instances.
type PresenceStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresenceStore(client *redis.Client, ttl time.Duration) *PresenceStore {
	return &PresenceStore{client: client, ttl: ttl}
}

func (s *PresenceStore) Register(ctx context.Context, participantID, sessionID string) (int, error) {
	key := s.key(participantID)
	var card *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, sessionID)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		card = pipe.SCard(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}

func (s *PresenceStore) Release(ctx context.Context, participantID, sessionID string) error {
	return s.client.SRem(ctx, s.key(participantID), sessionID).Err()
}

func (s *PresenceStore) key(participantID string) string {
	return "presence:" + participantID
}
