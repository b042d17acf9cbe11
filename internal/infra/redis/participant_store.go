package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"physics-race-service/internal/domain"
)

const (
	participantsKey = "participants"
	maxTxRetries    = 16
)

// ParticipantStore keeps participant records shared by every server instance.
//
//	HSET participant:{id} name score current skips last active named version
//	SADD participant:{id}:resolved {question}
//	SADD participants {id}
//
// Resolutions run in an optimistic WATCH/MULTI transaction over the record
// and its resolved set.
type ParticipantStore struct {
	client *redis.Client
}

func NewParticipantStore(client *redis.Client) *ParticipantStore {
	return &ParticipantStore{client: client}
}

func (s *ParticipantStore) SaveParticipant(ctx context.Context, p domain.Participant) error {
	if p.CurrentQuestion < 1 {
		p.CurrentQuestion = 1
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, recordKey(p.ID), encodeParticipant(p))
		pipe.SAdd(ctx, participantsKey, p.ID)
		return nil
	})
	return err
}

func (s *ParticipantStore) GetParticipant(ctx context.Context, id string) (domain.Participant, error) {
	fields, err := s.client.HGetAll(ctx, recordKey(id)).Result()
	if err != nil {
		return domain.Participant{}, err
	}
	return decodeParticipant(id, fields)
}

func (s *ParticipantStore) ApplyResolution(ctx context.Context, id string, r domain.Resolution) (domain.Outcome, error) {
	key, ledger := recordKey(id), resolvedKey(id)

	for i := 0; i < maxTxRetries; i++ {
		var out domain.Outcome
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			fields, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			p, err := decodeParticipant(id, fields)
			if err != nil {
				return err
			}
			done, err := tx.SIsMember(ctx, ledger, r.Question).Result()
			if err != nil {
				return err
			}

			out = domain.ApplyResolution(p, r, done)
			if !out.Applied {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, encodeParticipant(out.Participant))
				pipe.SAdd(ctx, ledger, r.Question)
				return nil
			})
			return err
		}, key, ledger)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.Outcome{}, err
		}
		return out, nil
	}
	return domain.Outcome{}, fmt.Errorf("%w: participant %s is contended", domain.ErrCommitFailure, id)
}

func (s *ParticipantStore) Leaderboard(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	ids, err := s.client.SMembers(ctx, participantsKey).Result()
	if err != nil {
		return nil, err
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	pipe := s.client.Pipeline()
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, recordKey(id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
	}

	all := make([]domain.Participant, 0, len(ids))
	for i, cmd := range cmds {
		p, err := decodeParticipant(ids[i], cmd.Val())
		if err != nil {
			// removed between SMEMBERS and HGETALL
			continue
		}
		all = append(all, p)
	}
	return domain.RankParticipants(all, n), nil
}

func recordKey(id string) string {
	return "participant:" + id
}

func resolvedKey(id string) string {
	return "participant:" + id + ":resolved"
}

func encodeParticipant(p domain.Participant) map[string]interface{} {
	last := ""
	if !p.LastActivity.IsZero() {
		last = p.LastActivity.UTC().Format(time.RFC3339Nano)
	}
	return map[string]interface{}{
		"name":    p.DisplayName,
		"score":   p.TotalScore,
		"current": p.CurrentQuestion,
		"skips":   p.SkipCount,
		"last":    last,
		"active":  strconv.FormatBool(p.Active),
		"named":   strconv.FormatBool(p.NameConfirmed),
		"version": p.Version,
	}
}

func decodeParticipant(id string, fields map[string]string) (domain.Participant, error) {
	if len(fields) == 0 {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	p := domain.Participant{ID: id, DisplayName: fields["name"]}
	var err error
	if p.TotalScore, err = atoi(fields["score"]); err != nil {
		return p, fmt.Errorf("participant %s score: %w", id, err)
	}
	if p.CurrentQuestion, err = atoi(fields["current"]); err != nil {
		return p, fmt.Errorf("participant %s current question: %w", id, err)
	}
	if p.SkipCount, err = atoi(fields["skips"]); err != nil {
		return p, fmt.Errorf("participant %s skips: %w", id, err)
	}
	if raw := fields["version"]; raw != "" {
		if p.Version, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return p, fmt.Errorf("participant %s version: %w", id, err)
		}
	}
	if raw := fields["last"]; raw != "" {
		if p.LastActivity, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return p, fmt.Errorf("participant %s last activity: %w", id, err)
		}
	}
	p.Active, _ = strconv.ParseBool(fields["active"])
	p.NameConfirmed, _ = strconv.ParseBool(fields["named"])
	if p.CurrentQuestion < 1 {
		p.CurrentQuestion = 1
	}
	return p, nil
}

func atoi(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
