package redis

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultChangeChannel carries the ids of participants whose record changed.
const DefaultChangeChannel = "competition:participants"

// ChangeFeed routes participant change notifications across instances via Redis pub/sub.
type ChangeFeed struct {
	client  *redis.Client
	channel string
}

func NewChangeFeed(client *redis.Client, channel string) *ChangeFeed {
	if channel == "" {
		channel = DefaultChangeChannel
	}
	return &ChangeFeed{client: client, channel: channel}
}

func (f *ChangeFeed) Publish(ctx context.Context, participantID string) error {
	return f.client.Publish(ctx, f.channel, participantID).Err()
}

// Listen subscribes and waits for the confirmation before returning, so no
// publish after Listen returns is missed.
func (f *ChangeFeed) Listen(ctx context.Context) (<-chan string, func(), error) {
	sub := f.client.Subscribe(ctx, f.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan string, 64)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				default:
				}
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}, nil
}
