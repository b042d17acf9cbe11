package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"physics-race-service/internal/domain"
)

// Player is the media element being driven: a browser video over a
// websocket in production, a fake in tests.
type Player interface {
	Play() error
	Pause() error
	Seek(at float64) error
	Mute(muted bool) error
	CurrentTime() float64
}

// StreamError reports a playback command that kept failing after retries.
type StreamError struct {
	Op  string
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, domain.ErrStream) match any StreamError.
func (e *StreamError) Is(target error) bool { return target == domain.ErrStream }

// Controller is a thin retrying wrapper over a Player. It holds no business logic.
type Controller struct {
	player   Player
	retries  uint64
	interval time.Duration
}

// NewController retries every command up to retries extra times, starting at interval.
func NewController(player Player, retries int, interval time.Duration) *Controller {
	if retries < 0 {
		retries = 0
	}
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Controller{player: player, retries: uint64(retries), interval: interval}
}

func (c *Controller) Play(ctx context.Context) error {
	return c.do(ctx, "play", c.player.Play)
}

func (c *Controller) Pause(ctx context.Context) error {
	return c.do(ctx, "pause", c.player.Pause)
}

func (c *Controller) Seek(ctx context.Context, at float64) error {
	return c.do(ctx, "seek", func() error { return c.player.Seek(at) })
}

func (c *Controller) Mute(ctx context.Context, muted bool) error {
	return c.do(ctx, "mute", func() error { return c.player.Mute(muted) })
}

func (c *Controller) CurrentTime() float64 {
	return c.player.CurrentTime()
}

// ReplayScene rewinds to the scene start and plays.
func (c *Controller) ReplayScene(ctx context.Context, q domain.Question) error {
	if err := c.Seek(ctx, q.SceneStart); err != nil {
		return err
	}
	return c.Play(ctx)
}

func (c *Controller) do(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.interval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)

	if err := backoff.Retry(fn, policy); err != nil {
		return &StreamError{Op: op, Err: err}
	}
	return nil
}
