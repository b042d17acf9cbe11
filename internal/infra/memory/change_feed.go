package memory

import (
	"context"
	"sync"
)

// ChangeFeed fans participant change notifications out within one process.
// A listener that falls behind misses notifications; the leaderboard poll covers that.
type ChangeFeed struct {
	mu        sync.Mutex
	listeners map[chan string]struct{}
}

func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{listeners: make(map[chan string]struct{})}
}

func (f *ChangeFeed) Publish(_ context.Context, participantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.listeners {
		select {
		case ch <- participantID:
		default:
		}
	}
	return nil
}

func (f *ChangeFeed) Listen(ctx context.Context) (<-chan string, func(), error) {
	ch := make(chan string, 64)
	f.mu.Lock()
	f.listeners[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, ch)
			close(ch)
			f.mu.Unlock()
		})
	}
	stop := context.AfterFunc(ctx, cancel)
	return ch, func() {
		stop()
		cancel()
	}, nil
}
