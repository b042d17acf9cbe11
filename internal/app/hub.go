package app

import (
	"sync"

	"physics-race-service/internal/domain"
)

// hub fans leaderboard snapshots out to subscribers. Each subscriber holds
// at most a small backlog; slow readers lose stale snapshots, never the latest.
type hub struct {
	mu          sync.Mutex
	latest      *domain.Leaderboard
	subscribers map[chan domain.Leaderboard]struct{}
}

func newHub() *hub {
	return &hub{subscribers: make(map[chan domain.Leaderboard]struct{})}
}

func (h *hub) subscribe(initial domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	if h.latest != nil && h.latest.UpdatedAt.After(initial.UpdatedAt) {
		initial = *h.latest
	}
	ch <- initial
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subscribers[ch]; ok {
				delete(h.subscribers, ch)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

func (h *hub) broadcast(lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = &lb
	for ch := range h.subscribers {
		select {
		case ch <- lb:
		default:
			// drop the oldest snapshot to make room for the newest
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
