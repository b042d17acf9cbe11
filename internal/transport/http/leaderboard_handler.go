package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"physics-race-service/internal/app"
)

// LeaderboardHandler serves the read-only leaderboard view.
type LeaderboardHandler struct {
	sync     *app.Synchronizer
	upgrader websocket.Upgrader
}

func NewLeaderboardHandler(sync *app.Synchronizer) *LeaderboardHandler {
	return &LeaderboardHandler{sync: sync, upgrader: newUpgrader()}
}

// ServeJSON returns the current top n (?n=, default 50).
func (h *LeaderboardHandler) ServeJSON(w http.ResponseWriter, r *http.Request) {
	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			http.Error(w, "invalid n", http.StatusBadRequest)
			return
		}
		n = v
	}
	lb, err := h.sync.FetchTop(r.Context(), n)
	if err != nil {
		log.Printf("fetch leaderboard: %v", err)
		http.Error(w, "leaderboard unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(lb); err != nil {
		log.Printf("encode leaderboard: %v", err)
	}
}

// ServeWS streams leaderboard snapshots until the client goes away.
func (h *LeaderboardHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel, err := h.sync.Subscribe(r.Context())
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: toErrorPayload(err)})
		return
	}
	defer cancel()

	// the reader only notices the client closing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage[any]{Type: "leaderboard", Payload: update}); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
