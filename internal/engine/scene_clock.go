package engine

import (
	"sync"

	"physics-race-service/internal/catalog"
	"physics-race-service/internal/domain"
)

// Default boundary window around a scene end, in seconds.
const (
	DefaultLookback  = 0.2
	DefaultLookahead = 0.5
)

// SceneClock turns playback position samples into at most one
// "question reached" signal per scene per pass. The sample cadence is
// whatever the player emits; matching is by window, never exact time.
type SceneClock struct {
	catalog   *catalog.Catalog
	lookback  float64
	lookahead float64

	mu   sync.Mutex
	held bool
	// last fired question; 0 when armed for every scene
	last int
}

func NewSceneClock(cat *catalog.Catalog, lookback, lookahead float64) *SceneClock {
	if lookback < 0 {
		lookback = DefaultLookback
	}
	if lookahead < 0 {
		lookahead = DefaultLookahead
	}
	return &SceneClock{catalog: cat, lookback: lookback, lookahead: lookahead}
}

// Observe feeds one playback sample and returns the question whose boundary
// was reached, if any.
func (c *SceneClock) Observe(t float64) (domain.Question, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.catalog.FindBySceneEnd(t, c.lookback, c.lookahead)
	if c.last != 0 && (!ok || q.Number != c.last) {
		// left the window of the last scene: it may fire again on a later pass
		c.last = 0
	}
	if !ok || c.held || q.Number == c.last {
		return domain.Question{}, false
	}
	c.last = q.Number
	return q, true
}

// Hold suppresses signals while a question panel is open.
func (c *SceneClock) Hold() {
	c.mu.Lock()
	c.held = true
	c.mu.Unlock()
}

// Release lifts Hold. The last fired scene stays disarmed until playback
// leaves its window.
func (c *SceneClock) Release() {
	c.mu.Lock()
	c.held = false
	c.mu.Unlock()
}

// Rearm forgets the last fired scene, e.g. after a seek.
func (c *SceneClock) Rearm() {
	c.mu.Lock()
	c.last = 0
	c.mu.Unlock()
}
