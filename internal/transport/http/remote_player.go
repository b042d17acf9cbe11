package http

import (
	"errors"
	"sync"
)

var errPlayerGone = errors.New("player disconnected")

type playerCommand struct {
	Action string   `json:"action"`
	Time   *float64 `json:"time,omitempty"`
	Muted  *bool    `json:"muted,omitempty"`
}

// remotePlayer is the browser video element seen from the server: commands
// go out over the websocket and the position is the last reported sample.
type remotePlayer struct {
	send func(outboundMessage[any]) error

	mu      sync.Mutex
	current float64
}

func newRemotePlayer(send func(outboundMessage[any]) error) *remotePlayer {
	return &remotePlayer{send: send}
}

func (p *remotePlayer) Play() error {
	return p.command(playerCommand{Action: "play"})
}

func (p *remotePlayer) Pause() error {
	return p.command(playerCommand{Action: "pause"})
}

func (p *remotePlayer) Seek(at float64) error {
	if err := p.command(playerCommand{Action: "seek", Time: &at}); err != nil {
		return err
	}
	p.observe(at)
	return nil
}

func (p *remotePlayer) Mute(muted bool) error {
	return p.command(playerCommand{Action: "mute", Muted: &muted})
}

func (p *remotePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *remotePlayer) observe(t float64) {
	p.mu.Lock()
	p.current = t
	p.mu.Unlock()
}

func (p *remotePlayer) command(cmd playerCommand) error {
	if err := p.send(outboundMessage[any]{Type: "player", Payload: cmd}); err != nil {
		return errPlayerGone
	}
	return nil
}
