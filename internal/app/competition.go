package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"physics-race-service/internal/domain"
	"physics-race-service/internal/engine"
)

// Competition opens engine sessions for participants.
type Competition struct {
	sync     *Synchronizer
	catalogs CatalogRepository
	presence PresenceRegistry
	engine   engine.Config
}

func NewCompetition(sync *Synchronizer, catalogs CatalogRepository, presence PresenceRegistry, cfg engine.Config) *Competition {
	return &Competition{sync: sync, catalogs: catalogs, presence: presence, engine: cfg}
}

// Session is one live engine run for a participant (one browser tab).
type Session struct {
	ID          string
	Participant domain.Participant
	Machine     *engine.Machine
	Questions   int
	// Live counts this participant's sessions including this one.
	Live int
}

// Join loads the catalog and the authoritative participant record and
// prepares an engine session. The engine is not started.
func (c *Competition) Join(ctx context.Context, participantID string, player engine.Player, hooks engine.Hooks) (*Session, error) {
	cat, err := c.catalogs.GetCatalog(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrCatalogUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
		}
		return nil, err
	}

	p, err := c.sync.Participant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	session := &Session{ID: uuid.NewString(), Participant: p, Questions: cat.Len(), Live: 1}
	if c.presence != nil {
		live, err := c.presence.Register(ctx, p.ID, session.ID)
		if err != nil {
			log.Printf("register presence for %s: %v", p.ID, err)
		} else {
			session.Live = live
		}
	}

	session.Machine = engine.NewMachine(cat, p, player, c.sync, c.engine, hooks)
	return session, nil
}

// Leave tears the session down and releases its presence slot.
func (c *Competition) Leave(ctx context.Context, session *Session) {
	session.Machine.Close()
	if c.presence == nil {
		return
	}
	if err := c.presence.Release(ctx, session.Participant.ID, session.ID); err != nil {
		log.Printf("release presence for %s: %v", session.Participant.ID, err)
	}
}

// Synchronizer exposes the shared scoreboard.
func (c *Competition) Synchronizer() *Synchronizer {
	return c.sync
}
