// Package storage persists game snapshots outside the orchestrator. The core
// never writes storage itself; a Persister subscribes to state-changed
// notifications and saves the snapshot each one carries.
package storage

import (
	"errors"

	"go.uber.org/zap"

	"github.com/kingrea/loups-garous/internal/game"
	"github.com/kingrea/loups-garous/internal/orchestrator"
)

// ErrNotFound is returned when no snapshot exists for a game.
var ErrNotFound = errors.New("storage: game not found")

// Store persists game state snapshots.
type Store interface {
	Load(gameID string) (game.State, error)
	Save(state game.State) error
	List() ([]string, error)
}

// Persister saves the snapshot of every orchestrator event.
type Persister struct {
	store  Store
	logger *zap.Logger
}

// NewPersister wraps a store as an orchestrator observer.
func NewPersister(store Store, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{store: store, logger: logger}
}

// StateChanged saves the event's snapshot.
func (p *Persister) StateChanged(e orchestrator.Event) error {
	if p == nil || p.store == nil {
		return nil
	}
	if err := p.store.Save(e.State); err != nil {
		return err
	}
	p.logger.Debug("snapshot saved",
		zap.String("game", e.GameID),
		zap.String("event", string(e.Kind)),
		zap.Int64("sequence", e.Sequence),
	)
	return nil
}
