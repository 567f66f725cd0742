package orchestrator

import (
	"time"

	"github.com/kingrea/loups-garous/internal/game"
)

// EventKind names the transition that produced an event.
type EventKind string

const (
	EventNightStarted     EventKind = "night-started"
	EventActionCompleted  EventKind = "action-completed"
	EventRoleRetreated    EventKind = "role-retreated"
	EventNightResolving   EventKind = "night-resolving"
	EventDayStarted       EventKind = "day-started"
	EventPlayerEliminated EventKind = "player-eliminated"
	EventGameOver         EventKind = "game-over"
)

// Event is the state-changed notification emitted after every successful
// transition. State is a snapshot taken right after the transition.
type Event struct {
	ID         string           `json:"id"`
	Sequence   int64            `json:"sequence"`
	Kind       EventKind        `json:"kind"`
	GameID     string           `json:"game_id"`
	At         time.Time        `json:"at"`
	State      game.State       `json:"state"`
	Turn       *game.NightTurn  `json:"turn,omitempty"`
	Resolution *game.Resolution `json:"resolution,omitempty"`
	Player     game.PlayerID    `json:"player,omitempty"`
}

// Observer receives state-changed notifications. Observers run synchronously
// in transition order and must not call the orchestrator's mutating methods.
// A returned error is logged and never undoes the transition.
type Observer interface {
	StateChanged(Event) error
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(Event) error

// StateChanged executes f(e).
func (f ObserverFunc) StateChanged(e Event) error {
	if f == nil {
		return nil
	}
	return f(e)
}
