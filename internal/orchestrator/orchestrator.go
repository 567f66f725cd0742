// Package orchestrator drives the night phase of a game as a state machine:
// idle, night in progress, resolving, day, and game over. It is the single
// owner of the game state and tells observers about every transition.
package orchestrator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kingrea/loups-garous/internal/game"
	"github.com/kingrea/loups-garous/internal/night/scheduler"
	"github.com/kingrea/loups-garous/internal/night/store"
	"github.com/kingrea/loups-garous/internal/players"
)

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger injects a structured logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver subscribes an observer to state-changed notifications.
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) {
		if observer != nil {
			o.observers = append(o.observers, observer)
		}
	}
}

// WithClock overrides the clock used to stamp events.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithGameID fixes the id of a new game instead of generating one.
func WithGameID(id string) Option {
	return func(o *Orchestrator) {
		o.gameID = strings.TrimSpace(id)
	}
}

// Orchestrator coordinates the scheduler and the game state store for one
// game.
type Orchestrator struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	store     *store.Store
	logger    *zap.Logger
	observers []Observer
	clock     func() time.Time
	gameID    string
	sequence  int64
	plan      scheduler.Plan
}

type freezer interface {
	Freeze()
}

func newOrchestrator(opts []Option) *Orchestrator {
	o := &Orchestrator{
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// NewGame validates the table against the catalog and returns an idle game.
// An assignment to an unknown role aborts creation before any night begins.
// Catalogs that can be frozen are frozen for the lifetime of the game.
func NewGame(catalog store.Catalog, registry *players.Registry, opts ...Option) (*Orchestrator, error) {
	o := newOrchestrator(opts)
	if o.gameID == "" {
		o.gameID = uuid.NewString()
	}
	s, err := store.New(o.gameID, registry, catalog)
	if err != nil {
		o.logger.Error("game creation failed", zap.String("game", o.gameID), zap.Error(err))
		return nil, err
	}
	if f, ok := catalog.(freezer); ok {
		f.Freeze()
	}
	o.store = s
	o.logger.Info("game created",
		zap.String("game", o.gameID),
		zap.Int("players", registry.Len()),
	)
	return o, nil
}

// Resume continues a game from a persisted snapshot. A snapshot taken after
// the night's last turn but before the day started is resolved here, and
// observers hear night-resolving and day-started as they would have.
func Resume(catalog store.Catalog, state game.State, opts ...Option) (*Orchestrator, error) {
	o := newOrchestrator(opts)
	s, err := store.Restore(state, catalog)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resume %s: %w", state.GameID, err)
	}
	if f, ok := catalog.(freezer); ok {
		f.Freeze()
	}
	o.store = s
	o.gameID = state.GameID
	o.logger.Info("game resumed",
		zap.String("game", o.gameID),
		zap.String("phase", string(state.Phase)),
		zap.Int("night", state.Night),
		zap.Int("index", state.Index),
	)
	if interrupted(state) {
		if _, err := o.transition("finish night", func(game.State) ([]Event, error) {
			return o.resolve()
		}); err != nil {
			return nil, fmt.Errorf("orchestrator: resume %s: %w", state.GameID, err)
		}
	}
	return o, nil
}

// interrupted reports whether a snapshot stopped between the night's last
// turn and the start of the day.
func interrupted(state game.State) bool {
	switch state.Phase {
	case game.PhaseResolving:
		return true
	case game.PhaseNight:
		return state.NightComplete()
	}
	return false
}

// GameID returns the game's identifier.
func (o *Orchestrator) GameID() string {
	return o.gameID
}

// Snapshot returns a read-only copy of the game state.
func (o *Orchestrator) Snapshot() game.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.Snapshot()
}

// CurrentTurn returns the turn waiting for the moderator, if any.
func (o *Orchestrator) CurrentTurn() (game.NightTurn, bool) {
	snap := o.Snapshot()
	if snap.Phase != game.PhaseNight {
		return game.NightTurn{}, false
	}
	return snap.CurrentTurn()
}

// IsNightComplete reports whether the current night's action phase is over.
func (o *Orchestrator) IsNightComplete() bool {
	snap := o.Snapshot()
	switch snap.Phase {
	case game.PhaseNight:
		return snap.NightComplete()
	case game.PhaseResolving, game.PhaseDay:
		return true
	}
	return false
}

// LastPlan returns the scheduler's plan for the most recent night, including
// the turns it skipped and why.
func (o *Orchestrator) LastPlan() scheduler.Plan {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.plan
}

// BeginNight builds the night's queue and starts the first turn. It is valid
// from idle or day. A night in which nobody wakes resolves at once.
func (o *Orchestrator) BeginNight() (game.State, error) {
	return o.transition("begin night", func(snap game.State) ([]Event, error) {
		if snap.Phase != game.PhaseIdle && snap.Phase != game.PhaseDay {
			return nil, &game.InvalidStateError{Op: "begin night", Phase: snap.Phase}
		}
		plan, err := o.store.PlanNight()
		if err != nil {
			return nil, err
		}
		if err := o.store.BeginNight(plan); err != nil {
			return nil, err
		}
		o.plan = plan
		o.store.SetPhase(game.PhaseNight, "")
		o.logger.Info("night started",
			zap.String("game", o.gameID),
			zap.Int("night", plan.Night),
			zap.Int("turns", len(plan.Turns)),
			zap.Int("skipped", len(plan.Skipped)),
		)
		events := []Event{o.event(EventNightStarted)}
		if len(plan.Turns) == 0 {
			resolved, err := o.resolve()
			if err != nil {
				return events, err
			}
			events = append(events, resolved...)
		}
		return events, nil
	})
}

// CompleteCurrentAction records the moderator's payload for the current turn
// and advances. Completing the last turn resolves the night and starts the
// day. A payload naming an already completed turn of this night is accepted
// without change when its effects match, and rejected with a
// ConflictingActionError otherwise.
func (o *Orchestrator) CompleteCurrentAction(payload game.Payload) (game.State, error) {
	return o.transition("complete action", func(snap game.State) ([]Event, error) {
		if snap.Phase != game.PhaseNight {
			return nil, &game.InvalidStateError{Op: "complete action", Phase: snap.Phase}
		}
		if snap.NightComplete() {
			return nil, &game.InvalidStateError{Op: "complete action", Phase: snap.Phase, Detail: "no current turn"}
		}
		turn := snap.Index
		if payload.Night != 0 {
			if payload.Night != snap.Night {
				return nil, &game.InvalidStateError{
					Op:     "complete action",
					Phase:  snap.Phase,
					Detail: fmt.Sprintf("payload is for night %d, current night is %d", payload.Night, snap.Night),
				}
			}
			turn = payload.Turn
		}
		recorded, err := o.store.RecordEffect(turn, payload)
		if err != nil {
			return nil, err
		}
		if !recorded {
			o.logger.Debug("duplicate action ignored",
				zap.String("game", o.gameID),
				zap.Int("night", snap.Night),
				zap.Int("turn", turn),
			)
			return nil, nil
		}
		done, err := o.store.Advance()
		if err != nil {
			return nil, err
		}
		completed := o.store.Snapshot().Queue[turn]
		o.logger.Info("action completed",
			zap.String("game", o.gameID),
			zap.Int("night", snap.Night),
			zap.Int("turn", turn),
			zap.String("variant", string(completed.Variant)),
			zap.Int("effects", len(payloadEffects(completed))),
		)
		ev := o.event(EventActionCompleted)
		ev.Turn = &completed
		events := []Event{ev}
		if done {
			resolved, err := o.resolve()
			if err != nil {
				return events, err
			}
			events = append(events, resolved...)
		}
		return events, nil
	})
}

// GoToPreviousRole reopens the previous turn of the night and discards what
// it recorded. The queue is not rebuilt.
func (o *Orchestrator) GoToPreviousRole() (game.State, error) {
	return o.transition("previous role", func(snap game.State) ([]Event, error) {
		if snap.Phase != game.PhaseNight {
			return nil, &game.InvalidStateError{Op: "previous role", Phase: snap.Phase}
		}
		if err := o.store.Retreat(); err != nil {
			return nil, err
		}
		ev := o.event(EventRoleRetreated)
		if turn, ok := ev.State.CurrentTurn(); ok {
			ev.Turn = &turn
			o.logger.Info("role retreated",
				zap.String("game", o.gameID),
				zap.Int("night", snap.Night),
				zap.Int("turn", turn.Index),
				zap.String("variant", string(turn.Variant)),
			)
		}
		return []Event{ev}, nil
	})
}

// EliminatePlayer kills a player during the day, for a village vote or a
// moderator correction. The death is dated to the night that just ended.
func (o *Orchestrator) EliminatePlayer(id game.PlayerID, cause string) (game.State, error) {
	return o.transition("eliminate player", func(snap game.State) ([]Event, error) {
		if snap.Phase != game.PhaseDay {
			return nil, &game.InvalidStateError{Op: "eliminate player", Phase: snap.Phase}
		}
		night := snap.Night - 1
		if night < 1 {
			night = 1
		}
		if err := o.store.Eliminate(id, night, cause); err != nil {
			return nil, err
		}
		o.logger.Info("player eliminated",
			zap.String("game", o.gameID),
			zap.String("player", string(id)),
			zap.String("cause", cause),
		)
		ev := o.event(EventPlayerEliminated)
		ev.Player = id
		return []Event{ev}, nil
	})
}

// EndGame stops the game from any phase. The game accepts no further
// transitions afterwards.
func (o *Orchestrator) EndGame(reason string) (game.State, error) {
	return o.transition("end game", func(snap game.State) ([]Event, error) {
		o.store.SetPhase(game.PhaseOver, reason)
		o.logger.Info("game over",
			zap.String("game", o.gameID),
			zap.String("from", string(snap.Phase)),
			zap.Int("night", snap.Night),
			zap.String("reason", reason),
		)
		return []Event{o.event(EventGameOver)}, nil
	})
}

// transition runs one state-machine step under the lock and then notifies
// observers in order. Failures leave the state as the step left it; steps
// only mutate the store once their checks pass.
func (o *Orchestrator) transition(op string, step func(game.State) ([]Event, error)) (game.State, error) {
	o.mu.Lock()
	snap := o.store.Snapshot()
	if snap.Phase == game.PhaseOver {
		o.mu.Unlock()
		return snap, &game.GameAlreadyOverError{Reason: snap.EndReason}
	}
	events, err := step(snap)
	result := o.store.Snapshot()
	o.notifyMu.Lock()
	o.mu.Unlock()
	defer o.notifyMu.Unlock()
	if err != nil {
		o.logger.Warn("transition rejected",
			zap.String("game", o.gameID),
			zap.String("op", op),
			zap.String("phase", string(snap.Phase)),
			zap.Error(err),
		)
	}
	o.notify(events)
	return result, err
}

// resolve closes the night: resolving, effect application, then day.
func (o *Orchestrator) resolve() ([]Event, error) {
	o.store.SetPhase(game.PhaseResolving, "")
	events := []Event{o.event(EventNightResolving)}
	res, err := o.store.ResolveNightEnd()
	if err != nil {
		o.store.SetPhase(game.PhaseNight, "")
		return events, err
	}
	for _, c := range res.Conflicts {
		o.logger.Warn("kill conflict",
			zap.String("game", o.gameID),
			zap.Int("night", res.Night),
			zap.String("player", string(c.Player)),
			zap.String("cause", c.Cause),
			zap.String("detail", c.Message),
		)
	}
	o.store.SetPhase(game.PhaseDay, "")
	o.logger.Info("night resolved",
		zap.String("game", o.gameID),
		zap.Int("night", res.Night),
		zap.Int("deaths", len(res.Deaths)),
		zap.Int("saved", len(res.Saved)),
		zap.Int("conflicts", len(res.Conflicts)),
	)
	ev := o.event(EventDayStarted)
	ev.Resolution = &res
	return append(events, ev), nil
}

func (o *Orchestrator) event(kind EventKind) Event {
	o.sequence++
	return Event{
		ID:       uuid.NewString(),
		Sequence: o.sequence,
		Kind:     kind,
		GameID:   o.gameID,
		At:       o.clock().UTC(),
		State:    o.store.Snapshot(),
	}
}

func (o *Orchestrator) notify(events []Event) {
	for _, ev := range events {
		for _, observer := range o.observers {
			if err := observer.StateChanged(ev); err != nil {
				o.logger.Error("observer failed",
					zap.String("game", o.gameID),
					zap.String("event", string(ev.Kind)),
					zap.Int64("sequence", ev.Sequence),
					zap.Error(err),
				)
			}
		}
	}
}

func payloadEffects(turn game.NightTurn) []game.Effect {
	if turn.Payload == nil {
		return nil
	}
	return turn.Payload.Effects
}
