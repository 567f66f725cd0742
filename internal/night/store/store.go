// Package store owns the canonical game state of one game: the player
// registry, the night queue, per-instance scratch state, and the effects
// recorded during a night. Effects are deferred and applied together at
// night end in kind-priority order.
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kingrea/loups-garous/internal/game"
	"github.com/kingrea/loups-garous/internal/night/scheduler"
	"github.com/kingrea/loups-garous/internal/players"
	"github.com/kingrea/loups-garous/internal/roles"
)

// Catalog is what the store needs from the role catalog.
type Catalog interface {
	scheduler.Catalog
	Variant(id game.VariantID) (*roles.Variant, bool)
}

// Store holds the state of a single game. All methods are safe for
// concurrent use, although a game is expected to have one writer.
type Store struct {
	mu       sync.Mutex
	state    game.State
	registry *players.Registry
	catalog  Catalog
}

// New creates the store for a fresh game. Every assigned variant must exist in
// the catalog.
func New(gameID string, registry *players.Registry, catalog Catalog) (*Store, error) {
	if registry == nil {
		return nil, fmt.Errorf("store: registry is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("store: catalog is required")
	}
	if _, err := catalog.DefinitionsFor(registry.Variants()); err != nil {
		return nil, err
	}
	s := &Store{
		state:    game.NewState(gameID, registry.Players()),
		registry: registry,
		catalog:  catalog,
	}
	return s, nil
}

// Restore rebuilds a store from a persisted snapshot.
func Restore(state game.State, catalog Catalog) (*Store, error) {
	if catalog == nil {
		return nil, fmt.Errorf("store: catalog is required")
	}
	if state.Night < 1 {
		return nil, fmt.Errorf("store: snapshot night must be >= 1, got %d", state.Night)
	}
	if state.Index < 0 || state.Index > len(state.Queue) {
		return nil, fmt.Errorf("store: snapshot index %d outside queue of %d", state.Index, len(state.Queue))
	}
	registry, err := players.FromPlayers(state.Players)
	if err != nil {
		return nil, fmt.Errorf("store: restore players: %w", err)
	}
	if _, err := catalog.DefinitionsFor(registry.Variants()); err != nil {
		return nil, err
	}
	s := &Store{state: state.Clone(), registry: registry, catalog: catalog}
	s.syncPlayers()
	return s, nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() game.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Registry exposes the game's player registry.
func (s *Store) Registry() *players.Registry {
	return s.registry
}

// PlanNight asks the scheduler for the current night's queue without
// installing it.
func (s *Store) PlanNight() (scheduler.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scheduler.BuildQueue(s.state.Night, s.state.Clone(), s.registry.AlivePlayers(), s.catalog)
}

// BeginNight installs a plan as the night's queue and initialises scratch
// state for role instances acting for the first time.
func (s *Store) BeginNight(plan scheduler.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if plan.Night != s.state.Night {
		return fmt.Errorf("store: plan is for night %d, state is at night %d", plan.Night, s.state.Night)
	}
	next := scheduler.Begin(s.state, plan)
	for _, turn := range next.Queue {
		key := turn.InstanceID()
		if _, ok := next.Scratch[key]; ok {
			continue
		}
		variant, ok := s.catalog.Variant(turn.Variant)
		if !ok {
			return &game.UnknownRoleError{ID: turn.Variant}
		}
		if variant.Behavior == nil {
			continue
		}
		if next.Scratch == nil {
			next.Scratch = map[string]game.RoleState{}
		}
		next.Scratch[key] = variant.Behavior.Initialize(next.Clone())
	}
	s.state = next
	return nil
}

// RecordEffect stores the payload for a turn and marks it complete. Re-sending
// the payload of a turn that is already complete is a no-op when the effects
// match and a ConflictingActionError when they differ. The boolean reports
// whether anything was recorded.
func (s *Store) RecordEffect(turnIndex int, payload game.Payload) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turnIndex < 0 || turnIndex >= len(s.state.Queue) {
		return false, &game.InvalidStateError{
			Op:     "record effect",
			Phase:  s.state.Phase,
			Detail: fmt.Sprintf("turn %d outside queue of %d", turnIndex, len(s.state.Queue)),
		}
	}
	turn := s.state.Queue[turnIndex]
	normalized, err := s.normalize(turn, payload)
	if err != nil {
		return false, err
	}
	if turn.Completed {
		if turn.Payload != nil && turn.Payload.SameEffects(normalized) {
			return false, nil
		}
		return false, &game.ConflictingActionError{Night: s.state.Night, Turn: turnIndex}
	}
	if turnIndex != s.state.Index {
		return false, &game.InvalidStateError{
			Op:     "record effect",
			Phase:  s.state.Phase,
			Detail: fmt.Sprintf("turn %d is not the current turn %d", turnIndex, s.state.Index),
		}
	}
	next := s.state.Clone()
	for _, e := range normalized.Effects {
		next.Pending = append(next.Pending, game.PendingEffect{Turn: turnIndex, Effect: e.Clone()})
	}
	recorded := normalized.Clone()
	next.Queue[turnIndex].Completed = true
	next.Queue[turnIndex].Payload = &recorded
	s.state = next
	return true, nil
}

// Advance moves the turn pointer past the current, completed turn. It reports
// whether the night's queue is exhausted.
func (s *Store) Advance() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, done, err := scheduler.Advance(s.state)
	if err != nil {
		return false, err
	}
	s.state = next
	return done, nil
}

// Retreat reopens the previous turn and drops its recorded effects.
func (s *Store) Retreat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := scheduler.Retreat(s.state)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// SetPhase records a lifecycle transition. The reason is kept only when the
// game ends.
func (s *Store) SetPhase(phase game.Phase, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Phase = phase
	if phase == game.PhaseOver {
		s.state.EndReason = strings.TrimSpace(reason)
	}
}

// Eliminate kills a player outside night resolution, for instance after a
// village vote or a moderator correction.
func (s *Store) Eliminate(id game.PlayerID, night int, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.registry.MarkDead(id, night, cause); err != nil {
		return err
	}
	s.syncPlayers()
	return nil
}

// ResolveNightEnd applies the night's effects and closes the night. Role
// behaviours run first, in queue order, and may add effects. Effects then
// resolve by kind priority: shields, then kills, then informational effects,
// so a protection recorded after a kill still saves its target. Kills that
// cannot be applied are reported as conflicts rather than dropped. The queue
// and pending effects are cleared and the night number increments.
func (s *Store) ResolveNightEnd() (game.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.NightComplete() {
		return game.Resolution{}, &game.IncompleteTurnError{Index: s.state.Index}
	}
	night := s.state.Night
	view := s.state.Clone()
	next := s.state.Clone()

	effects := make([]game.Effect, 0, len(view.Pending))
	for _, p := range view.Pending {
		effects = append(effects, p.Effect.Clone())
	}
	for _, turn := range view.Queue {
		if !turn.Completed {
			continue
		}
		variant, ok := s.catalog.Variant(turn.Variant)
		if !ok || variant.Behavior == nil {
			continue
		}
		key := turn.InstanceID()
		rs, extra := variant.Behavior.HandleNightEnd(view.ScratchFor(key), turn.Clone(), view)
		if next.Scratch == nil {
			next.Scratch = map[string]game.RoleState{}
		}
		next.Scratch[key] = rs.Clone()
		for _, e := range extra {
			if len(e.Source) == 0 {
				e.Source = turn.Players
			}
			effects = append(effects, e.Clone())
		}
	}
	sort.SliceStable(effects, func(i, j int) bool {
		return effects[i].Kind.Priority() < effects[j].Kind.Priority()
	})

	res := game.Resolution{Night: night}
	shielded := map[game.PlayerID]bool{}
	saved := map[game.PlayerID]bool{}
	for _, e := range effects {
		switch {
		case e.Kind.Shields():
			if e.Target != "" {
				shielded[e.Target] = true
			}
		case e.Kind == game.EffectKill:
			if shielded[e.Target] {
				if !saved[e.Target] {
					saved[e.Target] = true
					res.Saved = append(res.Saved, e.Target)
				}
				continue
			}
			if err := s.registry.MarkDead(e.Target, night, e.Cause); err != nil {
				res.Conflicts = append(res.Conflicts, game.Conflict{
					Player:  e.Target,
					Cause:   e.Cause,
					Message: err.Error(),
				})
				continue
			}
			res.Deaths = append(res.Deaths, game.Casualty{Player: e.Target, Cause: e.Cause})
		case e.Kind == game.EffectInform:
			res.Notes = append(res.Notes, game.Note{
				Source: e.Source,
				Target: e.Target,
				Text:   s.noteText(e),
			})
		}
	}

	next.Pending = nil
	next.Queue = nil
	next.Index = 0
	next.Night = night + 1
	stored := res.Clone()
	next.LastResolution = &stored
	s.state = next
	s.syncPlayers()
	return res, nil
}

// normalize validates a payload against its turn and fills defaults: effects
// without a source are attributed to the turn's players, kills without a cause
// to the turn's variant.
func (s *Store) normalize(turn game.NightTurn, payload game.Payload) (game.Payload, error) {
	out := game.Payload{Night: s.state.Night, Turn: turn.Index}
	for _, e := range payload.Effects {
		if !e.Kind.Valid() {
			return game.Payload{}, fmt.Errorf("store: turn %d: unknown effect kind %q", turn.Index, e.Kind)
		}
		if e.Kind != game.EffectNone && e.Kind != game.EffectInform && e.Target == "" {
			return game.Payload{}, fmt.Errorf("store: turn %d: %s effect needs a target", turn.Index, e.Kind)
		}
		if e.Target != "" {
			if _, ok := s.registry.Player(e.Target); !ok {
				return game.Payload{}, &game.UnknownPlayerError{ID: e.Target}
			}
		}
		e = e.Clone()
		if len(e.Source) == 0 {
			e.Source = append([]game.PlayerID(nil), turn.Players...)
		}
		if e.Kind == game.EffectKill && strings.TrimSpace(e.Cause) == "" {
			e.Cause = string(turn.Variant)
		}
		out.Effects = append(out.Effects, e)
	}
	return out, nil
}

func (s *Store) noteText(e game.Effect) string {
	if text := strings.TrimSpace(e.Note); text != "" {
		return text
	}
	target, ok := s.registry.Player(e.Target)
	if !ok {
		return ""
	}
	role := "no role"
	if target.Assigned() {
		role = string(target.Variant)
		if v, ok := s.catalog.Variant(target.Variant); ok {
			role = v.Label()
		}
	}
	return fmt.Sprintf("%s is %s", target.Label(), role)
}

func (s *Store) syncPlayers() {
	s.state.Players = s.registry.Players()
}
