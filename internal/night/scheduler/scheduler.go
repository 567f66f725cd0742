package scheduler

import (
	"fmt"
	"sort"

	"github.com/kingrea/loups-garous/internal/game"
	"github.com/kingrea/loups-garous/internal/roles"
)

// Catalog exposes the minimal contract the scheduler needs from the role
// catalog.
type Catalog interface {
	DefinitionsFor(ids []game.VariantID) ([]*roles.Variant, error)
}

// Plan is the scheduler's decision for one night.
type Plan struct {
	Night   int
	Turns   []game.NightTurn
	Skipped map[string]SkipReason
}

// SkipReason explains why a candidate turn was left out of the queue.
type SkipReason struct {
	Reason SkipReasonCode
	Detail string
}

// SkipReasonCode enumerates scheduler skip reasons.
type SkipReasonCode string

const (
	SkipReasonNoNightAction SkipReasonCode = "no-night-action"
	SkipReasonNotThisNight  SkipReasonCode = "not-this-night"
)

// BuildQueue computes the ordered turns for a night. Candidates come only
// from living, assigned players: team-wide variants contribute one turn,
// individual variants one turn per holder. Candidates are filtered by the
// variant's wake-up rule and sorted by weight, variant id, then first player
// id.
func BuildQueue(night int, state game.State, alive []game.Player, catalog Catalog) (Plan, error) {
	if night < 1 {
		return Plan{}, fmt.Errorf("scheduler: night must be >= 1, got %d", night)
	}
	if catalog == nil {
		return Plan{}, fmt.Errorf("scheduler: catalog is required")
	}
	holders := map[game.VariantID][]game.PlayerID{}
	var ids []game.VariantID
	for _, p := range alive {
		if !p.Alive() || !p.Assigned() {
			continue
		}
		if _, seen := holders[p.Variant]; !seen {
			ids = append(ids, p.Variant)
		}
		holders[p.Variant] = append(holders[p.Variant], p.ID)
	}
	variants, err := catalog.DefinitionsFor(ids)
	if err != nil {
		return Plan{}, fmt.Errorf("scheduler: night %d: %w", night, err)
	}
	plan := Plan{Night: night}
	weights := make(map[game.VariantID]int, len(variants))
	var turns []game.NightTurn
	for _, v := range variants {
		weights[v.ID] = v.Weight
		for _, candidate := range candidates(v, holders[v.ID]) {
			if !v.WakesAtNight {
				plan.addSkip(candidate.InstanceID(), SkipReason{Reason: SkipReasonNoNightAction, Detail: v.Label()})
				continue
			}
			if !v.ShouldWakeUp(night, state, candidate) {
				plan.addSkip(candidate.InstanceID(), SkipReason{
					Reason: SkipReasonNotThisNight,
					Detail: fmt.Sprintf("%s does not wake on night %d", v.Label(), night),
				})
				continue
			}
			turns = append(turns, candidate)
		}
	}
	sort.SliceStable(turns, func(i, j int) bool {
		a, b := turns[i], turns[j]
		if weights[a.Variant] != weights[b.Variant] {
			return weights[a.Variant] < weights[b.Variant]
		}
		if a.Variant != b.Variant {
			return a.Variant < b.Variant
		}
		return firstPlayer(a) < firstPlayer(b)
	})
	for i := range turns {
		turns[i].Index = i
	}
	plan.Turns = turns
	return plan, nil
}

// Begin installs a plan as the night's immutable queue and resets the turn
// pointer.
func Begin(state game.State, plan Plan) game.State {
	next := state.Clone()
	next.Night = plan.Night
	next.Queue = make([]game.NightTurn, len(plan.Turns))
	for i, turn := range plan.Turns {
		next.Queue[i] = turn.Clone()
	}
	next.Index = 0
	next.Pending = nil
	return next
}

// Advance moves past the current turn, which must already be complete. The
// boolean reports whether the queue is now exhausted.
func Advance(state game.State) (game.State, bool, error) {
	if state.Index >= len(state.Queue) {
		return state, true, &game.InvalidStateError{Op: "advance", Phase: state.Phase, Detail: "night queue exhausted"}
	}
	if !state.Queue[state.Index].Completed {
		return state, false, &game.IncompleteTurnError{Index: state.Index}
	}
	next := state.Clone()
	next.Index++
	return next, next.Index == len(next.Queue), nil
}

// Retreat steps back to the previous turn, clearing its completion flag and
// discarding the effects it recorded. The queue itself is left untouched so
// stepping back and forward again reproduces the same night.
func Retreat(state game.State) (game.State, error) {
	if state.Index <= 0 {
		return state, &game.AtStartOfNightError{Night: state.Night}
	}
	next := state.Clone()
	next.Index--
	turn := &next.Queue[next.Index]
	turn.Completed = false
	turn.Payload = nil
	kept := next.Pending[:0]
	for _, p := range next.Pending {
		if p.Turn != next.Index {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		kept = nil
	}
	next.Pending = kept
	return next, nil
}

func candidates(v *roles.Variant, holders []game.PlayerID) []game.NightTurn {
	if len(holders) == 0 {
		return nil
	}
	sorted := make([]game.PlayerID, len(holders))
	copy(sorted, holders)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if v.TeamWide {
		return []game.NightTurn{{Variant: v.ID, TeamWide: true, Players: sorted}}
	}
	out := make([]game.NightTurn, 0, len(sorted))
	for _, id := range sorted {
		out = append(out, game.NightTurn{Variant: v.ID, Players: []game.PlayerID{id}})
	}
	return out
}

func firstPlayer(turn game.NightTurn) game.PlayerID {
	if len(turn.Players) == 0 {
		return ""
	}
	return turn.Players[0]
}

func (p *Plan) addSkip(id string, reason SkipReason) {
	if id == "" {
		return
	}
	if p.Skipped == nil {
		p.Skipped = make(map[string]SkipReason)
	}
	p.Skipped[id] = reason
}
