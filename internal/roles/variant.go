package roles

import (
	"fmt"

	"github.com/kingrea/loups-garous/internal/game"
)

// FrequencyKind is the closed set of wake-up rules. Custom is the escape hatch
// that defers to a named predicate.
type FrequencyKind string

const (
	FirstNightOnly FrequencyKind = "first-night"
	EveryNight     FrequencyKind = "every-night"
	EveryNth       FrequencyKind = "every-nth"
	Custom         FrequencyKind = "custom"
)

// Predicate decides whether a candidate turn wakes on a given night. It
// receives the full game state and must not mutate it.
type Predicate func(night int, state game.State, turn game.NightTurn) bool

// Frequency describes on which nights a variant is eligible to act.
type Frequency struct {
	Kind FrequencyKind
	// Every is the period for EveryNth. Values below one are rejected at load.
	Every int
	// Start is the first eligible night for EveryNth. Zero means night one.
	Start int
	// PredicateName names the custom predicate for Custom frequencies.
	PredicateName string

	predicate Predicate
}

func (f Frequency) startNight() int {
	if f.Start <= 0 {
		return 1
	}
	return f.Start
}

// Behavior is the pluggable capability set attached to a variant. Scratch
// state lives in the game state; behaviours themselves are stateless and may
// be shared between variants.
type Behavior interface {
	// Initialize returns the scratch state of a role instance the first time
	// it appears in a night queue.
	Initialize(state game.State) game.RoleState
	// HandleNightEnd runs once per completed turn before effects resolve. It
	// returns the instance's next scratch state plus any additional effects.
	HandleNightEnd(rs game.RoleState, turn game.NightTurn, state game.State) (game.RoleState, []game.Effect)
}

// Variant is an immutable role definition shared by every player holding it.
type Variant struct {
	ID           game.VariantID
	Name         string
	Team         game.Team
	Description  string
	WakesAtNight bool
	Frequency    Frequency
	// Weight orders the night queue; lower wakes first.
	Weight int
	// TeamWide variants act once per night regardless of how many living
	// players hold them.
	TeamWide     bool
	BehaviorName string
	Behavior     Behavior
}

// ShouldWakeUp evaluates the variant's wake-up rule for a candidate turn.
func (v *Variant) ShouldWakeUp(night int, state game.State, turn game.NightTurn) bool {
	if v == nil || !v.WakesAtNight {
		return false
	}
	f := v.Frequency
	switch f.Kind {
	case FirstNightOnly:
		return night == 1
	case EveryNight:
		return true
	case EveryNth:
		start := f.startNight()
		if f.Every < 1 || night < start {
			return false
		}
		return (night-start)%f.Every == 0
	case Custom:
		if f.predicate == nil {
			return false
		}
		return f.predicate(night, state, turn)
	}
	return false
}

// Label prefers the display name.
func (v *Variant) Label() string {
	if v == nil {
		return ""
	}
	if v.Name != "" {
		return v.Name
	}
	return string(v.ID)
}

func (f Frequency) validate(id game.VariantID) error {
	switch f.Kind {
	case FirstNightOnly, EveryNight:
		return nil
	case EveryNth:
		if f.Every < 1 {
			return fmt.Errorf("roles: %s every-nth frequency needs every >= 1", id)
		}
		if f.Start < 0 {
			return fmt.Errorf("roles: %s frequency start must be >= 1", id)
		}
		return nil
	case Custom:
		if f.PredicateName == "" {
			return fmt.Errorf("roles: %s custom frequency needs a predicate", id)
		}
		return nil
	}
	return fmt.Errorf("roles: %s has unknown frequency kind %q", id, f.Kind)
}
