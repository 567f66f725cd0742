package roles

import (
	"strings"

	"github.com/kingrea/loups-garous/internal/game"
)

// Built-in behaviour names.
const (
	BehaviorPassive   = "passive"
	BehaviorGuard     = "guard"
	BehaviorOneShot   = "one-shot"
	BehaviorInformant = "informant"
)

// Built-in predicate names.
const (
	PredicateAfterFirstDeath   = "after-first-death"
	PredicateWhileHolderUnused = "while-holder-unused"
)

// Scratch keys written by the built-in behaviours.
const (
	ScratchLastTarget = "last_target"
	ScratchUsed       = "used"
	ScratchInspected  = "inspected"
)

func registerBuiltins(c *Catalog) {
	c.behaviors[BehaviorPassive] = passiveBehavior{}
	c.behaviors[BehaviorGuard] = guardBehavior{}
	c.behaviors[BehaviorOneShot] = oneShotBehavior{}
	c.behaviors[BehaviorInformant] = informantBehavior{}
	c.predicates[PredicateAfterFirstDeath] = func(_ int, state game.State, _ game.NightTurn) bool {
		return state.AnyDead()
	}
	c.predicates[PredicateWhileHolderUnused] = func(_ int, state game.State, turn game.NightTurn) bool {
		return state.ScratchFor(turn.InstanceID())[ScratchUsed] != "true"
	}
}

type passiveBehavior struct{}

func (passiveBehavior) Initialize(game.State) game.RoleState { return nil }

func (passiveBehavior) HandleNightEnd(rs game.RoleState, _ game.NightTurn, _ game.State) (game.RoleState, []game.Effect) {
	return rs, nil
}

// guardBehavior remembers who was protected last so the UI can forbid
// protecting the same player two nights running.
type guardBehavior struct{}

func (guardBehavior) Initialize(game.State) game.RoleState {
	return game.RoleState{ScratchLastTarget: ""}
}

func (guardBehavior) HandleNightEnd(rs game.RoleState, turn game.NightTurn, _ game.State) (game.RoleState, []game.Effect) {
	next := ensureScratch(rs)
	next[ScratchLastTarget] = ""
	for _, e := range turnEffects(turn) {
		if e.Kind == game.EffectProtect {
			next[ScratchLastTarget] = string(e.Target)
		}
	}
	return next, nil
}

// oneShotBehavior marks the instance used as soon as it records a real effect.
type oneShotBehavior struct{}

func (oneShotBehavior) Initialize(game.State) game.RoleState {
	return game.RoleState{ScratchUsed: "false"}
}

func (oneShotBehavior) HandleNightEnd(rs game.RoleState, turn game.NightTurn, _ game.State) (game.RoleState, []game.Effect) {
	next := ensureScratch(rs)
	for _, e := range turnEffects(turn) {
		if e.Kind != game.EffectNone {
			next[ScratchUsed] = "true"
			break
		}
	}
	return next, nil
}

// informantBehavior keeps the list of players the instance has inspected.
type informantBehavior struct{}

func (informantBehavior) Initialize(game.State) game.RoleState {
	return game.RoleState{ScratchInspected: ""}
}

func (informantBehavior) HandleNightEnd(rs game.RoleState, turn game.NightTurn, _ game.State) (game.RoleState, []game.Effect) {
	next := ensureScratch(rs)
	var inspected []string
	if existing := strings.TrimSpace(next[ScratchInspected]); existing != "" {
		inspected = strings.Split(existing, ",")
	}
	for _, e := range turnEffects(turn) {
		if e.Kind == game.EffectInform && e.Target != "" {
			inspected = append(inspected, string(e.Target))
		}
	}
	next[ScratchInspected] = strings.Join(inspected, ",")
	return next, nil
}

func ensureScratch(rs game.RoleState) game.RoleState {
	if rs == nil {
		return game.RoleState{}
	}
	return rs
}

func turnEffects(turn game.NightTurn) []game.Effect {
	if turn.Payload == nil {
		return nil
	}
	return turn.Payload.Effects
}

// DefaultDefinition is the stock Loups-Garous night line-up.
func DefaultDefinition() CatalogDefinition {
	return CatalogDefinition{
		Name: "loups-garous",
		Variants: []VariantDefinition{
			{
				ID:           "cupid",
				Name:         "Cupid",
				Team:         string(game.TeamVillage),
				Description:  "Binds two lovers on the first night.",
				WakesAtNight: true,
				Frequency:    FrequencyDefinition{Kind: string(FirstNightOnly)},
				Weight:       5,
				Behavior:     BehaviorPassive,
			},
			{
				ID:           "guard",
				Name:         "Salvateur",
				Team:         string(game.TeamVillage),
				Description:  "Protects one player from the werewolves each night.",
				WakesAtNight: true,
				Frequency:    FrequencyDefinition{Kind: string(EveryNight)},
				Weight:       10,
				Behavior:     BehaviorGuard,
			},
			{
				ID:           "werewolf",
				Name:         "Werewolves",
				Team:         string(game.TeamWerewolves),
				Description:  "The pack agrees on one victim each night.",
				WakesAtNight: true,
				Frequency:    FrequencyDefinition{Kind: string(EveryNight)},
				Weight:       20,
				TeamWide:     true,
				Behavior:     BehaviorPassive,
			},
			{
				ID:           "white-wolf",
				Name:         "White Werewolf",
				Team:         string(game.TeamSolitary),
				Description:  "Hunts with the pack, and every second night may devour a werewolf.",
				WakesAtNight: true,
				Frequency:    FrequencyDefinition{Kind: string(EveryNth), Every: 2, Start: 2},
				Weight:       25,
				Behavior:     BehaviorPassive,
			},
			{
				ID:           "seer",
				Name:         "Seer",
				Team:         string(game.TeamVillage),
				Description:  "Learns the true role of one player each night.",
				WakesAtNight: true,
				Frequency:    FrequencyDefinition{Kind: string(EveryNight)},
				Weight:       30,
				Behavior:     BehaviorInformant,
			},
			{
				ID:           "witch",
				Name:         "Witch",
				Team:         string(game.TeamVillage),
				Description:  "Holds a single potion to save or to kill.",
				WakesAtNight: true,
				Frequency:    FrequencyDefinition{Kind: string(Custom), Predicate: PredicateWhileHolderUnused},
				Weight:       40,
				Behavior:     BehaviorOneShot,
			},
			{
				ID:          "villager",
				Name:        "Villager",
				Team:        string(game.TeamVillage),
				Description: "Sleeps through the night.",
			},
			{
				ID:          "little-girl",
				Name:        "Little Girl",
				Team:        string(game.TeamVillage),
				Description: "Peeks during the werewolves' turn; no action of her own.",
			},
		},
	}
}

// DefaultCatalog returns a catalog loaded with DefaultDefinition.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	if err := c.Load(DefaultDefinition()); err != nil {
		panic(err)
	}
	return c
}
