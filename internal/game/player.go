package game

import "strings"

// PlayerID identifies a seat at the table for the lifetime of a game.
type PlayerID string

// VariantID identifies a role variant registered in the role catalog.
type VariantID string

// Team names the side a role variant plays for. The set is open; the
// constants below cover the built-in catalog.
type Team string

const (
	TeamVillage    Team = "village"
	TeamWerewolves Team = "werewolves"
	TeamSolitary   Team = "solitary"
)

// Status enumerates player life states.
type Status string

const (
	StatusAlive Status = "alive"
	StatusDead  Status = "dead"
)

// Death records when and how a player was killed.
type Death struct {
	Night int    `json:"night"`
	Cause string `json:"cause,omitempty"`
}

// Player is a participant plus its role assignment. Players are never removed
// during a game, only marked dead.
type Player struct {
	ID      PlayerID  `json:"id"`
	Name    string    `json:"name"`
	Variant VariantID `json:"variant,omitempty"`
	Status  Status    `json:"status"`
	Death   *Death    `json:"death,omitempty"`
}

// Alive reports whether the player is still in the game.
func (p Player) Alive() bool {
	return p.Status != StatusDead
}

// Assigned reports whether the player holds a role variant.
func (p Player) Assigned() bool {
	return strings.TrimSpace(string(p.Variant)) != ""
}

// Clone returns a deep copy of the player.
func (p Player) Clone() Player {
	clone := p
	if p.Death != nil {
		death := *p.Death
		clone.Death = &death
	}
	return clone
}

// Label prefers the display name and falls back to the id.
func (p Player) Label() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return string(p.ID)
}

func clonePlayers(values []Player) []Player {
	if len(values) == 0 {
		return nil
	}
	out := make([]Player, len(values))
	for i, p := range values {
		out[i] = p.Clone()
	}
	return out
}
