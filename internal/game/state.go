package game

import (
	"sort"
	"strings"
)

// Phase enumerates the orchestrator's coarse lifecycle states.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseNight     Phase = "night"
	PhaseResolving Phase = "resolving"
	PhaseDay       Phase = "day"
	PhaseOver      Phase = "over"
)

// FriendlyName renders the phase for moderator-facing text.
func (p Phase) FriendlyName() string {
	switch p {
	case PhaseIdle:
		return "Waiting to start"
	case PhaseNight:
		return "Night in progress"
	case PhaseResolving:
		return "Resolving night"
	case PhaseDay:
		return "Day"
	case PhaseOver:
		return "Game over"
	}
	return string(p)
}

// RoleState is the scratch state a role instance keeps across nights. Values
// are strings so snapshots stay serializable.
type RoleState map[string]string

// Clone returns a copy of the scratch map.
func (rs RoleState) Clone() RoleState {
	if rs == nil {
		return nil
	}
	out := make(RoleState, len(rs))
	for k, v := range rs {
		out[k] = v
	}
	return out
}

// NightTurn is one element of a night's queue: a role variant acting once,
// either for a single holder or for every living holder of a team-wide role.
type NightTurn struct {
	Index     int        `json:"index"`
	Variant   VariantID  `json:"variant"`
	TeamWide  bool       `json:"team_wide,omitempty"`
	Players   []PlayerID `json:"players"`
	Completed bool       `json:"completed"`
	Payload   *Payload   `json:"payload,omitempty"`
}

// InstanceID keys the role instance's scratch state. Team-wide roles share a
// single instance; individual roles get one per holder.
func (t NightTurn) InstanceID() string {
	return InstanceKey(t.Variant, t.TeamWide, t.Players)
}

// InstanceKey builds the scratch-state key for a variant and its actors.
func InstanceKey(variant VariantID, teamWide bool, players []PlayerID) string {
	if teamWide || len(players) == 0 {
		return string(variant)
	}
	return string(variant) + "/" + string(players[0])
}

// Clone returns a deep copy of the turn.
func (t NightTurn) Clone() NightTurn {
	clone := t
	clone.Players = cloneIDs(t.Players)
	if t.Payload != nil {
		payload := t.Payload.Clone()
		clone.Payload = &payload
	}
	return clone
}

// Casualty is a player killed during resolution.
type Casualty struct {
	Player PlayerID `json:"player"`
	Cause  string   `json:"cause,omitempty"`
}

// Note is an informational outcome delivered after resolution.
type Note struct {
	Source []PlayerID `json:"source,omitempty"`
	Target PlayerID   `json:"target,omitempty"`
	Text   string     `json:"text,omitempty"`
}

// Conflict records a kill that could not be applied, such as a second kill on
// a player who is already dead. Conflicts are surfaced to the moderator.
type Conflict struct {
	Player  PlayerID `json:"player"`
	Cause   string   `json:"cause,omitempty"`
	Message string   `json:"message"`
}

// Resolution summarises what night-end effect resolution did.
type Resolution struct {
	Night     int        `json:"night"`
	Deaths    []Casualty `json:"deaths,omitempty"`
	Saved     []PlayerID `json:"saved,omitempty"`
	Notes     []Note     `json:"notes,omitempty"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// Clone returns a deep copy of the resolution.
func (r Resolution) Clone() Resolution {
	clone := Resolution{Night: r.Night, Saved: cloneIDs(r.Saved)}
	if len(r.Deaths) > 0 {
		clone.Deaths = append([]Casualty(nil), r.Deaths...)
	}
	if len(r.Notes) > 0 {
		clone.Notes = make([]Note, len(r.Notes))
		for i, n := range r.Notes {
			n.Source = cloneIDs(n.Source)
			clone.Notes[i] = n
		}
	}
	if len(r.Conflicts) > 0 {
		clone.Conflicts = append([]Conflict(nil), r.Conflicts...)
	}
	return clone
}

// State is the single shared game state. The orchestrator owns the canonical
// copy; everything else receives clones.
//
// Invariants: 0 <= Index <= len(Queue); the queue of a night never changes
// membership or order once built; Night never decreases.
type State struct {
	GameID         string               `json:"game_id"`
	Phase          Phase                `json:"phase"`
	Night          int                  `json:"night"`
	Queue          []NightTurn          `json:"queue,omitempty"`
	Index          int                  `json:"index"`
	Scratch        map[string]RoleState `json:"scratch,omitempty"`
	Pending        []PendingEffect      `json:"pending,omitempty"`
	Players        []Player             `json:"players"`
	LastResolution *Resolution          `json:"last_resolution,omitempty"`
	EndReason      string               `json:"end_reason,omitempty"`
}

// NewState returns the initial state of a game: idle, before night one.
func NewState(gameID string, players []Player) State {
	return State{
		GameID:  strings.TrimSpace(gameID),
		Phase:   PhaseIdle,
		Night:   1,
		Players: clonePlayers(players),
	}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	clone := State{
		GameID:    s.GameID,
		Phase:     s.Phase,
		Night:     s.Night,
		Index:     s.Index,
		Players:   clonePlayers(s.Players),
		EndReason: s.EndReason,
	}
	if len(s.Queue) > 0 {
		clone.Queue = make([]NightTurn, len(s.Queue))
		for i, turn := range s.Queue {
			clone.Queue[i] = turn.Clone()
		}
	}
	if len(s.Scratch) > 0 {
		clone.Scratch = make(map[string]RoleState, len(s.Scratch))
		for key, rs := range s.Scratch {
			clone.Scratch[key] = rs.Clone()
		}
	}
	if len(s.Pending) > 0 {
		clone.Pending = make([]PendingEffect, len(s.Pending))
		for i, p := range s.Pending {
			clone.Pending[i] = PendingEffect{Turn: p.Turn, Effect: p.Effect.Clone()}
		}
	}
	if s.LastResolution != nil {
		res := s.LastResolution.Clone()
		clone.LastResolution = &res
	}
	return clone
}

// CurrentTurn returns the turn the index points at, or false once the queue
// is exhausted.
func (s State) CurrentTurn() (NightTurn, bool) {
	if s.Index < 0 || s.Index >= len(s.Queue) {
		return NightTurn{}, false
	}
	return s.Queue[s.Index].Clone(), true
}

// NightComplete reports whether the night's action phase is over.
func (s State) NightComplete() bool {
	return s.Index >= len(s.Queue)
}

// Player looks up a player in the snapshot.
func (s State) Player(id PlayerID) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return Player{}, false
}

// AlivePlayers returns living players ordered by id.
func (s State) AlivePlayers() []Player {
	var out []Player
	for _, p := range s.Players {
		if p.Alive() {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AnyDead reports whether at least one player has died.
func (s State) AnyDead() bool {
	for _, p := range s.Players {
		if !p.Alive() {
			return true
		}
	}
	return false
}

// ScratchFor returns a copy of a role instance's scratch state.
func (s State) ScratchFor(instance string) RoleState {
	if s.Scratch == nil {
		return nil
	}
	return s.Scratch[instance].Clone()
}
