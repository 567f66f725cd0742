package game

// EffectKind enumerates deferred mutations a turn can record.
type EffectKind string

const (
	EffectProtect EffectKind = "protect"
	EffectNegate  EffectKind = "negate"
	EffectKill    EffectKind = "kill"
	EffectInform  EffectKind = "inform"
	EffectNone    EffectKind = "none"
)

// Priority orders effects at night-end resolution. Lower values resolve first:
// shields before kills, kills before informational effects.
func (k EffectKind) Priority() int {
	switch k {
	case EffectProtect, EffectNegate:
		return 0
	case EffectKill:
		return 1
	default:
		return 2
	}
}

// Valid reports whether k is one of the known kinds.
func (k EffectKind) Valid() bool {
	switch k {
	case EffectProtect, EffectNegate, EffectKill, EffectInform, EffectNone:
		return true
	}
	return false
}

// Shields reports whether the effect cancels kills aimed at its target.
func (k EffectKind) Shields() bool {
	return k == EffectProtect || k == EffectNegate
}

// Effect is a deferred state mutation recorded during a turn and applied at
// night end.
type Effect struct {
	Kind   EffectKind `json:"kind"`
	Source []PlayerID `json:"source,omitempty"`
	Target PlayerID   `json:"target,omitempty"`
	Cause  string     `json:"cause,omitempty"`
	Note   string     `json:"note,omitempty"`
}

// Equal compares two effects field by field.
func (e Effect) Equal(other Effect) bool {
	if e.Kind != other.Kind || e.Target != other.Target || e.Cause != other.Cause || e.Note != other.Note {
		return false
	}
	return equalIDs(e.Source, other.Source)
}

// Clone returns a deep copy of the effect.
func (e Effect) Clone() Effect {
	clone := e
	clone.Source = cloneIDs(e.Source)
	return clone
}

// Payload is what the UI reports when a turn's action is done. Night and Turn
// identify the turn the client believes it completed. A zero Night addresses
// whatever turn is current, and Turn is then ignored.
//
// Only addressed payloads are safe to resend: a resent unaddressed payload
// lands on whatever turn is current by then. Clients that may retry, such as
// a display reconnecting after a dropped connection, must set Night and Turn.
type Payload struct {
	Night   int      `json:"night,omitempty"`
	Turn    int      `json:"turn"`
	Effects []Effect `json:"effects,omitempty"`
}

// SameEffects reports whether both payloads carry the same effects in the same
// order.
func (p Payload) SameEffects(other Payload) bool {
	if len(p.Effects) != len(other.Effects) {
		return false
	}
	for i := range p.Effects {
		if !p.Effects[i].Equal(other.Effects[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the payload.
func (p Payload) Clone() Payload {
	clone := Payload{Night: p.Night, Turn: p.Turn}
	if len(p.Effects) > 0 {
		clone.Effects = make([]Effect, len(p.Effects))
		for i, e := range p.Effects {
			clone.Effects[i] = e.Clone()
		}
	}
	return clone
}

// PendingEffect ties a recorded effect to the queue index that produced it so
// a retreat can discard exactly that turn's contribution.
type PendingEffect struct {
	Turn   int    `json:"turn"`
	Effect Effect `json:"effect"`
}

func equalIDs(a, b []PlayerID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cloneIDs(values []PlayerID) []PlayerID {
	if len(values) == 0 {
		return nil
	}
	out := make([]PlayerID, len(values))
	copy(out, values)
	return out
}
