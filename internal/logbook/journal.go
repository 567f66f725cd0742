package logbook

import (
	"fmt"
	"strings"

	"github.com/kingrea/loups-garous/internal/game"
	"github.com/kingrea/loups-garous/internal/orchestrator"
)

// StateChanged writes the journal line for an orchestrator event. Kill
// conflicts are written as warnings so they stand out in the tail.
func (l *Logbook) StateChanged(e orchestrator.Event) error {
	if l == nil {
		return nil
	}
	if err := l.Info("%s", Describe(e)); err != nil {
		return err
	}
	if e.Kind == orchestrator.EventDayStarted && e.Resolution != nil {
		for _, c := range e.Resolution.Conflicts {
			if err := l.Warn("night %d · conflict on %s: %s", e.Resolution.Night, c.Player, c.Message); err != nil {
				return err
			}
		}
	}
	return nil
}

// Describe renders an event as one journal sentence.
func Describe(e orchestrator.Event) string {
	s := e.State
	switch e.Kind {
	case orchestrator.EventNightStarted:
		return fmt.Sprintf("night %d · began with %d turn(s)", s.Night, len(s.Queue))
	case orchestrator.EventActionCompleted:
		if e.Turn == nil {
			return fmt.Sprintf("night %d · action completed", s.Night)
		}
		return fmt.Sprintf("night %d · %s acted%s", s.Night, e.Turn.Variant, effectSummary(e.Turn.Payload))
	case orchestrator.EventRoleRetreated:
		if e.Turn == nil {
			return fmt.Sprintf("night %d · stepped back", s.Night)
		}
		return fmt.Sprintf("night %d · back to %s", s.Night, e.Turn.Variant)
	case orchestrator.EventNightResolving:
		return fmt.Sprintf("night %d · resolving", s.Night)
	case orchestrator.EventDayStarted:
		if e.Resolution == nil {
			return fmt.Sprintf("day %d · began", s.Night-1)
		}
		return fmt.Sprintf("day %d · %s", e.Resolution.Night, resolutionSummary(*e.Resolution))
	case orchestrator.EventPlayerEliminated:
		cause := ""
		if p, ok := s.Player(e.Player); ok && p.Death != nil && p.Death.Cause != "" {
			cause = " (" + p.Death.Cause + ")"
		}
		return fmt.Sprintf("%s eliminated%s", e.Player, cause)
	case orchestrator.EventGameOver:
		if s.EndReason != "" {
			return "game over: " + s.EndReason
		}
		return "game over"
	}
	return string(e.Kind)
}

func effectSummary(p *game.Payload) string {
	if p == nil || len(p.Effects) == 0 {
		return ""
	}
	parts := make([]string, 0, len(p.Effects))
	for _, e := range p.Effects {
		if e.Kind == game.EffectNone {
			continue
		}
		if e.Target == "" {
			parts = append(parts, string(e.Kind))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s", e.Kind, e.Target))
	}
	if len(parts) == 0 {
		return ""
	}
	return ": " + strings.Join(parts, ", ")
}

func resolutionSummary(r game.Resolution) string {
	if len(r.Deaths) == 0 {
		if len(r.Saved) > 0 {
			return fmt.Sprintf("nobody died, %s saved", joinIDs(r.Saved))
		}
		return "nobody died"
	}
	dead := make([]game.PlayerID, 0, len(r.Deaths))
	for _, d := range r.Deaths {
		dead = append(dead, d.Player)
	}
	return "found dead: " + joinIDs(dead)
}

func joinIDs(ids []game.PlayerID) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return strings.Join(out, ", ")
}
