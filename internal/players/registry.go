// Package players tracks who is at the table, which role variant each player
// holds, and whether they are still alive. It carries no role logic; the only
// mutations are joins, assignments, and alive/dead transitions.
package players

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kingrea/loups-garous/internal/game"
)

// Registry maintains the players of a single game.
type Registry struct {
	mu      sync.RWMutex
	players map[game.PlayerID]*game.Player
	order   []game.PlayerID
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{players: map[game.PlayerID]*game.Player{}}
}

// FromPlayers rebuilds a registry from a persisted snapshot, preserving seat
// order, assignments, and deaths.
func FromPlayers(values []game.Player) (*Registry, error) {
	r := New()
	for _, p := range values {
		if err := r.Add(p.ID, p.Name); err != nil {
			return nil, err
		}
		clone := p.Clone()
		if clone.Status == "" {
			clone.Status = game.StatusAlive
		}
		r.players[p.ID] = &clone
	}
	return r, nil
}

// Add seats a new, unassigned, living player.
func (r *Registry) Add(id game.PlayerID, name string) error {
	id = game.PlayerID(strings.TrimSpace(string(id)))
	if id == "" {
		return fmt.Errorf("players: id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.players[id]; exists {
		return fmt.Errorf("players: %s already seated", id)
	}
	r.players[id] = &game.Player{ID: id, Name: strings.TrimSpace(name), Status: game.StatusAlive}
	r.order = append(r.order, id)
	return nil
}

// Assign gives a player its role variant for this game. A player may only be
// assigned once.
func (r *Registry) Assign(id game.PlayerID, variant game.VariantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return &game.UnknownPlayerError{ID: id}
	}
	if p.Assigned() {
		return &game.DuplicateAssignmentError{Player: id, Held: p.Variant}
	}
	p.Variant = variant
	return nil
}

// AlivePlayers returns the living players ordered by id.
func (r *Registry) AlivePlayers() []game.Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]game.Player, 0, len(r.players))
	for _, p := range r.players {
		if p.Alive() {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MarkDead records a player's death. Killing a dead player is reported as an
// AlreadyDeadError rather than ignored; callers decide whether that matters.
func (r *Registry) MarkDead(id game.PlayerID, night int, cause string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return &game.UnknownPlayerError{ID: id}
	}
	if !p.Alive() {
		killed := night
		if p.Death != nil {
			killed = p.Death.Night
		}
		return &game.AlreadyDeadError{Player: id, Night: killed}
	}
	p.Status = game.StatusDead
	p.Death = &game.Death{Night: night, Cause: strings.TrimSpace(cause)}
	return nil
}

// Player looks up a single player.
func (r *Registry) Player(id game.PlayerID) (game.Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	if !ok {
		return game.Player{}, false
	}
	return p.Clone(), true
}

// Players returns every player in seat order.
func (r *Registry) Players() []game.Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]game.Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.players[id].Clone())
	}
	return out
}

// Variants returns the distinct variants held by anyone, living or dead,
// sorted by id.
func (r *Registry) Variants() []game.VariantID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[game.VariantID]struct{}{}
	var ids []game.VariantID
	for _, p := range r.players {
		if !p.Assigned() {
			continue
		}
		if _, ok := seen[p.Variant]; ok {
			continue
		}
		seen[p.Variant] = struct{}{}
		ids = append(ids, p.Variant)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len reports how many players are seated.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
