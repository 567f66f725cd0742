package store

import (
	"errors"
	"reflect"
	"testing"

	"github.com/kingrea/loups-garous/internal/game"
	"github.com/kingrea/loups-garous/internal/players"
	"github.com/kingrea/loups-garous/internal/roles"
)

func newTestStore(t *testing.T, seats map[game.PlayerID]game.VariantID) *Store {
	t.Helper()
	reg := players.New()
	ids := make([]game.PlayerID, 0, len(seats))
	for id := range seats {
		ids = append(ids, id)
	}
	for _, id := range ids {
		if err := reg.Add(id, string(id)); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
		if err := reg.Assign(id, seats[id]); err != nil {
			t.Fatalf("assign %s: %v", id, err)
		}
	}
	s, err := New("game-1", reg, roles.DefaultCatalog())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func beginNight(t *testing.T, s *Store) {
	t.Helper()
	plan, err := s.PlanNight()
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if err := s.BeginNight(plan); err != nil {
		t.Fatalf("begin: %v", err)
	}
}

func turnIndex(t *testing.T, state game.State, variant game.VariantID) int {
	t.Helper()
	for _, turn := range state.Queue {
		if turn.Variant == variant {
			return turn.Index
		}
	}
	t.Fatalf("no %s turn in queue %+v", variant, state.Queue)
	return -1
}

func complete(t *testing.T, s *Store, effects ...game.Effect) {
	t.Helper()
	idx := s.Snapshot().Index
	if _, err := s.RecordEffect(idx, game.Payload{Turn: idx, Effects: effects}); err != nil {
		t.Fatalf("record turn %d: %v", idx, err)
	}
	if _, err := s.Advance(); err != nil {
		t.Fatalf("advance turn %d: %v", idx, err)
	}
}

func TestNewRejectsUnknownRole(t *testing.T) {
	reg := players.New()
	_ = reg.Add("p1", "Ana")
	_ = reg.Assign("p1", "necromancer")
	if _, err := New("g", reg, roles.DefaultCatalog()); !errors.Is(err, game.ErrUnknownRole) {
		t.Fatalf("expected unknown role, got %v", err)
	}
}

func TestGuardProtectionSavesTarget(t *testing.T) {
	s := newTestStore(t, map[game.PlayerID]game.VariantID{
		"wolf":    "werewolf",
		"guard":   "guard",
		"villa":   "villager",
		"oracle":  "seer",
		"villa-2": "villager",
	})
	beginNight(t, s)
	state := s.Snapshot()
	if turnIndex(t, state, "guard") != 0 || turnIndex(t, state, "werewolf") != 1 {
		t.Fatalf("unexpected queue %+v", state.Queue)
	}
	complete(t, s, game.Effect{Kind: game.EffectProtect, Target: "villa"})
	complete(t, s, game.Effect{Kind: game.EffectKill, Target: "villa"})
	complete(t, s, game.Effect{Kind: game.EffectInform, Target: "wolf"})

	res, err := s.ResolveNightEnd()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Deaths) != 0 || !reflect.DeepEqual(res.Saved, []game.PlayerID{"villa"}) {
		t.Fatalf("expected villa saved, got %+v", res)
	}
	if len(res.Notes) != 1 || res.Notes[0].Text != "wolf is Werewolves" {
		t.Fatalf("expected seer note, got %+v", res.Notes)
	}
	after := s.Snapshot()
	if after.Night != 2 || len(after.Queue) != 0 || len(after.Pending) != 0 || after.Index != 0 {
		t.Fatalf("expected night closed, got %+v", after)
	}
	if after.ScratchFor("guard/guard")[roles.ScratchLastTarget] != "villa" {
		t.Fatalf("expected guard scratch updated, got %+v", after.Scratch)
	}
}

func TestKindPriorityIgnoresTurnOrder(t *testing.T) {
	c := roles.NewCatalog()
	c.MustRegister(roles.VariantDefinition{ID: "killer", Team: "werewolves", WakesAtNight: true, Weight: 1})
	c.MustRegister(roles.VariantDefinition{ID: "healer", Team: "village", WakesAtNight: true, Weight: 2})
	reg := players.New()
	for id, variant := range map[game.PlayerID]game.VariantID{"k": "killer", "h": "healer", "v": ""} {
		_ = reg.Add(id, "")
		if variant != "" {
			_ = reg.Assign(id, variant)
		}
	}
	s, err := New("g", reg, c)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	beginNight(t, s)
	complete(t, s, game.Effect{Kind: game.EffectKill, Target: "v"})
	complete(t, s, game.Effect{Kind: game.EffectProtect, Target: "v"})
	res, err := s.ResolveNightEnd()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Deaths) != 0 {
		t.Fatalf("protection recorded after the kill must still save, got %+v", res.Deaths)
	}
	if p, _ := s.Registry().Player("v"); !p.Alive() {
		t.Fatalf("expected v alive")
	}
}

func TestDoubleKillReportedAsConflict(t *testing.T) {
	s := newTestStore(t, map[game.PlayerID]game.VariantID{
		"wolf":  "werewolf",
		"witch": "witch",
		"villa": "villager",
	})
	beginNight(t, s)
	complete(t, s, game.Effect{Kind: game.EffectKill, Target: "villa"})
	complete(t, s, game.Effect{Kind: game.EffectKill, Target: "villa", Cause: "poison"})
	res, err := s.ResolveNightEnd()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Deaths) != 1 || res.Deaths[0].Cause != "werewolf" {
		t.Fatalf("expected one werewolf death, got %+v", res.Deaths)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Player != "villa" || res.Conflicts[0].Cause != "poison" {
		t.Fatalf("expected second kill reported, got %+v", res.Conflicts)
	}
	snap := s.Snapshot()
	if snap.LastResolution == nil || len(snap.LastResolution.Conflicts) != 1 {
		t.Fatalf("expected resolution stored on the state, got %+v", snap.LastResolution)
	}
	if snap.ScratchFor("witch/witch")[roles.ScratchUsed] != "true" {
		t.Fatalf("expected witch potion used")
	}
	dead, _ := snap.Player("villa")
	if dead.Alive() || dead.Death == nil || dead.Death.Night != 1 {
		t.Fatalf("expected villa dead on night 1, got %+v", dead)
	}
}

func TestRecordEffectDuplicateAndConflict(t *testing.T) {
	s := newTestStore(t, map[game.PlayerID]game.VariantID{
		"guard": "guard",
		"wolf":  "werewolf",
		"villa": "villager",
	})
	beginNight(t, s)
	protect := game.Payload{Turn: 0, Effects: []game.Effect{{Kind: game.EffectProtect, Target: "villa"}}}
	if recorded, err := s.RecordEffect(0, protect); err != nil || !recorded {
		t.Fatalf("first record: recorded=%v err=%v", recorded, err)
	}
	before := s.Snapshot()
	if recorded, err := s.RecordEffect(0, protect); err != nil || recorded {
		t.Fatalf("duplicate: recorded=%v err=%v", recorded, err)
	}
	if !reflect.DeepEqual(before, s.Snapshot()) {
		t.Fatalf("duplicate must leave state unchanged")
	}
	other := game.Payload{Turn: 0, Effects: []game.Effect{{Kind: game.EffectProtect, Target: "wolf"}}}
	if _, err := s.RecordEffect(0, other); !errors.Is(err, game.ErrConflictingAction) {
		t.Fatalf("expected conflicting action, got %v", err)
	}
	if _, err := s.RecordEffect(1, game.Payload{Turn: 1}); !errors.Is(err, game.ErrInvalidState) {
		t.Fatalf("expected future turn rejected, got %v", err)
	}
	bad := game.Payload{Effects: []game.Effect{{Kind: game.EffectKill, Target: "ghost"}}}
	if _, err := s.RecordEffect(0, bad); !errors.Is(err, game.ErrUnknownPlayer) {
		t.Fatalf("expected unknown player, got %v", err)
	}
}

func TestRetreatThenReplayRoundTrips(t *testing.T) {
	s := newTestStore(t, map[game.PlayerID]game.VariantID{
		"guard":  "guard",
		"wolf":   "werewolf",
		"oracle": "seer",
		"villa":  "villager",
	})
	beginNight(t, s)
	complete(t, s, game.Effect{Kind: game.EffectProtect, Target: "oracle"})
	payload := game.Payload{Turn: 1, Effects: []game.Effect{{Kind: game.EffectKill, Target: "villa"}}}
	if _, err := s.RecordEffect(1, payload); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := s.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	before := s.Snapshot()
	if err := s.Retreat(); err != nil {
		t.Fatalf("retreat: %v", err)
	}
	if got := s.Snapshot(); len(got.Pending) != 1 || got.Pending[0].Turn != 0 {
		t.Fatalf("expected only guard effect left, got %+v", got.Pending)
	}
	if _, err := s.RecordEffect(1, payload); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if _, err := s.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if after := s.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("round trip differs:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestResolveRequiresExhaustedQueue(t *testing.T) {
	s := newTestStore(t, map[game.PlayerID]game.VariantID{"wolf": "werewolf", "villa": "villager"})
	beginNight(t, s)
	if _, err := s.ResolveNightEnd(); !errors.Is(err, game.ErrIncompleteTurn) {
		t.Fatalf("expected incomplete turn, got %v", err)
	}
	if s.Snapshot().Night != 1 {
		t.Fatalf("night must not move on a failed resolution")
	}
}

func TestRestoreKeepsDeathsAndScratch(t *testing.T) {
	s := newTestStore(t, map[game.PlayerID]game.VariantID{"wolf": "werewolf", "villa": "villager", "witch": "witch"})
	beginNight(t, s)
	complete(t, s, game.Effect{Kind: game.EffectKill, Target: "villa"})
	complete(t, s, game.Effect{Kind: game.EffectNone})
	if _, err := s.ResolveNightEnd(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	snap := s.Snapshot()
	restored, err := Restore(snap, roles.DefaultCatalog())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !reflect.DeepEqual(snap, restored.Snapshot()) {
		t.Fatalf("restore changed the snapshot")
	}
	if len(restored.Registry().AlivePlayers()) != 2 {
		t.Fatalf("expected two survivors after restore")
	}
	plan, err := restored.PlanNight()
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Night != 2 || len(plan.Turns) != 2 {
		t.Fatalf("expected wolves and unused witch on night 2, got %+v", plan.Turns)
	}
}
