package orchestrator

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/loups-garous/internal/game"
	"github.com/kingrea/loups-garous/internal/players"
	"github.com/kingrea/loups-garous/internal/roles"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) StateChanged(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *recorder) last(kind EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}

func table(t *testing.T, seats ...[2]string) *players.Registry {
	t.Helper()
	reg := players.New()
	for _, seat := range seats {
		id := game.PlayerID(seat[0])
		if err := reg.Add(id, seat[0]); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
		if seat[1] == "" {
			continue
		}
		if err := reg.Assign(id, game.VariantID(seat[1])); err != nil {
			t.Fatalf("assign %s: %v", id, err)
		}
	}
	return reg
}

func abcCatalog() *roles.Catalog {
	c := roles.NewCatalog()
	c.MustRegister(roles.VariantDefinition{ID: "a", Team: "village", WakesAtNight: true, Weight: 1, Frequency: roles.FrequencyDefinition{Kind: "every-night"}})
	c.MustRegister(roles.VariantDefinition{ID: "b", Team: "village", WakesAtNight: true, Weight: 2, Frequency: roles.FrequencyDefinition{Kind: "first-night"}})
	c.MustRegister(roles.VariantDefinition{ID: "c", Team: "village", WakesAtNight: true, Weight: 3, Frequency: roles.FrequencyDefinition{Kind: "every-nth", Every: 2, Start: 1}})
	return c
}

func newGame(t *testing.T, catalog *roles.Catalog, reg *players.Registry, opts ...Option) *Orchestrator {
	t.Helper()
	fixed := time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC)
	opts = append([]Option{WithGameID("test-game"), WithClock(func() time.Time { return fixed })}, opts...)
	o, err := NewGame(catalog, reg, opts...)
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	return o
}

func queueVariants(state game.State) []game.VariantID {
	var out []game.VariantID
	for _, turn := range state.Queue {
		out = append(out, turn.Variant)
	}
	return out
}

func pass(t *testing.T, o *Orchestrator) game.State {
	t.Helper()
	state, err := o.CompleteCurrentAction(game.Payload{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	return state
}

func TestNightQueuesFollowFrequencies(t *testing.T) {
	o := newGame(t, abcCatalog(), table(t, [2]string{"p1", "a"}, [2]string{"p2", "b"}, [2]string{"p3", "c"}))
	want := map[int][]game.VariantID{
		1: {"a", "b", "c"},
		2: {"a"},
		3: {"a", "c"},
	}
	for night := 1; night <= 3; night++ {
		state, err := o.BeginNight()
		if err != nil {
			t.Fatalf("begin night %d: %v", night, err)
		}
		if state.Night != night || state.Phase != game.PhaseNight {
			t.Fatalf("expected night %d in progress, got %d/%s", night, state.Night, state.Phase)
		}
		if got := queueVariants(state); !reflect.DeepEqual(got, want[night]) {
			t.Fatalf("night %d: want %v, got %v", night, want[night], got)
		}
		for range want[night] {
			state = pass(t, o)
		}
		if state.Phase != game.PhaseDay || state.Night != night+1 {
			t.Fatalf("expected day before night %d, got %s/%d", night+1, state.Phase, state.Night)
		}
	}
}

func TestDeadHolderNeverWakes(t *testing.T) {
	o := newGame(t, abcCatalog(), table(t, [2]string{"p1", "a"}, [2]string{"p2", "b"}, [2]string{"p3", "c"}))
	if _, err := o.BeginNight(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := o.CompleteCurrentAction(game.Payload{Effects: []game.Effect{{Kind: game.EffectKill, Target: "p2"}}}); err != nil {
		t.Fatalf("kill: %v", err)
	}
	pass(t, o)
	pass(t, o)
	state, err := o.BeginNight()
	if err != nil {
		t.Fatalf("begin night 2: %v", err)
	}
	if got := queueVariants(state); !reflect.DeepEqual(got, []game.VariantID{"a"}) {
		t.Fatalf("expected [a], got %v", got)
	}
	if _, skipped := o.LastPlan().Skipped["b/p2"]; skipped {
		t.Fatalf("dead holder must not reach frequency filtering")
	}
}

func TestDuplicateCompletionIsIdempotent(t *testing.T) {
	o := newGame(t, roles.DefaultCatalog(), table(t,
		[2]string{"guard", "guard"},
		[2]string{"wolf", "werewolf"},
		[2]string{"seer", "seer"},
		[2]string{"villa", "villager"},
	))
	if _, err := o.BeginNight(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	protect := game.Payload{Night: 1, Turn: 0, Effects: []game.Effect{{Kind: game.EffectProtect, Target: "villa"}}}
	first, err := o.CompleteCurrentAction(protect)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := o.CompleteCurrentAction(protect)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("duplicate changed the state")
	}
	conflicting := game.Payload{Night: 1, Turn: 0, Effects: []game.Effect{{Kind: game.EffectProtect, Target: "seer"}}}
	if _, err := o.CompleteCurrentAction(conflicting); !errors.Is(err, game.ErrConflictingAction) {
		t.Fatalf("expected conflicting action, got %v", err)
	}
	stale := game.Payload{Night: 4, Turn: 1}
	if _, err := o.CompleteCurrentAction(stale); !errors.Is(err, game.ErrInvalidState) {
		t.Fatalf("expected stale night rejected, got %v", err)
	}
	if got := o.Snapshot(); !reflect.DeepEqual(first, got) {
		t.Fatalf("rejected payloads changed the state")
	}
}

func TestResentPayloadAfterAdvance(t *testing.T) {
	o := newGame(t, roles.DefaultCatalog(), table(t,
		[2]string{"guard", "guard"},
		[2]string{"wolf", "werewolf"},
		[2]string{"seer", "seer"},
		[2]string{"villa", "villager"},
	))
	if _, err := o.BeginNight(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	protect := []game.Effect{{Kind: game.EffectProtect, Target: "villa"}}
	first, err := o.CompleteCurrentAction(game.Payload{Night: 1, Turn: 0, Effects: protect})
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	resent, err := o.CompleteCurrentAction(game.Payload{Night: 1, Turn: 0, Effects: protect})
	if err != nil {
		t.Fatalf("addressed resend: %v", err)
	}
	if !reflect.DeepEqual(first, resent) {
		t.Fatalf("addressed resend must not touch the wolves' turn")
	}
	if turn, ok := o.CurrentTurn(); !ok || turn.Variant != "werewolf" || turn.Completed {
		t.Fatalf("expected wolves still awake, got %+v", turn)
	}

	// Unaddressed payloads always mean the current turn.
	state, err := o.CompleteCurrentAction(game.Payload{Effects: protect})
	if err != nil {
		t.Fatalf("unaddressed: %v", err)
	}
	if !state.Queue[1].Completed || state.Queue[1].Variant != "werewolf" {
		t.Fatalf("expected the unaddressed payload on the wolves' turn, got %+v", state.Queue[1])
	}
}

func TestPreviousRoleRoundTrip(t *testing.T) {
	o := newGame(t, roles.DefaultCatalog(), table(t,
		[2]string{"guard", "guard"},
		[2]string{"wolf", "werewolf"},
		[2]string{"seer", "seer"},
		[2]string{"villa", "villager"},
	))
	if _, err := o.BeginNight(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := o.GoToPreviousRole(); !errors.Is(err, game.ErrAtStartOfNight) {
		t.Fatalf("expected at start of night, got %v", err)
	}
	if _, err := o.CompleteCurrentAction(game.Payload{Effects: []game.Effect{{Kind: game.EffectProtect, Target: "seer"}}}); err != nil {
		t.Fatalf("guard: %v", err)
	}
	kill := game.Payload{Effects: []game.Effect{{Kind: game.EffectKill, Target: "villa"}}}
	before, err := o.CompleteCurrentAction(kill)
	if err != nil {
		t.Fatalf("wolves: %v", err)
	}
	retreated, err := o.GoToPreviousRole()
	if err != nil {
		t.Fatalf("previous: %v", err)
	}
	if retreated.Index != 1 || retreated.Queue[1].Completed {
		t.Fatalf("expected wolves reopened, got index %d", retreated.Index)
	}
	after, err := o.CompleteCurrentAction(kill)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("round trip differs:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestLateProtectionSavesVictim(t *testing.T) {
	c := roles.NewCatalog()
	c.MustRegister(roles.VariantDefinition{ID: "wolf", Team: "werewolves", WakesAtNight: true, Weight: 1, TeamWide: true})
	c.MustRegister(roles.VariantDefinition{ID: "healer", Team: "village", WakesAtNight: true, Weight: 2})
	c.MustRegister(roles.VariantDefinition{ID: "villager", Team: "village"})
	rec := &recorder{}
	o := newGame(t, c, table(t, [2]string{"w", "wolf"}, [2]string{"h", "healer"}, [2]string{"v", "villager"}), WithObserver(rec))
	if _, err := o.BeginNight(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := o.CompleteCurrentAction(game.Payload{Effects: []game.Effect{{Kind: game.EffectKill, Target: "v"}}}); err != nil {
		t.Fatalf("kill: %v", err)
	}
	state, err := o.CompleteCurrentAction(game.Payload{Effects: []game.Effect{{Kind: game.EffectProtect, Target: "v"}}})
	if err != nil {
		t.Fatalf("protect: %v", err)
	}
	if p, _ := state.Player("v"); !p.Alive() {
		t.Fatalf("expected v to survive")
	}
	day, ok := rec.last(EventDayStarted)
	if !ok || day.Resolution == nil || !reflect.DeepEqual(day.Resolution.Saved, []game.PlayerID{"v"}) {
		t.Fatalf("expected day-started with v saved, got %+v", day)
	}
}

func TestCompleteAfterQueueExhausted(t *testing.T) {
	rec := &recorder{}
	o := newGame(t, abcCatalog(), table(t, [2]string{"p1", "a"}), WithObserver(rec))
	if _, err := o.BeginNight(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	pass(t, o)
	if _, ok := o.CurrentTurn(); ok {
		t.Fatalf("expected no current turn once the night is over")
	}
	if !o.IsNightComplete() {
		t.Fatalf("expected night complete")
	}
	if _, err := o.CompleteCurrentAction(game.Payload{}); !errors.Is(err, game.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	want := []EventKind{EventNightStarted, EventActionCompleted, EventNightResolving, EventDayStarted}
	if got := rec.kinds(); !reflect.DeepEqual(got, want) {
		t.Fatalf("want events %v, got %v", want, got)
	}
	resolving, _ := rec.last(EventNightResolving)
	day, _ := rec.last(EventDayStarted)
	if resolving.State.Night != 1 || day.State.Night != 2 {
		t.Fatalf("night must move only with resolution, got %d then %d", resolving.State.Night, day.State.Night)
	}
	if resolving.Sequence >= day.Sequence {
		t.Fatalf("expected increasing sequences")
	}
}

func TestPhaseGuards(t *testing.T) {
	o := newGame(t, abcCatalog(), table(t, [2]string{"p1", "a"}, [2]string{"p2", "b"}))
	if _, err := o.CompleteCurrentAction(game.Payload{}); !errors.Is(err, game.ErrInvalidState) {
		t.Fatalf("complete in idle: %v", err)
	}
	if _, err := o.GoToPreviousRole(); !errors.Is(err, game.ErrInvalidState) {
		t.Fatalf("previous in idle: %v", err)
	}
	if _, err := o.EliminatePlayer("p1", "vote"); !errors.Is(err, game.ErrInvalidState) {
		t.Fatalf("eliminate in idle: %v", err)
	}
	if _, err := o.BeginNight(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := o.BeginNight(); !errors.Is(err, game.ErrInvalidState) {
		t.Fatalf("begin twice: %v", err)
	}
	if _, err := o.EliminatePlayer("p1", "vote"); !errors.Is(err, game.ErrInvalidState) {
		t.Fatalf("eliminate at night: %v", err)
	}
}

func TestEliminateDuringDay(t *testing.T) {
	rec := &recorder{}
	o := newGame(t, abcCatalog(), table(t, [2]string{"p1", "a"}, [2]string{"p2", ""}), WithObserver(rec))
	if _, err := o.BeginNight(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	pass(t, o)
	state, err := o.EliminatePlayer("p2", "village vote")
	if err != nil {
		t.Fatalf("eliminate: %v", err)
	}
	p, _ := state.Player("p2")
	if p.Alive() || p.Death.Night != 1 || p.Death.Cause != "village vote" {
		t.Fatalf("unexpected death record %+v", p)
	}
	if _, err := o.EliminatePlayer("p2", "again"); !errors.Is(err, game.ErrAlreadyDead) {
		t.Fatalf("expected already dead, got %v", err)
	}
	if _, err := o.EliminatePlayer("nobody", "vote"); !errors.Is(err, game.ErrUnknownPlayer) {
		t.Fatalf("expected unknown player, got %v", err)
	}
	ev, ok := rec.last(EventPlayerEliminated)
	if !ok || ev.Player != "p2" {
		t.Fatalf("expected player-eliminated event, got %+v", ev)
	}
}

func TestEndGameIsTerminal(t *testing.T) {
	for _, phase := range []string{"idle", "night", "day"} {
		t.Run(phase, func(t *testing.T) {
			o := newGame(t, abcCatalog(), table(t, [2]string{"p1", "a"}, [2]string{"p2", "b"}))
			if phase != "idle" {
				if _, err := o.BeginNight(); err != nil {
					t.Fatalf("begin: %v", err)
				}
			}
			if phase == "day" {
				pass(t, o)
				pass(t, o)
			}
			state, err := o.EndGame("wolves win")
			if err != nil {
				t.Fatalf("end: %v", err)
			}
			if state.Phase != game.PhaseOver || state.EndReason != "wolves win" {
				t.Fatalf("unexpected end state %s/%q", state.Phase, state.EndReason)
			}
			checks := map[string]func() error{
				"begin":     func() error { _, err := o.BeginNight(); return err },
				"complete":  func() error { _, err := o.CompleteCurrentAction(game.Payload{}); return err },
				"previous":  func() error { _, err := o.GoToPreviousRole(); return err },
				"eliminate": func() error { _, err := o.EliminatePlayer("p1", "x"); return err },
				"end":       func() error { _, err := o.EndGame("again"); return err },
			}
			for name, check := range checks {
				if err := check(); !errors.Is(err, game.ErrGameAlreadyOver) {
					t.Fatalf("%s after game over: %v", name, err)
				}
			}
		})
	}
}

func TestEmptyNightResolvesImmediately(t *testing.T) {
	rec := &recorder{}
	o := newGame(t, roles.DefaultCatalog(), table(t, [2]string{"v1", "villager"}, [2]string{"v2", "villager"}), WithObserver(rec))
	state, err := o.BeginNight()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if state.Phase != game.PhaseDay || state.Night != 2 {
		t.Fatalf("expected straight to day, got %s/%d", state.Phase, state.Night)
	}
	want := []EventKind{EventNightStarted, EventNightResolving, EventDayStarted}
	if got := rec.kinds(); !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}

func TestNewGameRejectsUnknownRole(t *testing.T) {
	_, err := NewGame(roles.DefaultCatalog(), table(t, [2]string{"p1", "lich"}))
	if !errors.Is(err, game.ErrUnknownRole) {
		t.Fatalf("expected unknown role, got %v", err)
	}
}

func TestNewGameFreezesCatalog(t *testing.T) {
	c := abcCatalog()
	newGame(t, c, table(t, [2]string{"p1", "a"}))
	if err := c.Register(roles.VariantDefinition{ID: "late", Team: "village"}); err == nil {
		t.Fatalf("expected catalog frozen once a game starts")
	}
}

func TestObserverErrorsDoNotUndoTransitions(t *testing.T) {
	failing := ObserverFunc(func(Event) error { return errors.New("disk full") })
	o := newGame(t, abcCatalog(), table(t, [2]string{"p1", "a"}), WithObserver(failing))
	state, err := o.BeginNight()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if state.Phase != game.PhaseNight {
		t.Fatalf("expected night despite observer failure")
	}
}

func TestObserverMayReadSnapshot(t *testing.T) {
	var o *Orchestrator
	var seen []int
	reader := ObserverFunc(func(e Event) error {
		seen = append(seen, o.Snapshot().Night)
		return nil
	})
	o = newGame(t, abcCatalog(), table(t, [2]string{"p1", "a"}), WithObserver(reader))
	if _, err := o.BeginNight(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if len(seen) != 1 || seen[0] != 1 {
		t.Fatalf("unexpected observations %v", seen)
	}
}

func TestResumeContinuesNight(t *testing.T) {
	o := newGame(t, roles.DefaultCatalog(), table(t,
		[2]string{"guard", "guard"},
		[2]string{"wolf", "werewolf"},
		[2]string{"villa", "villager"},
	))
	if _, err := o.BeginNight(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	snap, err := o.CompleteCurrentAction(game.Payload{Effects: []game.Effect{{Kind: game.EffectProtect, Target: "villa"}}})
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	resumed, err := Resume(roles.DefaultCatalog(), snap)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.GameID() != "test-game" {
		t.Fatalf("expected game id preserved, got %s", resumed.GameID())
	}
	turn, ok := resumed.CurrentTurn()
	if !ok || turn.Variant != "werewolf" {
		t.Fatalf("expected wolves to be next, got %+v", turn)
	}
	state, err := resumed.CompleteCurrentAction(game.Payload{Effects: []game.Effect{{Kind: game.EffectKill, Target: "villa"}}})
	if err != nil {
		t.Fatalf("wolves: %v", err)
	}
	if p, _ := state.Player("villa"); !p.Alive() {
		t.Fatalf("protection recorded before the restart must still apply")
	}
}

func TestResumeFinishesInterruptedResolution(t *testing.T) {
	rec := &recorder{}
	o := newGame(t, roles.DefaultCatalog(), table(t,
		[2]string{"wolf", "werewolf"},
		[2]string{"villa", "villager"},
	), WithObserver(rec))
	if _, err := o.BeginNight(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := o.CompleteCurrentAction(game.Payload{Effects: []game.Effect{{Kind: game.EffectKill, Target: "villa"}}}); err != nil {
		t.Fatalf("wolves: %v", err)
	}
	completed, _ := rec.last(EventActionCompleted)
	resolving, _ := rec.last(EventNightResolving)
	day, _ := rec.last(EventDayStarted)

	for name, snap := range map[string]game.State{"action-completed": completed.State, "night-resolving": resolving.State} {
		after := &recorder{}
		resumed, err := Resume(roles.DefaultCatalog(), snap, WithObserver(after))
		if err != nil {
			t.Fatalf("%s: resume: %v", name, err)
		}
		want := []EventKind{EventNightResolving, EventDayStarted}
		if got := after.kinds(); !reflect.DeepEqual(got, want) {
			t.Fatalf("%s: want events %v, got %v", name, want, got)
		}
		state := resumed.Snapshot()
		if state.Phase != game.PhaseDay || state.Night != 2 {
			t.Fatalf("%s: expected day before night 2, got %s night %d", name, state.Phase, state.Night)
		}
		if p, _ := state.Player("villa"); p.Alive() {
			t.Fatalf("%s: the recorded kill must apply on resume", name)
		}
		if _, err := resumed.BeginNight(); err != nil {
			t.Fatalf("%s: begin night 2: %v", name, err)
		}
	}

	after := &recorder{}
	if _, err := Resume(roles.DefaultCatalog(), day.State, WithObserver(after)); err != nil {
		t.Fatalf("resume day: %v", err)
	}
	if len(after.kinds()) != 0 {
		t.Fatalf("a settled snapshot must resume silently, got %v", after.kinds())
	}
}
