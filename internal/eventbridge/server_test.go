package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kingrea/loups-garous/internal/config"
	"github.com/kingrea/loups-garous/internal/game"
	"github.com/kingrea/loups-garous/internal/orchestrator"
	"github.com/kingrea/loups-garous/internal/players"
	"github.com/kingrea/loups-garous/internal/roles"
)

func testSettings() Settings {
	return Settings{Enabled: true, Host: "127.0.0.1", Port: 0, PongWait: time.Second, WriteTimeout: time.Second}
}

func TestSettingsFromConfigHonorsEnv(t *testing.T) {
	t.Setenv("LOUPS_BRIDGE_PORT", "9001")
	t.Setenv("LOUPS_BRIDGE_HOST", "0.0.0.0")
	t.Setenv("LOUPS_BRIDGE_ENABLED", "true")
	cfg := &config.Config{}
	settings := SettingsFromConfig(cfg)
	if settings.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", settings.Port)
	}
	if settings.Host != "0.0.0.0" {
		t.Fatalf("expected host override, got %s", settings.Host)
	}
	if !settings.Enabled {
		t.Fatalf("expected enabled=true from env override")
	}
	if got := settings.FeedURL("g 1"); got != "ws://0.0.0.0:9001/feed?game=g+1" {
		t.Fatalf("unexpected feed url %s", got)
	}
}

func TestSettingsFromProjectConfig(t *testing.T) {
	enabled := true
	cfg := &config.Config{}
	cfg.Project.Bridge = config.BridgeConfig{Enabled: &enabled, Host: " 10.0.0.5 ", QueueSize: 2, Backlog: 3}
	settings := SettingsFromConfig(cfg)
	if !settings.Enabled || settings.Host != "10.0.0.5" || settings.Port != DefaultPort {
		t.Fatalf("unexpected settings %+v", settings)
	}
	if settings.PongWait != DefaultPongWait || settings.WriteTimeout != DefaultWriteTimeout {
		t.Fatalf("expected keepalive defaults, got %+v", settings)
	}
	if got := settings.FeedURL("night"); got != "ws://10.0.0.5:8766/feed?game=night" {
		t.Fatalf("unexpected feed url %s", got)
	}

	router := NewRouter(settings.RouterOptions()...)
	for i := 1; i <= 4; i++ {
		router.Route(orchestrator.Event{ID: fmt.Sprintf("evt-%d", i), GameID: "night", Sequence: int64(i), Kind: orchestrator.EventActionCompleted})
	}
	sub := router.Subscribe("night")
	defer sub.Close()
	// The backlog keeps #2..#4 and the two-slot queue keeps the newest two.
	for _, want := range []int64{3, 4} {
		if got := (<-sub.Events).Sequence; got != want {
			t.Fatalf("expected #%d, got #%d", want, got)
		}
	}
	select {
	case extra := <-sub.Events:
		t.Fatalf("unexpected extra event #%d", extra.Sequence)
	default:
	}
}

func TestSettingsDefaultToDisabled(t *testing.T) {
	enabled := false
	cfg := &config.Config{}
	cfg.Project.Bridge.Enabled = &enabled
	settings := SettingsFromConfig(cfg)
	if settings.Enabled || settings.Port != DefaultPort {
		t.Fatalf("unexpected settings %+v", settings)
	}
	srv := NewServer(settings)
	if err := srv.Start(context.Background()); err != errServerDisabled {
		t.Fatalf("expected disabled server, got %v", err)
	}
}

func TestServerHealthAndFeedValidation(t *testing.T) {
	t.Parallel()
	srv := NewServer(testSettings(), WithRouter(NewRouter()))
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	base := srv.BaseURL()
	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || health.Status != string(StatusReady) || !health.RouterReady {
		t.Fatalf("unexpected health %d %+v", resp.StatusCode, health)
	}
	resp, err = http.Get(base + "/feed")
	if err != nil {
		t.Fatalf("feed request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without a game, got %d", resp.StatusCode)
	}
	resp, err = http.Post(base+"/feed?game=g", "application/json", nil)
	if err != nil {
		t.Fatalf("post feed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestFeedStreamsGameEvents(t *testing.T) {
	t.Parallel()
	fixed := time.Unix(1730000000, 0).UTC()
	router := NewRouter()
	srv := NewServer(testSettings(), WithRouter(router), WithClock(func() time.Time { return fixed }))
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}

	reg := players.New()
	for id, variant := range map[game.PlayerID]game.VariantID{"wolf": "werewolf", "villa": "villager"} {
		_ = reg.Add(id, string(id))
		_ = reg.Assign(id, variant)
	}
	o, err := orchestrator.NewGame(roles.DefaultCatalog(), reg,
		orchestrator.WithGameID("feed-game"),
		orchestrator.WithObserver(router),
	)
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	// Routed before anyone listens: replayed from the backlog.
	if _, err := o.BeginNight(); err != nil {
		t.Fatalf("begin: %v", err)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(srv.FeedURL("feed-game"), nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	resp.Body.Close()
	defer conn.Close()

	if _, err := o.CompleteCurrentAction(game.Payload{Effects: []game.Effect{{Kind: game.EffectKill, Target: "villa"}}}); err != nil {
		t.Fatalf("wolves: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var kinds []orchestrator.EventKind
	var last Message
	for len(kinds) < 4 {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read frame %d: %v", len(kinds), err)
		}
		if msg.Version != FeedSchemaVersion || !msg.Sent.Equal(fixed) || msg.GameID != "feed-game" {
			t.Fatalf("unexpected frame header %+v", msg)
		}
		kinds = append(kinds, msg.Kind)
		last = msg
	}
	want := []orchestrator.EventKind{
		orchestrator.EventNightStarted,
		orchestrator.EventActionCompleted,
		orchestrator.EventNightResolving,
		orchestrator.EventDayStarted,
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("frame %d kind = %s, want %s", i, kinds[i], want[i])
		}
	}
	if last.Resolved == nil || len(last.Resolved.Deaths) != 1 || last.Resolved.Deaths[0] != "villa" {
		t.Fatalf("expected summary naming the victim, got %+v", last.Resolved)
	}
	if last.State.Phase != game.PhaseDay {
		t.Fatalf("expected day snapshot, got %s", last.State.Phase)
	}
}

func TestShutdownClosesOpenFeeds(t *testing.T) {
	t.Parallel()
	srv := NewServer(testSettings(), WithRouter(NewRouter()))
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(srv.FeedURL("idle"), nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	resp.Body.Close()
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
}
