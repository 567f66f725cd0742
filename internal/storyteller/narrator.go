package storyteller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/loups-garous/internal/game"
	"github.com/kingrea/loups-garous/internal/orchestrator"
)

// DefaultTimeout bounds one narration.
const DefaultTimeout = 30 * time.Second

// Story is one finished (or failed) dawn narration.
type Story struct {
	GameID string
	Night  int
	Text   string
	Err    error
}

// Option customizes a Narrator.
type Option func(*Narrator)

// WithLogger sets the narrator's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Narrator) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(n *Narrator) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithChunks receives streamed text while a story is being told.
func WithChunks(fn func(night int, chunk string)) Option {
	return func(n *Narrator) {
		n.onChunk = fn
	}
}

// Narrator observes an orchestrator and tells a story at each dawn. Tellings
// run in the background so observers never wait on the model.
type Narrator struct {
	teller  Teller
	onStory func(Story)
	onChunk func(int, string)
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	history []string
	wg      sync.WaitGroup
}

// NewNarrator returns a narrator delivering finished stories to onStory.
// A nil teller yields a narrator that only keeps history.
func NewNarrator(teller Teller, onStory func(Story), opts ...Option) *Narrator {
	n := &Narrator{
		teller:  teller,
		onStory: onStory,
		logger:  zap.NewNop(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// StateChanged records public events and starts a telling on day-started.
func (n *Narrator) StateChanged(e orchestrator.Event) error {
	if n == nil {
		return nil
	}
	lines := publicLines(e)
	if len(lines) == 0 {
		return nil
	}
	n.mu.Lock()
	n.history = append(n.history, lines...)
	history := append([]string(nil), n.history...)
	n.mu.Unlock()

	if e.Kind != orchestrator.EventDayStarted || n.teller == nil || e.Resolution == nil {
		return nil
	}
	night := e.Resolution.Night
	n.wg.Add(1)
	go n.tell(e.GameID, night, history)
	return nil
}

// History returns the public lines recorded so far.
func (n *Narrator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.history...)
}

// Wait blocks until every started telling has finished.
func (n *Narrator) Wait() {
	n.wg.Wait()
}

func (n *Narrator) tell(gameID string, night int, history []string) {
	defer n.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	var chunk func(string)
	if n.onChunk != nil {
		chunk = func(text string) { n.onChunk(night, text) }
	}
	started := time.Now()
	text, err := n.teller.Tell(ctx, history, chunk)
	if err != nil {
		n.logger.Warn("storyteller failed", zap.String("game", gameID), zap.Int("night", night), zap.Error(err))
	} else {
		n.logger.Info("story told",
			zap.String("game", gameID),
			zap.Int("night", night),
			zap.Duration("took", time.Since(started)),
		)
	}
	if n.onStory != nil {
		n.onStory(Story{GameID: gameID, Night: night, Text: text, Err: err})
	}
}

// publicLines renders what the village is allowed to know about an event.
// Night actions stay secret; only their outcome at dawn is told.
func publicLines(e orchestrator.Event) []string {
	switch e.Kind {
	case orchestrator.EventDayStarted:
		if e.Resolution == nil {
			return nil
		}
		res := e.Resolution
		if len(res.Deaths) == 0 {
			line := fmt.Sprintf("Night %d: nobody died.", res.Night)
			if len(res.Saved) > 0 {
				line = fmt.Sprintf("Night %d: someone was attacked but survived.", res.Night)
			}
			return []string{line}
		}
		names := make([]string, 0, len(res.Deaths))
		for _, d := range res.Deaths {
			names = append(names, playerName(e.State, d.Player))
		}
		return []string{fmt.Sprintf("Night %d: %s found dead.", res.Night, strings.Join(names, " and "))}
	case orchestrator.EventPlayerEliminated:
		return []string{fmt.Sprintf("Day %d: the village eliminated %s.", e.State.Night-1, playerName(e.State, e.Player))}
	case orchestrator.EventGameOver:
		if e.State.EndReason == "" {
			return []string{"The game is over."}
		}
		return []string{"The game is over: " + e.State.EndReason + "."}
	}
	return nil
}

func playerName(s game.State, id game.PlayerID) string {
	if p, ok := s.Player(id); ok && p.Name != "" {
		return p.Name
	}
	return string(id)
}
