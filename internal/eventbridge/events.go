package eventbridge

import (
	"time"

	"github.com/kingrea/loups-garous/internal/orchestrator"
)

const (
	// ProtocolVersion identifies the bridge contract version exposed via /health.
	ProtocolVersion = "1.0.0"
	// FeedSchemaVersion is stamped on every frame written to the feed.
	FeedSchemaVersion = 1
)

// Message is one JSON frame written to a feed client.
type Message struct {
	Version  int       `json:"version"`
	Sent     time.Time `json:"sent"`
	Resolved *Summary  `json:"summary,omitempty"`
	orchestrator.Event
}

// Summary is a flattened view of a night resolution for clients that do not
// want to walk the full state.
type Summary struct {
	Night     int      `json:"night"`
	Deaths    []string `json:"deaths"`
	Saved     []string `json:"saved"`
	Conflicts int      `json:"conflicts"`
}

// NewMessage wraps an orchestrator event for the feed.
func NewMessage(e orchestrator.Event, sent time.Time) Message {
	msg := Message{Version: FeedSchemaVersion, Sent: sent.UTC(), Event: e}
	if res := e.Resolution; res != nil {
		summary := &Summary{
			Night:     res.Night,
			Deaths:    make([]string, 0, len(res.Deaths)),
			Saved:     make([]string, 0, len(res.Saved)),
			Conflicts: len(res.Conflicts),
		}
		for _, death := range res.Deaths {
			summary.Deaths = append(summary.Deaths, string(death.Player))
		}
		for _, saved := range res.Saved {
			summary.Saved = append(summary.Saved, string(saved))
		}
		msg.Resolved = summary
	}
	return msg
}

// Logger records bridge status information. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	RouterReady   bool   `json:"router_ready"`
	Subscribers   int    `json:"subscribers"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
