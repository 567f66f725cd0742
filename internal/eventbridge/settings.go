package eventbridge

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/loups-garous/internal/config"
)

// Settings describe the game feed: whether table displays may connect, where
// they connect, how long a silent display is kept, and how far a slow one may
// fall behind before events are dropped.
type Settings struct {
	Enabled bool
	Host    string
	Port    int

	// PongWait is how long a display may stay silent before its feed is
	// closed. Pings go out at nine tenths of it.
	PongWait time.Duration
	// WriteTimeout bounds each frame written to a display.
	WriteTimeout time.Duration

	// QueueSize bounds the events queued for one display.
	QueueSize int
	// Backlog bounds the events a game keeps until its first display connects.
	Backlog int
}

const (
	// DefaultHost keeps the feed on the moderator's machine.
	DefaultHost = "127.0.0.1"
	// DefaultPort is the feed's TCP port.
	DefaultPort = 8766
	// DefaultPongWait drops displays that stopped answering pings.
	DefaultPongWait = 60 * time.Second
	// DefaultWriteTimeout bounds each feed frame.
	DefaultWriteTimeout = 10 * time.Second

	readHeaderTimeout = 15 * time.Second
)

// SettingsFromConfig reads the bridge section of .loups/config.yaml, then the
// LOUPS_BRIDGE_* environment. The feed is off unless one of them turns it on.
func SettingsFromConfig(cfg *config.Config) Settings {
	var s Settings
	if cfg != nil {
		bridge := cfg.Project.Bridge
		if bridge.Enabled != nil {
			s.Enabled = *bridge.Enabled
		}
		s.Host = bridge.Host
		s.Port = bridge.Port
		s.QueueSize = bridge.QueueSize
		s.Backlog = bridge.Backlog
	}
	if value, ok := envValue("LOUPS_BRIDGE_ENABLED"); ok {
		if enabled, err := strconv.ParseBool(value); err == nil {
			s.Enabled = enabled
		}
	}
	if value, ok := envValue("LOUPS_BRIDGE_HOST"); ok {
		s.Host = value
	}
	if value, ok := envValue("LOUPS_BRIDGE_PORT"); ok {
		if port, err := strconv.Atoi(value); err == nil {
			s.Port = port
		}
	}
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	return s.withDefaults()
}

// FeedURL is the websocket address a table display opens for one game.
func (s Settings) FeedURL(gameID string) string {
	return feedURL(s.Address(), gameID)
}

// RouterOptions sizes a Router for these settings.
func (s Settings) RouterOptions() []RouterOption {
	s = s.withDefaults()
	return []RouterOption{
		RouterWithSubscriberCapacity(s.QueueSize),
		RouterWithBacklogLimit(s.Backlog),
	}
}

// Address returns the bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL, where /health lives.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

func (s Settings) pingPeriod() time.Duration {
	return s.PongWait * 9 / 10
}

func (s Settings) withDefaults() Settings {
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if s.Port < 0 || s.Port > 65535 {
		s.Port = DefaultPort
	}
	if s.PongWait <= 0 {
		s.PongWait = DefaultPongWait
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.QueueSize <= 0 {
		s.QueueSize = defaultSubscriberCapacity
	}
	if s.Backlog <= 0 {
		s.Backlog = defaultBacklogLimit
	}
	return s
}

func feedURL(addr, gameID string) string {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/feed", RawQuery: url.Values{"game": {gameID}}.Encode()}
	return u.String()
}

func envValue(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}
