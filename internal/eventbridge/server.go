package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

var errServerDisabled = errors.New("eventbridge: server disabled")

// Server wraps the HTTP listener serving the read-only game feed.
type Server struct {
	settings Settings
	router   *Router
	logger   Logger
	clock    func() time.Time
	upgrader websocket.Upgrader

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
	closing   chan struct{}
	feeds     sync.WaitGroup
}

// Option customizes server construction.
type Option func(*Server)

// WithRouter sets the router feed clients subscribe to.
func WithRouter(r *Router) Option {
	return func(s *Server) {
		if r != nil {
			s.router = r
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a feed server using the provided settings.
func NewServer(settings Settings, opts ...Option) *Server {
	s := &Server{
		settings: settings.withDefaults(),
		logger:   nopLogger{},
		clock:    func() time.Time { return time.Now().UTC() },
		status:   StatusStarting,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("eventbridge: server is nil")
	}
	if !s.settings.Enabled {
		return errServerDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("eventbridge: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("eventbridge: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	s.closing = make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/feed", s.handleFeed)
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("eventbridge: serve error: %v", err)
		}
	}()
	s.logger.Printf("eventbridge: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections, closes open feeds and waits for
// in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.listener == nil || s.server == nil || s.status == StatusDraining {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusDraining
	server, closing := s.server, s.closing
	s.mu.Unlock()

	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	// Hijacked websocket connections are not tracked by http.Server.
	close(closing)
	err := server.Shutdown(deadline)
	s.feeds.Wait()

	s.mu.Lock()
	s.listener = nil
	s.server = nil
	s.mu.Unlock()
	return err
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL (scheme + host:port) for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// FeedURL returns the websocket URL for one game on the running server.
func (s *Server) FeedURL(gameID string) string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.FeedURL(gameID)
	}
	return feedURL(addr, gameID)
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(time.Since(s.startTime).Seconds())
}

func (s *Server) writeTimeout() time.Duration {
	return s.settings.WriteTimeout
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", fmt.Sprintf("%s, %s", http.MethodGet, http.MethodHead))
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	resp := healthResponse{
		Status:        string(s.Status()),
		Version:       ProtocolVersion,
		RouterReady:   s.router != nil,
		UptimeSeconds: s.uptimeSeconds(),
	}
	if s.router != nil {
		resp.Subscribers = s.router.Subscribers()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	gameID := strings.TrimSpace(r.URL.Query().Get("game"))
	if gameID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "game is required"})
		return
	}
	if s.router == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "router not ready"})
		return
	}
	s.mu.RLock()
	closing := s.closing
	draining := s.status == StatusDraining
	if !draining {
		s.feeds.Add(1)
	}
	s.mu.RUnlock()
	if draining {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "server draining"})
		return
	}
	defer s.feeds.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.logger.Printf("eventbridge: upgrade for game %s: %v", gameID, err)
		return
	}
	defer conn.Close()

	sub := s.router.Subscribe(gameID)
	defer sub.Close()
	s.logger.Printf("eventbridge: feed opened for game %s", gameID)

	gone := make(chan struct{})
	go s.readLoop(conn, gone)

	ticker := time.NewTicker(s.settings.pingPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-closing:
			s.closeFeed(conn, websocket.CloseGoingAway, "server shutting down")
			return
		case <-gone:
			return
		case event, ok := <-sub.Events:
			if !ok {
				s.closeFeed(conn, websocket.CloseNormalClosure, "")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
			if err := conn.WriteJSON(NewMessage(event, s.now())); err != nil {
				s.logger.Printf("eventbridge: write to game %s feed: %v", gameID, err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout())); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so control messages are processed, and
// reports the disconnect by closing gone.
func (s *Server) readLoop(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	wait := s.settings.PongWait
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) closeFeed(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout()))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
