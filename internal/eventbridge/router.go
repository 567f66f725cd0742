package eventbridge

import (
	"strings"
	"sync"

	"github.com/kingrea/loups-garous/internal/orchestrator"
)

const (
	defaultSubscriberCapacity = 100
	defaultBacklogLimit       = 50
	defaultDedupeWindow       = 1024
)

// RouterOption customizes Router construction.
type RouterOption func(*Router)

// Router fans orchestrator events out to per-game subscribers with buffering,
// deduplication, and bounded channel semantics. It never blocks the caller.
type Router struct {
	mu           sync.RWMutex
	subscribers  map[string]map[*subscriber]struct{}
	backlog      map[string][]orchestrator.Event
	recentIDs    map[string]struct{}
	recentOrder  []string
	channelSize  int
	backlogLimit int
	dedupeWindow int
	logger       Logger
}

// Subscription represents an active feed for one game.
type Subscription struct {
	Events <-chan orchestrator.Event
	cancel func()
}

// Close terminates the subscription.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewRouter constructs a router with sane defaults.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		subscribers:  map[string]map[*subscriber]struct{}{},
		backlog:      map[string][]orchestrator.Event{},
		recentIDs:    map[string]struct{}{},
		recentOrder:  make([]string, 0, defaultDedupeWindow),
		channelSize:  defaultSubscriberCapacity,
		backlogLimit: defaultBacklogLimit,
		dedupeWindow: defaultDedupeWindow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RouterWithLogger injects a logger for drop/diagnostic messages.
func RouterWithLogger(logger Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// RouterWithSubscriberCapacity overrides the buffered channel size per subscriber.
func RouterWithSubscriberCapacity(cap int) RouterOption {
	return func(r *Router) {
		if cap > 0 {
			r.channelSize = cap
		}
	}
}

// RouterWithBacklogLimit overrides the backlog size for pre-subscription buffering.
func RouterWithBacklogLimit(limit int) RouterOption {
	return func(r *Router) {
		if limit > 0 {
			r.backlogLimit = limit
		}
	}
}

// RouterWithDedupeWindow controls how many recent event IDs are retained.
func RouterWithDedupeWindow(size int) RouterOption {
	return func(r *Router) {
		if size > 0 {
			r.dedupeWindow = size
		}
	}
}

// Subscribe registers for the events of one game. Events routed before the
// first subscriber arrived are replayed to it, ahead of anything newer.
func (r *Router) Subscribe(gameID string) Subscription {
	key := normalizeGame(gameID)
	sub := newSubscriber(r.channelSize, r.logger)
	r.mu.Lock()
	if r.subscribers[key] == nil {
		r.subscribers[key] = map[*subscriber]struct{}{}
	}
	r.subscribers[key][sub] = struct{}{}
	for _, event := range r.backlog[key] {
		sub.deliver(event)
	}
	delete(r.backlog, key)
	r.mu.Unlock()
	return Subscription{
		Events: sub.channel(),
		cancel: func() {
			r.removeSubscriber(key, sub)
		},
	}
}

// StateChanged lets the router observe an orchestrator directly.
func (r *Router) StateChanged(event orchestrator.Event) error {
	r.Route(event)
	return nil
}

// Route delivers the event to subscribers or buffers it when no subscriber exists.
func (r *Router) Route(event orchestrator.Event) {
	if event.ID != "" && r.isDuplicate(event.ID) {
		return
	}
	key := normalizeGame(event.GameID)
	if key == "" {
		return
	}
	r.mu.Lock()
	subs := r.snapshotSubscribers(key)
	if len(subs) == 0 {
		r.bufferEvent(key, event)
	}
	r.mu.Unlock()
	for _, sub := range subs {
		sub.deliver(event)
	}
}

// Subscribers counts live subscriptions across all games.
func (r *Router) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, subs := range r.subscribers {
		total += len(subs)
	}
	return total
}

func (r *Router) snapshotSubscribers(key string) []*subscriber {
	live := r.subscribers[key]
	if len(live) == 0 {
		return nil
	}
	items := make([]*subscriber, 0, len(live))
	for sub := range live {
		items = append(items, sub)
	}
	return items
}

func (r *Router) removeSubscriber(key string, sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subs := r.subscribers[key]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(r.subscribers, key)
		}
	}
	sub.close()
}

// bufferEvent expects r.mu held.
func (r *Router) bufferEvent(key string, event orchestrator.Event) {
	queue := r.backlog[key]
	if len(queue) >= r.backlogLimit {
		queue = queue[1:]
		if r.logger != nil {
			r.logger.Printf("eventbridge: backlog drop for game %s (limit %d)", key, r.backlogLimit)
		}
	}
	queue = append(queue, event)
	r.backlog[key] = queue
}

func (r *Router) isDuplicate(eventID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recentIDs[eventID]; ok {
		return true
	}
	r.recentIDs[eventID] = struct{}{}
	r.recentOrder = append(r.recentOrder, eventID)
	if len(r.recentOrder) > r.dedupeWindow {
		oldest := r.recentOrder[0]
		r.recentOrder = r.recentOrder[1:]
		delete(r.recentIDs, oldest)
	}
	return false
}

func normalizeGame(gameID string) string {
	return strings.TrimSpace(strings.ToLower(gameID))
}

type subscriber struct {
	ch     chan orchestrator.Event
	logger Logger
	closed bool
	mu     sync.Mutex
}

func newSubscriber(capacity int, logger Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{
		ch:     make(chan orchestrator.Event, capacity),
		logger: logger,
	}
}

func (s *subscriber) channel() <-chan orchestrator.Event {
	return s.ch
}

// deliver holds the lock for the whole send so close cannot race it. Only
// deliver sends, so a full channel stays full until the reader drains it.
// On overflow the queue is rebuilt in order minus one event, so readers
// always see sequences in the order they were routed.
func (s *subscriber) deliver(event orchestrator.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
		return
	default:
	}
	queued := make([]orchestrator.Event, 0, cap(s.ch)+1)
drain:
	for {
		select {
		case e := <-s.ch:
			queued = append(queued, e)
		default:
			break drain
		}
	}
	queued = append(queued, event)
	if len(queued) > cap(s.ch) {
		victim := dropIndex(queued)
		reason := "queue overflow"
		if victim == len(queued)-1 {
			reason = "queue overflow:incoming"
		}
		s.logDrop(queued[victim], reason)
		queued = append(queued[:victim], queued[victim+1:]...)
	}
	for _, e := range queued {
		s.ch <- e
	}
}

func (s *subscriber) logDrop(event orchestrator.Event, reason string) {
	if s.logger == nil {
		return
	}
	s.logger.Printf("eventbridge: dropped %s #%d (%s)", event.Kind, event.Sequence, reason)
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// dropIndex picks the event to lose from an overflowing queue: the oldest
// night-resolving, else the oldest event that is not critical, else the
// oldest of all.
func dropIndex(queued []orchestrator.Event) int {
	fallback := -1
	for i, e := range queued {
		if isCriticalEvent(e.Kind) {
			continue
		}
		if isPreferredDrop(e.Kind) {
			return i
		}
		if fallback < 0 {
			fallback = i
		}
	}
	if fallback < 0 {
		return 0
	}
	return fallback
}

func isCriticalEvent(kind orchestrator.EventKind) bool {
	return kind == orchestrator.EventGameOver || kind == orchestrator.EventDayStarted
}

func isPreferredDrop(kind orchestrator.EventKind) bool {
	return kind == orchestrator.EventNightResolving
}
