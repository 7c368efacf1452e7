// Package stream delivers account, group, strategy and market snapshots from
// the backend to view state, over WebSocket (push) or REST polling (pull).
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// AllScopes subscribes to every message regardless of scope.
const AllScopes = "*"

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// BufferSize is the size of the inbound message queue.
	BufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{BufferSize: 256}
}

// Hub fans snapshots out to subscribers. One goroutine delivers every
// message, so subscribers observe messages in publish order. A subscriber
// that falls behind keeps only the newest undelivered message per scope:
// each message is a full snapshot of its scope, so older ones of the same
// scope carry nothing the newer one lacks, and other scopes are untouched.
type Hub struct {
	config      HubConfig
	logger      zerolog.Logger
	mu          sync.RWMutex
	subscribers map[string][]*Subscription
	inbox       chan Message
	done        chan struct{}
	started     bool
	stopped     bool

	received  atomic.Uint64
	delivered atomic.Uint64
	replaced  atomic.Uint64
}

// Subscription is a live subscriber. C is closed on Unsubscribe or Stop.
type Subscription struct {
	Scope     string
	C         <-chan Message
	CreatedAt time.Time

	out chan Message

	mu      sync.Mutex
	pending map[string]Message
	order   []string
	wake    chan struct{}
	quit    chan struct{}
	once    sync.Once
}

func newSubscription(scope string) *Subscription {
	out := make(chan Message)
	sub := &Subscription{
		Scope:     scope,
		C:         out,
		CreatedAt: time.Now(),
		out:       out,
		pending:   make(map[string]Message),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
	go sub.pump()
	return sub
}

// offer queues msg behind the scopes already pending. A pending message of
// the same scope is replaced in place; offer reports whether that happened.
func (s *Subscription) offer(msg Message) bool {
	s.mu.Lock()
	_, replaced := s.pending[msg.Scope]
	if !replaced {
		s.order = append(s.order, msg.Scope)
	}
	s.pending[msg.Scope] = msg
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return replaced
}

func (s *Subscription) next() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return Message{}, false
	}
	scope := s.order[0]
	s.order = s.order[1:]
	msg := s.pending[scope]
	delete(s.pending, scope)
	return msg, true
}

// pump hands pending messages to C in queue order until the subscription
// is closed.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		msg, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.quit:
				return
			}
		}
		select {
		case s.out <- msg:
		case <-s.quit:
			return
		}
	}
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.quit) })
}

// NewHub creates a new hub with default configuration.
func NewHub(logger zerolog.Logger) *Hub {
	return NewHubWithConfig(DefaultHubConfig(), logger)
}

// NewHubWithConfig creates a new hub with custom configuration.
func NewHubWithConfig(config HubConfig, logger zerolog.Logger) *Hub {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultHubConfig().BufferSize
	}
	return &Hub{
		config:      config,
		logger:      logger.With().Str("component", "hub").Logger(),
		subscribers: make(map[string][]*Subscription),
		inbox:       make(chan Message, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// Start begins the hub's distribution loop.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started || h.stopped {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.run(ctx)
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return
		case <-h.done:
			return
		case msg := <-h.inbox:
			h.received.Add(1)
			h.broadcast(msg)
		}
	}
}

// Stop stops the hub and closes all subscriber channels.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}
	h.stopped = true
	close(h.done)

	for scope, subs := range h.subscribers {
		for _, sub := range subs {
			sub.close()
		}
		delete(h.subscribers, scope)
	}
}

// Subscribe returns a subscription for scope (or AllScopes).
func (h *Hub) Subscribe(scope string) *Subscription {
	sub := newSubscription(scope)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		sub.close()
		return sub
	}
	h.subscribers[scope] = append(h.subscribers[scope], sub)
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[sub.Scope]
	for i, s := range subs {
		if s == sub {
			s.close()
			h.subscribers[sub.Scope] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subscribers[sub.Scope]) == 0 {
		delete(h.subscribers, sub.Scope)
	}
}

// Publish queues msg for delivery. It blocks while the queue is full so that
// no snapshot is reordered or lost before fan-out; it returns false if ctx
// ends or the hub is stopped first.
func (h *Hub) Publish(ctx context.Context, msg Message) bool {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	select {
	case h.inbox <- msg:
		return true
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// broadcast delivers msg to the scope's subscribers and to AllScopes
// subscribers.
func (h *Hub) broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}

	for _, sub := range h.subscribers[msg.Scope] {
		h.deliver(sub, msg)
	}
	if msg.Scope != AllScopes {
		for _, sub := range h.subscribers[AllScopes] {
			h.deliver(sub, msg)
		}
	}
}

// deliver never blocks: msg supersedes only a pending message of its own
// scope.
func (h *Hub) deliver(sub *Subscription, msg Message) {
	if sub.offer(msg) {
		h.replaced.Add(1)
		h.logger.Debug().Str("scope", msg.Scope).Msg("Slow subscriber, replaced pending snapshot")
	}
	h.delivered.Add(1)
}

// SubscriberCount returns the number of subscribers for a scope.
func (h *Hub) SubscriberCount(scope string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[scope])
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	Received  uint64
	Delivered uint64
	Replaced  uint64
}

// Metrics returns hub counters.
func (h *Hub) Metrics() HubMetrics {
	return HubMetrics{
		Received:  h.received.Load(),
		Delivered: h.delivered.Load(),
		Replaced:  h.replaced.Load(),
	}
}
