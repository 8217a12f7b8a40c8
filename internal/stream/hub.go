package stream

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/papertrade/internal/model"
)

// Config holds hub settings.
type Config struct {
	BufferSize   int           // per-subscriber event limit
	PingInterval time.Duration // websocket keepalive interval
	WriteTimeout time.Duration // deadline for each websocket write
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:   256,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Hub routes committed transactions to the subscribers of their user.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool

	published atomic.Int64
}

// NewHub creates a Hub.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Hub{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscription receives the transactions of one user.
type Subscription struct {
	UserID string
	events *GrowableBuffer[model.Transaction]
	hub    *Hub
	once   sync.Once
}

// Next blocks for the next transaction. ok is false once the subscription is closed.
func (s *Subscription) Next() (model.Transaction, bool) {
	return s.events.Receive()
}

// Pending returns queued transactions without blocking.
func (s *Subscription) Pending() []model.Transaction {
	return s.events.DrainTo(0)
}

// Stats returns the subscriber's buffer statistics.
func (s *Subscription) Stats() BufferStats {
	return s.events.Stats()
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		s.events.Close()
	})
}

// Subscribe registers a subscriber for userID. Returns nil after Close.
func (h *Hub) Subscribe(userID string) *Subscription {
	initial := h.cfg.BufferSize / 4
	sub := &Subscription{
		UserID: userID,
		events: NewGrowableBuffer[model.Transaction](initial, h.cfg.BufferSize),
		hub:    h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[userID] = set
	}
	set[sub] = struct{}{}

	h.logger.Debug("stream subscriber added", "user_id", userID, "subscribers", len(set))
	return sub
}

// Publish delivers tx to every subscriber of tx.UserID. It never blocks.
func (h *Hub) Publish(tx model.Transaction) {
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[tx.UserID] {
		sub.events.Send(tx)
	}
}

// Published returns the number of transactions published since start.
func (h *Hub) Published() int64 {
	return h.published.Load()
}

// Subscribers returns the number of live subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Subscription
	for _, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
	h.logger.Info("stream hub closed", "subscribers", len(all))
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[sub.UserID]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.UserID)
	}
}
