// Package realtime pushes totem feed changes to connected totems over websocket.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	// EventFeedChanged tells totems to refetch GET /totem/events.
	EventFeedChanged = "feed_changed"
)

// FeedChange is the payload of EventFeedChanged.
type FeedChange struct {
	EventID uuid.UUID `json:"event_id"`
	At      time.Time `json:"at"`
}

// FeedPublisher publishes feed messages for every instance (cross-instance broadcast).
type FeedPublisher interface {
	PublishFeed(ctx context.Context, event string, payload []byte) error
}

// FeedSubscriber subscribes to the feed channel and invokes handler for incoming messages.
type FeedSubscriber interface {
	SubscribeFeed(handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub keeps the connected totems and broadcasts feed messages to them.
// With Redis configured, messages are only published; the subscription delivers them locally.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	// subMu guards cancelSub and is never taken while holding mu.
	subMu     sync.Mutex
	cancelSub func()

	logger    *zap.Logger
	pub       FeedPublisher
	sub       FeedSubscriber
}

// NewHub creates a new WebSocket hub. pub and sub may be nil for a single instance.
func NewHub(logger *zap.Logger, pub FeedPublisher, sub FeedSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
		pub:     pub,
		sub:     sub,
	}
}

// Register adds a client. Starts the Redis subscription for the first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	if h.sub != nil {
		h.subMu.Lock()
		if h.cancelSub == nil {
			cancel, err := h.sub.SubscribeFeed(func(event string, payload []byte) {
				h.Broadcast(event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("feed subscription failed", zap.Error(err))
			} else {
				h.cancelSub = cancel
			}
		}
		h.subMu.Unlock()
	}
	h.logger.Debug("totem connected", zap.String("client_id", c.ID), zap.String("totem_id", c.TotemID))
}

// Unregister removes a client. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()

	h.subMu.Lock()
	if h.cancelSub != nil && h.ClientCount() == 0 {
		h.cancelSub()
		h.cancelSub = nil
	}
	h.subMu.Unlock()
	h.logger.Debug("totem disconnected", zap.String("client_id", c.ID), zap.String("totem_id", c.TotemID))
}

// Broadcast sends a message to all local clients.
func (h *Hub) Broadcast(event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish delivers a message to every instance. Without a publisher it broadcasts locally.
func (h *Hub) Publish(ctx context.Context, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.pub != nil {
		if err := h.pub.PublishFeed(ctx, event, data); err != nil {
			h.logger.Warn("feed publish failed, broadcasting locally", zap.String("event", event), zap.Error(err))
			h.Broadcast(event, json.RawMessage(data))
		}
		return
	}
	h.Broadcast(event, json.RawMessage(data))
}

// FeedChanged announces that an event visible to totems may have changed.
func (h *Hub) FeedChanged(ctx context.Context, eventID uuid.UUID) {
	h.Publish(ctx, EventFeedChanged, FeedChange{EventID: eventID, At: time.Now().UTC()})
}

// ClientCount returns the number of connected totems on this instance.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
