package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/tileclaim/internal/model"
)

// Buffer size for outgoing events per subscriber
const subscriberBufferSize = 64

// Subscriber is one connected observer. Transports read from Events until
// it is closed by the hub.
type Subscriber struct {
	id          string
	transport   string
	send        chan model.Event
	connectedAt time.Time
}

// NewSubscriber creates a subscriber for the given transport
func NewSubscriber(id, transport string) *Subscriber {
	return &Subscriber{
		id:          id,
		transport:   transport,
		send:        make(chan model.Event, subscriberBufferSize),
		connectedAt: time.Now(),
	}
}

// Events returns the subscriber's delivery channel
func (s *Subscriber) Events() <-chan model.Event {
	return s.send
}

// ID returns the subscriber's id
func (s *Subscriber) ID() string {
	return s.id
}

// Hub manages the subscribers of a single topic
type Hub struct {
	topic   string
	clients map[*Subscriber]bool
	mu      sync.RWMutex
	logger  *slog.Logger

	// Channels for managing subscribers
	register   chan *Subscriber
	unregister chan *Subscriber
	broadcast  chan model.Event
	done       chan struct{}
	closeOnce  sync.Once
}

// NewHub creates a new Hub for a topic
func NewHub(topic string, logger *slog.Logger) *Hub {
	return &Hub{
		topic:      topic,
		clients:    make(map[*Subscriber]bool),
		logger:     logger.With(slog.String("topic", topic)),
		register:   make(chan *Subscriber),
		unregister: make(chan *Subscriber),
		broadcast:  make(chan model.Event, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	h.logger.Info("hub started")
	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			h.clients[sub] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("subscriber registered",
				slog.String("subscriber", sub.id),
				slog.String("transport", sub.transport),
				slog.Int("total_subscribers", count))

		case sub := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[sub]; ok {
				delete(h.clients, sub)
				close(sub.send)
				count := len(h.clients)
				h.mu.Unlock()
				h.logger.Info("subscriber unregistered",
					slog.String("subscriber", sub.id),
					slog.Duration("connection_duration", time.Since(sub.connectedAt)),
					slog.Int("total_subscribers", count))
			} else {
				h.mu.Unlock()
			}

		case event := <-h.broadcast:
			h.mu.RLock()
			sent, dropped := 0, 0
			for sub := range h.clients {
				select {
				case sub.send <- event:
					sent++
				default:
					dropped++
					h.logger.Warn("event dropped - subscriber buffer full",
						slog.String("subscriber", sub.id))
				}
			}
			h.mu.RUnlock()
			if dropped > 0 {
				h.logger.Warn("broadcast partial failure",
					slog.String("event", string(event.Type)),
					slog.Int("sent", sent),
					slog.Int("dropped", dropped))
			}

		case <-h.done:
			h.mu.Lock()
			count := len(h.clients)
			for sub := range h.clients {
				close(sub.send)
				delete(h.clients, sub)
			}
			h.mu.Unlock()
			h.logger.Info("hub stopped", slog.Int("disconnected_subscribers", count))
			return
		}
	}
}

// Register adds a subscriber to the hub.
// Returns false if the hub has been closed.
func (h *Hub) Register(sub *Subscriber) bool {
	select {
	case h.register <- sub:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a subscriber from the hub
func (h *Hub) Unregister(sub *Subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Broadcast queues an event for every subscriber without blocking
func (h *Hub) Broadcast(event model.Event) error {
	select {
	case h.broadcast <- event:
		return nil
	default:
		h.logger.Warn("broadcast dropped - hub buffer full", slog.String("event", string(event.Type)))
		return ErrHubBusy
	}
}

// Close shuts down the hub
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HubManager manages one hub per topic and publishes events into them
type HubManager struct {
	hubs   map[string]*Hub
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewHubManager creates a new HubManager
func NewHubManager(logger *slog.Logger) *HubManager {
	return &HubManager{
		hubs:   make(map[string]*Hub),
		logger: logger.With(slog.String("component", "hub")),
	}
}

// Ensure HubManager implements Broadcaster
var _ Broadcaster = (*HubManager)(nil)

// GetOrCreateHub returns the hub for a topic, creating one if it doesn't exist
func (m *HubManager) GetOrCreateHub(topic string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[topic]; ok {
		return hub
	}

	hub := NewHub(topic, m.logger)
	m.hubs[topic] = hub
	go hub.Run()
	return hub
}

// GetHub returns the hub for a topic, or nil if it doesn't exist
func (m *HubManager) GetHub(topic string) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[topic]
}

// Publish delivers an event to the topic's subscribers.
// Topics nobody has subscribed to are ignored.
func (m *HubManager) Publish(ctx context.Context, topic string, event model.Event) error {
	hub := m.GetHub(topic)
	if hub == nil {
		return nil
	}
	return hub.Broadcast(event)
}

// SubscriberCount returns the number of subscribers across every hub
func (m *HubManager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, hub := range m.hubs {
		n += hub.ClientCount()
	}
	return n
}

// CloseAll shuts down every hub and disconnects their subscribers
func (m *HubManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for topic, hub := range m.hubs {
		hub.Close()
		delete(m.hubs, topic)
	}
}
