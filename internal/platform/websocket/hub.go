// Package websocket implements the live schedule feed. Staff clients connect
// over a WebSocket, subscribe to topics such as "appointments" or
// "doctor:<id>", and receive an event whenever an appointment or an
// availability window on that topic changes.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TopicAppointments carries every appointment change in the clinic.
const TopicAppointments = "appointments"

// DoctorTopic is the topic for changes to one doctor's schedule.
func DoctorTopic(doctorID uuid.UUID) string {
	return "doctor:" + doctorID.String()
}

// Event is a change notification pushed to feed clients.
type Event struct {
	Type         string          `json:"type"`
	Topic        string          `json:"topic"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscription request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Client is one connected feed subscriber.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
	hub    *Hub
}

func NewClient(hub *Hub, topics []string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		Topics: topics,
		Send:   make(chan []byte, sendBuffer),
		hub:    hub,
	}
}

const sendBuffer = 64

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> subscribers
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "live_feed").Logger(),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(client, topic)
	}
}

// Unregister removes the client from every topic and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(client, topic)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if containsTopic(client.Topics, topic) {
			continue
		}
		h.addLocked(client, topic)
		client.Topics = append(client.Topics, topic)
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if containsTopic(topics, t) {
			h.removeLocked(client, t)
			continue
		}
		remaining = append(remaining, t)
	}
	client.Topics = remaining
}

func (h *Hub) addLocked(client *Client, topic string) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(client *Client, topic string) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

func containsTopic(topics []string, topic string) bool {
	for _, t := range topics {
		if t == topic {
			return true
		}
	}
	return false
}

// Broadcast sends event to every subscriber of topic. Slow clients whose
// buffer is full miss the event.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("marshal feed event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("topic", topic).Msg("feed client too slow, event dropped")
		}
	}
}

// sendTo delivers data to one registered client without blocking.
func (h *Hub) sendTo(client *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

// Publish broadcasts event on its own topic.
func (h *Hub) Publish(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.Broadcast(event.Topic, event)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// CloseAll disconnects every client. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.all {
		close(client.Send)
	}
	h.all = make(map[*Client]struct{})
	h.clients = make(map[string]map[*Client]struct{})
}
