// Package websocket provides real-time push over WebSockets. It implements a
// hub-and-spoke pattern where clients subscribe to topics and receive events
// broadcast to those topics.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Event represents a real-time message sent to WebSocket clients.
type Event struct {
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	ResourceID string          `json:"resourceId,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals data into an Event addressed to topic.
func NewEvent(eventType, topic, resourceID string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:       eventType,
		Topic:      topic,
		ResourceID: resourceID,
		Timestamp:  time.Now().UTC(),
		Data:       raw,
	}, nil
}

// UserTopic is the private topic every connection of a user is subscribed to.
func UserTopic(userID string) string {
	return "user/" + userID
}

// ClientMessage represents an inbound message from a WebSocket client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// EventPublisher defines the interface for publishing events to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// TopicAuthorizer decides whether a user may subscribe to a topic.
type TopicAuthorizer func(ctx context.Context, userID, topic string) bool

// Client represents a single WebSocket connection.
type Client struct {
	ID     string
	UserID string
	Topics []string
	Send   chan []byte
	hub    *Hub
}

// Hub is the central connection manager that tracks clients and their topic
// subscriptions. All operations are thread-safe via sync.RWMutex.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

// NewHub creates a new Hub ready to manage WebSocket clients.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "websocket").Logger(),
	}
}

// Register adds a client to the hub and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.hub = h
	h.all[client] = struct{}{}

	for _, topic := range client.Topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
	}
}

// Unregister removes a client from the hub, all topic subscriptions, and
// closes the client's Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	for _, topic := range client.Topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}

	delete(h.all, client)
	close(client.Send)
}

// Subscribe dynamically adds topics to an already-registered client.
func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		if _, dup := h.clients[topic][client]; dup {
			continue
		}
		h.clients[topic][client] = struct{}{}
		client.Topics = append(client.Topics, topic)
	}
}

// Unsubscribe dynamically removes topics from an already-registered client.
// The client's own user topic is never removed.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	own := UserTopic(client.UserID)
	removeSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		if t == own {
			continue
		}
		removeSet[t] = struct{}{}
		if subscribers, ok := h.clients[t]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, t)
			}
		}
	}

	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// Broadcast sends an event to all clients subscribed to the given topic.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("topic", topic).Msg("client buffer full, dropping event")
		}
	}
}

// SendTo delivers an event to a single client. It reports false when the
// client is no longer registered or its buffer is full.
func (h *Hub) SendTo(client *Client, event Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal event")
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.all[client]; !ok {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		return false
	}
}

// Publish implements the EventPublisher interface by broadcasting the event
// to subscribers of the event's topic.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event.Topic, event)
	return nil
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to a specific topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Handler upgrades HTTP connections and runs the read/write pumps.
type Handler struct {
	hub       *Hub
	authorize TopicAuthorizer
}

// NewHandler creates a handler bound to hub. authorize gates client-initiated
// subscriptions; a nil authorizer rejects all of them.
func NewHandler(hub *Hub, authorize TopicAuthorizer) *Handler {
	return &Handler{hub: hub, authorize: authorize}
}

// Attach upgrades the request, registers a client subscribed to the user's
// private topic, and starts the pumps. The returned context is cancelled once
// the connection closes.
func (h *Handler) Attach(c echo.Context, userID string) (*Client, context.Context, error) {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil, nil, err
	}

	client := &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Topics: []string{UserTopic(userID)},
		Send:   make(chan []byte, 256),
	}
	h.hub.Register(client)

	ctx, cancel := context.WithCancel(context.Background())
	go h.writePump(client, ws)
	go func() {
		defer cancel()
		h.readPump(ctx, client, ws)
	}()

	h.hub.logger.Debug().Str("client_id", client.ID).Str("user_id", userID).Msg("client connected")
	return client, ctx, nil
}

// processMessage applies an inbound subscribe/unsubscribe request.
func (h *Handler) processMessage(ctx context.Context, client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		allowed := make([]string, 0, len(msg.Topics))
		for _, topic := range msg.Topics {
			if strings.HasPrefix(topic, "user/") && topic != UserTopic(client.UserID) {
				continue
			}
			if h.authorize != nil && h.authorize(ctx, client.UserID, topic) {
				allowed = append(allowed, topic)
			}
		}
		h.hub.Subscribe(client, allowed)
	case "unsubscribe":
		h.hub.Unsubscribe(client, msg.Topics)
	}
}

func (h *Handler) readPump(ctx context.Context, client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		h.processMessage(ctx, client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
