package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event types pushed to browsers. On either event the UI re-queries the store.
const (
	EventSyncComplete = "sync_complete"
	EventEmailUpdated = "email_updated"
)

// Event is one change notification.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// SyncCompleteData accompanies EventSyncComplete.
type SyncCompleteData struct {
	Synced  int  `json:"synced"`
	HasMore bool `json:"has_more"`
}

// EmailUpdatedData accompanies EventEmailUpdated.
type EmailUpdatedData struct {
	EmailID       string `json:"email_id"`
	GmailThreadID string `json:"gmail_thread_id"`
	IsRead        bool   `json:"is_read"`
	IsStarred     bool   `json:"is_starred"`
}

// Publisher delivers events to a user's open connections.
type Publisher interface {
	Publish(userID string, event Event)
}

// Ensure Hub implements Publisher.
var _ Publisher = (*Hub)(nil)

// writeWait bounds a single frame write.
const writeWait = 10 * time.Second

// Client wraps a WebSocket connection.
type Client struct {
	conn *websocket.Conn
	// gorilla connections allow one concurrent writer.
	writeMu sync.Mutex
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

func (c *Client) write(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub manages active WebSocket connections per user.
// It supports multiple connections per user (e.g., multiple tabs).
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{} // userID -> set of clients
	maxPerUser int
	logger     *slog.Logger
}

// NewHub creates a new Hub with a per-user connection limit.
func NewHub(maxPerUser int, logger *slog.Logger) *Hub {
	if maxPerUser <= 0 {
		maxPerUser = 10
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxPerUser: maxPerUser,
		logger:     logger.With("component", "websocket"),
	}
}

// Register adds a WebSocket connection for the given user.
// If the per-user limit is exceeded, the new connection is closed and nil is returned.
func (h *Hub) Register(userID string, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	userClients, ok := h.clients[userID]
	if !ok {
		userClients = make(map[*Client]struct{})
		h.clients[userID] = userClients
	}

	if len(userClients) >= h.maxPerUser {
		h.logger.Warn("User exceeded max connections, closing new connection", "user_id", userID, "max", h.maxPerUser)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections for this user"),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
		return nil
	}

	client := &Client{conn: conn}
	userClients[client] = struct{}{}
	return client
}

// Unregister removes a client for the given user and closes the connection.
// It reports whether the user has no connections left.
func (h *Hub) Unregister(userID string, client *Client) bool {
	if client == nil {
		return h.ActiveConnections(userID) == 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	_ = client.conn.Close()

	userClients, ok := h.clients[userID]
	if !ok {
		return true
	}

	delete(userClients, client)
	if len(userClients) == 0 {
		delete(h.clients, userID)
		return true
	}
	return false
}

// Send writes a raw message to all active clients for the user.
func (h *Hub) Send(userID string, msg []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for client := range h.clients[userID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if err := client.write(msg); err != nil {
			h.logger.Warn("Failed to write message", "user_id", userID, "error", err)
			go h.Unregister(userID, client)
		}
	}
}

// Publish encodes an event as JSON and sends it to the user's connections.
func (h *Hub) Publish(userID string, event Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to encode event", "type", event.Type, "error", err)
		return
	}
	h.Send(userID, msg)
}

// ActiveConnections returns the number of active WebSocket connections for a user.
func (h *Hub) ActiveConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[userID])
}

// CloseAll closes every connection. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, userClients := range h.clients {
		for client := range userClients {
			_ = client.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second),
			)
			_ = client.conn.Close()
		}
		delete(h.clients, userID)
	}
}
