package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/corkcrm/michael-mail-2/internal/auth"
	"github.com/corkcrm/michael-mail-2/internal/db"
	"github.com/corkcrm/michael-mail-2/internal/mailsync"
	ws "github.com/corkcrm/michael-mail-2/internal/websocket"
	"github.com/gorilla/websocket"
)

// WebSocketHandler handles the /api/v1/ws endpoint for real-time updates.
type WebSocketHandler struct {
	store         db.Store
	service       mailsync.MailService
	hub           *ws.Hub
	authenticator *auth.Authenticator
	logger        *slog.Logger

	mu      sync.Mutex
	pollers map[string]*poller
}

type poller struct {
	cancel context.CancelFunc
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(store db.Store, service mailsync.MailService, hub *ws.Hub, authenticator *auth.Authenticator, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		store:         store,
		service:       service,
		hub:           hub,
		authenticator: authenticator,
		logger:        logger.With("handler", "websocket"),
		pollers:       make(map[string]*poller),
	}
}

var wsUpgrader = websocket.Upgrader{
	// The server runs behind the auth proxy, which enforces the origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the HTTP connection to a WebSocket and registers it with the Hub.
// Browsers cannot set headers on WebSocket requests, so the token may come
// from the ?token= query parameter.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = auth.ExtractBearerToken(r.Header.Get("Authorization"))
	}

	userEmail, err := h.authenticator.Authenticate(r, token)
	if err != nil {
		h.logger.Debug("WebSocket authentication failed", "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := h.store.GetOrCreateUser(ctx, userEmail)
	if err != nil {
		h.logger.Error("Failed to get/create user", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", "user_id", userID, "error", err)
		return
	}

	client := h.hub.Register(userID, conn)
	if client == nil {
		return
	}

	h.logger.Debug("WebSocket connection established", "user_id", userID)

	// The poller syncs immediately, which catches up on mail that arrived
	// while no tab was open.
	h.ensurePoller(userID)

	go h.readLoop(userID, client)
}

// ensurePoller starts a background poller for the user if one is not already running.
func (h *WebSocketHandler) ensurePoller(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.pollers[userID]; exists {
		return
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	p := &poller{cancel: cancel}
	h.pollers[userID] = p

	go func() {
		defer cancel()
		h.service.StartPoller(pollCtx, userID, h.hub)

		h.mu.Lock()
		// A newer poller may have replaced this one.
		if h.pollers[userID] == p {
			delete(h.pollers, userID)
		}
		h.mu.Unlock()
	}()
}

// stopPoller cancels the user's poller, if any.
func (h *WebSocketHandler) stopPoller(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if p, exists := h.pollers[userID]; exists {
		p.cancel()
		delete(h.pollers, userID)
	}
}

// readLoop reads until the connection closes, then unregisters the client.
// The last connection of a user stops the poller.
func (h *WebSocketHandler) readLoop(userID string, client *ws.Client) {
	conn := client.Conn()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	if h.hub.Unregister(userID, client) {
		h.logger.Debug("No active connections remaining, stopping poller", "user_id", userID)
		h.stopPoller(userID)
	}
}

// activePollers reports how many users have a running poller.
func (h *WebSocketHandler) activePollers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pollers)
}
