// Package sync pushes task.sync events to connected WebSocket clients so
// open UIs refresh without polling. Delivery is best effort; a client
// that missed a push reconciles on its next full fetch.
package sync

import (
	"net/http"
	stdsync "sync"

	"github.com/gorilla/websocket"

	"github.com/pbaity/herald/internal/logger"
)

// client wraps one connection with a write lock. The websocket protocol
// allows only one concurrent writer per connection, and broadcasts for
// the same user can arrive from concurrent deliveries.
type client struct {
	mu   stdsync.Mutex
	conn *websocket.Conn
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub tracks connected clients per user and fans messages out to them.
type Hub struct {
	mu       stdsync.Mutex
	clients  map[string]map[*client]struct{}
	upgrader websocket.Upgrader
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			// Browser clients connect from the app origin; the sidecar
			// topology keeps this endpoint off the public internet.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Hub) add(userID string, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][cl] = struct{}{}
}

func (h *Hub) remove(userID string, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[userID], cl)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

// ClientCount returns the number of open connections for userID.
func (h *Hub) ClientCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// Broadcast sends v as JSON to every connection of userID, dropping
// connections whose writes fail. Safe to call from concurrent
// deliveries; writes to each connection are serialized through the
// client's lock. It returns the number of clients that received the
// message.
func (h *Hub) Broadcast(userID string, v any) int {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients[userID]))
	for cl := range h.clients[userID] {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	delivered := 0
	for _, cl := range clients {
		if err := cl.writeJSON(v); err != nil {
			logger.L().Debug("Dropping sync client after failed write", "user_id", userID, "error", err)
			cl.conn.Close()
			h.remove(userID, cl)
			continue
		}
		delivered++
	}
	return delivered
}

// Handler upgrades GET requests to WebSocket connections. The user is
// identified by the user_id query parameter, matching the header-based
// identity the HTTP APIs use.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "user_id query parameter is required", http.StatusBadRequest)
			return
		}

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.L().Error("WebSocket upgrade failed", "user_id", userID, "error", err)
			return
		}

		cl := &client{conn: conn}
		h.add(userID, cl)
		logger.L().Info("Sync client connected", "user_id", userID)

		// The read loop exists only to notice the peer going away;
		// clients never send application data.
		go func() {
			defer func() {
				h.remove(userID, cl)
				conn.Close()
				logger.L().Info("Sync client disconnected", "user_id", userID)
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}
