// Package progress fans Job Engine events out to connected websocket
// clients: the emit side of the live job-progress feed. It depends only on
// jobengine's event shape, kept separate from internal/server so the App
// wiring in internal/app (which constructs both) never has to import the
// HTTP layer.
package progress

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/linksmith/chrono-scraper-sub002/internal/jobengine"
)

// Hub fans job-engine events out to connected websocket clients.
// Engine.SetEventListener(hub.Broadcast) is the only producer,
// HandleWebSocket the only consumer-facing surface.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New constructs an empty Hub. Origin checks are disabled since this
// endpoint carries no credentials and is read-only from the client's
// perspective (job events only, never commands).
func New() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// HandleWebSocket upgrades the connection and registers it for broadcasts
// until the client disconnects. It never reads application-level messages
// from the client; the only read loop is to detect the connection closing.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends ev as JSON to every connected client, dropping any
// connection that fails to write rather than blocking the job engine.
func (h *Hub) Broadcast(ev jobengine.JobEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}
