package api

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/usage.report/internal/audit"
	"github.com/banshee-data/usage.report/internal/monitoring"
)

// Hub fans lifecycle events out to websocket subscribers. It doubles as an
// audit.Sink: wiring it into the Trail means every usage_start, usage_end,
// and alert_triggered reaches connected dashboards as it is recorded.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a Hub. Call Run in its own goroutine before registering
// clients.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until Close is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			monitoring.Logf("api: event client connected, total %d", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			monitoring.Logf("api: event client disconnected, total %d", total)

		case message := <-h.broadcast:
			// Snapshot the subscriber set so a slow socket never holds
			// the lock against ClientCount or registration.
			h.mu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for client := range h.clients {
				conns = append(conns, client)
			}
			h.mu.RUnlock()

			var dead []*websocket.Conn
			for _, client := range conns {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					monitoring.Logf("api: event client write: %v", err)
					dead = append(dead, client)
				}
			}
			if len(dead) > 0 {
				h.mu.Lock()
				for _, client := range dead {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						client.Close()
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// Write implements audit.Sink by broadcasting the event to all
// subscribers. A full broadcast queue drops the event rather than stall
// the lifecycle.
func (h *Hub) Write(e audit.Event) error {
	message, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("api: encode event: %w", err)
	}
	select {
	case h.broadcast <- message:
		return nil
	case <-h.done:
		return fmt.Errorf("api: hub closed")
	default:
		return fmt.Errorf("api: event feed backlogged")
	}
}

// Close implements audit.Sink, shutting the hub down and disconnecting
// all clients.
func (h *Hub) Close() error {
	close(h.done)
	return nil
}

// Register adds a websocket client to the feed.
func (h *Hub) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a websocket client.
func (h *Hub) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
