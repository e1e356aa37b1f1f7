package mcp

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// LifecycleEvent is the payload pushed to connected dashboards whenever the
// engine's background worker completes a cadence task (SPEC_FULL.md §3:
// "push-based notification of lifecycle events ... best-effort, never
// blocks engine operations").
type LifecycleEvent struct {
	Event     string                 `json:"event"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// lifecycleClient is one connected dashboard socket. Grounded on the
// teacher's internal/websocket.Client: a buffered outbound channel drained
// by a dedicated writer goroutine so a slow reader can't stall the hub.
type lifecycleClient struct {
	conn *websocket.Conn
	send chan LifecycleEvent
}

// LifecycleHub fans out LifecycleEvent broadcasts to every connected
// dashboard. Grounded on the teacher's internal/websocket.Hub register/
// unregister/broadcast channel loop, trimmed to memoria's single event
// stream (no per-repository/session filtering).
type LifecycleHub struct {
	upgrader   websocket.Upgrader
	register   chan *lifecycleClient
	unregister chan *lifecycleClient
	broadcast  chan LifecycleEvent

	mu      sync.RWMutex
	clients map[*lifecycleClient]bool
}

// NewLifecycleHub builds an idle hub; call Run in its own goroutine to
// start serving.
func NewLifecycleHub() *LifecycleHub {
	return &LifecycleHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		register:   make(chan *lifecycleClient),
		unregister: make(chan *lifecycleClient),
		broadcast:  make(chan LifecycleEvent, 64),
		clients:    make(map[*lifecycleClient]bool),
	}
}

// Run drives the hub's register/unregister/broadcast loop until stop is
// closed.
func (h *LifecycleHub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				_ = c.conn.Close()
			}
			h.clients = nil
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case evt := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- evt:
				default:
					go func(c *lifecycleClient) { h.unregister <- c }(c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast enqueues event for delivery to every connected client. Safe to
// call from any goroutine, including the engine's background worker;
// non-blocking per client (a full send buffer drops that client, not the
// event).
func (h *LifecycleHub) Broadcast(event string, data map[string]interface{}) {
	select {
	case h.broadcast <- LifecycleEvent{Event: event, Data: data, Timestamp: time.Now()}:
	default:
		log.Printf("lifecycle hub broadcast channel full, dropping %q event", event)
	}
}

// ServeHTTP upgrades the request to a websocket and streams LifecycleEvents
// to it until the connection closes.
func (h *LifecycleHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("lifecycle hub: upgrade failed: %v", err)
		return
	}

	c := &lifecycleClient{conn: conn, send: make(chan LifecycleEvent, 16)}
	h.register <- c

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards inbound messages (this stream is server->client only)
// and exists purely to detect the client going away.
func (h *LifecycleHub) readPump(c *lifecycleClient) {
	defer func() {
		h.unregister <- c
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *LifecycleHub) writePump(c *lifecycleClient) {
	defer func() { _ = c.conn.Close() }()
	for evt := range c.send {
		payload, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
