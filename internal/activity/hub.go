// Package activity is a thin websocket fan-out broadcaster: every Event given
// to Publish goes to each connected client (an operational dashboard, say).
// The seed manager does not publish to it; cmd/shardkeeperd mounts the hub
// with no publisher wired in. No state is persisted here — this
// is purely a broadcaster, adapted from internal/websocket/hub.go's
// channel-based register/unregister/broadcast loop, stripped of the
// teacher's per-server database bookkeeping since there is nothing here that
// needs to survive a restart.
package activity

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one reconciliation-tick notification: a torrent started seeding,
// finished, had a file substituted from IPFS, or was stopped.
type Event struct {
	TorrentID int64   `json:"torrent_id"`
	Event     string  `json:"event"`
	Progress  float64 `json:"progress,omitempty"`
	Detail    string  `json:"detail,omitempty"`
}

// Client is one connected websocket subscriber.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub manages the set of connected subscribers and fans broadcast events out
// to all of them.
type Hub struct {
	clientsMu sync.RWMutex
	clients   map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
}

// NewHub returns a Hub. Call Run in its own goroutine before Publish or
// ServeWS are used.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
	}
}

// Run is the hub's main loop. It blocks until ctx-style cancellation is
// wired in by the caller closing down the process; the seed manager's
// shutdown does not need to wait on it since a broadcaster with no
// subscribers has nothing to flush.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clientsMu.Lock()
			h.clients[c] = struct{}{}
			h.clientsMu.Unlock()

		case c := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.clientsMu.Unlock()

		case msg := <-h.broadcast:
			h.clientsMu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					log.Printf("[activity] client send buffer full, dropping")
					go func(c *Client) { h.unregister <- c }(c)
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

// Publish marshals ev and fans it out to every connected subscriber. A
// publish with no subscribers is a no-op past the channel send.
func (h *Hub) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[activity] marshal event: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Printf("[activity] broadcast buffer full, dropping event for torrent %d", ev.TorrentID)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHTTP lets the hub be mounted directly as a route handler.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.ServeWS(w, r)
}

// ServeWS upgrades r to a websocket connection and registers it as a
// subscriber for the lifetime of the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[activity] upgrade failed: %v", err)
		return
	}

	c := &Client{conn: conn, send: make(chan []byte, 16), hub: h}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only exists to notice the client going away — this hub accepts no
// inbound commands, so any message received is discarded.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
