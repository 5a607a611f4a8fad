package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// ProgressEvent is broadcast to websocket clients for every progress report
type ProgressEvent struct {
	IssueID  string  `json:"issue_id"`
	Stage    string  `json:"stage"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
	Time     string  `json:"time"`
}

// Hub fans progress events out to connected websocket clients
type Hub struct {
	broadcast  chan ProgressEvent
	register   chan *client
	unregister chan *client
	clients    map[*client]bool

	stopOnce sync.Once
	stop     chan struct{}
}

type client struct {
	conn *websocket.Conn
	send chan ProgressEvent
}

// NewHub creates a progress hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan ProgressEvent, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]bool),
		stop:       make(chan struct{}),
	}
}

// Run processes register, unregister and broadcast events until Stop
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case event := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- event:
				default:
					// Slow client, drop it
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Stop shuts the hub down and disconnects all clients
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Broadcast queues an event for all clients without blocking the caller
func (h *Hub) Broadcast(event ProgressEvent) {
	select {
	case h.broadcast <- event:
	case <-h.stop:
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for event := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(event); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
