// Package stream broadcasts live step events to websocket subscribers so a
// long sweep or simulation can be watched without polling artifacts.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/quantpulse/stratrun/internal/backtest"
)

// writeWait bounds one frame write so a stalled client cannot hold the lock
const writeWait = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans one message stream out to all connected clients. The Run loop is
// the only writer on any connection.
type Hub struct {
	mu        sync.Mutex
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 256),
	}
}

// Run delivers broadcasts until the context is canceled, then closes every
// client connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for delivery. It never blocks; when the queue
// is full the message is dropped so the simulation loop cannot stall on a
// slow subscriber.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if h.clients[conn] {
		conn.Close()
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
	h.mu.Unlock()
}

// ServeWS upgrades the request and registers the client with the hub.
// Inbound frames are discarded; the read loop exists to notice disconnects.
func ServeWS(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("Websocket upgrade failed")
			return
		}
		h.add(conn)
		go func() {
			defer h.remove(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// StepHook returns a hook that publishes each step event as one JSON frame
func StepHook(h *Hub) backtest.StepHook {
	return func(ev backtest.StepEvent) {
		msg, err := json.Marshal(ev)
		if err != nil {
			return
		}
		h.Broadcast(msg)
	}
}
