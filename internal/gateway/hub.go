// Package gateway streams divergence signals to dashboard clients over
// WebSocket.
package gateway

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"rsi-divergence/internal/model"
)

const defaultReplay = 100

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub manages WebSocket clients and fans signal events out to them. It is a
// notification.Named, so the scanner delivers to it like any other channel.
//
// Every broadcast gets a monotonically increasing seq. A connecting client
// receives the latest event, or everything after ?since=<seq> that is still
// in the replay buffer.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
	latest  []byte
	replay  *ReplayBuffer
}

// NewHub creates a hub keeping the last replay envelopes (<= 0 uses 100).
func NewHub(replay int) *Hub {
	if replay <= 0 {
		replay = defaultReplay
	}
	return &Hub{
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replay),
	}
}

func (h *Hub) Name() string { return "ws" }

// Notify broadcasts ev to every connected client. Slow clients drop messages
// rather than block the scanner.
func (h *Hub) Notify(_ context.Context, ev model.SignalEvent) error {
	h.broadcast(ev.Channel(), ev.JSON(), ev.DetectedAt)
	return nil
}

// ServeHTTP upgrades the connection and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("[gateway] ws upgrade failed")
		return
	}

	var since int64 = -1
	if s := r.URL.Query().Get("since"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
			since = n
		}
	}

	client := newClient(h, conn)

	// register and queue the initial state atomically so a concurrent
	// broadcast cannot arrive ahead of older replayed events
	h.mu.Lock()
	h.clients[client] = true
	client.queueInitialState(since)
	count := len(h.clients)
	h.mu.Unlock()

	log.Infof("[gateway] ws client connected (%d total)", count)

	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the seq of the last broadcast, 0 if none.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
