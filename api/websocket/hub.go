// Package websocket pushes purchase notifications to connected clients.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/neuron-labs/marketd/notify"
)

// Hub maintains the set of active clients and broadcasts notifications
// to them
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan notify.Notification
	done       chan struct{}

	logger *zap.Logger
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan notify.Notification, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run runs the hub loop until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client registered", zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client unregistered", zap.Int("total_clients", total))

		case n := <-h.broadcast:
			h.deliver(n)

		case <-h.done:
			return
		}
	}
}

func (h *Hub) deliver(n notify.Notification) {
	message, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("failed to marshal notification", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for client := range h.clients {
		select {
		case client.send <- message:
			sent++
		default:
			// Client buffer full, drop the connection
			h.logger.Warn("client buffer full, closing connection")
			close(client.send)
			delete(h.clients, client)
		}
	}

	h.logger.Debug("notification broadcast",
		zap.String("severity", string(n.Severity)),
		zap.Int("recipients", sent))
}

// Notify implements notify.Notifier by broadcasting to all clients.
// A full broadcast queue drops the notification rather than block.
func (h *Hub) Notify(_ context.Context, n notify.Notification) error {
	select {
	case h.broadcast <- n:
	default:
		h.logger.Warn("broadcast channel full, dropping notification",
			zap.String("notification_id", n.ID))
	}
	return nil
}

// add hands a new client to the hub loop. After Stop the client is
// dropped instead of blocking.
func (h *Hub) add(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// remove hands a departing client to the hub loop. After Stop the hub
// loop is gone, so the send is abandoned rather than blocked on.
func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop stops the hub and closes all client connections
func (h *Hub) Stop() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}
