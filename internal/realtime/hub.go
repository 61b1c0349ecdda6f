// Package realtime pushes subscription-status changes to connected
// clients, so a checkout completed in another tab unlocks the product
// without a manual refresh.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event is broadcast whenever a webhook write changes a subscription.
type Event struct {
	Kind   string `json:"kind"`
	Email  string `json:"email"`
	Status string `json:"status"`
	Plan   string `json:"plan,omitempty"`
}

// StatusChanged builds the subscription-status event for an email.
func StatusChanged(email, status, plan string) Event {
	return Event{Kind: "subscription_status", Email: email, Status: status, Plan: plan}
}

// Hub maintains the set of active WebSocket clients and broadcasts events.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends an event to all connected clients. Clients with a full
// send buffer miss the event rather than blocking the webhook path.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
