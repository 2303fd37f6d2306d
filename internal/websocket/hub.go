// Package websocket pushes session and cart events to connected UI consumers.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"seafood-storefront/internal/event"
)

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	bus        event.Bus
	logger     *slog.Logger
}

func NewHub(bus event.Bus) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		bus:        bus,
		logger:     slog.Default().With("component", "ws"),
	}
}

// Run fans bus events out to every registered client until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	defer func() {
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("client connected", "clients", len(h.clients))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			message, err := json.Marshal(e)
			if err != nil {
				h.logger.Error("marshal event failed", "type", e.Type, "error", err)
				continue
			}
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop it rather than stall the fan-out.
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Register attaches client; it returns false once the hub has stopped.
func (h *Hub) Register(ctx context.Context, client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) Unregister(ctx context.Context, client *Client) {
	select {
	case h.unregister <- client:
	case <-ctx.Done():
	}
}
