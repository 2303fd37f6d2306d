package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	ws "seafood-storefront/internal/websocket"
)

type WSHandler struct {
	hub      *ws.Hub
	hubCtx   context.Context
	upgrader websocket.Upgrader
}

// NewWSHandler serves event streams from hub. hubCtx is the context the hub
// runs under; connections end when it is cancelled.
func NewWSHandler(hubCtx context.Context, hub *ws.Hub, origins []string) *WSHandler {
	return &WSHandler{
		hub:    hub,
		hubCtx: hubCtx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
	}
}

func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	ws.NewClient(conn).Serve(h.hubCtx, h.hub)
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := map[string]bool{}
	for _, origin := range origins {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[origin] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
