// Package ws implements the WebSocket adapter that streams governance
// events (transitions, approvals, eval results) to operator consoles.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/fleetgate/fleetgate/internal/middleware"
	"github.com/fleetgate/fleetgate/internal/port/broadcast"
)

var _ broadcast.Broadcaster = (*Hub)(nil)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection. Connections are scoped to the
// tenant that opened them; tenant-targeted broadcasts skip everyone else.
type conn struct {
	ws       *websocket.Conn
	cancel   context.CancelFunc
	tenantID string
}

// Hub manages all active WebSocket connections and broadcasts messages.
type Hub struct {
	corsOrigin string
	log        *slog.Logger

	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a new WebSocket hub. A nil logger falls back to the default.
func NewHub(corsOrigin string, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		corsOrigin: corsOrigin,
		log:        log,
		conns:      make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the request to a WebSocket connection and registers it
// under the request's tenant.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if h.corsOrigin != "" {
		opts.OriginPatterns = []string{h.corsOrigin}
	} else {
		opts.InsecureSkipVerify = true // CORS handled by middleware
	}

	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.log.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: ws, cancel: cancel, tenantID: middleware.TenantIDFromContext(r.Context())}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	h.log.Info("websocket connected", "remote", r.RemoteAddr, "tenant", c.tenantID)

	// Read loop (to detect disconnects and consume pings)
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			_, _, err := ws.Read(ctx)
			if err != nil {
				return
			}
		}
	}()
}

// Broadcast sends a message to all connected clients across tenants.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	h.send(ctx, "", msg)
}

// BroadcastToTenant sends a message only to clients of the given tenant.
func (h *Hub) BroadcastToTenant(ctx context.Context, tenantID string, msg Message) {
	h.send(ctx, tenantID, msg)
}

func (h *Hub) send(ctx context.Context, tenantID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if tenantID != "" && c.tenantID != tenantID {
			continue
		}
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			h.log.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		h.log.Info("websocket disconnected", "tenant", c.tenantID)
	}
}
