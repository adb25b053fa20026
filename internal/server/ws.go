package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voxlabel/voxlabel/internal/app"
	"github.com/voxlabel/voxlabel/internal/observe"
)

// sendBuffer is the per-client outbound queue depth. Slow clients that
// fall more than this far behind are disconnected.
const sendBuffer = 32

// writeTimeout bounds a single websocket write to one client.
const writeTimeout = 5 * time.Second

// hub fans session updates out to connected websocket clients.
type hub struct {
	log *slog.Logger
	met *observe.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// client is one connected websocket consumer.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub(log *slog.Logger, met *observe.Metrics) *hub {
	return &hub{
		log:     log,
		met:     met,
		clients: make(map[*client]struct{}),
	}
}

// broadcast marshals u once and queues it for every connected client.
// Clients whose queue is full are dropped.
func (h *hub) broadcast(u app.Update) {
	data, err := json.Marshal(u)
	if err != nil {
		h.log.Error("marshal update", "kind", u.Kind, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("dropping slow websocket client")
			h.removeLocked(c, websocket.StatusPolicyViolation, "client too slow")
		}
	}
}

// add registers a client. Returns false when the hub is already closed.
func (h *hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	if h.met != nil {
		h.met.SubscribedClients.Add(context.Background(), 1)
	}
	return true
}

// remove unregisters a client and closes its connection.
func (h *hub) remove(c *client, code websocket.StatusCode, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, code, reason)
}

func (h *hub) removeLocked(c *client, code websocket.StatusCode, reason string) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	_ = c.conn.Close(code, reason)
	if h.met != nil {
		h.met.SubscribedClients.Add(context.Background(), -1)
	}
}

// closeAll disconnects every client and refuses new ones.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c, websocket.StatusGoingAway, "server shutting down")
	}
}

// handleWS upgrades the request and streams session updates until the
// client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !s.hub.add(c) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	s.log.Debug("websocket client connected", "remote", r.RemoteAddr)

	ctx := r.Context()

	// Reader: we never expect client messages; this unblocks on disconnect.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				s.hub.remove(c, websocket.StatusNormalClosure, "")
				return
			}
		}
	}()

	for data := range c.send {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			s.hub.remove(c, websocket.StatusNormalClosure, "")
			return
		}
	}
}
