package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// writeTimeout bounds a single write to one client.
const writeTimeout = 5 * time.Second

// outboxSize is how many posted messages may wait for one client.
const outboxSize = 64

// ErrOutboxFull is returned by Post when a client is not keeping up.
var ErrOutboxFull = errors.New("websocket: outbox full")

// Channel defines the interface for WebSocket channels.
type Channel interface {
	OnConnect(ctx *WSContext) error
	OnMessage(ctx *WSContext, msg []byte) error
	OnDisconnect(ctx *WSContext) error
}

// WSContext wraps a WebSocket connection with room and hub support.
type WSContext struct {
	Conn    *websocket.Conn
	Hub     *Hub
	Request *http.Request
	ctx     context.Context
	outbox  chan any
}

// Context is cancelled when the connection's HTTP request ends.
func (c *WSContext) Context() context.Context { return c.ctx }

// Send sends a message to this connection.
func (c *WSContext) Send(msg any) error {
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.Conn, msg)
}

// Post queues msg for this connection and returns at once. Posted messages
// are written in order by the connection's writer.
func (c *WSContext) Post(msg any) error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	select {
	case c.outbox <- msg:
		return nil
	default:
		return ErrOutboxFull
	}
}

func (c *WSContext) writeLoop(log *zap.Logger) {
	for {
		select {
		case msg := <-c.outbox:
			if err := c.Send(msg); err != nil {
				log.Debug("Posted write failed", zap.String("remote", c.Request.RemoteAddr), zap.Error(err))
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// JoinRoom joins a named room.
func (c *WSContext) JoinRoom(room string) {
	c.Hub.JoinRoom(room, c)
}

// LeaveRoom leaves a named room.
func (c *WSContext) LeaveRoom(room string) {
	c.Hub.LeaveRoom(room, c)
}

// Hub manages WebSocket connections and rooms.
type Hub struct {
	mu          sync.RWMutex
	connections map[*WSContext]bool
	rooms       map[string]map[*WSContext]bool
	log         *zap.Logger
	accept      *websocket.AcceptOptions
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub logger.
func WithHubLogger(log *zap.Logger) HubOption {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// WithOriginPatterns allows cross-origin clients whose host matches one of
// patterns.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) {
		if len(patterns) > 0 {
			h.accept = &websocket.AcceptOptions{OriginPatterns: patterns}
		}
	}
}

// NewHub creates a new WebSocket hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		connections: make(map[*WSContext]bool),
		rooms:       make(map[string]map[*WSContext]bool),
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Broadcast sends an already encoded text message to all connected clients.
func (h *Hub) Broadcast(msg []byte) {
	for _, c := range h.snapshot(nil) {
		ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
		if err := c.Conn.Write(ctx, websocket.MessageText, msg); err != nil {
			h.log.Debug("Broadcast write failed", zap.String("remote", c.Request.RemoteAddr), zap.Error(err))
		}
		cancel()
	}
}

// BroadcastToRoom posts a message to all clients in a room. It does not
// wait for the writes.
func (h *Hub) BroadcastToRoom(room string, msg any) {
	for _, c := range h.snapshot(&room) {
		if err := c.Post(msg); err != nil {
			h.log.Debug("Room write dropped", zap.String("room", room), zap.Error(err))
		}
	}
}

// snapshot copies the targets so writes happen without the lock held.
func (h *Hub) snapshot(room *string) []*WSContext {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.connections
	if room != nil {
		set = h.rooms[*room]
	}
	out := make([]*WSContext, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// JoinRoom adds a client to a room.
func (h *Hub) JoinRoom(room string, ctx *WSContext) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*WSContext]bool)
	}
	h.rooms[room][ctx] = true
}

// LeaveRoom removes a client from a room.
func (h *Hub) LeaveRoom(room string, ctx *WSContext) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(room, ctx)
}

func (h *Hub) leave(room string, ctx *WSContext) {
	if conns, ok := h.rooms[room]; ok {
		delete(conns, ctx)
		if len(conns) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) add(c *WSContext) {
	h.mu.Lock()
	h.connections[c] = true
	h.mu.Unlock()
}

func (h *Hub) remove(c *WSContext) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, c)
	for room := range h.rooms {
		h.leave(room, c)
	}
}

// HandleChannel creates an HTTP handler for a Channel interface. A message
// handler error ends the connection.
func (h *Hub) HandleChannel(ch Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, h.accept)
		if err != nil {
			h.log.Warn("WebSocket upgrade failed", zap.Error(err))
			return
		}
		defer c.Close(websocket.StatusInternalError, "closing")

		wsCtx := &WSContext{Conn: c, Hub: h, Request: r, ctx: r.Context(), outbox: make(chan any, outboxSize)}
		go wsCtx.writeLoop(h.log)
		h.add(wsCtx)
		defer h.remove(wsCtx)

		if err := ch.OnConnect(wsCtx); err != nil {
			h.log.Debug("WebSocket connect rejected", zap.Error(err))
			return
		}
		defer func() {
			if err := ch.OnDisconnect(wsCtx); err != nil {
				h.log.Debug("WebSocket disconnect", zap.Error(err))
			}
		}()

		for {
			_, data, readErr := c.Read(r.Context())
			if readErr != nil {
				if websocket.CloseStatus(readErr) != websocket.StatusNormalClosure {
					h.log.Debug("WebSocket read ended", zap.Error(readErr))
				}
				return
			}
			if msgErr := ch.OnMessage(wsCtx, data); msgErr != nil {
				h.log.Warn("WebSocket message failed", zap.Error(msgErr))
				c.Close(websocket.StatusPolicyViolation, "message rejected")
				return
			}
		}
	}
}
