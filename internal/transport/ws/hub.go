package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"e2ee-relay/internal/event"
	"e2ee-relay/internal/observability/metrics"
)

// Client is one live connection handle: a websocket plus a buffered outbound
// queue drained by its write loop.
type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID

	conn *websocket.Conn
	send chan event.Event

	ctx    context.Context
	cancel context.CancelFunc
}

// Hub owns every live client, keyed by handle ID. It is the delivery sink
// the presence registry fans out through.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[uuid.UUID]*Client)}
}

func (h *Hub) Add(userID uuid.UUID, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		ID:     uuid.New(),
		UserID: userID,
		conn:   conn,
		send:   make(chan event.Event, 64),
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	metrics.WSConnectionsActive.Inc()

	go c.writeLoop()
	go c.keepAliveLoop()

	return c
}

func (h *Hub) Remove(c *Client) {
	c.cancel()

	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()

	metrics.WSConnectionsActive.Dec()

	_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
}

// Deliver implements presence.Sink. A full queue drops the event: fan-out is
// fire-and-forget and one slow client must not stall the others.
func (h *Hub) Deliver(handleID uuid.UUID, ev event.Event) {
	h.mu.RLock()
	c, ok := h.clients[handleID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.send <- ev:
	default:
	}
}

// Enqueue blocks until the event is queued or the connection is gone. Replay
// uses this so backlog rows are only deleted after being handed over.
func (c *Client) Enqueue(ev event.Event) error {
	select {
	case c.send <- ev:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.send:
			writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = wsjson.Write(writeCtx, c.conn, ev)
			cancel()
		}
	}
}

func (c *Client) keepAliveLoop() {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = c.conn.Ping(pingCtx)
			cancel()
		}
	}
}
