package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"socialchat-backend/internal/domain"
	"socialchat-backend/pkg/logger"
	"socialchat-backend/pkg/metrics"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size accepted from the peer
	maxFrameSize = 64 * 1024

	// Frames buffered per connection before it is considered stuck
	sendBufferSize = 256
)

// Client is one authenticated chat connection. A user may hold several.
type Client struct {
	conn   *websocket.Conn
	userID uuid.UUID
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

// UserID returns the authenticated user of the connection
func (c *Client) UserID() uuid.UUID {
	return c.userID
}

// trySend queues a frame without blocking. It fails once the client is
// closed or when its buffer is full.
func (c *Client) trySend(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend stops the write pump, which then closes the socket
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// sendEvent queues one event for this connection only
func (c *Client) sendEvent(ctx context.Context, event string, data any) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to encode chat event", zap.String("event", event), zap.Error(err))
		return
	}
	if !c.trySend(frame) {
		metrics.ChatClientMessageDroppedTotal.WithLabelValues("buffer_full").Inc()
	}
}

func (c *Client) sendError(ctx context.Context, message string) {
	c.sendEvent(ctx, domain.EventError, domain.ErrorPayload{Message: message})
}

// encodeFrame builds the {"event", "data"} envelope
func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(domain.Envelope{Event: event, Data: raw})
}

// writePump drains the send buffer to the socket and keeps the connection alive
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
