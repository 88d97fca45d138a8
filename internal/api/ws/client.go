// Package ws implements the WebSocket edge of the relay: handshake
// authentication, session registration, and the per-connection pumps.
package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait is the deadline for a single outbound frame.
	writeWait = 10 * time.Second

	// pongWait is how long the read loop waits for a pong before
	// declaring the peer gone.
	pongWait = 60 * time.Second

	// pingInterval must be shorter than pongWait.
	pingInterval = (pongWait * 9) / 10

	// sendBufferSize is the outbound frame buffer per client. A client
	// that cannot drain it in time is dropped rather than blocking the
	// relay.
	sendBufferSize = 64
)

// ErrClientGone is returned when sending to a closed or saturated client.
var ErrClientGone = errors.New("client disconnected")

// Event is the envelope of every server-to-client frame.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client is one authenticated WebSocket connection. It satisfies
// registry.Conn so the relay can push to it.
type Client struct {
	id   string
	conn *websocket.Conn

	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// ID returns the unique identifier of this socket instance.
func (c *Client) ID() string {
	return c.id
}

// Alive reports whether the connection is still open.
func (c *Client) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Send queues a named event for delivery. It never blocks: a full buffer
// counts as a dead client. The buffered channel write happens under the
// mutex so it cannot interleave with Close.
func (c *Client) Send(event string, payload any) error {
	frame, err := json.Marshal(Event{Event: event, Data: payload})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientGone
	}

	select {
	case c.send <- frame:
		c.mu.Unlock()
		return nil
	default:
		c.mu.Unlock()
		_ = c.Close()
		return ErrClientGone
	}
}

// Close tears the connection down. Safe to call more than once, and safe
// to call concurrently with Send: the send channel is never closed, the
// done channel tells writePump to stop draining it.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	return c.conn.Close()
}

// writePump drains the send buffer onto the wire and keeps the connection
// alive with pings. It exits when the client is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes inbound frames until the peer goes away. The relay has
// no client-to-server message protocol over the socket; reading exists to
// surface disconnects and answer pings.
func (c *Client) readPump(onClose func()) {
	defer func() {
		c.Close()
		onClose()
	}()

	c.conn.SetReadLimit(maxHandshakeBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
