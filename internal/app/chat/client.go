/*
Package chat contains the realtime gateway: socket clients, the presence store, the event
dispatch table and room fan-out.

This file defines the Client struct, representing one authenticated WebSocket connection.
It owns the read and write pumps and the connection's bounded send queue.
*/
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"chatgate/internal/app/user"
	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// MaxContentBytes is the maximum size of message content.
	MaxContentBytes = 5000

	// WsCloseCodeSessionKicked tells the client the server ended its session.
	WsCloseCodeSessionKicked = 4001

	// WsCloseCodeSlowConsumer tells the client it fell too far behind its send queue.
	WsCloseCodeSlowConsumer = 4002
)

// Client is one socket connection of an authenticated user.
type Client struct {
	id       string
	identity user.Identity
	gateway  *Gateway

	// conn is nil for clients driven directly through the Gateway in tests.
	conn *websocket.Conn

	// send is the FIFO of encoded frames waiting for the write pump.
	send     chan []byte
	sendMu   sync.Mutex
	sendShut bool

	limiter     *rate.Limiter
	cleanupOnce sync.Once

	logger zerolog.Logger
}

func newClient(g *Gateway, conn *websocket.Conn, connID string, id user.Identity) *Client {
	return &Client{
		id:       connID,
		identity: id,
		gateway:  g,
		conn:     conn,
		send:     make(chan []byte, g.cfg.SendQueueSize),
		limiter:  rate.NewLimiter(g.cfg.EventRate, g.cfg.EventBurst),
		logger: logx.Component("gateway").With().
			Str("conn_id", connID).
			Int64("user_id", id.ID).
			Logger(),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Identity returns the authenticated user of the connection.
func (c *Client) Identity() user.Identity { return c.identity }

// ReadPump reads frames until the connection fails, dispatching each in receipt order.
// Disconnect cleanup runs when it returns.
func (c *Client) ReadPump(ctx context.Context) {
	defer c.gateway.disconnect(c)

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Connection closed unexpectedly")
			}
			return
		}

		c.gateway.dispatch(ctx, c, frame)
	}
}

// WritePump drains the send queue to the connection and keeps it alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.writeQueuedMessage(frame, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage writes one queued frame, or a close frame once the queue is shut.
// It returns false when the pump should stop.
func (c *Client) writeQueuedMessage(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Warn().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a heartbeat ping. It returns false when the pump should stop.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// enqueue hands frame to the write pump without blocking. A full queue marks the client as a
// slow consumer and closes it.
func (c *Client) enqueue(frame []byte) bool {
	c.sendMu.Lock()
	if c.sendShut {
		c.sendMu.Unlock()
		return false
	}

	select {
	case c.send <- frame:
		c.sendMu.Unlock()
		return true
	default:
	}
	c.sendMu.Unlock()

	c.logger.Warn().Int("queue_len", len(c.send)).Msg("Send queue full, closing slow consumer")
	c.gateway.metrics.SlowConsumer()
	c.Kick(WsCloseCodeSlowConsumer, "send queue full")
	return false
}

// emit encodes and enqueues one event for this client.
func (c *Client) emit(event string, data any) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Failed to encode event")
		return
	}
	c.enqueue(frame)
}

// SendError renders err as an error event. Errors outside the taxonomy are logged and sent
// as ErrUnknown without their text.
func (c *Client) SendError(err error) {
	customErr := errs.From(err)

	switch customErr.Kind {
	case errs.KindInternal, errs.KindPersistence, errs.KindSigning:
		c.logger.Error().Err(err).Int("code", customErr.Code).Msg("Event failed")
	}

	c.emit(EventError, ErrorPayload{
		Code:    customErr.Code,
		Message: customErr.Message,
	})
}

// shutSend closes the send queue once.
func (c *Client) shutSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendShut {
		c.sendShut = true
		close(c.send)
	}
}

// closed reports whether the send queue was shut.
func (c *Client) closed() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.sendShut
}

// Kick sends a close frame with code and closes the connection. The read pump then exits
// and runs the disconnect cleanup.
func (c *Client) Kick(code int, reason string) {
	c.logger.Info().
		Int("close_code", code).
		Str("reason", reason).
		Msg("Closing connection")

	c.shutSend()

	if c.conn == nil {
		return
	}

	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to write close frame")
	}

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Connection close after kick")
	}
}
