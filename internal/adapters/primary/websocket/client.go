package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lorrc/restaurant-relay/internal/core/domain"
	apperrors "github.com/lorrc/restaurant-relay/internal/core/errors"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
	"github.com/lorrc/restaurant-relay/internal/core/services"
)

// Options tunes the pumps of one client.
type Options struct {
	// Time allowed to write a message to the peer.
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer.
	PongWait time.Duration

	// Send pings to peer with this period. Must be less than PongWait.
	PingPeriod time.Duration

	// Maximum message size allowed from peer.
	MaxMessageSize int64

	// Outbound events buffered before Deliver starts dropping.
	SendBuffer int
}

// DefaultOptions returns the pump settings used when nothing is configured.
func DefaultOptions() Options {
	pongWait := 60 * time.Second
	return Options{
		WriteWait:      10 * time.Second,
		PongWait:       pongWait,
		PingPeriod:     (pongWait * 9) / 10,
		MaxMessageSize: 8192,
		SendBuffer:     256,
	}
}

// Relay is the part of the relay core the read pump drives.
type Relay interface {
	Handle(ctx context.Context, conn *services.Connection, action domain.Action) error
	Disconnect(conn *services.Connection, reason string)
}

// Client is the gorilla websocket transport behind one relay connection.
type Client struct {
	conn *websocket.Conn
	opts Options

	// Buffered channel of outbound events.
	send chan domain.Event

	// mu guards closed so Deliver never sends on a closed channel.
	mu     sync.RWMutex
	closed bool

	logger *slog.Logger
}

var _ ports.Sink = (*Client)(nil)

// NewClient wraps an upgraded websocket connection.
func NewClient(conn *websocket.Conn, opts Options, logger *slog.Logger) *Client {
	def := DefaultOptions()
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = def.PongWait
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = (opts.PongWait * 9) / 10
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	return &Client{
		conn:   conn,
		opts:   opts,
		send:   make(chan domain.Event, opts.SendBuffer),
		logger: logger,
	}
}

// Deliver queues an event for the write pump. A full buffer drops the event
// for this client only.
func (c *Client) Deliver(event domain.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which sends a close frame and releases the
// socket.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump decodes inbound frames into actions and hands them to relay. It
// runs in its own goroutine and disconnects rc when the peer goes away.
func (c *Client) ReadPump(ctx context.Context, relay Relay, rc *services.Connection) {
	logger := c.logger.With("connection_id", rc.ID())
	defer func() {
		relay.Disconnect(rc, services.ReasonClosed)
		_ = c.conn.Close()
	}()

	if c.opts.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.opts.MaxMessageSize)
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
		logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
			logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var action domain.Action
		if err := json.Unmarshal(message, &action); err != nil || action.Type == "" {
			logger.Debug("undecodable client frame", "error", err)
			c.Deliver(domain.NewEvent(domain.EventError, domain.ErrorPayload{
				Code:    apperrors.CodeBadRequest,
				Message: "frame is not a valid action envelope",
			}))
			continue
		}

		if err := relay.Handle(ctx, rc, action); err != nil {
			logger.Debug("action rejected", "action", action.Type, "code", apperrors.Code(err))
		}
	}
}

// WritePump drains queued events to the socket and keeps the peer alive with
// pings. It runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The relay closed the connection.
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.writeJSON(event); err != nil {
				c.logger.Debug("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// writeJSON writes a JSON message to the websocket connection
func (c *Client) writeJSON(event domain.Event) error {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(event); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}
