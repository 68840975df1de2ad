// Package websocket carries relay traffic over WebSocket connections.
package websocket

import (
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/relay/internal/config"
	"github.com/cory-johannsen/relay/internal/observability"
)

var (
	// ErrConnClosed is returned by Send and Probe after the connection closed.
	ErrConnClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned by Send when the outbound queue is full.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Conn wraps one upgraded WebSocket and implements relay.Peer.
// Outbound frames are queued and written by a single writer goroutine.
type Conn struct {
	ws     *websocket.Conn
	cfg    config.ServerConfig
	logger *zap.Logger

	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewConn wraps ws.
//
// Precondition: ws and logger must be non-nil; cfg must be valid.
// Postcondition: Returns an open Conn; call Serve to start its pumps.
func NewConn(ws *websocket.Conn, cfg config.ServerConfig, logger *zap.Logger) *Conn {
	return &Conn{
		ws:     ws,
		cfg:    cfg,
		logger: logger,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// Send queues frame for delivery. It never blocks.
//
// Postcondition: Returns ErrConnClosed or ErrSendBufferFull if the frame was
// not queued.
func (c *Conn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Open reports whether the connection still accepts frames.
func (c *Conn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Probe writes a ping control frame. The peer's pong extends the read
// deadline; a peer that stays silent past PongWait is closed by the reader.
func (c *Conn) Probe() error {
	if !c.Open() {
		return ErrConnClosed
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
}

// Close stops accepting frames and asks the writer to send a close frame.
// It is idempotent.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// Serve registers the connection with handler, pumps frames until the
// connection ends, then reports the disconnect. It blocks.
//
// Precondition: handler must be non-nil; Serve must be called at most once.
// Postcondition: handler.Disconnect has been called exactly once for the
// id returned by handler.Connect.
func (c *Conn) Serve(handler Handler) {
	id := handler.Connect(c)
	logger := observability.ForConn(c.logger, id)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(logger)
	}()

	c.readPump(id, handler, logger)

	c.Close()
	handler.Disconnect(id)
	<-writerDone
}

func (c *Conn) readPump(id string, handler Handler, logger *zap.Logger) {
	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Warn("unexpected close", zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		handler.Receive(id, payload)
	}
}

func (c *Conn) writePump(logger *zap.Logger) {
	defer c.ws.Close()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				logger.Debug("write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-c.done:
			c.flush(logger)
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout),
			)
			return
		}
	}
}

// flush writes frames queued before Close.
func (c *Conn) flush(logger *zap.Logger) {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				logger.Debug("flush failed", zap.Error(err))
				return
			}
		default:
			return
		}
	}
}

// write sends frame as a text message, or as a binary message when it is not
// valid UTF-8 and so cannot be carried in a text frame.
func (c *Conn) write(frame []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteMessage(frameType(frame), frame)
}

func frameType(frame []byte) int {
	if utf8.Valid(frame) {
		return websocket.TextMessage
	}
	return websocket.BinaryMessage
}
