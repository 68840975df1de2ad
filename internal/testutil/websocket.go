// Package testutil provides helpers for relay integration tests.
package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is a simple WebSocket test client for integration testing.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// NewWSClient dials ws://addr/ and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, addr string) *WSClient {
	t.Helper()
	start := time.Now()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial("ws://"+addr+"/", nil)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("websocket client connected to %s [%s]", addr, time.Since(start))
	return &WSClient{conn: conn, t: t}
}

// Conn returns the underlying WebSocket for tests that need control frames.
func (c *WSClient) Conn() *websocket.Conn {
	return c.conn
}

// Read returns the next text frame or fails on timeout.
func (c *WSClient) Read(timeout time.Duration) string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	return string(data)
}

// ReadFrame returns the next data frame with its message type, or fails on
// timeout.
func (c *WSClient) ReadFrame(timeout time.Duration) (int, []byte) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	msgType, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	return msgType, data
}

// ReadJSON reads frames until one is a JSON object whose "type" equals
// msgType, and returns it decoded.
//
// Postcondition: Returns the matching message, or fails on timeout.
func (c *WSClient) ReadJSON(msgType string, timeout time.Duration) map[string]any {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	_ = c.conn.SetReadDeadline(deadline)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("reading until %q: %v", msgType, err)
		}
		var msg map[string]any
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg["type"] == msgType {
			return msg
		}
	}
}

// Send writes text as one text frame.
func (c *WSClient) Send(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// SendBinary writes data as one binary frame.
func (c *WSClient) SendBinary(data []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		c.t.Fatalf("sending %d binary bytes: %v", len(data), err)
	}
}

// SendJSON encodes msg and writes it as one text frame.
func (c *WSClient) SendJSON(msg any) {
	c.t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		c.t.Fatalf("encoding %v: %v", msg, err)
	}
	c.Send(string(data))
}

// Close closes the underlying connection without a close handshake.
func (c *WSClient) Close() {
	c.conn.Close()
}
