package relay

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/relay/internal/observability"
	"github.com/cory-johannsen/relay/internal/protocol"
)

// Peer is the transport capability the relay needs from one connection.
// Implementations must be safe for concurrent use and must never block in
// Send.
type Peer interface {
	// Send queues one outbound frame. It returns an error if the frame
	// cannot be queued; the relay drops the frame in that case.
	Send(frame []byte) error
	// Open reports whether the connection can still accept frames.
	Open() bool
	// Probe sends a liveness probe. A peer that never answers is closed by
	// the transport, which then reports the disconnect to the relay.
	Probe() error
}

// deliver sends frame to c if its peer is open. Closed or failing peers
// are dropped silently apart from a debug log.
func deliver(logger *zap.Logger, c *Connection, frame []byte) bool {
	if c == nil || c.Peer == nil || !c.Peer.Open() {
		return false
	}
	if err := c.Peer.Send(frame); err != nil {
		logger.Debug("dropping frame",
			observability.ConnID(c.ID),
			zap.Int("bytes", len(frame)),
			zap.Error(err),
		)
		return false
	}
	return true
}

// deliverMessage encodes msg and delivers it to c.
func deliverMessage(logger *zap.Logger, c *Connection, msg any) bool {
	frame, err := protocol.Encode(msg)
	if err != nil {
		logger.Error("encoding outbound message", zap.Error(err))
		return false
	}
	return deliver(logger, c, frame)
}
