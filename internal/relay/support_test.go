package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errPeerClosed = errors.New("peer closed")

// fakePeer records every frame queued to it.
type fakePeer struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	probes int
}

func (p *fakePeer) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPeerClosed
	}
	p.frames = append(p.frames, append([]byte(nil), frame...))
	return nil
}

func (p *fakePeer) Open() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

func (p *fakePeer) Probe() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPeerClosed
	}
	p.probes++
	return nil
}

func (p *fakePeer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// take returns and clears the recorded frames.
func (p *fakePeer) take() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	frames := p.frames
	p.frames = nil
	return frames
}

// takeRaw returns the recorded frames as strings.
func (p *fakePeer) takeRaw() []string {
	var out []string
	for _, f := range p.take() {
		out = append(out, string(f))
	}
	return out
}

// takeJSON decodes every recorded frame as a JSON object.
func (p *fakePeer) takeJSON(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, f := range p.take() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m), "frame %q", f)
		out = append(out, m)
	}
	return out
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRelay(t *testing.T) (*Relay, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.UnixMilli(1700000000000)}
	return New(zaptest.NewLogger(t), WithClock(clock.Now)), clock
}

func sendJSON(t *testing.T, r *Relay, id string, msg map[string]any) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	r.Receive(id, data)
}

// connect registers a peer and discards its welcome.
func connect(t *testing.T, r *Relay) (string, *fakePeer) {
	t.Helper()
	peer := &fakePeer{}
	id := r.Connect(peer)
	peer.take()
	return id, peer
}

func hostRoom(t *testing.T, r *Relay, roomID string) (string, *fakePeer) {
	t.Helper()
	id, peer := connect(t, r)
	sendJSON(t, r, id, map[string]any{"type": "host_room", "roomId": roomID})
	msgs := peer.takeJSON(t)
	require.Len(t, msgs, 1)
	require.Equal(t, "room_created", msgs[0]["type"])
	return id, peer
}

func joinRoom(t *testing.T, r *Relay, roomID, name string) (string, *fakePeer) {
	t.Helper()
	id, peer := connect(t, r)
	sendJSON(t, r, id, map[string]any{"type": "join_room", "roomId": roomID, "playerName": name})
	msgs := peer.takeJSON(t)
	require.Len(t, msgs, 1)
	require.Equal(t, "joined_room", msgs[0]["type"])
	return id, peer
}
