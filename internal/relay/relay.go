// Package relay implements the rendezvous relay: connection and room
// registries, control message dispatch, host/client forwarding, and the
// disconnect cascade.
//
// All registry state is guarded by a single mutex held for the whole of each
// event (connect, message, disconnect, sweep). Outbound sends only queue
// frames on the peer, so no event blocks on network I/O while holding it.
package relay

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/relay/internal/observability"
	"github.com/cory-johannsen/relay/internal/protocol"
)

// Relay routes traffic between hosts and clients.
// All methods are safe for concurrent use.
type Relay struct {
	mu     sync.Mutex
	conns  *ConnectionRegistry
	rooms  *RoomRegistry
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Relay.
type Option func(*Relay)

// WithClock replaces the wall clock used for room creation times, pong
// timestamps and stale-room sweeps.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// New creates a Relay with empty registries.
//
// Precondition: logger must be non-nil.
func New(logger *zap.Logger, opts ...Option) *Relay {
	r := &Relay{
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.conns = NewConnectionRegistry(r.now, logger)
	r.rooms = NewRoomRegistry(r.conns, r.now, logger)
	return r
}

// Connect registers a newly accepted peer and sends it a welcome.
//
// Precondition: peer must be non-nil.
// Postcondition: Returns the connection's unique id.
func (r *Relay) Connect(peer Peer) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn := r.conns.Register(peer)
	r.logger.Info("connection opened",
		observability.ConnID(conn.ID),
		zap.Int("connections", r.conns.Len()),
	)
	return conn.ID
}

// Receive handles one inbound payload from connection id. Payloads that are
// not control envelopes are relayed as raw game data.
func (r *Relay) Receive(id string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns.Lookup(id)
	if !ok {
		return
	}

	msg, err := protocol.Decode(payload)
	if err != nil {
		r.forwardRaw(conn, payload)
		return
	}

	switch m := msg.(type) {
	case protocol.HostRoom:
		r.hostRoom(conn, m)
	case protocol.JoinRoom:
		r.joinRoom(conn, m)
	case protocol.ListRooms:
		r.reply(conn, protocol.NewRoomList(r.rooms.List()))
	case protocol.CloseRoom:
		r.closeRoom(conn)
	case protocol.GameData:
		r.forwardGameData(conn, m)
	case protocol.Ping:
		r.reply(conn, protocol.NewPong(r.now()))
	case protocol.Unknown:
		r.logger.Info("ignoring unknown control message",
			observability.ConnID(conn.ID),
			zap.String("type", m.Type),
			zap.String("reason", m.Reason),
		)
	}
}

// Disconnect runs the cascade for a lost connection and forgets it.
// Calling it again for the same id is a no-op.
func (r *Relay) Disconnect(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns.Lookup(id)
	if !ok {
		return
	}
	r.leave(conn)
	r.conns.Remove(id)

	r.logger.Info("connection closed",
		observability.ConnID(id),
		zap.Int("connections", r.conns.Len()),
	)
}

// SweepStale removes rooms with no clients older than maxAge.
//
// Postcondition: Returns the ids of the removed rooms.
func (r *Relay) SweepStale(maxAge time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms.SweepStale(maxAge, r.now())
}

// ProbeAll sends a liveness probe to every open connection. Probes are sent
// outside the relay lock.
//
// Postcondition: Returns the number of probes sent successfully.
func (r *Relay) ProbeAll() int {
	r.mu.Lock()
	peers := r.conns.Peers()
	r.mu.Unlock()

	sent := 0
	for _, p := range peers {
		if !p.Open() {
			continue
		}
		if err := p.Probe(); err != nil {
			r.logger.Debug("liveness probe failed", zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// Rooms returns a snapshot of every open room.
func (r *Relay) Rooms() []protocol.RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms.List()
}

// Room returns the room_list entry for roomID.
//
// Postcondition: Returns (info, true) if the room is open, or (zero, false) otherwise.
func (r *Relay) Room(roomID string) (protocol.RoomInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return protocol.RoomInfo{}, false
	}
	return room.Info(), true
}

// Stats returns the number of registered connections and open rooms.
func (r *Relay) Stats() (connections, rooms int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns.Len(), r.rooms.Len()
}

func (r *Relay) reply(conn *Connection, msg any) {
	deliverMessage(r.logger, conn, msg)
}

func (r *Relay) hostRoom(conn *Connection, m protocol.HostRoom) {
	if m.RoomID == "" {
		r.reply(conn, protocol.NewError(protocol.ErrMsgRoomRequired))
		return
	}

	err := r.rooms.CreateRoom(m.RoomID, conn.ID)
	switch {
	case errors.Is(err, ErrRoomExists):
		r.reply(conn, protocol.NewError(protocol.ErrMsgRoomExists))
		return
	case errors.Is(err, ErrAlreadyInRoom):
		r.reply(conn, protocol.NewError(protocol.ErrMsgAlreadyInRoom))
		return
	case err != nil:
		r.logger.Error("creating room", observability.ConnID(conn.ID), zap.Error(err))
		return
	}

	r.logger.Info("room created",
		observability.RoomID(m.RoomID),
		observability.ConnID(conn.ID),
	)
	r.reply(conn, protocol.NewRoomCreated(m.RoomID))
}

func (r *Relay) joinRoom(conn *Connection, m protocol.JoinRoom) {
	if m.RoomID == "" {
		r.reply(conn, protocol.NewError(protocol.ErrMsgRoomRequired))
		return
	}

	err := r.rooms.AddMember(m.RoomID, conn.ID, m.PlayerName)
	switch {
	case errors.Is(err, ErrRoomNotFound):
		r.reply(conn, protocol.NewError(protocol.ErrMsgRoomNotFound))
		return
	case errors.Is(err, ErrAlreadyInRoom):
		r.reply(conn, protocol.NewError(protocol.ErrMsgAlreadyInRoom))
		return
	case err != nil:
		r.logger.Error("joining room", observability.ConnID(conn.ID), zap.Error(err))
		return
	}

	r.logger.Info("client joined room",
		observability.RoomID(m.RoomID),
		observability.ConnID(conn.ID),
		zap.String("player_name", m.PlayerName),
	)
	r.reply(conn, protocol.NewJoinedRoom(m.RoomID))

	room, _ := r.rooms.Get(m.RoomID)
	if host, ok := r.conns.Lookup(room.HostID); ok {
		deliverMessage(r.logger, host, protocol.NewClientJoined(conn.ID, m.PlayerName))
	}
}

// closeRoom is only honoured for hosts; anything else is ignored without a reply.
func (r *Relay) closeRoom(conn *Connection) {
	if conn.Role != RoleHost {
		r.logger.Debug("ignoring close_room from non-host",
			observability.ConnID(conn.ID),
			zap.String("role", conn.Role.String()),
		)
		return
	}
	r.leave(conn)
}

// leave detaches conn from its room. Hosts close the room, notifying every
// member; clients are removed and their host told. Unassigned connections
// are untouched.
func (r *Relay) leave(conn *Connection) {
	switch conn.Role {
	case RoleHost:
		roomID := conn.RoomID
		if err := r.rooms.CloseRoom(roomID); err != nil {
			r.conns.SetRole(conn.ID, RoleUnassigned, "", "")
			return
		}
		r.logger.Info("room closed",
			observability.RoomID(roomID),
			observability.ConnID(conn.ID),
		)

	case RoleClient:
		roomID := conn.RoomID
		name, removed := r.rooms.RemoveMember(roomID, conn.ID)
		if !removed {
			r.conns.SetRole(conn.ID, RoleUnassigned, "", "")
			return
		}
		r.logger.Info("client left room",
			observability.RoomID(roomID),
			observability.ConnID(conn.ID),
		)
		room, ok := r.rooms.Get(roomID)
		if !ok {
			return
		}
		if host, ok := r.conns.Lookup(room.HostID); ok {
			deliverMessage(r.logger, host, protocol.NewClientLeft(conn.ID, name))
		}
	}
}
