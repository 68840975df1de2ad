package relay

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/relay/internal/protocol"
)

// Role is a connection's position in a room.
type Role int

const (
	// RoleUnassigned connections are in no room.
	RoleUnassigned Role = iota
	// RoleHost connections own exactly one room.
	RoleHost
	// RoleClient connections are a member of exactly one room.
	RoleClient
)

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	default:
		return "unassigned"
	}
}

// Connection is the relay's view of one live transport session.
type Connection struct {
	// ID is assigned at accept time and never reused within the process.
	ID string
	// Role is the connection's position in RoomID.
	Role Role
	// RoomID is set iff Role is not RoleUnassigned.
	RoomID string
	// DisplayName is the player name given on join; set only for clients.
	DisplayName string
	// ConnectedAt is when the connection was registered.
	ConnectedAt time.Time
	// Peer is the transport handle used to reach the connection.
	Peer Peer
}

// ConnectionRegistry owns connection identity and per-connection state.
// It is not safe for concurrent use; Relay serializes all access.
type ConnectionRegistry struct {
	conns  map[string]*Connection
	seq    uint64
	now    func() time.Time
	logger *zap.Logger
}

// NewConnectionRegistry creates an empty registry.
//
// Precondition: now and logger must be non-nil.
func NewConnectionRegistry(now func() time.Time, logger *zap.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		conns:  make(map[string]*Connection),
		now:    now,
		logger: logger,
	}
}

// Register stores a new unassigned connection for peer and sends it a
// welcome carrying its id.
//
// Precondition: peer must be non-nil.
// Postcondition: The returned id differs from every id previously issued by
// this registry.
func (r *ConnectionRegistry) Register(peer Peer) *Connection {
	r.seq++
	now := r.now()
	conn := &Connection{
		ID:          fmt.Sprintf("conn_%d_%d", now.UnixMilli(), r.seq),
		Role:        RoleUnassigned,
		ConnectedAt: now,
		Peer:        peer,
	}
	r.conns[conn.ID] = conn

	deliverMessage(r.logger, conn, protocol.NewWelcome(conn.ID))
	return conn
}

// Lookup returns the connection with the given id.
//
// Postcondition: Returns (conn, true) if found, or (nil, false) otherwise.
func (r *ConnectionRegistry) Lookup(id string) (*Connection, bool) {
	conn, ok := r.conns[id]
	return conn, ok
}

// SetRole updates a connection's role and room. Assigning RoleUnassigned
// clears the room and display name; display names are kept only for clients.
//
// Postcondition: Returns false if no connection has the given id.
func (r *ConnectionRegistry) SetRole(id string, role Role, roomID, displayName string) bool {
	conn, ok := r.conns[id]
	if !ok {
		return false
	}
	conn.Role = role
	switch role {
	case RoleUnassigned:
		conn.RoomID = ""
		conn.DisplayName = ""
	case RoleHost:
		conn.RoomID = roomID
		conn.DisplayName = ""
	case RoleClient:
		conn.RoomID = roomID
		conn.DisplayName = displayName
	}
	return true
}

// Remove deletes the connection. Removing an unknown id is a no-op.
func (r *ConnectionRegistry) Remove(id string) {
	delete(r.conns, id)
}

// Len returns the number of registered connections.
func (r *ConnectionRegistry) Len() int {
	return len(r.conns)
}

// Peers returns the transport handles of every registered connection.
func (r *ConnectionRegistry) Peers() []Peer {
	peers := make([]Peer, 0, len(r.conns))
	for _, conn := range r.conns {
		peers = append(peers, conn.Peer)
	}
	return peers
}
