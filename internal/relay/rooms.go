package relay

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/relay/internal/protocol"
)

var (
	// ErrRoomExists is returned when creating a room whose id is open.
	ErrRoomExists = errors.New("room already exists")
	// ErrRoomNotFound is returned when a room id is not open.
	ErrRoomNotFound = errors.New("room not found")
	// ErrAlreadyInRoom is returned when a hosting or joined connection
	// tries to host or join another room.
	ErrAlreadyInRoom = errors.New("connection already in a room")
	// ErrConnectionNotFound is returned when a connection id is not registered.
	ErrConnectionNotFound = errors.New("connection not found")
)

// Room is one game session: a host plus zero or more clients.
type Room struct {
	ID     string
	HostID string
	// Members maps client connection id to display name.
	Members   map[string]string
	CreatedAt time.Time
}

// PlayerCount returns the number of clients plus the host.
func (r *Room) PlayerCount() int {
	return len(r.Members) + 1
}

// Info returns the room's room_list entry.
func (r *Room) Info() protocol.RoomInfo {
	return protocol.RoomInfo{
		RoomID:      r.ID,
		PlayerCount: r.PlayerCount(),
		CreatedAt:   r.CreatedAt.UnixMilli(),
	}
}

// RoomRegistry owns room identity and membership. Every mutation updates
// room membership and the affected connections' role fields together.
// It is not safe for concurrent use; Relay serializes all access.
type RoomRegistry struct {
	rooms  map[string]*Room
	conns  *ConnectionRegistry
	now    func() time.Time
	logger *zap.Logger
}

// NewRoomRegistry creates an empty registry that keeps conns in step with
// room membership.
//
// Precondition: conns, now and logger must be non-nil.
func NewRoomRegistry(conns *ConnectionRegistry, now func() time.Time, logger *zap.Logger) *RoomRegistry {
	return &RoomRegistry{
		rooms:  make(map[string]*Room),
		conns:  conns,
		now:    now,
		logger: logger,
	}
}

// CreateRoom opens roomID with hostID as its host.
//
// Postcondition: On success the room exists with no members and the host
// connection has RoleHost in roomID. Returns ErrRoomExists,
// ErrConnectionNotFound or ErrAlreadyInRoom without changing state otherwise.
func (r *RoomRegistry) CreateRoom(roomID, hostID string) error {
	if _, exists := r.rooms[roomID]; exists {
		return fmt.Errorf("creating %q: %w", roomID, ErrRoomExists)
	}
	host, ok := r.conns.Lookup(hostID)
	if !ok {
		return fmt.Errorf("creating %q for %s: %w", roomID, hostID, ErrConnectionNotFound)
	}
	if host.Role != RoleUnassigned {
		return fmt.Errorf("creating %q for %s: %w", roomID, hostID, ErrAlreadyInRoom)
	}

	r.rooms[roomID] = &Room{
		ID:        roomID,
		HostID:    hostID,
		Members:   make(map[string]string),
		CreatedAt: r.now(),
	}
	r.conns.SetRole(hostID, RoleHost, roomID, "")
	return nil
}

// AddMember adds connID to roomID as a client named displayName.
//
// Postcondition: On success the connection has RoleClient in roomID and is
// keyed in the room's Members. Returns ErrRoomNotFound,
// ErrConnectionNotFound or ErrAlreadyInRoom without changing state otherwise.
func (r *RoomRegistry) AddMember(roomID, connID, displayName string) error {
	room, ok := r.rooms[roomID]
	if !ok {
		return fmt.Errorf("joining %q: %w", roomID, ErrRoomNotFound)
	}
	conn, ok := r.conns.Lookup(connID)
	if !ok {
		return fmt.Errorf("joining %q as %s: %w", roomID, connID, ErrConnectionNotFound)
	}
	if conn.Role != RoleUnassigned {
		return fmt.Errorf("joining %q as %s: %w", roomID, connID, ErrAlreadyInRoom)
	}

	room.Members[connID] = displayName
	r.conns.SetRole(connID, RoleClient, roomID, displayName)
	return nil
}

// RemoveMember removes connID from roomID and resets the connection to
// unassigned. It is a no-op if the room or member is absent.
//
// Postcondition: Returns the member's display name and true if it was removed.
func (r *RoomRegistry) RemoveMember(roomID, connID string) (string, bool) {
	room, ok := r.rooms[roomID]
	if !ok {
		return "", false
	}
	name, ok := room.Members[connID]
	if !ok {
		return "", false
	}
	delete(room.Members, connID)
	r.conns.SetRole(connID, RoleUnassigned, "", "")
	return name, true
}

// CloseRoom removes roomID. Every member is reset to unassigned and sent
// room_closed if its connection is open. The host is reset but not notified.
//
// Postcondition: Returns ErrRoomNotFound if roomID is not open.
func (r *RoomRegistry) CloseRoom(roomID string) error {
	room, ok := r.rooms[roomID]
	if !ok {
		return fmt.Errorf("closing %q: %w", roomID, ErrRoomNotFound)
	}

	for memberID := range room.Members {
		member, ok := r.conns.Lookup(memberID)
		if !ok {
			continue
		}
		deliverMessage(r.logger, member, protocol.NewRoomClosed())
		r.conns.SetRole(memberID, RoleUnassigned, "", "")
	}
	delete(r.rooms, roomID)

	if host, ok := r.conns.Lookup(room.HostID); ok && host.RoomID == roomID {
		r.conns.SetRole(room.HostID, RoleUnassigned, "", "")
	}
	return nil
}

// Get returns the open room with the given id.
//
// Postcondition: Returns (room, true) if found, or (nil, false) otherwise.
func (r *RoomRegistry) Get(roomID string) (*Room, bool) {
	room, ok := r.rooms[roomID]
	return room, ok
}

// List returns a snapshot of every open room, in no particular order.
//
// Postcondition: Returns a non-nil slice.
func (r *RoomRegistry) List() []protocol.RoomInfo {
	list := make([]protocol.RoomInfo, 0, len(r.rooms))
	for _, room := range r.rooms {
		list = append(list, room.Info())
	}
	return list
}

// Len returns the number of open rooms.
func (r *RoomRegistry) Len() int {
	return len(r.rooms)
}

// SweepStale closes every room with no members created more than maxAge
// before now. Rooms with at least one member are never swept.
//
// Postcondition: Returns the ids of the removed rooms.
func (r *RoomRegistry) SweepStale(maxAge time.Duration, now time.Time) []string {
	var removed []string
	for id, room := range r.rooms {
		if len(room.Members) == 0 && now.Sub(room.CreatedAt) > maxAge {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		_ = r.CloseRoom(id)
	}
	return removed
}
