package protocol

import (
	"encoding/json"
	"time"
)

// Outbound control message types.
const (
	TypeWelcome      = "welcome"
	TypeRoomCreated  = "room_created"
	TypeJoinedRoom   = "joined_room"
	TypeClientJoined = "client_joined"
	TypeRoomList     = "room_list"
	TypeRoomClosed   = "room_closed"
	TypeClientLeft   = "client_left"
	TypeClientData   = "client_data"
	TypePong         = "pong"
	TypeError        = "error"
)

// Error messages reported to requesters.
const (
	ErrMsgRoomExists    = "Room already exists"
	ErrMsgRoomNotFound  = "Room not found"
	ErrMsgRoomRequired  = "Room ID required"
	ErrMsgAlreadyInRoom = "Already in a room"
)

// RoomInfo describes one open room in a room_list.
type RoomInfo struct {
	RoomID      string `json:"roomId"`
	PlayerCount int    `json:"playerCount"`
	// CreatedAt is Unix milliseconds.
	CreatedAt int64 `json:"createdAt"`
}

// Welcome is sent to every connection immediately after it is accepted.
type Welcome struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

// RoomCreated confirms a host_room request.
type RoomCreated struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// JoinedRoom confirms a join_room request.
type JoinedRoom struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// ClientJoined tells a host a client entered its room.
type ClientJoined struct {
	Type       string `json:"type"`
	ClientID   string `json:"clientId"`
	PlayerName string `json:"playerName"`
}

// RoomList answers list_rooms.
type RoomList struct {
	Type  string     `json:"type"`
	Rooms []RoomInfo `json:"rooms"`
}

// RoomClosed tells a client its room no longer exists.
type RoomClosed struct {
	Type string `json:"type"`
}

// ClientLeft tells a host a client left its room.
type ClientLeft struct {
	Type       string `json:"type"`
	ClientID   string `json:"clientId"`
	PlayerName string `json:"playerName"`
}

// ClientData wraps a client's structured game data for its host.
type ClientData struct {
	Type     string          `json:"type"`
	ClientID string          `json:"clientId"`
	Data     json.RawMessage `json:"data"`
}

// Pong answers ping.
type Pong struct {
	Type string `json:"type"`
	// Timestamp is Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Error reports a failed request to its sender.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewWelcome builds the greeting carrying a new connection's id.
func NewWelcome(connID string) Welcome { return Welcome{Type: TypeWelcome, ConnectionID: connID} }

// NewRoomCreated confirms roomID to its host.
func NewRoomCreated(roomID string) RoomCreated {
	return RoomCreated{Type: TypeRoomCreated, RoomID: roomID}
}

// NewJoinedRoom confirms roomID to a joining client.
func NewJoinedRoom(roomID string) JoinedRoom { return JoinedRoom{Type: TypeJoinedRoom, RoomID: roomID} }

// NewClientJoined tells a host which client joined and under what name.
func NewClientJoined(clientID, playerName string) ClientJoined {
	return ClientJoined{Type: TypeClientJoined, ClientID: clientID, PlayerName: playerName}
}

// NewRoomList builds a room_list. A nil slice is encoded as an empty array.
func NewRoomList(rooms []RoomInfo) RoomList {
	if rooms == nil {
		rooms = []RoomInfo{}
	}
	return RoomList{Type: TypeRoomList, Rooms: rooms}
}

// NewRoomClosed builds the notice sent to members of a closed room.
func NewRoomClosed() RoomClosed { return RoomClosed{Type: TypeRoomClosed} }

// NewClientLeft tells a host which client left.
func NewClientLeft(clientID, playerName string) ClientLeft {
	return ClientLeft{Type: TypeClientLeft, ClientID: clientID, PlayerName: playerName}
}

// NewClientData wraps data unchanged. Missing data is encoded as null.
func NewClientData(clientID string, data json.RawMessage) ClientData {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return ClientData{Type: TypeClientData, ClientID: clientID, Data: data}
}

// NewPong stamps now in Unix milliseconds.
func NewPong(now time.Time) Pong { return Pong{Type: TypePong, Timestamp: now.UnixMilli()} }

// NewError reports message to the requester.
func NewError(message string) Error { return Error{Type: TypeError, Message: message} }

// Encode marshals an outbound message.
//
// Precondition: msg must be one of the outbound message types in this package.
// Postcondition: Returns the JSON encoding or a non-nil error.
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}
