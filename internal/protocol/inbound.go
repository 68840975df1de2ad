// Package protocol defines the relay's two wire formats: JSON control
// envelopes tagged by "type", and the raw |TO| / |FROM| addressing used for
// unstructured game traffic.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound control message types.
const (
	TypeHostRoom  = "host_room"
	TypeJoinRoom  = "join_room"
	TypeListRooms = "list_rooms"
	TypeCloseRoom = "close_room"
	TypeGameData  = "game_data"
	TypePing      = "ping"
)

// ErrNotEnvelope is returned by Decode when the payload is not a JSON object.
// Such payloads are raw game data, not malformed control messages.
var ErrNotEnvelope = errors.New("payload is not a control envelope")

// Inbound is a decoded control message. The set of implementations is closed.
type Inbound interface {
	inbound()
}

// HostRoom asks the relay to create a room owned by the sender.
type HostRoom struct {
	RoomID string `json:"roomId"`
}

// JoinRoom asks the relay to add the sender to an existing room.
type JoinRoom struct {
	RoomID     string `json:"roomId"`
	PlayerName string `json:"playerName"`
}

// ListRooms asks for a snapshot of open rooms.
type ListRooms struct{}

// CloseRoom asks the relay to close the sender's hosted room.
type CloseRoom struct{}

// GameData carries structured game traffic. TargetID is only meaningful
// when sent by a host.
type GameData struct {
	TargetID string          `json:"targetId,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Ping asks for a pong carrying the server time.
type Ping struct{}

// Unknown is a JSON object whose type is missing, unrecognised, or whose
// fields do not match the declared type.
type Unknown struct {
	Type   string
	Reason string
}

func (HostRoom) inbound()  {}
func (JoinRoom) inbound()  {}
func (ListRooms) inbound() {}
func (CloseRoom) inbound() {}
func (GameData) inbound()  {}
func (Ping) inbound()      {}
func (Unknown) inbound()   {}

// Body returns the bytes to deliver for this game data. A JSON string is
// delivered as its contents; any other JSON value as its encoded text.
//
// Postcondition: Returns (nil, false) when no data was supplied.
func (g GameData) Body() ([]byte, bool) {
	if len(g.Data) == 0 || string(g.Data) == "null" {
		return nil, false
	}
	var s string
	if err := json.Unmarshal(g.Data, &s); err == nil {
		return []byte(s), true
	}
	return []byte(g.Data), true
}

// Decode parses payload as a control envelope. Field names are matched
// exactly; "roomId" is honoured but "RoomID" is not.
//
// Postcondition: Returns ErrNotEnvelope if payload is not a JSON object;
// otherwise returns a non-nil Inbound and a nil error. Objects that cannot be
// interpreted decode to Unknown.
func Decode(payload []byte) (Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return nil, ErrNotEnvelope
	}

	typ, err := stringField(fields, "type")
	if err != nil {
		return Unknown{Reason: "type is not a string"}, nil
	}

	var msg Inbound
	switch typ {
	case TypeHostRoom:
		var m HostRoom
		m.RoomID, err = stringField(fields, "roomId")
		msg = m
	case TypeJoinRoom:
		var m JoinRoom
		if m.RoomID, err = stringField(fields, "roomId"); err == nil {
			m.PlayerName, err = stringField(fields, "playerName")
		}
		msg = m
	case TypeListRooms:
		msg = ListRooms{}
	case TypeCloseRoom:
		msg = CloseRoom{}
	case TypeGameData:
		var m GameData
		m.TargetID, err = stringField(fields, "targetId")
		m.Data = fields["data"]
		msg = m
	case TypePing:
		msg = Ping{}
	case "":
		return Unknown{Reason: "missing type"}, nil
	default:
		return Unknown{Type: typ, Reason: "unrecognised type"}, nil
	}
	if err != nil {
		return Unknown{Type: typ, Reason: fmt.Sprintf("decoding %s: %v", typ, err)}, nil
	}
	return msg, nil
}

// stringField returns the string stored under key. A missing key or JSON
// null yields "".
func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("field %s: %w", key, err)
	}
	return s, nil
}
