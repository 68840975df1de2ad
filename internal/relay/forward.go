package relay

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/relay/internal/observability"
	"github.com/cory-johannsen/relay/internal/protocol"
)

// Both addressing forms share one rule set: host traffic goes to one named
// connection or to all members of the host's room, and client traffic goes
// to the host only. Only the frame handed to the host differs.

// forwardRaw relays a payload that is not a control envelope.
func (r *Relay) forwardRaw(conn *Connection, payload []byte) {
	room, ok := r.roomOf(conn)
	if !ok {
		return
	}
	switch conn.Role {
	case RoleHost:
		r.routeFromHost(room, protocol.ParseHostFrame(payload))
	case RoleClient:
		r.sendToHost(room, protocol.NewFromClient(conn.ID, payload).Frame())
	}
}

// forwardGameData relays a structured game_data message.
func (r *Relay) forwardGameData(conn *Connection, m protocol.GameData) {
	room, ok := r.roomOf(conn)
	if !ok {
		return
	}
	body, ok := m.Body()
	if !ok {
		r.logger.Debug("dropping game_data without data", observability.ConnID(conn.ID))
		return
	}

	switch conn.Role {
	case RoleHost:
		if m.TargetID != "" {
			r.routeFromHost(room, protocol.NewTargeted(m.TargetID, body))
		} else {
			r.routeFromHost(room, protocol.NewBroadcast(body))
		}
	case RoleClient:
		frame, err := protocol.Encode(protocol.NewClientData(conn.ID, m.Data))
		if err != nil {
			r.logger.Error("encoding client_data", observability.ConnID(conn.ID), zap.Error(err))
			return
		}
		r.sendToHost(room, frame)
	}
}

// roomOf returns the room conn belongs to, if any.
func (r *Relay) roomOf(conn *Connection) (*Room, bool) {
	if conn.Role == RoleUnassigned {
		return nil, false
	}
	return r.rooms.Get(conn.RoomID)
}

// routeFromHost delivers a host route's body. A targeted body goes to the
// named connection if it is registered and open, wherever it is; a broadcast
// goes to every member of the host's room.
func (r *Relay) routeFromHost(room *Room, route protocol.Route) {
	switch route.Kind {
	case protocol.Targeted:
		target, ok := r.conns.Lookup(route.Peer)
		if !ok {
			r.logger.Debug("dropping frame for unknown target",
				observability.RoomID(room.ID),
				zap.String("target_id", route.Peer),
			)
			return
		}
		deliver(r.logger, target, route.Body)

	case protocol.Broadcast:
		for memberID := range room.Members {
			member, _ := r.conns.Lookup(memberID)
			deliver(r.logger, member, route.Body)
		}
	}
}

func (r *Relay) sendToHost(room *Room, frame []byte) {
	host, _ := r.conns.Lookup(room.HostID)
	deliver(r.logger, host, frame)
}
