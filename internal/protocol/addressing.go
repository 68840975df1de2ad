package protocol

import "bytes"

// Raw addressing sentinels. They are part of the wire format shared with
// existing game clients and must stay byte-identical.
const (
	ToSentinel   = "|TO|"
	FromSentinel = "|FROM|"
)

// RouteKind distinguishes the three raw addressing forms.
type RouteKind int

const (
	// Broadcast is host traffic for every member of the host's room.
	Broadcast RouteKind = iota
	// Targeted is host traffic for one member.
	Targeted
	// FromClient is client traffic for the host, tagged with the sender.
	FromClient
)

// String returns the kind name for logging.
func (k RouteKind) String() string {
	switch k {
	case Broadcast:
		return "broadcast"
	case Targeted:
		return "targeted"
	case FromClient:
		return "from_client"
	default:
		return "unknown"
	}
}

// Route is a typed view of a raw frame: who it is for (or from) and the
// opaque body being relayed.
type Route struct {
	Kind RouteKind
	// Peer is the target id for Targeted and the sender id for FromClient.
	Peer string
	Body []byte
}

// ParseHostFrame interprets a raw frame sent by a host. A frame containing
// "|TO|" is Targeted at the id before the first sentinel; the body is
// everything after it. Any other frame is a Broadcast of the whole payload.
func ParseHostFrame(payload []byte) Route {
	target, body, found := bytes.Cut(payload, []byte(ToSentinel))
	if !found {
		return Route{Kind: Broadcast, Body: payload}
	}
	return Route{Kind: Targeted, Peer: string(target), Body: body}
}

// NewBroadcast returns a Broadcast route for body.
func NewBroadcast(body []byte) Route {
	return Route{Kind: Broadcast, Body: body}
}

// NewTargeted returns a Targeted route for body.
func NewTargeted(targetID string, body []byte) Route {
	return Route{Kind: Targeted, Peer: targetID, Body: body}
}

// NewFromClient returns a FromClient route for body sent by senderID.
func NewFromClient(senderID string, body []byte) Route {
	return Route{Kind: FromClient, Peer: senderID, Body: body}
}

// Frame returns the raw wire encoding of r.
//
// Postcondition: ParseHostFrame(r.Frame()) == r for Targeted routes whose
// Peer does not contain the sentinel, and for Broadcast routes whose Body
// does not contain it.
func (r Route) Frame() []byte {
	var sep string
	switch r.Kind {
	case Targeted:
		sep = ToSentinel
	case FromClient:
		sep = FromSentinel
	default:
		return r.Body
	}
	out := make([]byte, 0, len(r.Peer)+len(sep)+len(r.Body))
	out = append(out, r.Peer...)
	out = append(out, sep...)
	return append(out, r.Body...)
}
