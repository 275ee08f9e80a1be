package session

// eventBufferSize is the UI notification channel capacity. The consumer is
// a status surface, not a correctness participant; a lagging one loses
// notifications rather than stalling the protocol.
const eventBufferSize = 32

// EventKind discriminates session notifications.
type EventKind uint8

const (
	// EventPeerConnected — a peer joined (host side) or the dial succeeded
	// (client side). Detail holds the peer address.
	EventPeerConnected EventKind = iota + 1
	// EventPeerDisconnected — the session returned to idle, whatever the
	// cause (graceful close, error, stop, preemption).
	EventPeerDisconnected
	// EventControlRequested — host only: the peer asked for the pen.
	EventControlRequested
	// EventControlGained — local hasControl became true.
	EventControlGained
	// EventControlLost — local hasControl became false.
	EventControlLost
	// EventControlDeclined — client only: the host refused our request.
	EventControlDeclined
	// EventDocumentApplied — a remote document replaced the local buffer.
	EventDocumentApplied
)

func (k EventKind) String() string {
	switch k {
	case EventPeerConnected:
		return "peer-connected"
	case EventPeerDisconnected:
		return "peer-disconnected"
	case EventControlRequested:
		return "control-requested"
	case EventControlGained:
		return "control-gained"
	case EventControlLost:
		return "control-lost"
	case EventControlDeclined:
		return "control-declined"
	case EventDocumentApplied:
		return "document-applied"
	}
	return "unknown"
}

// Event is one UI notification.
type Event struct {
	Kind   EventKind
	Detail string
}

// emit delivers an event without ever blocking the protocol path.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}
