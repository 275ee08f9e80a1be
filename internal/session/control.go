package session

import (
	"fmt"

	"github.com/codesync-ide/collab/internal/protocol"
	"github.com/codesync-ide/collab/internal/util"
)

// Control arbitration: one side is the writer, the other a read-only
// viewer, kept consistent by a four-message handshake. Only the host grants
// and only the host revokes, so the host's belief is authoritative and a
// confused client self-corrects toward it.

// RequestControl asks the host for editing control. Valid only for a
// connected client that does not already hold it. No local state changes
// until the host answers.
func (s *Session) RequestControl() error {
	s.mu.Lock()
	if s.role != RoleClient || s.state != StateConnected {
		s.mu.Unlock()
		return fmt.Errorf("control can only be requested by a connected client")
	}
	if s.hasControl {
		s.mu.Unlock()
		return fmt.Errorf("already holding control")
	}
	link := s.link
	sid := shortID(s.sid)
	s.mu.Unlock()

	link.Send(protocol.Control(protocol.KindRequestControl))
	util.Stats.AddControl()
	util.LogInfo("[%s] requested editing control", sid)
	return nil
}

// OnUserRequestedReclaim is the host-side trigger for taking control back:
// the user tried to type while in viewer mode. The host never asks — it
// revokes unconditionally.
func (s *Session) OnUserRequestedReclaim() {
	s.mu.Lock()
	if s.role != RoleHost || s.state != StateConnected || s.hasControl {
		s.mu.Unlock()
		return
	}
	s.hasControl = true
	link := s.link
	sid := shortID(s.sid)
	s.mu.Unlock()

	link.Send(protocol.Control(protocol.KindRevokeControl))
	util.Stats.AddControl()
	util.LogInfo("[%s] reclaimed editing control", sid)
	s.emit(Event{Kind: EventControlGained})
}

// handleControl applies one inbound control message in the current role
// context. Role/kind combinations outside the protocol are anomalies:
// logged, ignored, and local state forced to the safe default.
func (s *Session) handleControl(kind protocol.Kind) {
	s.mu.Lock()
	role := s.role
	sid := shortID(s.sid)
	s.mu.Unlock()

	switch {
	case kind == protocol.KindRequestControl && role == RoleHost:
		util.LogInfo("[%s] peer requests editing control", sid)
		s.emit(Event{Kind: EventControlRequested})
		go s.decideControlRequest()

	case kind == protocol.KindGrantControl && role == RoleClient:
		s.mu.Lock()
		s.hasControl = true
		s.mu.Unlock()
		util.LogInfo("[%s] control granted by host", sid)
		s.emit(Event{Kind: EventControlGained})

	case kind == protocol.KindRevokeControl && role == RoleClient:
		s.mu.Lock()
		s.hasControl = false
		s.mu.Unlock()
		util.LogInfo("[%s] control revoked by host", sid)
		s.emit(Event{Kind: EventControlLost})

	case kind == protocol.KindDeclineControl && role == RoleClient:
		util.LogInfo("[%s] control request declined by host", sid)
		s.emit(Event{Kind: EventControlDeclined})

	default:
		s.forceSafeControl(kind, role, sid)
	}
}

// decideControlRequest runs the approval prompt off the event path, then
// routes the answer back under the lock. The peer may have vanished in the
// meantime; granting into the void would strand control nowhere, so the
// host keeps it.
func (s *Session) decideControlRequest() {
	approved := s.approve != nil && s.approve()

	s.mu.Lock()
	if s.role != RoleHost || s.state != StateConnected || s.link == nil {
		sid := shortID(s.sid)
		s.mu.Unlock()
		util.LogWarning("[%s] control decision arrived after peer left; host keeps control", sid)
		return
	}
	link := s.link
	sid := shortID(s.sid)
	if approved {
		s.hasControl = false
	}
	s.mu.Unlock()

	util.Stats.AddControl()
	if approved {
		link.Send(protocol.Control(protocol.KindGrantControl))
		util.LogInfo("[%s] granted editing control to peer", sid)
		s.emit(Event{Kind: EventControlLost})
	} else {
		link.Send(protocol.Control(protocol.KindDeclineControl))
		util.LogInfo("[%s] declined peer's control request", sid)
	}
}

// forceSafeControl handles a control message that contradicts the local
// role: the host keeps/regains the pen, the client yields it.
func (s *Session) forceSafeControl(kind protocol.Kind, role Role, sid string) {
	util.LogWarning("[%s] protocol anomaly: %s received as %s; forcing safe control state",
		sid, kind, role)

	s.mu.Lock()
	switch role {
	case RoleHost:
		s.hasControl = true
	case RoleClient:
		s.hasControl = false
	}
	s.mu.Unlock()
}
