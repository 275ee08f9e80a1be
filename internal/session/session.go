// Package session implements the collaborative-editing state machine: one
// host and one client share a single document over a TCP link, with explicit
// transfer of editing control between them. The Session is the sole
// authority deciding whether a local edit is transmitted and whether an
// inbound document replaces the local buffer.
package session

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/codesync-ide/collab/internal/endpoint"
	"github.com/codesync-ide/collab/internal/protocol"
	"github.com/codesync-ide/collab/internal/util"
)

// Role is the session participant kind.
type Role uint8

const (
	RoleNone Role = iota
	RoleHost
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	}
	return "none"
}

// LinkState tracks the connection lifecycle.
type LinkState uint8

const (
	StateIdle LinkState = iota
	StateListening
	StateConnected
)

func (s LinkState) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	}
	return "idle"
}

// Editor is the external editor collaborator. The core never keeps a
// document copy beyond the last text sent or applied.
type Editor interface {
	// ApplyRemoteDocument replaces the editor content with text.
	ApplyRemoteDocument(text string)
	// Snapshot returns the current document text.
	Snapshot() string
}

// Approver answers a peer's control request on the host side. It may block
// on user input; the Session calls it off the event path.
type Approver func() bool

// Session is the per-process state machine. All state lives behind one
// mutex; methods are safe to call from any goroutine.
type Session struct {
	editor  Editor
	approve Approver
	events  chan Event

	mu         sync.Mutex
	role       Role
	state      LinkState
	hasControl bool
	sid        string // uuid of the current hosting/connection attempt

	listener *endpoint.Listener
	link     *endpoint.Link

	// Document sync policy state (see sync.go).
	applying bool   // anti-echo guard around programmatic applies
	lastText string // last text sent or applied, for the no-op guard
}

// New creates an idle Session. approve may be nil, in which case every
// control request is declined.
func New(editor Editor, approve Approver) *Session {
	return &Session{
		editor:  editor,
		approve: approve,
		events:  make(chan Event, eventBufferSize),
	}
}

// Events returns the notification channel for the embedding UI.
func (s *Session) Events() <-chan Event { return s.events }

// Role returns the current session role.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// State returns the current link state.
func (s *Session) State() LinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HasControl reports whether this side may currently send document edits.
// Meaningful only while connected.
func (s *Session) HasControl() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasControl
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// StartHosting binds addr (e.g. "127.0.0.1:54321", or port 0 for an
// ephemeral port) and starts waiting for a peer. Returns the bound address.
// Failure leaves the session idle; retry is the caller's decision.
func (s *Session) StartHosting(addr string) (string, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return "", fmt.Errorf("session already active (%s)", s.state)
	}

	ln, err := endpoint.Listen(addr, s.handleAccepted)
	if err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("could not start hosting: %w", err)
	}

	s.listener = ln
	s.role = RoleHost
	s.state = StateListening
	s.hasControl = true
	s.sid = uuid.NewString()
	sid := shortID(s.sid)
	bound := ln.Addr()
	s.mu.Unlock()

	util.LogInfo("[%s] hosting on %s, waiting for a peer", sid, bound)
	return bound, nil
}

// ConnectToHost dials a host at addr ("ip:port") with a bounded wait.
// Success lands in (client, connected, no control); failure leaves the
// session idle.
func (s *Session) ConnectToHost(addr string) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("session already active (%s)", s.state)
	}
	s.mu.Unlock()

	link, err := endpoint.Dial(addr)
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", addr, err)
	}

	s.mu.Lock()
	if s.state != StateIdle {
		// Lost a race with another start while dialing.
		s.mu.Unlock()
		link.Close()
		return fmt.Errorf("session already active")
	}
	s.link = link
	s.role = RoleClient
	s.state = StateConnected
	s.hasControl = false
	s.sid = uuid.NewString()
	sid := shortID(s.sid)
	s.mu.Unlock()

	go s.serveLink(link)

	util.LogInfo("[%s] connected to host %s [%08x]", sid, addr, link.ID())
	s.emit(Event{Kind: EventPeerConnected, Detail: addr})
	return nil
}

// StopSession ends any active session and returns to idle. Safe to call
// from any state, including idle; idempotent.
func (s *Session) StopSession() {
	s.mu.Lock()
	if s.role == RoleNone && s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	sid := shortID(s.sid)
	link := s.link
	s.teardownLocked()
	s.mu.Unlock()

	if link != nil {
		link.Abort()
		s.emit(Event{Kind: EventPeerDisconnected})
	}
	util.LogInfo("[%s] session stopped", sid)
}

// teardownLocked resets to (none, idle, no control) and releases the
// listener. The link, if any, is the caller's to close — identity against
// s.link is how stale link events are filtered.
func (s *Session) teardownLocked() {
	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	s.link = nil
	s.role = RoleNone
	s.state = StateIdle
	s.hasControl = false
	s.applying = false
	s.lastText = ""
}

// ---------------------------------------------------------------------------
// Link plumbing
// ---------------------------------------------------------------------------

// handleAccepted runs on the listener's accept loop. Only one peer may be
// live: a second connection preempts the first with an abortive close.
// This is a deliberate scope limit, not a bug to fix into multi-peer
// broadcast.
func (s *Session) handleAccepted(conn net.Conn) {
	s.mu.Lock()
	if s.role != RoleHost || s.state == StateIdle {
		s.mu.Unlock()
		conn.Close()
		return
	}

	var preempted *endpoint.Link
	if s.link != nil {
		preempted = s.link
	}
	link := endpoint.New(conn)
	s.link = link
	s.state = StateConnected
	s.hasControl = true
	sid := shortID(s.sid)
	s.mu.Unlock()

	if preempted != nil {
		util.LogWarning("[%s] new peer %s preempts existing link [%08x]",
			sid, link.RemoteAddr(), preempted.ID())
		preempted.Abort()
		s.emit(Event{Kind: EventPeerDisconnected})
	}

	go s.serveLink(link)

	util.LogInfo("[%s] peer connected from %s [%08x]", sid, link.RemoteAddr(), link.ID())
	s.emit(Event{Kind: EventPeerConnected, Detail: link.RemoteAddr()})

	// Bring the new peer up to date with the current document.
	s.pushSnapshot(link)
}

// serveLink consumes one link's event stream until it closes.
func (s *Session) serveLink(link *endpoint.Link) {
	for ev := range link.Events() {
		switch ev.Kind {
		case endpoint.EventMessage:
			s.handleMessage(link, ev.Msg)
		case endpoint.EventClosed:
			s.handleClosed(link, ev.Err)
		}
	}
}

// handleMessage routes one decoded message by kind.
func (s *Session) handleMessage(link *endpoint.Link, msg protocol.Message) {
	s.mu.Lock()
	stale := s.link != link
	sid := shortID(s.sid)
	s.mu.Unlock()
	if stale {
		return
	}

	switch msg.Type {
	case protocol.KindTextUpdate:
		s.applyRemote(msg.Content)
	case protocol.KindRequestControl, protocol.KindGrantControl,
		protocol.KindRevokeControl, protocol.KindDeclineControl:
		util.Stats.AddControl()
		s.handleControl(msg.Type)
	default:
		util.LogWarning("[%s] unknown message type %q ignored", sid, msg.Type)
	}
}

// handleClosed treats any link loss — graceful, error, or framing failure —
// identically: the session returns to idle.
func (s *Session) handleClosed(link *endpoint.Link, err error) {
	s.mu.Lock()
	if s.link != link {
		// Preempted or already stopped; this closure was reported when it
		// happened.
		s.mu.Unlock()
		return
	}
	sid := shortID(s.sid)
	s.teardownLocked()
	s.mu.Unlock()

	if err != nil {
		util.LogWarning("[%s] link lost: %v", sid, err)
	}
	util.LogInfo("[%s] peer disconnected, session idle", sid)
	s.emit(Event{Kind: EventPeerDisconnected})
}

// pushSnapshot sends the full current document to the peer.
func (s *Session) pushSnapshot(link *endpoint.Link) {
	text := s.editor.Snapshot()

	s.mu.Lock()
	s.lastText = text
	s.mu.Unlock()

	link.Send(protocol.TextUpdate(text))
	util.Stats.AddUpdateSent()
}

func shortID(sid string) string {
	if len(sid) < 8 {
		return "--------"
	}
	return sid[:8]
}
