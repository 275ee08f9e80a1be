package session

import (
	"net"
	"testing"
	"time"

	"github.com/codesync-ide/collab/internal/editor"
	"github.com/codesync-ide/collab/internal/endpoint"
	"github.com/codesync-ide/collab/internal/protocol"
)

// ---------------------------------------------------------------------------
// Pipe harness: one session wired to an in-process pipe, with the raw far
// end playing the peer. Lets tests assert exactly which frames go out.
// ---------------------------------------------------------------------------

type fakePeer struct {
	conn net.Conn
	dec  protocol.Decoder
}

// next returns the peer's next received message, or nil on timeout.
func (p *fakePeer) next(timeout time.Duration) *protocol.Message {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 64*1024)
	for {
		if msg, err := p.dec.Next(); err == nil && msg != nil {
			return msg
		}
		p.conn.SetReadDeadline(deadline)
		n, err := p.conn.Read(buf)
		if err != nil {
			return nil
		}
		p.dec.Feed(buf[:n])
	}
}

// send injects a message into the session under test.
func (p *fakePeer) send(t *testing.T, msg protocol.Message) {
	t.Helper()
	p.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := p.conn.Write(protocol.Encode(msg)); err != nil {
		t.Fatalf("peer write failed: %v", err)
	}
}

// pipeSession fabricates a connected session in the given role and control
// state, bypassing the TCP handshake.
func pipeSession(t *testing.T, role Role, hasControl bool) (*Session, *fakePeer, *editor.Buffer) {
	t.Helper()

	buf := editor.NewBuffer()
	s := New(buf, nil)
	buf.SetOnChange(s.OnLocalDocumentChanged)

	local, remote := net.Pipe()
	link := endpoint.New(local)

	s.mu.Lock()
	s.link = link
	s.role = role
	s.state = StateConnected
	s.hasControl = hasControl
	s.sid = "aaaaaaaa-test"
	s.mu.Unlock()

	go s.serveLink(link)

	t.Cleanup(func() {
		link.Close()
		remote.Close()
	})
	return s, &fakePeer{conn: remote}, buf
}

// waitControl polls a session's control flag.
func waitControl(t *testing.T, s *Session, want bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.HasControl() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("control flag never reached %v", want)
}

// ---------------------------------------------------------------------------
// Full-exchange flows over real TCP
// ---------------------------------------------------------------------------

// TestControlHandshake walks request → grant → client edit → revoke,
// asserting after every step that at most one side believes it holds
// control.
func TestControlHandshake(t *testing.T) {
	host, client, hostBuf, clientBuf := startPair(t, func() bool { return true })

	assertExclusion := func(step string) {
		t.Helper()
		if host.HasControl() && client.HasControl() {
			t.Fatalf("%s: both sides hold control", step)
		}
	}
	assertExclusion("initial")

	// Client asks; the auto-approving host grants.
	if err := client.RequestControl(); err != nil {
		t.Fatalf("RequestControl failed: %v", err)
	}
	waitEvent(t, host, EventControlRequested)
	waitEvent(t, client, EventControlGained)
	waitEvent(t, host, EventControlLost)
	assertExclusion("after grant")

	if host.HasControl() || !client.HasControl() {
		t.Fatalf("grant did not transfer control: host=%v client=%v",
			host.HasControl(), client.HasControl())
	}

	// The client is the writer now; its edits reach the host.
	clientBuf.SetText("x = 1")
	waitText(t, hostBuf, "x = 1")
	assertExclusion("after client edit")

	// Host reclaims unconditionally.
	host.OnUserRequestedReclaim()
	waitEvent(t, host, EventControlGained)
	waitEvent(t, client, EventControlLost)
	assertExclusion("after revoke")

	if !host.HasControl() || client.HasControl() {
		t.Fatalf("revoke did not restore control: host=%v client=%v",
			host.HasControl(), client.HasControl())
	}

	// The demoted client's edits stay local.
	clientBuf.SetText("not transmitted")
	settle()
	if got := hostBuf.Snapshot(); got != "x = 1" {
		t.Errorf("revoked client's edit leaked to the host: %q", got)
	}
}

// TestControlDeclined verifies a refused request changes nothing but the
// client's notification stream.
func TestControlDeclined(t *testing.T) {
	host, client, _, _ := startPair(t, func() bool { return false })

	if err := client.RequestControl(); err != nil {
		t.Fatalf("RequestControl failed: %v", err)
	}
	waitEvent(t, client, EventControlDeclined)

	if !host.HasControl() {
		t.Error("declining host must keep control")
	}
	if client.HasControl() {
		t.Error("declined client must stay a viewer")
	}
}

// TestGrantAfterPeerGone covers the approval race: the peer disconnects
// while the host is deciding; the grant must not go into the void.
func TestGrantAfterPeerGone(t *testing.T) {
	decide := make(chan bool)
	host, client, _, _ := startPair(t, func() bool { return <-decide })

	if err := client.RequestControl(); err != nil {
		t.Fatalf("RequestControl failed: %v", err)
	}
	waitEvent(t, host, EventControlRequested)

	client.StopSession()
	waitEvent(t, host, EventPeerDisconnected)

	decide <- true
	settle()

	// Session is idle; the stale approval must not have flipped anything.
	if host.State() != StateIdle || host.HasControl() {
		t.Errorf("stale approval corrupted state: state=%s control=%v",
			host.State(), host.HasControl())
	}
}

// ---------------------------------------------------------------------------
// Validity and anomaly handling
// ---------------------------------------------------------------------------

// TestRequestControlValidity enumerates the callers that may not request.
func TestRequestControlValidity(t *testing.T) {
	t.Run("idle session", func(t *testing.T) {
		s, _ := newSession(nil)
		if err := s.RequestControl(); err == nil {
			t.Error("idle session must not request control")
		}
	})

	t.Run("host side", func(t *testing.T) {
		s, _, _ := pipeSession(t, RoleHost, true)
		if err := s.RequestControl(); err == nil {
			t.Error("host must not request control")
		}
	})

	t.Run("client already holding control", func(t *testing.T) {
		s, _, _ := pipeSession(t, RoleClient, true)
		if err := s.RequestControl(); err == nil {
			t.Error("writer client must not request control")
		}
	})
}

// TestReclaimOnlyWhenViewer verifies reclaim is a no-op for a host that is
// already the writer — no spurious REVOKE_CONTROL on the wire.
func TestReclaimOnlyWhenViewer(t *testing.T) {
	s, peer, _ := pipeSession(t, RoleHost, true)

	s.OnUserRequestedReclaim()

	if msg := peer.next(200 * time.Millisecond); msg != nil {
		t.Errorf("unexpected frame from a no-op reclaim: %+v", msg)
	}
	if !s.HasControl() {
		t.Error("reclaim must not drop control")
	}
}

// TestReclaimSendsRevoke verifies the viewer-host reclaim path: control
// returns locally and REVOKE_CONTROL goes out.
func TestReclaimSendsRevoke(t *testing.T) {
	s, peer, _ := pipeSession(t, RoleHost, false)

	s.OnUserRequestedReclaim()

	waitControl(t, s, true)
	msg := peer.next(2 * time.Second)
	if msg == nil || msg.Type != protocol.KindRevokeControl {
		t.Fatalf("expected REVOKE_CONTROL, got %+v", msg)
	}
}

// TestProtocolAnomalies feeds control messages that contradict the local
// role; state must snap to the safe default instead of crashing.
func TestProtocolAnomalies(t *testing.T) {
	testCases := []struct {
		name        string
		role        Role
		hasControl  bool
		inbound     protocol.Kind
		wantControl bool
	}{
		{
			name:        "host receives revoke",
			role:        RoleHost,
			hasControl:  false,
			inbound:     protocol.KindRevokeControl,
			wantControl: true, // host regains
		},
		{
			name:        "host receives grant",
			role:        RoleHost,
			hasControl:  false,
			inbound:     protocol.KindGrantControl,
			wantControl: true,
		},
		{
			name:        "host receives decline",
			role:        RoleHost,
			hasControl:  true,
			inbound:     protocol.KindDeclineControl,
			wantControl: true,
		},
		{
			name:        "client receives request",
			role:        RoleClient,
			hasControl:  true,
			inbound:     protocol.KindRequestControl,
			wantControl: false, // client yields
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, peer, _ := pipeSession(t, tc.role, tc.hasControl)

			peer.send(t, protocol.Control(tc.inbound))
			settle()

			if s.HasControl() != tc.wantControl {
				t.Errorf("control flag: got %v, want %v", s.HasControl(), tc.wantControl)
			}
			if s.State() != StateConnected {
				t.Error("an anomaly must not tear the session down")
			}
		})
	}
}
