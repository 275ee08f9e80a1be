package session

import (
	"github.com/codesync-ide/collab/internal/protocol"
	"github.com/codesync-ide/collab/internal/util"
)

// Document synchronization policy: whole-document, last-writer-wins.
// Sending the entire text on every edit trades bandwidth for simplicity —
// TCP ordering makes "apply the latest" correct with no sequence numbers.

// OnLocalDocumentChanged is the editor-to-core notification for a local
// edit. The edit goes out iff it was not itself caused by applying an
// inbound update (anti-echo guard), this side holds control, a peer is
// connected, and the text actually changed since the last send or apply.
func (s *Session) OnLocalDocumentChanged() {
	s.mu.Lock()
	if s.applying || !s.hasControl || s.state != StateConnected || s.link == nil {
		s.mu.Unlock()
		return
	}
	link := s.link
	s.mu.Unlock()

	text := s.editor.Snapshot()

	s.mu.Lock()
	if s.link != link {
		s.mu.Unlock()
		return
	}
	if text == s.lastText {
		s.mu.Unlock()
		return
	}
	s.lastText = text
	s.mu.Unlock()

	link.Send(protocol.TextUpdate(text))
	util.Stats.AddUpdateSent()
}

// applyRemote is the inbound path: replace the local buffer with the
// peer's text, unless this side is the writer — an active writer ignores
// inbound updates, which guards against stale updates racing a grant.
func (s *Session) applyRemote(text string) {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	if s.hasControl {
		sid := shortID(s.sid)
		s.mu.Unlock()
		util.LogWarning("[%s] ignoring inbound document update while holding control", sid)
		return
	}
	s.applying = true
	s.lastText = text
	s.mu.Unlock()

	// The editor's change notification fires during this call; the
	// applying flag keeps it from echoing back to the peer.
	s.editor.ApplyRemoteDocument(text)

	s.mu.Lock()
	s.applying = false
	s.mu.Unlock()

	util.Stats.AddUpdateRecv()
	s.emit(Event{Kind: EventDocumentApplied})
}
