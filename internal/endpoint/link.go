// Package endpoint owns the single live TCP connection of a session side:
// framed reads, serialized writes, and lifecycle events for the session
// manager. One Link exists per side of the collaboration.
package endpoint

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/codesync-ide/collab/internal/protocol"
	"github.com/codesync-ide/collab/internal/util"
)

// Tuning constants.
const (
	readBufferSize  = 32 * 1024 // per-read chunk from the socket
	sendBufferSize  = 64        // outgoing message channel capacity
	eventBufferSize = 64        // event channel capacity

	// DialTimeout bounds a client connection attempt.
	DialTimeout = 5 * time.Second
)

// EventKind discriminates Link events.
type EventKind uint8

const (
	// EventMessage carries one decoded protocol message.
	EventMessage EventKind = iota + 1
	// EventClosed is the final event on a link; Err holds the close cause
	// (nil for a local Close/Abort or a graceful peer shutdown).
	EventClosed
)

// Event is one item on a Link's event channel. Events arrive in wire order;
// EventClosed is emitted exactly once, after which the channel is closed.
type Event struct {
	Kind EventKind
	Msg  protocol.Message
	Err  error
}

// Link wraps one live socket. It starts a read loop (socket → Decoder →
// events, in arrival order) and a single-writer send loop (outbox → socket)
// at construction and shuts both down on Close.
type Link struct {
	conn net.Conn
	id   uint32

	outbox chan protocol.Message
	events chan Event
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	cause     error
}

// New wraps an established connection and starts its I/O goroutines.
func New(conn net.Conn) *Link {
	l := &Link{
		conn:   conn,
		id:     util.LinkIDFromConn(conn),
		outbox: make(chan protocol.Message, sendBufferSize),
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
	}
	go l.readLoop()
	go l.sendLoop()
	return l
}

// Dial connects to a host at addr with a bounded wait and returns the
// ready Link.
func Dial(addr string) (*Link, error) {
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// ID returns the link's log-correlation hash.
func (l *Link) ID() uint32 { return l.id }

// RemoteAddr returns the peer's address string.
func (l *Link) RemoteAddr() string { return l.conn.RemoteAddr().String() }

// Events returns the inbound event channel. It is closed after the final
// EventClosed has been delivered.
func (l *Link) Events() <-chan Event { return l.events }

// Send enqueues a message for transmission. Fire-and-forget: after the
// link is down the message is dropped with a debug log.
func (l *Link) Send(msg protocol.Message) {
	select {
	case l.outbox <- msg:
	case <-l.done:
		util.LogDebug("[%08x] dropping %s, link already closed", l.id, msg.Type)
	}
}

// Close shuts the link down gracefully. Idempotent; the session observes
// exactly one EventClosed regardless of how many times it is called.
func (l *Link) Close() {
	l.closeWithCause(nil)
}

// Abort severs the link immediately, discarding unsent data so the peer
// sees a reset rather than a clean shutdown. Used when a new incoming
// connection preempts this one.
func (l *Link) Abort() {
	if tcp, ok := l.conn.(*net.TCPConn); ok {
		tcp.SetLinger(0)
	}
	l.closeWithCause(nil)
}

func (l *Link) closeWithCause(err error) {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.cause = err
		l.mu.Unlock()
		close(l.done)
		l.conn.Close()
	})
}

func (l *Link) loadCause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cause
}

// ---------------------------------------------------------------------------
// I/O loops
// ---------------------------------------------------------------------------

// readLoop drains the socket until it fails or the link is closed, then
// delivers the single EventClosed and closes the event channel.
func (l *Link) readLoop() {
	cause := l.readFrames()
	l.closeWithCause(cause)
	l.events <- Event{Kind: EventClosed, Err: l.loadCause()}
	close(l.events)
}

func (l *Link) readFrames() error {
	var dec protocol.Decoder
	buf := make([]byte, readBufferSize)

	for {
		n, err := l.conn.Read(buf)
		if n > 0 {
			util.Stats.AddRecv(n)
			dec.Feed(buf[:n])
			for {
				msg, derr := dec.Next()
				if derr != nil {
					var fe *protocol.FramingError
					if errors.As(derr, &fe) && fe.Recoverable {
						util.LogWarning("[%08x] discarding corrupt frame: %v", l.id, derr)
						continue
					}
					// Stream offset lost; the connection cannot recover.
					util.LogError("[%08x] %v, dropping connection", l.id, derr)
					return derr
				}
				if msg == nil {
					break
				}
				l.events <- Event{Kind: EventMessage, Msg: *msg}
			}
		}
		if err != nil {
			select {
			case <-l.done:
				return nil // local shutdown unblocked the read
			default:
			}
			if errors.Is(err, io.EOF) {
				return nil // peer closed cleanly
			}
			return err
		}
	}
}

// sendLoop is the single-writer goroutine; it serializes all socket writes.
// A write failure is treated as peer loss and tears the link down.
func (l *Link) sendLoop() {
	for {
		select {
		case msg := <-l.outbox:
			frame := protocol.Encode(msg)
			if _, err := l.conn.Write(frame); err != nil {
				select {
				case <-l.done:
				default:
					util.LogWarning("[%08x] write failed (%s): %v", l.id, msg.Type, err)
				}
				l.closeWithCause(err)
				return
			}
			util.Stats.AddSent(len(frame))

		case <-l.done:
			return
		}
	}
}
