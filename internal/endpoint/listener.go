package endpoint

import (
	"fmt"
	"net"
	"sync"
)

// Listener accepts inbound peer connections on the host side. Each accepted
// conn is handed to the accept callback; the session decides whether it
// becomes the live link or preempts an existing one.
type Listener struct {
	ln        net.Listener
	closeOnce sync.Once
}

// Listen binds addr and starts the accept loop. The accept callback runs on
// the loop goroutine and must not block for long.
func Listen(addr string, accept func(net.Conn)) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	l := &Listener{ln: ln}
	go l.serve(accept)
	return l, nil
}

func (l *Listener) serve(accept func(net.Conn)) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			// Closed listener or a fatal accept error; either way the
			// session has moved on or will observe the silence.
			return
		}
		accept(conn)
	}
}

// Addr returns the bound address, useful when listening on port 0.
func (l *Listener) Addr() string { return l.ln.Addr().String() }

// Close stops accepting. Idempotent.
func (l *Listener) Close() {
	l.closeOnce.Do(func() { l.ln.Close() })
}
