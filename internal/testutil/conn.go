package testutil

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
)

// TrackedConn counts Close calls and can inject read failures.
type TrackedConn struct {
	net.Conn
	// ReadErr, when set, is returned by every Read.
	ReadErr error

	closes atomic.Int32
}

// Read returns ReadErr if set, otherwise reads from the wrapped conn.
func (c *TrackedConn) Read(p []byte) (int, error) {
	if c.ReadErr != nil {
		return 0, c.ReadErr
	}
	return c.Conn.Read(p)
}

// Close records the call and closes the wrapped conn.
func (c *TrackedConn) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

// Closes reports how many times Close was called.
func (c *TrackedConn) Closes() int {
	return int(c.closes.Load())
}

// PipeDialer hands out in-memory connections whose server side is driven by
// Serve. Its DialContext method can be used as the client's dialer.
type PipeDialer struct {
	// Serve runs the daemon side of each connection in its own goroutine.
	Serve func(conn net.Conn)
	// ReadErr is injected into every client-side Read.
	ReadErr error
	// DialErr, when set, fails every dial.
	DialErr error

	mu    sync.Mutex
	dials int
	conns []*TrackedConn
}

// DialContext returns the client side of a new pipe.
func (d *PipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.DialErr != nil {
		return nil, d.DialErr
	}

	client, server := net.Pipe()
	go d.Serve(server)

	tc := &TrackedConn{Conn: client, ReadErr: d.ReadErr}
	d.conns = append(d.conns, tc)
	return tc, nil
}

// Dials reports how many times DialContext was called.
func (d *PipeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Conns returns every connection handed out so far.
func (d *PipeDialer) Conns() []*TrackedConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*TrackedConn(nil), d.conns...)
}

// CloseAfterCommand reads the command and hangs up, so that the client's
// next write fails.
func CloseAfterCommand(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, len("zINSTREAM\x00"))
	_, _ = conn.Read(buf)
}

// ServeWith returns a Serve function that answers with handler.
func ServeWith(handler Handler) func(net.Conn) {
	return func(conn net.Conn) {
		Serve(conn, handler)
	}
}

// Hang reads everything the client sends and never answers.
func Hang(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 4096)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}
