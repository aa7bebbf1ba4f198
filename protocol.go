package clamd

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// Commands use the "z" prefix so that clamd terminates every reply with NUL.
const (
	cmdInstream = "zINSTREAM\x00"
	cmdPing     = "zPING\x00"
	cmdVersion  = "zVERSION\x00"

	responseDelim = 0x00

	// maxResponseLen caps a reply. clamd replies are a single short line.
	maxResponseLen = 8 << 10
)

var errResponseTooLong = errors.New("response exceeds maximum length")

// aLongTimeAgo is a deadline that has already passed, used to unblock
// pending I/O when the call's context is done.
var aLongTimeAgo = time.Unix(1, 0)

// callConn scopes one connection to one call. Every Read and Write arms a
// deadline from the configured timeout and the context deadline, whichever
// is earlier.
type callConn struct {
	net.Conn
	ctx          context.Context
	readTimeout  time.Duration
	writeTimeout time.Duration

	mu       sync.Mutex
	canceled bool
}

func (cc *callConn) Read(p []byte) (int, error) {
	if err := cc.arm(cc.Conn.SetReadDeadline, cc.readTimeout); err != nil {
		return 0, err
	}
	return cc.Conn.Read(p)
}

func (cc *callConn) Write(p []byte) (int, error) {
	if err := cc.arm(cc.Conn.SetWriteDeadline, cc.writeTimeout); err != nil {
		return 0, err
	}
	return cc.Conn.Write(p)
}

func (cc *callConn) arm(set func(time.Time) error, d time.Duration) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.canceled {
		return cc.ctx.Err()
	}
	var t time.Time
	if d > 0 {
		t = time.Now().Add(d)
	}
	if dl, ok := cc.ctx.Deadline(); ok && (t.IsZero() || dl.Before(t)) {
		t = dl
	}
	return set(t)
}

// interrupt is run once the context is done. It fails pending and future I/O.
func (cc *callConn) interrupt() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.canceled = true
	_ = cc.Conn.SetDeadline(aLongTimeAgo)
}

// roundTrip opens a connection, sends cmd, lets body stream any payload, and
// reads the NUL-terminated reply. The connection is closed on every path.
func (c *Client) roundTrip(ctx context.Context, cmd string, body func(w io.Writer) error) (string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	raw, err := c.dial(dialCtx, "tcp", c.address)
	cancel()
	if err != nil {
		return "", classifyDialError(ctx, err)
	}
	defer raw.Close()

	conn := &callConn{
		Conn:         raw,
		ctx:          ctx,
		readTimeout:  c.cfg.ReadTimeout,
		writeTimeout: c.cfg.WriteTimeout,
	}
	stop := context.AfterFunc(ctx, conn.interrupt)
	defer stop()

	if _, err := io.WriteString(conn, cmd); err != nil {
		return "", opError(ctx, NewProtocolWriteError, "failed to send command", err)
	}

	if body != nil {
		if err := body(conn); err != nil {
			return "", err
		}
	}

	return readResponse(ctx, conn)
}

// readResponse reads up to and including the first NUL byte. The NUL is kept
// in the returned string. Replies longer than maxResponseLen are rejected.
func readResponse(ctx context.Context, r io.Reader) (string, error) {
	lr := &io.LimitedReader{R: r, N: maxResponseLen}
	resp, err := bufio.NewReader(lr).ReadBytes(responseDelim)
	if err == nil {
		return string(resp), nil
	}
	if errors.Is(err, io.EOF) {
		if lr.N == 0 {
			return "", NewProtocolReadError("no end of response within limit", errResponseTooLong)
		}
		return "", NewProtocolReadError("connection closed before end of response", err)
	}
	return "", opError(ctx, NewIOError, "failed to read response", err)
}

// opError classifies a failure on an established connection. Context
// cancellation and deadline expiry take precedence over the phase.
func opError(ctx context.Context, build func(string, error) *Error, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if !errors.Is(err, ctxErr) {
			err = errors.Join(ctxErr, err)
		}
		return NewTimeoutError(msg, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(msg, err)
	}
	return build(msg, err)
}
