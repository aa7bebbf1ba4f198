// Package testutil provides test helpers for the clamd client.
package testutil

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/DevHatRo/clamd-instream-go/internal/chunk"
)

// EICAR is the standard antivirus test string.
const EICAR = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

// Canned clamd replies.
const (
	CleanResponse    = "stream: OK\x00"
	InfectedResponse = "stream: Win.Test.EICAR_HDB-1 FOUND\x00"
	PongResponse     = "PONG\x00"
	VersionResponse  = "ClamAV 1.4.1/27432/Mon Oct 19 08:17:05 2026\x00"
)

// Session records what the mock daemon received on one connection.
type Session struct {
	// Command is the command as sent, including the z prefix and NUL.
	Command string
	// Chunks holds the INSTREAM payloads in arrival order.
	Chunks [][]byte
	// Raw is every byte read from the client.
	Raw []byte
	// Err is the decode error, if the client sent a malformed stream.
	Err error
}

// Payload joins all chunk payloads.
func (s *Session) Payload() []byte {
	return bytes.Join(s.Chunks, nil)
}

// Handler returns the raw reply for a session. A nil reply closes the
// connection without answering.
type Handler func(s *Session) []byte

// DefaultHandler answers like a real daemon: EICAR is reported as infected,
// everything else as clean.
func DefaultHandler(s *Session) []byte {
	switch s.Command {
	case "zPING\x00":
		return []byte(PongResponse)
	case "zVERSION\x00":
		return []byte(VersionResponse)
	case "zINSTREAM\x00":
		if bytes.Contains(s.Payload(), []byte(EICAR)) {
			return []byte(InfectedResponse)
		}
		return []byte(CleanResponse)
	default:
		return []byte("UNKNOWN COMMAND\x00")
	}
}

// ReplyHandler always answers with reply.
func ReplyHandler(reply string) Handler {
	return func(*Session) []byte { return []byte(reply) }
}

// Serve reads one command from conn, decodes the INSTREAM body if there is
// one, records the session and writes the handler's reply.
func Serve(conn net.Conn, handler Handler) *Session {
	defer conn.Close()

	var raw bytes.Buffer
	br := bufio.NewReader(io.TeeReader(conn, &raw))
	s := &Session{}

	cmd, err := br.ReadString(0)
	s.Command = cmd
	if err != nil {
		s.Err = err
		s.Raw = raw.Bytes()
		return s
	}
	if strings.HasPrefix(cmd, "zINSTREAM") || strings.HasPrefix(cmd, "nINSTREAM") {
		s.Chunks, s.Err = chunk.NewReader(br, 0).ReadAll()
	}
	s.Raw = raw.Bytes()

	if reply := handler(s); reply != nil {
		_, _ = conn.Write(reply)
	}
	return s
}

// MockServer is a TCP server that speaks enough of the clamd protocol to
// exercise the client.
type MockServer struct {
	ln      net.Listener
	handler Handler

	mu       sync.Mutex
	sessions []*Session
	wg       sync.WaitGroup
}

// NewMockServer starts a mock daemon on a loopback port. It is closed when
// the test ends.
func NewMockServer(t testing.TB, handler Handler) *MockServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	if handler == nil {
		handler = DefaultHandler
	}

	s := &MockServer{ln: ln, handler: handler}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// Addr returns the host:port the server listens on.
func (s *MockServer) Addr() string {
	return s.ln.Addr().String()
}

// Sessions returns the sessions served so far.
func (s *MockServer) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Session(nil), s.sessions...)
}

// LastSession returns the most recent session, or nil.
func (s *MockServer) LastSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) == 0 {
		return nil
	}
	return s.sessions[len(s.sessions)-1]
}

// Close stops accepting and waits for in-flight sessions.
func (s *MockServer) Close() {
	_ = s.ln.Close()
	s.wg.Wait()
}

func (s *MockServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			// Record before the reply goes out so a returning client always
			// finds its session.
			Serve(conn, func(sess *Session) []byte {
				s.mu.Lock()
				s.sessions = append(s.sessions, sess)
				s.mu.Unlock()
				return s.handler(sess)
			})
		}()
	}
}

// UnusedAddr returns a loopback address that nothing listens on.
func UnusedAddr(t testing.TB) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}
