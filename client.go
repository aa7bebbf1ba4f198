package clamd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/DevHatRo/clamd-instream-go/internal/chunk"
)

// maxEmptyReads bounds consecutive (0, nil) reads from a scan source.
const maxEmptyReads = 100

// Client talks to a single clamd daemon over TCP.
// It holds no connections between calls and is safe for concurrent use from
// multiple goroutines; every call dials its own connection.
type Client struct {
	address string
	cfg     Config
	dial    DialFunc
	logger  zerolog.Logger
}

// NewClient creates a client for the clamd daemon at address ("host:port").
func NewClient(address string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		address: address,
		cfg:     DefaultConfig(),
		logger:  zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.address = strings.TrimSpace(c.address)
	if c.address == "" {
		return nil, NewValidationError("address is required", nil)
	}
	if err := validateAddress(c.address); err != nil {
		return nil, err
	}
	c.cfg.Address = c.address
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	if c.dial == nil {
		d := &net.Dialer{}
		c.dial = d.DialContext
	}

	return c, nil
}

// Scan is a convenience wrapper that creates a client and scans src once.
func Scan(ctx context.Context, address string, src io.Reader, opts ...ClientOption) (string, error) {
	c, err := NewClient(address, opts...)
	if err != nil {
		return "", err
	}
	return c.Scan(ctx, src)
}

// Scan streams src to the daemon with the INSTREAM command and returns the
// daemon's reply, for example "stream: OK\x00".
//
// The reply keeps its trailing NUL byte. src is read until io.EOF and is
// never closed. Each chunk is filled to the configured chunk size before it
// is sent, so only the last chunk can be short.
func (c *Client) Scan(ctx context.Context, src io.Reader) (string, error) {
	if src == nil {
		return "", NewValidationError("source is required", nil)
	}

	c.logger.Debug().
		Str("addr", c.address).
		Int("chunk_size", c.cfg.ChunkSize).
		Msg("instream scan started")

	start := time.Now()
	var chunks int
	var sent int64

	resp, err := c.roundTrip(ctx, cmdInstream, func(w io.Writer) error {
		cw, err := chunk.NewWriter(w, c.cfg.ChunkSize)
		if err != nil {
			return NewValidationError("invalid chunk size", err)
		}
		defer func() {
			chunks, sent = cw.Chunks(), cw.Bytes()
		}()
		return c.stream(ctx, cw, src)
	})

	log := c.logger.With().
		Str("addr", c.address).
		Int("chunk_size", c.cfg.ChunkSize).
		Int("chunks", chunks).
		Int64("bytes", sent).
		Dur("elapsed", time.Since(start)).
		Logger()
	if err != nil {
		log.Debug().Err(err).Msg("instream scan failed")
		return "", err
	}
	log.Debug().Str("response", strings.TrimRight(resp, "\x00")).Msg("instream scan finished")
	return resp, nil
}

func (c *Client) stream(ctx context.Context, cw *chunk.Writer, src io.Reader) error {
	buf := make([]byte, c.cfg.ChunkSize)
	for {
		n, eof, err := fill(ctx, src, buf)
		if err != nil {
			return err
		}
		if n > 0 {
			if _, err := cw.Write(buf[:n]); err != nil {
				return opError(ctx, NewProtocolWriteError, "failed to write chunk", err)
			}
		}
		if eof {
			break
		}
	}

	if err := cw.Close(); err != nil {
		return opError(ctx, NewProtocolWriteError, "failed to write end of stream", err)
	}
	return nil
}

// fill reads from src until buf is full or src reports io.EOF. A source
// that keeps returning no data and no error fails with io.ErrNoProgress.
func fill(ctx context.Context, src io.Reader, buf []byte) (n int, eof bool, err error) {
	empty := 0
	for n < len(buf) {
		if err := ctx.Err(); err != nil {
			return n, false, opError(ctx, NewIOError, "failed to read source", err)
		}
		m, err := src.Read(buf[n:])
		n += m
		switch {
		case errors.Is(err, io.EOF):
			return n, true, nil
		case err != nil:
			return n, false, NewIOError("failed to read source", err)
		case m == 0:
			empty++
			if empty >= maxEmptyReads {
				return n, false, NewIOError("failed to read source", io.ErrNoProgress)
			}
		default:
			empty = 0
		}
	}
	return n, false, nil
}

// ScanFilePath opens the file at path, scans it with INSTREAM and closes it.
func (c *Client) ScanFilePath(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", NewValidationError(fmt.Sprintf("failed to open file: %s", path), err)
	}
	defer f.Close()

	return c.Scan(ctx, f)
}

// Ping checks that the daemon is up. A healthy daemon replies "PONG\x00".
func (c *Client) Ping(ctx context.Context) (string, error) {
	return c.roundTrip(ctx, cmdPing, nil)
}

// Version returns the daemon's engine and signature database versions.
func (c *Client) Version(ctx context.Context) (*VersionResult, error) {
	resp, err := c.roundTrip(ctx, cmdVersion, nil)
	if err != nil {
		return nil, err
	}
	return ParseVersion(resp)
}
