package clamd

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// DialFunc opens a connection to the daemon. It has the signature of
// (*net.Dialer).DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithConfig replaces the client settings. Zero fields fall back to defaults,
// and a non-empty Address overrides the one passed to NewClient.
func WithConfig(cfg Config) ClientOption {
	return func(c *Client) {
		if cfg.Address != "" {
			c.address = cfg.Address
		}
		c.cfg = cfg.withDefaults()
	}
}

// WithChunkSize sets the maximum payload per INSTREAM chunk (default: 4096).
// Zero keeps the default; values outside (0, MaxChunkSize] make NewClient fail.
func WithChunkSize(size int) ClientOption {
	return func(c *Client) {
		if size != 0 {
			c.cfg.ChunkSize = size
		}
	}
}

// WithDialTimeout sets the connection timeout (default: 10s).
// Non-positive durations are ignored.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.cfg.DialTimeout = d
		}
	}
}

// WithReadTimeout bounds the wait for each response.
// Non-positive durations are ignored.
func WithReadTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.cfg.ReadTimeout = d
		}
	}
}

// WithWriteTimeout bounds each write to the daemon.
// Non-positive durations are ignored.
func WithWriteTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.cfg.WriteTimeout = d
		}
	}
}

// WithDialer replaces the function used to open connections.
// The dial timeout is still applied through the context.
func WithDialer(dial DialFunc) ClientOption {
	return func(c *Client) {
		if dial != nil {
			c.dial = dial
		}
	}
}

// WithLogger sets the logger used for per-call debug events (default: disabled).
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}
