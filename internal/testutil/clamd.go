//go:build integration

package testutil

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	clamdImage = "clamav/clamav:stable"
	clamdPort  = "3310/tcp"
	// EnvClamdAddr points integration tests at an already running daemon.
	EnvClamdAddr = "CLAMD_ADDR"
)

// ClamdContainer wraps a clamd container for testing.
type ClamdContainer struct {
	container testcontainers.Container
	addr      string
}

// NewClamdContainer starts clamd and waits until it accepts connections.
// clamd only listens once its signatures are loaded, so the first start is
// slow.
func NewClamdContainer(ctx context.Context) (*ClamdContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        clamdImage,
		ExposedPorts: []string{clamdPort},
		WaitingFor:   wait.ForListeningPort(clamdPort).WithStartupTimeout(5 * time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start clamd container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, clamdPort)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &ClamdContainer{
		container: container,
		addr:      net.JoinHostPort(host, port.Port()),
	}, nil
}

// Addr returns the daemon's host:port.
func (c *ClamdContainer) Addr() string {
	return c.addr
}

// Terminate stops and removes the container.
func (c *ClamdContainer) Terminate(ctx context.Context) error {
	if c.container != nil {
		if err := c.container.Terminate(ctx); err != nil {
			return fmt.Errorf("failed to terminate container: %w", err)
		}
	}
	return nil
}
