//go:build integration

package clamd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevHatRo/clamd-instream-go/internal/testutil"
)

var integrationAddr string

// TestMain uses the daemon named by CLAMD_ADDR, or starts one container
// shared by every test in the package.
func TestMain(m *testing.M) {
	integrationAddr = os.Getenv(testutil.EnvClamdAddr)

	var container *testutil.ClamdContainer
	if integrationAddr == "" {
		c, err := testutil.NewClamdContainer(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "clamd container unavailable: %v\n", err)
		} else {
			container = c
			integrationAddr = c.Addr()
		}
	}

	code := m.Run()

	if container != nil {
		if err := container.Terminate(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "terminate clamd container: %v\n", err)
		}
	}
	os.Exit(code)
}

func integrationClient(t *testing.T, opts ...ClientOption) *Client {
	t.Helper()
	if integrationAddr == "" {
		t.Skip("no clamd daemon available")
	}
	opts = append([]ClientOption{WithReadTimeout(60 * time.Second)}, opts...)
	client, err := NewClient(integrationAddr, opts...)
	require.NoError(t, err)
	return client
}

func TestIntegrationPing(t *testing.T) {
	client := integrationClient(t)

	resp, err := client.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PONG\x00", resp)
}

func TestIntegrationVersion(t *testing.T) {
	client := integrationClient(t)

	v, err := client.Version(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, v.Engine)
	t.Logf("Engine: %s, Signatures: %d, Date: %s", v.Engine, v.SignatureVersion, v.SignatureDate)
}

func TestIntegrationScanEICAR(t *testing.T) {
	client := integrationClient(t)

	resp, err := client.Scan(context.Background(), strings.NewReader(testutil.EICAR))
	require.NoError(t, err)
	assert.Equal(t, "stream: Win.Test.EICAR_HDB-1 FOUND\x00", resp)
}

func TestIntegrationScanClean(t *testing.T) {
	client := integrationClient(t)

	resp, err := client.Scan(context.Background(), strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "stream: OK\x00", resp)
}

func TestIntegrationScanEmpty(t *testing.T) {
	client := integrationClient(t)

	resp, err := client.Scan(context.Background(), bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Equal(t, "stream: OK\x00", resp)
}

func TestIntegrationScanSmallChunks(t *testing.T) {
	client := integrationClient(t, WithChunkSize(7))

	resp, err := client.Scan(context.Background(), strings.NewReader(testutil.EICAR))
	require.NoError(t, err)
	assert.Equal(t, "stream: Win.Test.EICAR_HDB-1 FOUND\x00", resp)
}

func TestIntegrationScanLargeClean(t *testing.T) {
	client := integrationClient(t, WithChunkSize(64*1024))

	data := bytes.Repeat([]byte("clean content "), 200_000)
	resp, err := client.Scan(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "stream: OK\x00", resp)
}
