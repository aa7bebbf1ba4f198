package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevHatRo/clamd-instream-go/internal/logging"
	"github.com/DevHatRo/clamd-instream-go/internal/testutil"
)

// TestMain points config discovery at an empty directory so a config file
// on the host cannot leak into the tests.
func TestMain(m *testing.M) {
	logProfile = logging.ProfileTest

	dir, err := os.MkdirTemp("", "clamd-instream-xdg")
	if err != nil {
		panic(err)
	}
	_ = os.Setenv("XDG_CONFIG_HOME", dir)
	_ = os.Setenv("XDG_CONFIG_DIRS", dir)
	xdg.Reload()

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func useConfigHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_CONFIG_HOME", home)
	xdg.Reload()
	return home
}

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv(logging.EnvLogLevel, "error")
	t.Setenv(logging.EnvLogNoColor, "")
	t.Setenv(logging.EnvLogJSON, "")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRunScansFiles(t *testing.T) {
	srv := testutil.NewMockServer(t, nil)
	dir := t.TempDir()

	eicar := filepath.Join(dir, "eicar.com")
	clean := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(eicar, []byte(testutil.EICAR), 0o600))
	require.NoError(t, os.WriteFile(clean, []byte("hello world"), 0o600))

	stdout, _, err := runCLI(t, "", "-addr", srv.Addr(), "-chunk-size", "16", eicar, clean)
	require.NoError(t, err)
	assert.Contains(t, stdout, eicar+": stream: Win.Test.EICAR_HDB-1 FOUND\n")
	assert.Contains(t, stdout, clean+": stream: OK\n")
	assert.Len(t, srv.Sessions(), 2)
}

func TestRunScansStdin(t *testing.T) {
	srv := testutil.NewMockServer(t, nil)

	stdout, _, err := runCLI(t, "hello world", "-addr", srv.Addr())
	require.NoError(t, err)
	assert.Equal(t, "stdin: stream: OK\n", stdout)

	sess := srv.LastSession()
	require.NotNil(t, sess)
	assert.Equal(t, []byte("hello world"), sess.Payload())
}

func TestRunReportsEveryFailure(t *testing.T) {
	srv := testutil.NewMockServer(t, nil)
	dir := t.TempDir()
	clean := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(clean, []byte("hello world"), 0o600))
	missing := filepath.Join(dir, "missing.txt")

	stdout, _, err := runCLI(t, "", "-addr", srv.Addr(), missing, clean)
	require.Error(t, err)
	assert.Contains(t, err.Error(), missing)
	assert.Contains(t, stdout, clean+": stream: OK\n")
}

func TestRunPingAndVersion(t *testing.T) {
	srv := testutil.NewMockServer(t, nil)

	stdout, _, err := runCLI(t, "", "-addr", srv.Addr(), "-ping")
	require.NoError(t, err)
	assert.Equal(t, "PONG\n", stdout)

	stdout, _, err = runCLI(t, "", "-addr", srv.Addr(), "-version")
	require.NoError(t, err)
	assert.Equal(t, "engine=1.4.1 signatures=27432 date=\"Mon Oct 19 08:17:05 2026\"\n", stdout)
}

func TestRunUsesConfigFile(t *testing.T) {
	srv := testutil.NewMockServer(t, nil)
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "address = \"" + srv.Addr() + "\"\nchunk_size = 4\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, _, err := runCLI(t, "hello world", "-config", path)
	require.NoError(t, err)

	sess := srv.LastSession()
	require.NotNil(t, sess)
	assert.Len(t, sess.Chunks, 3)
}

func TestRunDiscoversConfigFile(t *testing.T) {
	srv := testutil.NewMockServer(t, nil)
	home := useConfigHome(t)
	dir := filepath.Join(home, "clamd-instream")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	body := "address = \"" + srv.Addr() + "\"\nchunk_size = 2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0o600))

	stdout, _, err := runCLI(t, "hello world")
	require.NoError(t, err)
	assert.Equal(t, "stdin: stream: OK\n", stdout)

	sess := srv.LastSession()
	require.NotNil(t, sess)
	assert.Len(t, sess.Chunks, 6)
}

func TestRunLogsContentType(t *testing.T) {
	srv := testutil.NewMockServer(t, nil)
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n"), 0o600))

	_, stderr, err := runCLI(t, "", "-addr", srv.Addr(), "-log-level", "info", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "mime=application/pdf")
	assert.Contains(t, stderr, "verdict=")
}

func TestRunRejectsBadInput(t *testing.T) {
	_, _, err := runCLI(t, "", "-log-level", "loud", "-addr", "localhost:3310")
	assert.Error(t, err)

	_, _, err = runCLI(t, "", "-addr", "no-port")
	assert.Error(t, err)

	_, _, err = runCLI(t, "", "-unknown-flag")
	assert.Error(t, err)
}
