package clamd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
	assert.Zero(t, cfg.ReadTimeout)
	assert.Zero(t, cfg.WriteTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	t.Run("full file", func(t *testing.T) {
		path := writeConfig(t, `
address = "clamd.internal:3310"
chunk_size = 8192
dial_timeout = "3s"
read_timeout = "1m"
write_timeout = "500ms"
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, Config{
			Address:      "clamd.internal:3310",
			ChunkSize:    8192,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  time.Minute,
			WriteTimeout: 500 * time.Millisecond,
		}, cfg)
	})

	t.Run("defaults applied", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, `address = "localhost:3310"`))
		require.NoError(t, err)
		assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
		assert.Equal(t, defaultDialTimeout, cfg.DialTimeout)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("malformed toml", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, `address = `))
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("chunk size too large", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, `chunk_size = 4294967295`))
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("bad address", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, `address = "no-port"`))
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "empty address allowed", cfg: Config{ChunkSize: 1}},
		{name: "max chunk size", cfg: Config{ChunkSize: MaxChunkSize}},
		{name: "negative chunk size", cfg: Config{ChunkSize: -1}, wantErr: true},
		{name: "negative timeout", cfg: Config{ReadTimeout: -time.Second}, wantErr: true},
		{name: "ipv6 address", cfg: Config{Address: "[::1]:3310"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.True(t, IsValidationError(err), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
