package clamd

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultChunkSize is the INSTREAM chunk size used when none is configured.
	DefaultChunkSize = 4096
	// MaxChunkSize caps the chunk size. The wire format allows up to 2^32-1
	// bytes but clamd rejects streams above its StreamMaxLength long before that.
	MaxChunkSize = 64 << 20

	defaultDialTimeout = 10 * time.Second
)

// Config holds the client settings. Zero values mean "use the default".
type Config struct {
	// Address is the clamd TCP endpoint as host:port.
	Address string `toml:"address"`
	// ChunkSize is the maximum payload per INSTREAM chunk.
	ChunkSize int `toml:"chunk_size"`
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration `toml:"dial_timeout"`
	// ReadTimeout bounds the wait for the daemon's response. Zero disables it.
	ReadTimeout time.Duration `toml:"read_timeout"`
	// WriteTimeout bounds each write to the daemon. Zero disables it.
	WriteTimeout time.Duration `toml:"write_timeout"`
}

// DefaultConfig returns the settings used by NewClient when no options are given.
func DefaultConfig() Config {
	return Config{
		ChunkSize:   DefaultChunkSize,
		DialTimeout: defaultDialTimeout,
	}
}

// LoadConfig reads a TOML config file, applies defaults and validates it.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, NewValidationError(fmt.Sprintf("config parse failed (%s)", path), err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
	return c
}

// Validate reports the first invalid setting. An empty Address is allowed so
// that the address can be supplied separately to NewClient.
func (c Config) Validate() error {
	if addr := strings.TrimSpace(c.Address); addr != "" {
		if err := validateAddress(addr); err != nil {
			return err
		}
	}
	if c.ChunkSize < 0 || c.ChunkSize > MaxChunkSize {
		return NewValidationError(fmt.Sprintf("chunk size must be between 1 and %d, got %d", MaxChunkSize, c.ChunkSize), nil)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return NewValidationError("timeouts must not be negative", nil)
	}
	return nil
}

func validateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return NewValidationError(fmt.Sprintf("invalid address: %s", addr), err)
	}
	if host == "" || port == "" {
		return NewValidationError(fmt.Sprintf("address must include host and port: %s", addr), nil)
	}
	return nil
}
