package server

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alxayo/go-rtmpcast/internal/errors"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
)

// Duration wraps time.Duration with YAML support for "60s"-style strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AuthFunc is the pluggable authorization hook. action is "publish" or
// "play"; a non-nil error rejects the operation and is reported to the peer
// as an error-level status.
type AuthFunc func(app, stream, action string) error

// Config holds the server configuration knobs.
type Config struct {
	Host                string   `yaml:"host"`
	Port                int      `yaml:"port"`
	MaxConnections      int      `yaml:"max_connections"`
	MaxConnectionsPerIP int      `yaml:"max_connections_per_ip"`
	ChunkSize           uint32   `yaml:"chunk_size"`
	WindowAckSize       uint32   `yaml:"window_ack_size"`
	PeerBandwidth       uint32   `yaml:"peer_bandwidth"`
	PingInterval        Duration `yaml:"ping_interval"`
	IdleTimeout         Duration `yaml:"idle_timeout"`
	GopCacheSize        int      `yaml:"gop_cache_size"`
	GopCacheEnabled     bool     `yaml:"gop_cache_enabled"`
	AllowPublish        bool     `yaml:"allow_publish"`
	AllowPlay           bool     `yaml:"allow_play"`

	// Auth is the optional authorization hook; never loaded from YAML.
	Auth AuthFunc `yaml:"-"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Host:                "0.0.0.0",
		Port:                1935,
		MaxConnections:      1000,
		MaxConnectionsPerIP: 10,
		ChunkSize:           4096,
		WindowAckSize:       2_500_000,
		PeerBandwidth:       2_500_000,
		PingInterval:        Duration(60 * time.Second),
		IdleTimeout:         Duration(5 * time.Minute),
		GopCacheSize:        10,
		GopCacheEnabled:     true,
		AllowPublish:        true,
		AllowPlay:           true,
	}
}

// LoadConfig reads a YAML file over the defaults. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.NewConfigError("file", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.NewConfigError("yaml", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration ranges; failures prevent bind.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.NewConfigError("port", fmt.Errorf("must be within (0, 65535], got %d", c.Port))
	}
	if c.MaxConnections <= 0 {
		return errors.NewConfigError("max_connections", fmt.Errorf("must be > 0, got %d", c.MaxConnections))
	}
	if c.MaxConnectionsPerIP <= 0 {
		return errors.NewConfigError("max_connections_per_ip", fmt.Errorf("must be > 0, got %d", c.MaxConnectionsPerIP))
	}
	if c.ChunkSize < chunk.MinChunkSize || c.ChunkSize > chunk.MaxChunkSize {
		return errors.NewConfigError("chunk_size", fmt.Errorf("must be within [%d, %d], got %d", chunk.MinChunkSize, chunk.MaxChunkSize, c.ChunkSize))
	}
	if c.GopCacheSize <= 0 {
		return errors.NewConfigError("gop_cache_size", fmt.Errorf("must be > 0, got %d", c.GopCacheSize))
	}
	return nil
}

// ListenAddr composes the bind address.
func (c *Config) ListenAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }
