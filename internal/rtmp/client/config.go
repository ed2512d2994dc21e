package client

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alxayo/go-rtmpcast/internal/errors"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
)

// Duration wraps time.Duration with YAML support for "5s"-style strings.
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

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the client configuration knobs.
type Config struct {
	ConnectTimeout       Duration `yaml:"connect_timeout"`
	ReadTimeout          Duration `yaml:"read_timeout"`
	WriteTimeout         Duration `yaml:"write_timeout"`
	ChunkSize            uint32   `yaml:"chunk_size"`
	WindowAckSize        uint32   `yaml:"window_ack_size"`
	AutoReconnect        bool     `yaml:"auto_reconnect"`
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts"`
	ReconnectDelay       Duration `yaml:"reconnect_delay"`
	EnableAudio          bool     `yaml:"enable_audio"`
	EnableVideo          bool     `yaml:"enable_video"`
	BufferTime           uint32   `yaml:"buffer_time"` // milliseconds
}

// DefaultConfig returns the baseline client configuration.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:       Duration(10 * time.Second),
		ReadTimeout:          Duration(30 * time.Second),
		WriteTimeout:         Duration(30 * time.Second),
		ChunkSize:            4096,
		WindowAckSize:        2_500_000,
		AutoReconnect:        false,
		MaxReconnectAttempts: 3,
		ReconnectDelay:       Duration(5 * time.Second),
		EnableAudio:          true,
		EnableVideo:          true,
		BufferTime:           1000,
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

// Validate checks the configuration ranges.
func (c *Config) Validate() error {
	if c.ChunkSize < chunk.MinChunkSize || c.ChunkSize > chunk.MaxChunkSize {
		return errors.NewConfigError("chunk_size", fmt.Errorf("must be within [%d, %d], got %d", chunk.MinChunkSize, chunk.MaxChunkSize, c.ChunkSize))
	}
	if c.MaxReconnectAttempts < 0 {
		return errors.NewConfigError("max_reconnect_attempts", fmt.Errorf("must be >= 0, got %d", c.MaxReconnectAttempts))
	}
	return nil
}
