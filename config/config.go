// Package config loads and validates the service configuration from YAML.
// Each section owns its Validate method; Load applies defaults and refuses
// files with unknown keys so typos fail fast instead of silently running
// with defaults.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/neurostream/neurostream/epochs"
	"github.com/neurostream/neurostream/errors"
	"github.com/neurostream/neurostream/player"
	"github.com/neurostream/neurostream/stream"
)

// Duration is a time.Duration that decodes YAML scalars like "250ms" as
// well as bare nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		dur, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(dur)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete service configuration
type Config struct {
	Log       LogConfig       `yaml:"log"`
	NATS      NATSConfig      `yaml:"nats"`
	HTTP      HTTPConfig      `yaml:"http"`
	Streams   []StreamConfig  `yaml:"streams"`
	Epochs    []EpochsConfig  `yaml:"epochs"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Player    *player.Config  `yaml:"player,omitempty"`
}

// LogConfig controls structured logging
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Validate implements the config contract
func (c *LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapConfiguration(
			fmt.Errorf("unknown log level %q", c.Level), "LogConfig", "Validate", "check level")
	}
	switch c.Format {
	case "", "text", "json":
	default:
		return errors.WrapConfiguration(
			fmt.Errorf("unknown log format %q", c.Format), "LogConfig", "Validate", "check format")
	}
	return nil
}

// NATSConfig describes the transport connection
type NATSConfig struct {
	URL           string   `yaml:"url"`
	Name          string   `yaml:"name"`
	Timeout       Duration `yaml:"timeout"`
	ReconnectWait Duration `yaml:"reconnect_wait"`
	MaxReconnects int      `yaml:"max_reconnects"`
}

// Validate implements the config contract
func (c *NATSConfig) Validate() error {
	if c.URL == "" {
		return errors.WrapConfiguration(
			fmt.Errorf("nats url must not be empty"), "NATSConfig", "Validate", "check url")
	}
	if c.Timeout < 0 || c.ReconnectWait < 0 {
		return errors.WrapConfiguration(
			fmt.Errorf("timeouts must not be negative"), "NATSConfig", "Validate", "check timeouts")
	}
	return nil
}

// HTTPConfig describes the operational endpoint serving /metrics and /healthz
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Validate implements the config contract
func (c *HTTPConfig) Validate() error {
	if c.Addr == "" {
		return errors.WrapConfiguration(
			fmt.Errorf("http addr must not be empty"), "HTTPConfig", "Validate", "check addr")
	}
	return nil
}

// StreamConfig describes one rolling window fed from the transport
type StreamConfig struct {
	Info    stream.Info `yaml:"info"`
	Subject string      `yaml:"subject"`
	BufSize float64     `yaml:"bufsize"` // seconds, or samples for irregular streams
}

// Validate implements the config contract
func (c *StreamConfig) Validate() error {
	if err := c.Info.Validate(); err != nil {
		return err
	}
	if c.BufSize <= 0 {
		return errors.WrapConfiguration(
			fmt.Errorf("stream %q bufsize must be positive", c.Info.Name),
			"StreamConfig", "Validate", "check bufsize")
	}
	return nil
}

// EpochsConfig binds epoch extraction to a configured stream
type EpochsConfig struct {
	Stream       string          `yaml:"stream"`
	EventStream  string          `yaml:"event_stream,omitempty"`
	Settings     epochs.Settings `yaml:"settings"`
	PollInterval Duration        `yaml:"poll_interval"`
}

// Validate checks the wiring; the settings themselves are validated against
// the live streams when the EpochsStream is constructed.
func (c *EpochsConfig) Validate() error {
	if c.Stream == "" {
		return errors.WrapConfiguration(
			fmt.Errorf("epochs entry must name a stream"), "EpochsConfig", "Validate", "check stream")
	}
	if c.PollInterval < 0 {
		return errors.WrapConfiguration(
			fmt.Errorf("poll interval must not be negative"), "EpochsConfig", "Validate", "check poll interval")
	}
	return nil
}

// WebSocketConfig describes the viewer tap
type WebSocketConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Addr         string   `yaml:"addr"`
	Path         string   `yaml:"path"`
	Stream       string   `yaml:"stream"` // epochs entry to serve
	PollInterval Duration `yaml:"poll_interval"`
}

// Validate implements the config contract
func (c *WebSocketConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return errors.WrapConfiguration(
			fmt.Errorf("websocket addr must not be empty when enabled"),
			"WebSocketConfig", "Validate", "check addr")
	}
	if c.Stream == "" {
		return errors.WrapConfiguration(
			fmt.Errorf("websocket tap must name an epochs stream"),
			"WebSocketConfig", "Validate", "check stream")
	}
	return nil
}

// Default returns the baseline configuration Load starts from
func Default() Config {
	return Config{
		Log:  LogConfig{Level: "info", Format: "text"},
		NATS: NATSConfig{URL: "nats://localhost:4222", Name: "neurostream"},
		HTTP: HTTPConfig{Addr: ":9090"},
	}
}

// Load reads, defaults and validates a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "Config", "Load", "read file")
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, errors.WrapConfiguration(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "Config", "Parse", "decode yaml")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section and cross-references stream names
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.NATS.Validate(); err != nil {
		return err
	}
	if err := c.HTTP.Validate(); err != nil {
		return err
	}

	streams := make(map[string]struct{}, len(c.Streams))
	for i := range c.Streams {
		if err := c.Streams[i].Validate(); err != nil {
			return err
		}
		name := c.Streams[i].Info.Name
		if _, dup := streams[name]; dup {
			return errors.WrapConfiguration(
				fmt.Errorf("duplicate stream %q", name), "Config", "Validate", "check streams")
		}
		streams[name] = struct{}{}
	}

	epochsStreams := make(map[string]struct{}, len(c.Epochs))
	for i := range c.Epochs {
		if err := c.Epochs[i].Validate(); err != nil {
			return err
		}
		if _, ok := streams[c.Epochs[i].Stream]; !ok {
			return errors.WrapConfiguration(
				fmt.Errorf("epochs entry references unknown stream %q", c.Epochs[i].Stream),
				"Config", "Validate", "check epochs")
		}
		if ev := c.Epochs[i].EventStream; ev != "" {
			if _, ok := streams[ev]; !ok {
				return errors.WrapConfiguration(
					fmt.Errorf("epochs entry references unknown event stream %q", ev),
					"Config", "Validate", "check epochs")
			}
		}
		if _, dup := epochsStreams[c.Epochs[i].Stream]; dup {
			return errors.WrapConfiguration(
				fmt.Errorf("duplicate epochs entry for stream %q", c.Epochs[i].Stream),
				"Config", "Validate", "check epochs")
		}
		epochsStreams[c.Epochs[i].Stream] = struct{}{}
	}

	if err := c.WebSocket.Validate(); err != nil {
		return err
	}
	if c.WebSocket.Enabled {
		if _, ok := epochsStreams[c.WebSocket.Stream]; !ok {
			return errors.WrapConfiguration(
				fmt.Errorf("websocket tap references stream %q with no epochs entry", c.WebSocket.Stream),
				"Config", "Validate", "check websocket")
		}
	}

	if c.Player != nil {
		if err := c.Player.Validate(); err != nil {
			return err
		}
	}
	return nil
}
