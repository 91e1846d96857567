package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete sensor configuration
type Config struct {
	InstanceID       string          `yaml:"instance_id"`
	ShutdownTimeoutS int             `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	StatsIntervalS   int             `yaml:"stats_interval_s"`   // Stats log/emit period in seconds (default: 10)
	WarmupDurationS  int             `yaml:"warmup_duration_s"`  // Event-rate warm-up, 0 disables it
	Streams          []StreamConfig  `yaml:"streams"`
	MQTT             *MQTTConfig     `yaml:"mqtt,omitempty"`
	Journal          *JournalConfig  `yaml:"journal,omitempty"`
}

// StreamConfig contains one event stream
type StreamConfig struct {
	Name           string          `yaml:"name"`
	Source         SourceConfig    `yaml:"source"`
	Layout         string          `yaml:"layout"`         // dvs128, dvs128-raw, dvs128-skin, atis20, atis24
	TimestampBits  uint8           `yaml:"timestamp_bits"` // hardware counter width (default: 14)
	BufferBytes    int             `yaml:"buffer_bytes"`   // per ring half (default: 1 MiB)
	ChunkBytes     int             `yaml:"chunk_bytes"`    // per source read (default: 64 KiB)
	PollIntervalMS int             `yaml:"poll_interval_ms"`
	Supplier       bool            `yaml:"supplier"` // distribute batches to subscribers
	Windows        []WindowConfig  `yaml:"windows"`
	Surfaces       []SurfaceConfig `yaml:"surfaces"`
}

// SourceConfig selects where the raw words come from
type SourceConfig struct {
	Type         string `yaml:"type"`    // file, tcp, websocket, gstreamer
	Path         string `yaml:"path"`    // file (".zst" is decompressed)
	Address      string `yaml:"address"` // tcp host:port
	URL          string `yaml:"url"`     // websocket ws:// or wss://
	Launch       string `yaml:"launch"`  // gstreamer launch line with "appsink name=sink"
	MaxRetries   int    `yaml:"max_retries"`
	RetryDelayMS int    `yaml:"retry_delay_ms"`
}

// WindowConfig defines an event window: exactly one of count or duration
type WindowConfig struct {
	Name     string `yaml:"name"`
	Channel  uint8  `yaml:"channel"` // 0 or 1 on stereo rigs
	Count    int    `yaml:"count"`
	Duration uint32 `yaml:"duration"` // ticks
}

// SurfaceConfig defines a per-pixel surface
type SurfaceConfig struct {
	Name          string  `yaml:"name"`
	Channel       uint8   `yaml:"channel"`
	Policy        string  `yaml:"policy"` // exponential, time-ordered, spatial-decay, speed-invariant
	Width         int     `yaml:"width"`  // 0 = layout resolution
	Height        int     `yaml:"height"`
	KernelSize    int     `yaml:"kernel_size"`
	DecayConstant float64 `yaml:"decay_constant"`
	Polarity      string  `yaml:"polarity"` // ignored, signed
	Increment     float64 `yaml:"increment"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker   string     `yaml:"broker"`
	ClientID string     `yaml:"client_id"`
	Topics   MQTTTopics `yaml:"topics"`
	QoS      byte       `yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Stats  string `yaml:"stats"`
	Health string `yaml:"health"`
}

// JournalConfig enables the SQLite session journal
type JournalConfig struct {
	Path string `yaml:"path"`
}

// ShutdownTimeout returns the configured graceful shutdown timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// StatsInterval returns the configured stats period.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalS) * time.Second
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
