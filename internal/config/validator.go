package config

import (
	"fmt"
	"regexp"

	"github.com/e7canasta/orion-event-sensor/modules/aer"
	"github.com/e7canasta/orion-event-sensor/modules/surface"
)

var (
	instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)
	streamNamePattern = regexp.MustCompile(`^[a-z0-9_\-]+$`)
)

// Validate checks the configuration and fills defaults
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}
	if cfg.StatsIntervalS <= 0 {
		cfg.StatsIntervalS = 10
	}
	if cfg.WarmupDurationS < 0 {
		return fmt.Errorf("warmup_duration_s must be >= 0")
	}

	if len(cfg.Streams) == 0 {
		return fmt.Errorf("at least one stream is required")
	}
	names := make(map[string]bool)
	for i := range cfg.Streams {
		s := &cfg.Streams[i]
		if !streamNamePattern.MatchString(s.Name) {
			return fmt.Errorf("streams[%d]: name %q must match pattern [a-z0-9_-]+", i, s.Name)
		}
		if names[s.Name] {
			return fmt.Errorf("stream '%s': duplicated name", s.Name)
		}
		names[s.Name] = true

		if err := ValidateStream(s); err != nil {
			return fmt.Errorf("stream '%s': %w", s.Name, err)
		}
	}

	if cfg.MQTT != nil {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is configured")
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = cfg.InstanceID
		}
		if cfg.MQTT.Topics.Stats == "" {
			cfg.MQTT.Topics.Stats = fmt.Sprintf("events/stats/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Health == "" {
			cfg.MQTT.Topics.Health = fmt.Sprintf("events/health/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	if cfg.Journal != nil && cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when journal is configured")
	}

	return nil
}

// ValidateStream validates one stream and fills its defaults
func ValidateStream(s *StreamConfig) error {
	if err := validateSource(&s.Source); err != nil {
		return err
	}

	if _, err := aer.ParseLayout(s.Layout); err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	if s.TimestampBits == 0 {
		s.TimestampBits = aer.DefaultTimestampBits
	}
	if s.TimestampBits > aer.MaxTimestampBits {
		return fmt.Errorf("timestamp_bits must be 1-%d, got %d", aer.MaxTimestampBits, s.TimestampBits)
	}

	if s.BufferBytes <= 0 {
		s.BufferBytes = 1 << 20
	}
	if s.ChunkBytes <= 0 {
		s.ChunkBytes = min(64<<10, s.BufferBytes)
	}
	if s.ChunkBytes > s.BufferBytes {
		return fmt.Errorf("chunk_bytes (%d) must not exceed buffer_bytes (%d)", s.ChunkBytes, s.BufferBytes)
	}
	if s.PollIntervalMS <= 0 {
		s.PollIntervalMS = 10
	}

	for i, w := range s.Windows {
		if w.Name == "" {
			return fmt.Errorf("windows[%d]: name is required", i)
		}
		if (w.Count > 0) == (w.Duration > 0) {
			return fmt.Errorf("window '%s': exactly one of count or duration must be set", w.Name)
		}
		if w.Channel >= aer.Channels {
			return fmt.Errorf("window '%s': channel must be below %d, got %d", w.Name, aer.Channels, w.Channel)
		}
	}

	for i := range s.Surfaces {
		sc := &s.Surfaces[i]
		if sc.Name == "" {
			return fmt.Errorf("surfaces[%d]: name is required", i)
		}
		if sc.Channel >= aer.Channels {
			return fmt.Errorf("surface '%s': channel must be below %d, got %d", sc.Name, aer.Channels, sc.Channel)
		}
		if sc.Policy == "" {
			sc.Policy = surface.PolicyExponential.String()
		}
		if _, err := surface.ParsePolicy(sc.Policy); err != nil {
			return fmt.Errorf("surface '%s': %w", sc.Name, err)
		}
		if _, err := surface.ParsePolarityMode(sc.Polarity); err != nil {
			return fmt.Errorf("surface '%s': %w", sc.Name, err)
		}
		if sc.KernelSize == 0 {
			sc.KernelSize = 1
		}
		if sc.KernelSize < 1 || sc.KernelSize%2 == 0 {
			return fmt.Errorf("surface '%s': kernel_size must be odd and >= 1, got %d", sc.Name, sc.KernelSize)
		}
		if sc.DecayConstant <= 0 {
			return fmt.Errorf("surface '%s': decay_constant must be > 0", sc.Name)
		}
	}

	return nil
}

func validateSource(src *SourceConfig) error {
	switch src.Type {
	case "file":
		if src.Path == "" {
			return fmt.Errorf("source.path is required for file sources")
		}
	case "tcp":
		if src.Address == "" {
			return fmt.Errorf("source.address is required for tcp sources")
		}
	case "websocket":
		if src.URL == "" {
			return fmt.Errorf("source.url is required for websocket sources")
		}
	case "gstreamer":
		if src.Launch == "" {
			return fmt.Errorf("source.launch is required for gstreamer sources")
		}
	case "":
		return fmt.Errorf("source.type is required")
	default:
		return fmt.Errorf("unknown source type '%s' (must be file, tcp, websocket or gstreamer)", src.Type)
	}

	if src.MaxRetries <= 0 {
		src.MaxRetries = 5
	}
	if src.RetryDelayMS <= 0 {
		src.RetryDelayMS = 1000
	}
	return nil
}
