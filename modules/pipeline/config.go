package pipeline

import (
	"fmt"
	"time"

	"github.com/e7canasta/orion-event-sensor/modules/aer"
	"github.com/e7canasta/orion-event-sensor/modules/eventsupplier"
	"github.com/e7canasta/orion-event-sensor/modules/surface"
)

const (
	DefaultBufferBytes  = 1 << 20
	DefaultChunkBytes   = 64 << 10
	DefaultPollInterval = 10 * time.Millisecond
)

// WindowConfig declares a named event window. Exactly one of Count and
// Duration must be set.
//
// A window follows one channel: stereo channels run on independent clocks,
// so mixing them would read every switch to the slower clock as a reset.
type WindowConfig struct {
	Name     string
	Channel  uint8 // events of other channels are not pushed
	Count    int
	Duration uint32 // ticks
}

// SurfaceConfig declares a named surface fed by one channel. Zero
// Width/Height take the layout's resolution.
type SurfaceConfig struct {
	Name    string
	Channel uint8
	surface.Config
}

// StreamConfig wires one stream: ring sizes, decoding and sinks.
type StreamConfig struct {
	Name          string
	Layout        aer.Layout
	TimestampBits uint8 // 0 = aer.DefaultTimestampBits

	BufferBytes  int // per ring half
	ChunkBytes   int // per source read
	PollInterval time.Duration

	Windows  []WindowConfig
	Surfaces []SurfaceConfig

	// Supplier, when set, receives one Batch per non-empty drain. The stream
	// starts and stops it with itself.
	Supplier eventsupplier.Supplier
}

// withDefaults validates cfg and fills zero values.
func (cfg StreamConfig) withDefaults() (StreamConfig, error) {
	if cfg.Name == "" {
		return cfg, fmt.Errorf("pipeline: stream name is required")
	}
	if !cfg.Layout.Valid() {
		return cfg, fmt.Errorf("pipeline: stream %q: %w", cfg.Name, aer.ErrUnsupportedLayout)
	}
	if cfg.TimestampBits == 0 {
		cfg.TimestampBits = aer.DefaultTimestampBits
	}
	if cfg.BufferBytes == 0 {
		cfg.BufferBytes = DefaultBufferBytes
	}
	if cfg.ChunkBytes == 0 {
		cfg.ChunkBytes = min(DefaultChunkBytes, cfg.BufferBytes)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	seen := make(map[string]bool)
	for _, w := range cfg.Windows {
		if w.Name == "" || seen["w/"+w.Name] {
			return cfg, fmt.Errorf("pipeline: stream %q: window name %q missing or duplicated", cfg.Name, w.Name)
		}
		seen["w/"+w.Name] = true
		if (w.Count > 0) == (w.Duration > 0) {
			return cfg, fmt.Errorf("pipeline: stream %q: window %q needs exactly one of count or duration", cfg.Name, w.Name)
		}
		if w.Channel >= aer.Channels {
			return cfg, fmt.Errorf("pipeline: stream %q: window %q: channel %d out of range", cfg.Name, w.Name, w.Channel)
		}
	}

	width, height := cfg.Layout.Dimensions()
	surfaces := make([]SurfaceConfig, len(cfg.Surfaces))
	for i, sc := range cfg.Surfaces {
		if sc.Name == "" || seen["s/"+sc.Name] {
			return cfg, fmt.Errorf("pipeline: stream %q: surface name %q missing or duplicated", cfg.Name, sc.Name)
		}
		seen["s/"+sc.Name] = true
		if sc.Channel >= aer.Channels {
			return cfg, fmt.Errorf("pipeline: stream %q: surface %q: channel %d out of range", cfg.Name, sc.Name, sc.Channel)
		}
		if sc.Width == 0 && sc.Height == 0 {
			sc.Width, sc.Height = width, height
		}
		surfaces[i] = sc
	}
	cfg.Surfaces = surfaces
	return cfg, nil
}
