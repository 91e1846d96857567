package main

import (
	"context"
	"fmt"
	"time"

	"github.com/e7canasta/orion-event-sensor/internal/config"
	"github.com/e7canasta/orion-event-sensor/modules/aer"
	"github.com/e7canasta/orion-event-sensor/modules/eventsupplier"
	"github.com/e7canasta/orion-event-sensor/modules/ingest"
	"github.com/e7canasta/orion-event-sensor/modules/ingest/gstsource"
	"github.com/e7canasta/orion-event-sensor/modules/pipeline"
	"github.com/e7canasta/orion-event-sensor/modules/surface"
)

// openSource connects the configured source, retrying network sources with
// backoff.
func openSource(ctx context.Context, src config.SourceConfig) (ingest.Source, error) {
	rc := ingest.DefaultReconnectConfig()
	rc.MaxRetries = src.MaxRetries
	rc.RetryDelay = time.Duration(src.RetryDelayMS) * time.Millisecond

	switch src.Type {
	case "file":
		return ingest.OpenFile(src.Path)
	case "tcp":
		return ingest.DialTCP(ctx, src.Address, rc)
	case "websocket":
		return ingest.DialWebSocket(ctx, src.URL, rc)
	case "gstreamer":
		gs, err := gstsource.New(src.Launch)
		if err != nil {
			return nil, err
		}
		return gs, nil
	default:
		return nil, fmt.Errorf("unknown source type '%s'", src.Type)
	}
}

// streamConfig converts a validated stream section to a pipeline config.
func streamConfig(sc config.StreamConfig) (pipeline.StreamConfig, error) {
	layout, err := aer.ParseLayout(sc.Layout)
	if err != nil {
		return pipeline.StreamConfig{}, err
	}

	out := pipeline.StreamConfig{
		Name:          sc.Name,
		Layout:        layout,
		TimestampBits: sc.TimestampBits,
		BufferBytes:   sc.BufferBytes,
		ChunkBytes:    sc.ChunkBytes,
		PollInterval:  time.Duration(sc.PollIntervalMS) * time.Millisecond,
	}
	if sc.Supplier {
		out.Supplier = eventsupplier.New()
	}

	for _, w := range sc.Windows {
		out.Windows = append(out.Windows, pipeline.WindowConfig{
			Name:     w.Name,
			Channel:  w.Channel,
			Count:    w.Count,
			Duration: w.Duration,
		})
	}

	for _, s := range sc.Surfaces {
		policy, err := surface.ParsePolicy(s.Policy)
		if err != nil {
			return pipeline.StreamConfig{}, err
		}
		mode, err := surface.ParsePolarityMode(s.Polarity)
		if err != nil {
			return pipeline.StreamConfig{}, err
		}
		out.Surfaces = append(out.Surfaces, pipeline.SurfaceConfig{
			Name:    s.Name,
			Channel: s.Channel,
			Config: surface.Config{
				Width:         s.Width,
				Height:        s.Height,
				KernelSize:    s.KernelSize,
				DecayConstant: s.DecayConstant,
				PolarityMode:  mode,
				Policy:        policy,
				Increment:     s.Increment,
			},
		})
	}
	return out, nil
}

// buildStreams opens every source and wires its stream. Sources already
// opened are closed on failure.
func buildStreams(ctx context.Context, cfg *config.Config) ([]*pipeline.Stream, error) {
	var streams []*pipeline.Stream
	fail := func(err error) ([]*pipeline.Stream, error) {
		for _, s := range streams {
			s.Stop()
		}
		return nil, err
	}

	for _, sc := range cfg.Streams {
		pc, err := streamConfig(sc)
		if err != nil {
			return fail(fmt.Errorf("stream '%s': %w", sc.Name, err))
		}
		src, err := openSource(ctx, sc.Source)
		if err != nil {
			return fail(fmt.Errorf("stream '%s': failed to open source: %w", sc.Name, err))
		}
		s, err := pipeline.NewStream(pc, src)
		if err != nil {
			src.Close()
			return fail(fmt.Errorf("stream '%s': %w", sc.Name, err))
		}
		streams = append(streams, s)
	}
	return streams, nil
}

// adHocConfig builds a single-stream config from command-line flags.
func adHocConfig(f flags) (*config.Config, error) {
	src := config.SourceConfig{}
	switch {
	case f.file != "":
		src.Type, src.Path = "file", f.file
	case f.tcp != "":
		src.Type, src.Address = "tcp", f.tcp
	case f.ws != "":
		src.Type, src.URL = "websocket", f.ws
	case f.gst != "":
		src.Type, src.Launch = "gstreamer", f.gst
	default:
		return nil, fmt.Errorf("one of -config, -file, -tcp, -ws or -gst is required")
	}

	cfg := &config.Config{
		InstanceID:      "aer-capture",
		StatsIntervalS:  f.statsInterval,
		WarmupDurationS: f.warmup,
		Streams: []config.StreamConfig{{
			Name:     "cli",
			Source:   src,
			Layout:   f.layout,
			Supplier: f.activity,
			Windows: []config.WindowConfig{
				{Name: "last", Count: 1000},
			},
			Surfaces: []config.SurfaceConfig{
				{Name: "sae", Policy: f.policy, KernelSize: 1, DecayConstant: f.tau, Polarity: "signed"},
			},
		}},
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}
