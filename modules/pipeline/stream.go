// Package pipeline runs event streams: ring → decoder → windows, surfaces
// and supplier.
//
// Each Stream owns its ring, decoder and sinks; streams share nothing, so a
// Manager can run any number of them side by side (for example the left and
// right sensors of a stereo rig).
//
// Goroutine topology per stream:
//   - 1 producer (ingest ring): the only blocking source reads
//   - 1 decode loop (Run): drain → decode → fan out
//   - N consumers: read windows and surfaces, or subscribe to the supplier
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-event-sensor/modules/aer"
	"github.com/e7canasta/orion-event-sensor/modules/eventsupplier"
	"github.com/e7canasta/orion-event-sensor/modules/ingest"
	"github.com/e7canasta/orion-event-sensor/modules/surface"
	"github.com/e7canasta/orion-event-sensor/modules/window"
)

// StreamStats aggregates the counters of one stream.
type StreamStats struct {
	Name    string
	Layout  string
	Ring    ingest.RingStats
	Decoder aer.DecoderStats

	Drains      uint64 // non-empty drains decoded
	Events      uint64
	Batches     uint64 // batches published to the supplier
	OutOfBounds uint64 // events rejected by at least one surface

	Windows  map[string]window.Stats
	Surfaces map[string]surface.Stats
	Supplier *eventsupplier.SupplierStats
}

// Stream is one ingest → decode → fan-out chain.
type Stream struct {
	cfg StreamConfig

	ring ingest.Ring

	decodeMu sync.Mutex // decoder is driven by the decode loop, read by Stats
	decoder  *aer.Decoder
	events   []aer.Event // decode scratch, reused across drains

	windows  map[string]window.Window
	surfaces map[string]*surface.Surface

	// Sinks indexed by the channel they follow.
	channelWindows  [aer.Channels][]window.Window
	channelSurfaces [aer.Channels][]*surface.Surface

	drains      atomic.Uint64
	eventCount  atomic.Uint64
	batches     atomic.Uint64
	outOfBounds atomic.Uint64

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
}

// NewStream builds a stream over src. Fail-fast: every window, surface and
// ring parameter is validated here.
func NewStream(cfg StreamConfig, src ingest.Source) (*Stream, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	decoder, err := aer.NewDecoder(cfg.Layout, aer.WithTimestampBits(cfg.TimestampBits))
	if err != nil {
		return nil, fmt.Errorf("pipeline: stream %q: %w", cfg.Name, err)
	}

	s := &Stream{
		cfg:      cfg,
		decoder:  decoder,
		windows:  make(map[string]window.Window),
		surfaces: make(map[string]*surface.Surface),
	}

	for _, wc := range cfg.Windows {
		var w window.Window
		if wc.Count > 0 {
			w, err = window.NewCount(wc.Count)
		} else {
			w, err = window.NewDuration(wc.Duration)
		}
		if err != nil {
			return nil, fmt.Errorf("pipeline: stream %q: window %q: %w", cfg.Name, wc.Name, err)
		}
		s.windows[wc.Name] = w
		s.channelWindows[wc.Channel] = append(s.channelWindows[wc.Channel], w)
	}

	for _, sc := range cfg.Surfaces {
		sf, err := surface.New(sc.Config)
		if err != nil {
			return nil, fmt.Errorf("pipeline: stream %q: surface %q: %w", cfg.Name, sc.Name, err)
		}
		s.surfaces[sc.Name] = sf
		s.channelSurfaces[sc.Channel] = append(s.channelSurfaces[sc.Channel], sf)
	}

	ring, err := ingest.New(src, cfg.BufferBytes, cfg.ChunkBytes, ingest.WithName(cfg.Name))
	if err != nil {
		return nil, fmt.Errorf("pipeline: stream %q: %w", cfg.Name, err)
	}
	s.ring = ring

	return s, nil
}

// Name returns the stream name.
func (s *Stream) Name() string {
	return s.cfg.Name
}

// Window returns the named window, or nil.
func (s *Stream) Window(name string) window.Window {
	return s.windows[name]
}

// Surface returns the named surface, or nil.
func (s *Stream) Surface(name string) *surface.Surface {
	return s.surfaces[name]
}

// Supplier returns the configured supplier, or nil.
func (s *Stream) Supplier() eventsupplier.Supplier {
	return s.cfg.Supplier
}

// Run starts the ring and runs the decode loop until the source ends, a
// fatal source error occurs, ctx is cancelled or Stop is called. The ring is
// always stopped and its final flush decoded before Run returns.
//
// Returns nil on end of stream and cancellation, the *ingest.IngestionError
// on a source failure.
func (s *Stream) Run(ctx context.Context) error {
	s.runMu.Lock()
	if s.running || s.done != nil {
		s.runMu.Unlock()
		return fmt.Errorf("pipeline: stream %q: already running", s.cfg.Name)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.runMu.Unlock()

	defer func() {
		cancel()
		s.runMu.Lock()
		s.running = false
		s.runMu.Unlock()
		close(s.done)
	}()

	if sup := s.cfg.Supplier; sup != nil {
		if err := sup.Start(ctx); err != nil && !errors.Is(err, eventsupplier.ErrAlreadyStarted) {
			return fmt.Errorf("pipeline: stream %q: start supplier: %w", s.cfg.Name, err)
		}
		defer sup.Stop()
	}

	if err := s.ring.Start(ctx); err != nil {
		return fmt.Errorf("pipeline: stream %q: %w", s.cfg.Name, err)
	}

	slog.Info("pipeline: stream started",
		"stream", s.cfg.Name,
		"layout", s.cfg.Layout.String(),
		"windows", len(s.windows),
		"surfaces", len(s.surfaces),
	)

	err := s.loop(ctx)
	s.shutdown()

	s.runMu.Lock()
	s.runErr = err
	s.runMu.Unlock()

	stats := s.Stats()
	if err != nil {
		slog.Error("pipeline: stream failed",
			"stream", s.cfg.Name,
			"error", err,
			"events", stats.Events,
			"bytes_read", stats.Ring.BytesRead,
			"bytes_lost", stats.Ring.BytesLost,
			"malformed", stats.Decoder.Malformed,
		)
		return err
	}

	slog.Info("pipeline: stream finished",
		"stream", s.cfg.Name,
		"events", stats.Events,
		"bytes_read", stats.Ring.BytesRead,
		"bytes_lost", stats.Ring.BytesLost,
		"malformed", stats.Decoder.Malformed,
		"truncated", stats.Decoder.Truncated,
	)
	return nil
}

// loop drains the ring on every wake-up or poll tick.
func (s *Stream) loop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ring.Ready():
		case <-ticker.C:
		}

		d, err := s.ring.SwapAndDrain()
		s.process(d)

		switch {
		case err == nil:
		case errors.Is(err, ingest.ErrStreamClosed):
			return nil
		default:
			return err
		}
	}
}

// shutdown stops the ring (signal → join → flush → close) and decodes the
// flushed bytes.
func (s *Stream) shutdown() {
	final, err := s.ring.Stop()
	if err != nil {
		slog.Warn("pipeline: closing source failed", "stream", s.cfg.Name, "error", err)
	}
	s.process(final)

	s.decodeMu.Lock()
	if n := s.decoder.Flush(); n > 0 {
		slog.Warn("pipeline: stream ended inside a word",
			"stream", s.cfg.Name,
			"dropped_bytes", n,
		)
	}
	s.decodeMu.Unlock()
}

// process decodes one drain and fans the events out.
func (s *Stream) process(d ingest.Drain) {
	if len(d.Data) == 0 {
		return
	}

	s.decodeMu.Lock()
	s.events = s.decoder.Decode(d.Data, s.events[:0])
	events := s.events
	s.decodeMu.Unlock()

	s.drains.Add(1)
	if len(events) == 0 {
		return
	}
	s.eventCount.Add(uint64(len(events)))

	for _, ev := range events {
		ch := ev.Channel & (aer.Channels - 1)
		for _, w := range s.channelWindows[ch] {
			w.Push(ev)
		}
		rejected := false
		for _, sf := range s.channelSurfaces[ch] {
			if err := sf.Update(int(ev.X), int(ev.Y), ev.Polarity, float64(ev.Timestamp)); err != nil {
				rejected = true
			}
		}
		if rejected {
			s.outOfBounds.Add(1)
		}
	}

	if sup := s.cfg.Supplier; sup != nil {
		// The scratch slice is reused by the next drain; batches are shared.
		owned := make([]aer.Event, len(events))
		copy(owned, events)
		sup.Publish(&eventsupplier.Batch{
			Stream:    s.cfg.Name,
			Events:    owned,
			First:     owned[0].Timestamp,
			Last:      owned[len(owned)-1].Timestamp,
			BytesLost: d.BytesLost,
			Captured:  time.Now(),
			TraceID:   uuid.NewString(),
		})
		s.batches.Add(1)
	}
}

// Stop ends a running stream in the fixed order (signal the producer, join
// it, flush, close the source) and waits for Run to return. A stream that
// was never run only has its source closed. Idempotent.
func (s *Stream) Stop() error {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.runMu.Unlock()

	if done == nil {
		_, err := s.ring.Stop()
		return err
	}
	cancel()
	<-done
	return nil
}

// Err returns the error that ended the last Run, if any.
func (s *Stream) Err() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return nil
	}
	return s.runErr
}

// Stats aggregates ring, decoder and sink counters. Thread-safe.
func (s *Stream) Stats() StreamStats {
	s.decodeMu.Lock()
	dec := s.decoder.Stats()
	s.decodeMu.Unlock()

	stats := StreamStats{
		Name:        s.cfg.Name,
		Layout:      s.cfg.Layout.String(),
		Ring:        s.ring.Stats(),
		Decoder:     dec,
		Drains:      s.drains.Load(),
		Events:      s.eventCount.Load(),
		Batches:     s.batches.Load(),
		OutOfBounds: s.outOfBounds.Load(),
		Windows:     make(map[string]window.Stats, len(s.windows)),
		Surfaces:    make(map[string]surface.Stats, len(s.surfaces)),
	}
	for name, w := range s.windows {
		stats.Windows[name] = w.Stats()
	}
	for name, sf := range s.surfaces {
		stats.Surfaces[name] = sf.Stats()
	}
	if sup := s.cfg.Supplier; sup != nil {
		ss := sup.Stats()
		stats.Supplier = &ss
	}
	return stats
}
