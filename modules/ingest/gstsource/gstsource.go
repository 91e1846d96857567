// Package gstsource exposes the output of a GStreamer pipeline as an ingest
// byte source.
//
// The pipeline is given as a launch line and must contain an appsink named
// "sink", for example:
//
//	udpsrc port=5000 ! appsink name=sink
//	filesrc location=recording.aer ! appsink name=sink
//
// Each appsink buffer is copied and queued; the ingest producer reads the
// queued bytes as one continuous stream.
package gstsource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

const (
	// SinkName is the appsink element name looked up in the launch line.
	SinkName = "sink"

	// DefaultQueueDepth is the number of samples buffered between the
	// streaming thread and the reader.
	DefaultQueueDepth = 64
)

// Stats contains appsink counters.
type Stats struct {
	Samples        uint64 // samples queued
	SamplesDropped uint64 // samples dropped because the queue was full
	BytesQueued    uint64
}

// Source reads the bytes produced by a GStreamer pipeline.
//
// It implements io.ReadCloser and SetReadDeadline, so it plugs directly into
// ingest.New. Read is meant for a single reader goroutine.
type Source struct {
	launch   string
	pipeline *gst.Pipeline
	sink     *app.Sink
	queue    *sampleQueue

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	startedAt time.Time
}

// New parses the launch line, wires the appsink callbacks and sets the
// pipeline to PLAYING.
//
// Fail-fast: returns an error when GStreamer cannot parse the pipeline, the
// appsink is missing, or the state change fails.
func New(launch string) (*Source, error) {
	if launch == "" {
		return nil, fmt.Errorf("gstsource: launch line is required")
	}

	// Safe to call multiple times
	gst.Init(nil)

	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, fmt.Errorf("gstsource: failed to parse pipeline: %w", err)
	}

	elem, err := pipeline.GetElementByName(SinkName)
	if err != nil || elem == nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("gstsource: pipeline has no appsink named %q", SinkName)
	}
	sink := app.SinkFromElement(elem)
	if sink == nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("gstsource: element %q is not an appsink", SinkName)
	}

	s := &Source{
		launch:   launch,
		pipeline: pipeline,
		sink:     sink,
		queue:    newSampleQueue(DefaultQueueDepth),
	}

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("gstsource: failed to start pipeline: %w", err)
	}
	s.startedAt = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.monitorBus(ctx)
	}()

	slog.Info("gstsource: pipeline started", "launch", launch)
	return s, nil
}

// onNewSample runs on a GStreamer streaming thread.
func (s *Source) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gstsource: failed to pull sample from appsink, skipping")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstsource: failed to get buffer from sample, skipping")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}

	// GStreamer reuses the buffer
	chunk := make([]byte, len(data))
	copy(chunk, data)
	buffer.Unmap()

	if !s.queue.push(chunk) {
		slog.Debug("gstsource: dropping sample, queue full", "size_bytes", len(chunk))
	}
	return gst.FlowOK
}

// monitorBus polls the pipeline bus until EOS, an error, or cancellation.
func (s *Source) monitorBus(ctx context.Context) {
	bus := s.pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Short timeout for responsive shutdown
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Info("gstsource: end of stream received",
				"uptime", time.Since(s.startedAt),
				"samples", s.queue.samples.Load(),
			)
			s.queue.finish(nil)
			return

		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("gstsource: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"launch", s.launch,
			)
			s.queue.finish(fmt.Errorf("gstsource: pipeline error: %s", gerr.Error()))
			return

		case gst.MessageStateChanged:
			if msg.Source() == s.pipeline.GetName() {
				old, new := msg.ParseStateChanged()
				slog.Debug("gstsource: pipeline state changed", "from", old, "to", new)
			}
		}
	}
}

// Read implements io.Reader over the queued samples.
func (s *Source) Read(p []byte) (int, error) {
	return s.queue.read(p)
}

// SetReadDeadline bounds blocking reads; a past deadline unblocks a pending
// Read with os.ErrDeadlineExceeded.
func (s *Source) SetReadDeadline(t time.Time) error {
	s.queue.setDeadline(t)
	return nil
}

// Close stops the bus monitor and sets the pipeline to NULL. Idempotent.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()

		if serr := s.pipeline.SetState(gst.StateNull); serr != nil {
			err = fmt.Errorf("gstsource: failed to stop pipeline: %w", serr)
		}
		s.queue.finish(nil)

		stats := s.Stats()
		slog.Info("gstsource: pipeline stopped",
			"samples", stats.Samples,
			"samples_dropped", stats.SamplesDropped,
			"bytes", stats.BytesQueued,
			"uptime", time.Since(s.startedAt),
		)
	})
	return err
}

// Stats returns a snapshot of the appsink counters. Thread-safe.
func (s *Source) Stats() Stats {
	return Stats{
		Samples:        s.queue.samples.Load(),
		SamplesDropped: s.queue.dropped.Load(),
		BytesQueued:    s.queue.bytes.Load(),
	}
}
