package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Manager runs independent streams concurrently. A failing stream cancels
// the others; Run returns the first error.
type Manager struct {
	streams []*Stream
	byName  map[string]*Stream
}

// NewManager groups streams. Names must be unique.
func NewManager(streams ...*Stream) (*Manager, error) {
	m := &Manager{byName: make(map[string]*Stream, len(streams))}
	for _, s := range streams {
		if _, dup := m.byName[s.Name()]; dup {
			return nil, fmt.Errorf("pipeline: duplicate stream name %q", s.Name())
		}
		m.byName[s.Name()] = s
		m.streams = append(m.streams, s)
	}
	return m, nil
}

// Streams returns the managed streams in registration order.
func (m *Manager) Streams() []*Stream {
	return m.streams
}

// Stream returns the named stream, or nil.
func (m *Manager) Stream(name string) *Stream {
	return m.byName[name]
}

// Run runs every stream until all of them end or one fails.
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range m.streams {
		g.Go(func() error {
			return s.Run(gctx)
		})
	}

	slog.Info("pipeline: manager running", "streams", len(m.streams))
	err := g.Wait()
	if err != nil {
		slog.Error("pipeline: manager stopped on stream failure", "error", err)
	}
	return err
}

// Stats returns one snapshot per stream, in registration order.
func (m *Manager) Stats() []StreamStats {
	out := make([]StreamStats, len(m.streams))
	for i, s := range m.streams {
		out[i] = s.Stats()
	}
	return out
}

// Stop stops every stream. Safe to call while Run is active.
func (m *Manager) Stop() {
	for _, s := range m.streams {
		if err := s.Stop(); err != nil {
			slog.Warn("pipeline: stream stop failed", "stream", s.Name(), "error", err)
		}
	}
}
