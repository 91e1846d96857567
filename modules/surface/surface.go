// Package surface implements per-pixel temporal surfaces: dense 2-D scalar
// fields updated on every event and read on demand.
//
// Decay is lazy. Each cell keeps its value and the time of its last update;
// the decayed value is computed when a snapshot is taken, so no background
// goroutine runs and an idle surface costs nothing.
//
// A Surface has one writer (the stream's decode loop) and any number of
// readers. Readers only ever receive copies (Grid).
//
// Usage:
//
//	s, err := surface.New(surface.Config{
//	    Width: 304, Height: 240,
//	    KernelSize: 3, DecayConstant: 50_000,
//	    Policy: surface.PolicyExponential,
//	})
//	s.Update(int(ev.X), int(ev.Y), ev.Polarity, float64(ev.Timestamp))
//	grid := s.Snapshot()
package surface

import (
	"fmt"
	"math"
	"sync"
)

// spatialDecayPeak is the value written at the event pixel by PolicySpatialDecay.
const spatialDecayPeak = 255

// Stats contains surface counters.
type Stats struct {
	Updates  uint64
	Rejected uint64 // updates outside the resolution
	Resets   uint64 // clears caused by a backward timestamp
	Latest   float64
}

// Surface is a dense per-pixel field with a fixed update policy.
type Surface struct {
	cfg Config

	mu    sync.RWMutex
	value []float64
	last  []float64 // time of the last update per cell

	latest  float64
	updated bool

	updates  uint64
	rejected uint64
	resets   uint64

	// Precomputed policy constants
	half         int
	spatialDecay float64
	sitsPeak     float64
}

// New allocates a surface. Fail-fast: an invalid config returns an error
// wrapping ErrInvalidConfig.
func New(cfg Config) (*Surface, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := cfg.Width * cfg.Height
	return &Surface{
		cfg:          cfg,
		value:        make([]float64, n),
		last:         make([]float64, n),
		half:         cfg.KernelSize / 2,
		spatialDecay: math.Pow(0.3, 1/float64(cfg.KernelSize)),
		sitsPeak:     float64(cfg.KernelSize * cfg.KernelSize),
	}, nil
}

// Config returns the validated configuration.
func (s *Surface) Config() Config {
	return s.cfg
}

// Update applies one event at (x, y) with the given polarity (±1) at time t.
//
// Out-of-resolution coordinates return ErrOutOfBounds and leave the surface
// untouched. A t lower than the latest update is a reset discontinuity: the
// surface is cleared before the event is applied.
func (s *Surface) Update(x, y int, polarity int8, t float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if x < 0 || y < 0 || x >= s.cfg.Width || y >= s.cfg.Height {
		s.rejected++
		return fmt.Errorf("%w: (%d, %d) outside %dx%d", ErrOutOfBounds, x, y, s.cfg.Width, s.cfg.Height)
	}

	if s.updated && t < s.latest {
		s.clear()
		s.resets++
	}
	s.latest = t
	s.updated = true
	s.updates++

	sign := 1.0
	if s.cfg.PolarityMode == PolaritySigned && polarity < 0 {
		sign = -1
	}
	centre := y*s.cfg.Width + x

	switch s.cfg.Policy {
	case PolicyExponential:
		inc := s.cfg.Increment * sign
		s.forKernel(x, y, func(i int) {
			s.value[i] = s.decayed(i, t) + inc
			s.last[i] = t
		})

	case PolicyTimeOrdered:
		s.value[centre] = sign
		s.last[centre] = t

	case PolicySpatialDecay:
		s.forKernel(x, y, func(i int) {
			s.value[i] *= s.spatialDecay
		})
		s.value[centre] = spatialDecayPeak * sign
		s.last[centre] = t

	case PolicySpeedInvariant:
		ref := math.Abs(s.value[centre])
		s.forKernel(x, y, func(i int) {
			if i != centre && math.Abs(s.value[i]) > ref {
				s.value[i] -= math.Copysign(1, s.value[i])
			}
		})
		s.value[centre] = s.sitsPeak * sign
		s.last[centre] = t
	}
	return nil
}

// forKernel calls fn with the index of every in-bounds cell of the kernel
// centred at (x, y).
func (s *Surface) forKernel(x, y int, fn func(i int)) {
	x0, x1 := max(x-s.half, 0), min(x+s.half, s.cfg.Width-1)
	y0, y1 := max(y-s.half, 0), min(y+s.half, s.cfg.Height-1)
	for yy := y0; yy <= y1; yy++ {
		row := yy * s.cfg.Width
		for xx := x0; xx <= x1; xx++ {
			fn(row + xx)
		}
	}
}

// decayed returns cell i as seen at time now. Requires s.mu.
func (s *Surface) decayed(i int, now float64) float64 {
	v := s.value[i]
	if v == 0 {
		return 0
	}
	switch s.cfg.Policy {
	case PolicyExponential, PolicyTimeOrdered:
		dt := now - s.last[i]
		if dt <= 0 {
			return v
		}
		return v * math.Exp(-dt/s.cfg.DecayConstant)
	default:
		return v
	}
}

// Snapshot materialises the surface at the time of the latest update.
func (s *Surface) Snapshot() *Grid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(s.latest)
}

// SnapshotAt materialises the surface as seen at time now.
func (s *Surface) SnapshotAt(now float64) *Grid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(now)
}

func (s *Surface) snapshotLocked(now float64) *Grid {
	g := newGrid(s.cfg.Width, s.cfg.Height)
	for i := range g.Data {
		g.Data[i] = s.decayed(i, now)
	}
	return g
}

// SnapshotTimes returns the time of the last update of every cell, 0 for
// cells never touched since the last reset. Under PolicyTimeOrdered this is
// the per-pixel last-event-time map itself.
func (s *Surface) SnapshotTimes() *Grid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := newGrid(s.cfg.Width, s.cfg.Height)
	copy(g.Data, s.last)
	return g
}

// Value returns the cell at (x, y) as seen at time now.
func (s *Surface) Value(x, y int, now float64) (float64, error) {
	if x < 0 || y < 0 || x >= s.cfg.Width || y >= s.cfg.Height {
		return 0, fmt.Errorf("%w: (%d, %d) outside %dx%d", ErrOutOfBounds, x, y, s.cfg.Width, s.cfg.Height)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decayed(y*s.cfg.Width+x, now), nil
}

// Latest returns the time of the latest update (0 before the first one).
func (s *Surface) Latest() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Reset zeroes every cell.
func (s *Surface) Reset() {
	s.mu.Lock()
	s.clear()
	s.updated = false
	s.latest = 0
	s.mu.Unlock()
}

func (s *Surface) clear() {
	clear(s.value)
	clear(s.last)
}

// Stats returns surface counters.
func (s *Surface) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Updates: s.updates, Rejected: s.rejected, Resets: s.resets, Latest: s.latest}
}
