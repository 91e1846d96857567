package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/e7canasta/orion-event-sensor/modules/ingest/internal/ring"
)

// Source is the byte stream feeding a ring: a file, a socket, a device.
type Source = ring.Source

// Deadliner is implemented by sources whose blocking Read can be interrupted.
// Stop sets a read deadline in the past to unblock the producer.
type Deadliner = ring.Deadliner

// Drain is re-exported from the internal package.
// See internal/ring/ring.go for full documentation.
type Drain = ring.Drain

// RingStats is re-exported from the internal package.
type RingStats = ring.Stats

// IngestionError is re-exported from the internal package.
type IngestionError = ring.IngestionError

var (
	ErrSourceIO        = ring.ErrSourceIO
	ErrStreamClosed    = ring.ErrStreamClosed
	ErrWouldBlock      = ring.ErrWouldBlock
	ErrConcurrentDrain = ring.ErrConcurrentDrain
	ErrAlreadyStarted  = ring.ErrAlreadyStarted
)

// Ring is a double-buffered byte ring between one producer goroutine (reading
// the source) and one consumer (decoding what was read).
//
// Lifecycle: New() → Start() → SwapAndDrain()... → Stop()
type Ring interface {
	// Start spawns the producer goroutine and returns immediately.
	// Returns ErrAlreadyStarted on a second call.
	Start(ctx context.Context) error

	// SwapAndDrain exchanges the buffer roles and returns the bytes gathered
	// since the previous drain. The returned Data is valid until the next
	// SwapAndDrain or Stop.
	//
	// Errors:
	//   - *IngestionError (wraps ErrSourceIO): the source failed, nothing left to drain
	//   - ErrStreamClosed: end of stream (or stopped), nothing left to drain
	//   - ErrConcurrentDrain: another consumer is draining
	SwapAndDrain() (Drain, error)

	// Ready delivers a wake-up after producer commits. Wake-ups coalesce;
	// a consumer may also poll SwapAndDrain on a timer.
	Ready() <-chan struct{}

	// Stop signals the producer, unblocks and joins it (bounded by the stop
	// timeout), flushes the last committed bytes and closes the source.
	// The flushed bytes are returned. Idempotent.
	Stop() (Drain, error)

	// Stats returns a snapshot of the ring counters. Thread-safe.
	Stats() RingStats
}

// Option customizes a ring created by New.
type Option func(*ring.Config)

// WithName sets the stream name used in logs, stats and errors.
func WithName(name string) Option {
	return func(c *ring.Config) { c.Name = name }
}

// WithRetryDelay sets the pause after a would-block read (default 1ms).
func WithRetryDelay(d time.Duration) Option {
	return func(c *ring.Config) { c.RetryDelay = d }
}

// WithStopTimeout bounds how long Stop waits for a blocked producer (default 3s).
func WithStopTimeout(d time.Duration) Option {
	return func(c *ring.Config) { c.StopTimeout = d }
}

// New creates a ring over src with two buffers of capacity bytes each.
// The producer reads at most chunkSize bytes per call.
//
// Fail-fast validation: capacity and chunkSize must be positive and chunkSize
// must not exceed capacity.
func New(src Source, capacity, chunkSize int, opts ...Option) (Ring, error) {
	if src == nil {
		return nil, fmt.Errorf("ingest: source is required")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("ingest: capacity must be positive, got %d", capacity)
	}
	if chunkSize <= 0 || chunkSize > capacity {
		return nil, fmt.Errorf("ingest: chunk size must be in [1, %d], got %d", capacity, chunkSize)
	}

	cfg := ring.Config{
		Name:      "default",
		Capacity:  capacity,
		ChunkSize: chunkSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return ring.New(src, cfg), nil
}
