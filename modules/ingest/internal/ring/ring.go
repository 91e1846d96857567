// Package ring implements the double-buffered ingestion ring.
//
// This package is INTERNAL - clients MUST use the public API in the parent
// ingest package.
package ring

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultRetryDelay is the pause after a would-block read.
	DefaultRetryDelay = time.Millisecond

	// DefaultStopTimeout bounds how long Stop waits for the producer to exit.
	DefaultStopTimeout = 3 * time.Second
)

// Source is the byte stream feeding a ring.
type Source = io.ReadCloser

// Deadliner is implemented by sources whose blocking Read can be interrupted
// with a deadline (sockets, pipes). Stop uses it to unblock the producer
// before joining it.
type Deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Drain is what one SwapAndDrain hands to the consumer.
//
// Data aliases the ring's ready buffer: it stays valid until the next
// SwapAndDrain or Stop call and MUST NOT be retained beyond that.
type Drain struct {
	Data      []byte
	BytesRead uint64 // bytes stored since the previous drain (== len(Data))
	BytesLost uint64 // bytes read from the source but dropped (buffer full)
}

// Stats is a snapshot of ring counters.
type Stats struct {
	Stream            string
	SessionID         string
	Capacity          int
	ChunkSize         int
	Buffered          int    // bytes waiting in the active buffer
	BytesRead         uint64 // lifetime bytes stored
	BytesLost         uint64 // lifetime bytes dropped
	Chunks            uint64 // successful source reads
	Drains            uint64
	WouldBlockRetries uint64
	LossRate          float64 // percentage of source bytes dropped (0-100)
	Running           bool
	Uptime            time.Duration
}

// Config configures a Ring.
type Config struct {
	Name        string
	Capacity    int // bytes per buffer half
	ChunkSize   int // bytes per source read
	RetryDelay  time.Duration
	StopTimeout time.Duration
}

// Ring couples a byte source to a consumer through two fixed buffers.
//
// Goroutine topology:
//   - 1 producer (spawned by Start): reads chunks, commits them to the active half
//   - 1 consumer (caller): SwapAndDrain / Stop
//
// The mutex guards only the arena roles and the bounded chunk copy; it is
// never held across a source Read.
type Ring struct {
	cfg Config
	src Source

	mu     sync.Mutex
	arena  arena
	fatal  error
	eof    bool
	closed bool

	drainMu sync.Mutex    // single consumer
	ready   chan struct{} // single-slot wake-up for the consumer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	sessionID   string
	startedAt   time.Time

	bytesRead atomic.Uint64
	bytesLost atomic.Uint64
	chunks    atomic.Uint64
	drains    atomic.Uint64
	retries   atomic.Uint64
	running   atomic.Bool
}

// New creates a ring. Capacity and ChunkSize must be positive; the caller
// validates them (see ingest.New).
func New(src Source, cfg Config) *Ring {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return &Ring{
		cfg:   cfg,
		src:   src,
		arena: newArena(cfg.Capacity),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Start spawns the producer goroutine and returns immediately.
func (r *Ring) Start(ctx context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if r.stopped {
		return ErrStreamClosed
	}
	if r.started {
		return ErrAlreadyStarted
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.started = true
	r.sessionID = uuid.NewString()
	r.startedAt = time.Now()
	r.running.Store(true)

	slog.Info("ingest: ring started",
		"stream", r.cfg.Name,
		"session_id", r.sessionID,
		"capacity", r.cfg.Capacity,
		"chunk_size", r.cfg.ChunkSize,
	)

	go r.produce()
	return nil
}

// Ready returns the wake-up channel. A value is posted (without blocking)
// after every commit and when the producer exits.
func (r *Ring) Ready() <-chan struct{} {
	return r.ready
}

// Done is closed when the producer goroutine has exited.
func (r *Ring) Done() <-chan struct{} {
	return r.done
}

// SwapAndDrain exchanges the buffer roles and returns the bytes gathered
// since the previous drain.
//
// Terminal states are reported only on an empty drain, so no buffered byte is
// ever lost to an error: a fatal source error yields an *IngestionError
// wrapping ErrSourceIO, end of stream or a stopped ring yields ErrStreamClosed.
func (r *Ring) SwapAndDrain() (Drain, error) {
	if !r.drainMu.TryLock() {
		return Drain{}, ErrConcurrentDrain
	}
	defer r.drainMu.Unlock()

	r.mu.Lock()
	d := r.arena.swap()
	fatal, finished := r.fatal, r.eof || r.closed
	r.mu.Unlock()

	r.drains.Add(1)

	if d.BytesRead > 0 || d.BytesLost > 0 {
		return d, nil
	}
	if fatal != nil {
		return d, fatal
	}
	if finished {
		return d, ErrStreamClosed
	}
	return d, nil
}

// Stop shuts the ring down in a fixed order:
//
//  1. signal the producer (cancel its context)
//  2. unblock its read (deadline, when the source supports it) and join it,
//     bounded by StopTimeout
//  3. flush: swap out whatever the producer committed last
//  4. close the source
//
// The final drain is returned to the caller. A ring that was never started
// only closes its source. Idempotent.
//
// When the producer is still inside Read after StopTimeout, Stop returns
// without closing the source: the close is handed to a goroutine that waits
// for the producer to exit, so a Read never sees its handle closed. A source
// whose Read never returns stays open.
func (r *Ring) Stop() (Drain, error) {
	r.lifecycleMu.Lock()
	if r.stopped {
		r.lifecycleMu.Unlock()
		return Drain{}, nil
	}
	r.stopped = true
	started := r.started
	r.lifecycleMu.Unlock()

	if !started {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		return Drain{}, r.src.Close()
	}

	r.cancel()

	if dl, ok := r.src.(Deadliner); ok {
		if err := dl.SetReadDeadline(time.Now()); err != nil {
			slog.Debug("ingest: source does not support read deadline", "stream", r.cfg.Name, "error", err)
		}
	}

	joined := true
	select {
	case <-r.done:
	case <-time.After(r.cfg.StopTimeout):
		joined = false
		slog.Warn("ingest: stop timeout exceeded, producer still blocked in read, deferring close",
			"stream", r.cfg.Name,
			"timeout", r.cfg.StopTimeout,
		)
	}

	r.drainMu.Lock()
	r.mu.Lock()
	final := r.arena.swap()
	r.closed = true
	r.mu.Unlock()
	r.drainMu.Unlock()

	var closeErr error
	if joined {
		closeErr = r.src.Close()
	} else {
		go r.closeAfterProducer()
	}

	stats := r.Stats()
	slog.Info("ingest: ring stopped",
		"stream", r.cfg.Name,
		"session_id", stats.SessionID,
		"bytes_read", stats.BytesRead,
		"bytes_lost", stats.BytesLost,
		"loss_rate", stats.LossRate,
		"uptime", stats.Uptime,
	)

	return final, closeErr
}

// Stats returns a snapshot of the ring counters.
func (r *Ring) Stats() Stats {
	r.mu.Lock()
	buffered := r.arena.buffered()
	r.mu.Unlock()

	r.lifecycleMu.Lock()
	sessionID, startedAt := r.sessionID, r.startedAt
	r.lifecycleMu.Unlock()

	read, lost := r.bytesRead.Load(), r.bytesLost.Load()
	var lossRate float64
	if total := read + lost; total > 0 {
		lossRate = float64(lost) / float64(total) * 100
	}

	var uptime time.Duration
	if !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}

	return Stats{
		Stream:            r.cfg.Name,
		SessionID:         sessionID,
		Capacity:          r.cfg.Capacity,
		ChunkSize:         r.cfg.ChunkSize,
		Buffered:          buffered,
		BytesRead:         read,
		BytesLost:         lost,
		Chunks:            r.chunks.Load(),
		Drains:            r.drains.Load(),
		WouldBlockRetries: r.retries.Load(),
		LossRate:          lossRate,
		Running:           r.running.Load(),
		Uptime:            uptime,
	}
}

// closeAfterProducer closes the source once a producer that outlived
// StopTimeout has left Read.
func (r *Ring) closeAfterProducer() {
	<-r.done
	if err := r.src.Close(); err != nil {
		slog.Warn("ingest: deferred source close failed", "stream", r.cfg.Name, "error", err)
		return
	}
	slog.Debug("ingest: deferred source close done", "stream", r.cfg.Name)
}

func (r *Ring) notify() {
	select {
	case r.ready <- struct{}{}:
	default:
	}
}
