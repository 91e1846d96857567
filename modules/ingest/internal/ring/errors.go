package ring

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceIO marks a fatal read error on the byte source.
	ErrSourceIO = errors.New("ingest: source I/O error")

	// ErrStreamClosed is returned once the source reached end of stream (or
	// the ring was stopped) and every buffered byte has been drained.
	ErrStreamClosed = errors.New("ingest: stream closed")

	// ErrWouldBlock can be returned by sources that have no data right now.
	// The producer retries after a short delay.
	ErrWouldBlock = errors.New("ingest: would block")

	// ErrConcurrentDrain is returned when a second consumer calls SwapAndDrain
	// while another drain is in progress.
	ErrConcurrentDrain = errors.New("ingest: concurrent drain (single consumer only)")

	// ErrAlreadyStarted is returned by a second Start call.
	ErrAlreadyStarted = errors.New("ingest: ring already started")
)

// IngestionError describes a fatal failure of a stream's producer.
type IngestionError struct {
	Stream string
	Op     string
	Err    error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest: stream %q: %s: %v", e.Stream, e.Op, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}
