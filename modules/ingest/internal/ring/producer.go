package ring

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"
)

// produce is the producer goroutine: it loops over ReadChunk until the
// context is cancelled, the source ends, or a fatal error occurs.
func (r *Ring) produce() {
	defer close(r.done)
	defer r.notify()
	defer r.running.Store(false)

	scratch := make([]byte, r.cfg.ChunkSize)

	for {
		if r.ctx.Err() != nil {
			return
		}

		_, err := r.ReadChunk(scratch)
		if err == nil {
			continue
		}

		// Stop unblocks the read with a deadline; that is not a source failure.
		if r.ctx.Err() != nil {
			return
		}

		switch {
		case isWouldBlock(err):
			r.retries.Add(1)
			select {
			case <-time.After(r.cfg.RetryDelay):
			case <-r.ctx.Done():
				return
			}

		case errors.Is(err, io.EOF):
			r.mu.Lock()
			r.eof = true
			r.mu.Unlock()
			slog.Info("ingest: source reached end of stream",
				"stream", r.cfg.Name,
				"bytes_read", r.bytesRead.Load(),
				"bytes_lost", r.bytesLost.Load(),
			)
			return

		default:
			ierr := &IngestionError{
				Stream: r.cfg.Name,
				Op:     "read",
				Err:    fmt.Errorf("%w: %w", ErrSourceIO, err),
			}
			r.mu.Lock()
			r.fatal = ierr
			r.mu.Unlock()
			slog.Error("ingest: fatal source error, producer stopped",
				"stream", r.cfg.Name,
				"error", err,
				"bytes_read", r.bytesRead.Load(),
				"bytes_lost", r.bytesLost.Load(),
			)
			return
		}
	}
}

// ReadChunk performs one producer step: a single Read into scratch (no lock
// held) followed by a commit of the bytes read into the active buffer.
// Bytes that do not fit are counted as lost.
//
// A zero-byte read without error is reported as ErrWouldBlock.
func (r *Ring) ReadChunk(scratch []byte) (int, error) {
	n, err := r.src.Read(scratch)
	if n > 0 {
		r.commit(scratch[:n])
	}
	if n == 0 && err == nil {
		return 0, ErrWouldBlock
	}
	return n, err
}

func (r *Ring) commit(p []byte) {
	r.mu.Lock()
	written, lost, firstLoss := r.arena.commit(p)
	r.mu.Unlock()

	r.chunks.Add(1)
	r.bytesRead.Add(uint64(written))
	if lost > 0 {
		r.bytesLost.Add(uint64(lost))
		if firstLoss {
			slog.Debug("ingest: active buffer full, dropping bytes until next drain",
				"stream", r.cfg.Name,
				"capacity", r.cfg.Capacity,
			)
		}
	}

	r.notify()
}

// isWouldBlock reports whether err only means "no data right now".
func isWouldBlock(err error) bool {
	if errors.Is(err, ErrWouldBlock) || errors.Is(err, syscall.EAGAIN) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
