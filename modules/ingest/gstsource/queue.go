package gstsource

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// sampleQueue hands appsink buffers (pushed from GStreamer streaming
// threads) to a single reader as a byte stream.
//
// push never blocks: when the queue is full the sample is dropped and counted.
type sampleQueue struct {
	chunks chan []byte
	done   chan struct{}
	wake   chan struct{}

	finishOnce sync.Once
	err        error // io.EOF or the pipeline error; valid after done is closed

	deadlineMu sync.Mutex
	deadline   time.Time

	pending []byte // reader-owned remainder of the current sample

	samples atomic.Uint64
	dropped atomic.Uint64
	bytes   atomic.Uint64
}

func newSampleQueue(depth int) *sampleQueue {
	return &sampleQueue{
		chunks: make(chan []byte, depth),
		done:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
	}
}

func (q *sampleQueue) push(b []byte) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.chunks <- b:
		q.samples.Add(1)
		q.bytes.Add(uint64(len(b)))
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// finish ends the stream. Queued samples are still delivered before err.
func (q *sampleQueue) finish(err error) {
	q.finishOnce.Do(func() {
		if err == nil {
			err = io.EOF
		}
		q.err = err
		close(q.done)
	})
}

func (q *sampleQueue) setDeadline(t time.Time) {
	q.deadlineMu.Lock()
	q.deadline = t
	q.deadlineMu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *sampleQueue) read(p []byte) (int, error) {
	for len(q.pending) == 0 {
		if err := q.wait(); err != nil {
			return 0, err
		}
	}

	n := copy(p, q.pending)
	q.pending = q.pending[n:]
	return n, nil
}

// wait blocks until a sample, the end of the stream, the read deadline or a
// deadline change. A deadline change returns nil with nothing pending.
func (q *sampleQueue) wait() error {
	q.deadlineMu.Lock()
	deadline := q.deadline
	q.deadlineMu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		d := time.Until(deadline)
		if d <= 0 {
			return os.ErrDeadlineExceeded
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case b := <-q.chunks:
		q.pending = b
	case <-q.done:
		select {
		case b := <-q.chunks:
			q.pending = b
		default:
			return q.err
		}
	case <-timeout:
		return os.ErrDeadlineExceeded
	case <-q.wake:
	}
	return nil
}
