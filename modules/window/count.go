package window

import (
	"fmt"
	"iter"
	"sync"

	"github.com/e7canasta/orion-event-sensor/modules/aer"
)

// Count holds the last N events.
type Count struct {
	mu     sync.RWMutex
	buf    []aer.Event
	head   int // index of the oldest event
	size   int
	latest uint32

	pushed  uint64
	evicted uint64
	resets  uint64
}

// NewCount creates a window of the last n events.
func NewCount(n int) (*Count, error) {
	if n <= 0 {
		return nil, fmt.Errorf("window: count %d: %w", n, ErrInvalidSize)
	}
	return &Count{buf: make([]aer.Event, n)}, nil
}

// Push inserts ev, overwriting the oldest event at capacity.
func (w *Count) Push(ev aer.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > 0 && ev.Timestamp < w.latest {
		w.head, w.size = 0, 0
		w.resets++
	}
	w.latest = ev.Timestamp
	w.pushed++

	n := len(w.buf)
	if w.size < n {
		w.buf[(w.head+w.size)%n] = ev
		w.size++
		return
	}
	w.buf[w.head] = ev
	w.head = (w.head + 1) % n
	w.evicted++
}

// Capacity returns N.
func (w *Count) Capacity() int {
	return len(w.buf)
}

func (w *Count) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.size
}

func (w *Count) Snapshot() []aer.Event {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]aer.Event, w.size)
	n := len(w.buf)
	first := copy(out, w.buf[w.head:min(w.head+w.size, n)])
	copy(out[first:], w.buf[:w.size-first])
	return out
}

func (w *Count) EventsInRadius(x, y, r int) iter.Seq[aer.Event] {
	return filter(w.Snapshot, func(ev aer.Event) bool { return inRadius(ev, x, y, r) })
}

func (w *Count) EventsSince(t uint32) iter.Seq[aer.Event] {
	return filter(w.Snapshot, func(ev aer.Event) bool { return ev.Timestamp >= t })
}

func (w *Count) Reset() {
	w.mu.Lock()
	w.head, w.size, w.latest = 0, 0, 0
	w.mu.Unlock()
}

func (w *Count) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Stats{Len: w.size, Pushed: w.pushed, Evicted: w.evicted, Resets: w.resets}
}
