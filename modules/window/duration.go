package window

import (
	"fmt"
	"iter"
	"sync"

	"github.com/e7canasta/orion-event-sensor/modules/aer"
)

// Duration holds every event with Timestamp >= latest - span.
type Duration struct {
	mu     sync.RWMutex
	span   uint32
	events []aer.Event
	start  int // events[start:] are live
	latest uint32

	pushed  uint64
	evicted uint64
	resets  uint64
}

// NewDuration creates a window spanning span ticks.
func NewDuration(span uint32) (*Duration, error) {
	if span == 0 {
		return nil, fmt.Errorf("window: duration %d: %w", span, ErrInvalidSize)
	}
	return &Duration{span: span}, nil
}

// Push appends ev and evicts head events older than the new cutoff.
func (w *Duration) Push(ev aer.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.start < len(w.events) && ev.Timestamp < w.latest {
		w.clear()
		w.resets++
	}
	w.latest = ev.Timestamp
	w.pushed++
	w.events = append(w.events, ev)

	var cutoff uint32
	if w.latest > w.span {
		cutoff = w.latest - w.span
	}
	for w.start < len(w.events) && w.events[w.start].Timestamp < cutoff {
		w.start++
		w.evicted++
	}

	// Reclaim the evicted prefix once it dominates the slice.
	if w.start > 1024 && w.start > len(w.events)/2 {
		n := copy(w.events, w.events[w.start:])
		w.events = w.events[:n]
		w.start = 0
	}
}

// Span returns the window duration in ticks.
func (w *Duration) Span() uint32 {
	return w.span
}

func (w *Duration) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.events) - w.start
}

func (w *Duration) Snapshot() []aer.Event {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]aer.Event, len(w.events)-w.start)
	copy(out, w.events[w.start:])
	return out
}

func (w *Duration) EventsInRadius(x, y, r int) iter.Seq[aer.Event] {
	return filter(w.Snapshot, func(ev aer.Event) bool { return inRadius(ev, x, y, r) })
}

// EventsSince yields events with Timestamp >= t. Events are time-ordered, so
// only the matching tail is copied.
func (w *Duration) EventsSince(t uint32) iter.Seq[aer.Event] {
	return filter(func() []aer.Event { return w.since(t) }, func(aer.Event) bool { return true })
}

func (w *Duration) since(t uint32) []aer.Event {
	w.mu.RLock()
	defer w.mu.RUnlock()

	live := w.events[w.start:]
	i := len(live)
	for i > 0 && live[i-1].Timestamp >= t {
		i--
	}
	out := make([]aer.Event, len(live)-i)
	copy(out, live[i:])
	return out
}

func (w *Duration) Reset() {
	w.mu.Lock()
	w.clear()
	w.mu.Unlock()
}

func (w *Duration) clear() {
	w.events = w.events[:0]
	w.start = 0
	w.latest = 0
}

func (w *Duration) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Stats{Len: len(w.events) - w.start, Pushed: w.pushed, Evicted: w.evicted, Resets: w.resets}
}
