// Package window keeps bounded, time-ordered sequences of decoded events.
//
// Two eviction policies share one contract:
//   - Count: the last N events (ring buffer)
//   - Duration: every event with Timestamp >= latest - span
//
// A window has one writer (the stream's decode loop) and any number of
// readers. Queries iterate over a copy taken under the read lock, so an
// iterator never observes a concurrent Push and may be restarted at will.
//
// Timestamps are expected to be non-decreasing. A timestamp lower than the
// latest one can only follow a sensor reset; the window is cleared before the
// event is inserted.
package window

import (
	"errors"
	"iter"

	"github.com/e7canasta/orion-event-sensor/modules/aer"
)

// ErrInvalidSize is returned for a zero count or zero span.
var ErrInvalidSize = errors.New("window: size must be positive")

// Window is the common query surface of Count and Duration.
type Window interface {
	// Push appends ev at the tail, evicting from the head as needed.
	Push(ev aer.Event)

	// Len returns the number of events held.
	Len() int

	// Snapshot returns a copy of the held events, oldest first.
	Snapshot() []aer.Event

	// EventsInRadius yields held events with |ev.X-x| <= r and |ev.Y-y| <= r,
	// oldest first.
	EventsInRadius(x, y, r int) iter.Seq[aer.Event]

	// EventsSince yields held events with Timestamp >= t, oldest first.
	EventsSince(t uint32) iter.Seq[aer.Event]

	// Reset drops every held event.
	Reset()

	// Stats returns window counters.
	Stats() Stats
}

// Stats contains window counters.
type Stats struct {
	Len     int
	Pushed  uint64
	Evicted uint64
	Resets  uint64 // clears caused by a backward timestamp
}

func inRadius(ev aer.Event, x, y, r int) bool {
	dx := int(ev.X) - x
	dy := int(ev.Y) - y
	return dx >= -r && dx <= r && dy >= -r && dy <= r
}

// filter yields the events of a point-in-time copy that match keep.
// The copy is taken lazily on each iteration start, so the sequence is
// restartable and sees the window as of that moment.
func filter(snapshot func() []aer.Event, keep func(aer.Event) bool) iter.Seq[aer.Event] {
	return func(yield func(aer.Event) bool) {
		for _, ev := range snapshot() {
			if keep(ev) && !yield(ev) {
				return
			}
		}
	}
}

var (
	_ Window = (*Count)(nil)
	_ Window = (*Duration)(nil)
)
