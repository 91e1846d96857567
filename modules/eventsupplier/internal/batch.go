package internal

import (
	"time"

	"github.com/e7canasta/orion-event-sensor/modules/aer"
)

// Batch is the set of events decoded from one ring drain.
//
// IMMUTABILITY CONTRACT:
//   - Publisher: MUST NOT modify Events after Publish(batch)
//   - Consumers: read-only access, the same batch is shared by every slot
//
// Zero-copy chain:
//
//	Ring drain → Decoder → *Batch.Events
//	                          ↓ (0 copies)
//	                     Inbox mailbox
//	                          ↓ (0 copies)
//	                     Consumer slots (N)
type Batch struct {
	// Stream is the name of the stream that produced the events.
	Stream string

	// Events in arrival order (non-decreasing timestamps except after a reset).
	Events []aer.Event

	// First and Last are the timestamps of the first and last event.
	First uint32
	Last  uint32

	// BytesLost is the ring loss reported with the drain this batch came from.
	BytesLost uint64

	// Captured is the wall-clock time of the drain.
	Captured time.Time

	// TraceID identifies the batch across logs and emitters.
	TraceID string

	// Seq is assigned by the supplier during distribution. Monotonic.
	Seq uint64
}
