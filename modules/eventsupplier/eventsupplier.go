// Package eventsupplier distributes decoded event batches from one stream to
// any number of consumers (trackers, detectors, emitters).
//
// Philosophy: "Drop batches, never queue. Latency > Completeness."
//
// Design:
//   - Non-blocking Publish (single-slot inbox, overwrite)
//   - Blocking Subscribe read function with mailbox semantics
//   - Zero-copy batch sharing (immutability contract)
//
// Consumers that need every event read windows instead; the supplier is for
// consumers that only care about the latest activity.
package eventsupplier

import (
	"context"

	"github.com/e7canasta/orion-event-sensor/modules/eventsupplier/internal"
)

// Batch is re-exported from the internal package.
// See internal/batch.go for full documentation.
type Batch = internal.Batch

// SupplierStats is re-exported from the internal package.
type SupplierStats = internal.SupplierStats

// ConsumerStats is re-exported from the internal package.
type ConsumerStats = internal.ConsumerStats

// ErrAlreadyStarted is returned by a second Start call.
var ErrAlreadyStarted = internal.ErrAlreadyStarted

// Supplier is the public interface for batch distribution.
//
// Lifecycle: New() → Start() → Publish()/Subscribe() → Stop()
// All methods are safe for concurrent use.
type Supplier interface {
	// Start spawns the distribution loop and returns immediately.
	Start(ctx context.Context) error

	// Stop shuts the distribution loop down. Blocked read functions return
	// nil; later Publish calls are no-ops. Idempotent.
	Stop() error

	// Publish hands a batch to the distribution loop (non-blocking).
	// An undistributed batch is overwritten and counted in InboxDrops.
	// batch MUST NOT be modified after Publish.
	Publish(batch *Batch)

	// Subscribe registers a consumer and returns a blocking read function.
	//
	// The read function returns the latest batch, or nil after Unsubscribe or
	// Stop. Batches not read in time are overwritten (TotalDrops).
	//
	// Example:
	//   read := supplier.Subscribe("tracker")
	//   defer supplier.Unsubscribe("tracker")
	//   for {
	//       batch := read()
	//       if batch == nil { break }
	//       track(batch.Events)
	//   }
	Subscribe(consumerID string) func() *Batch

	// Unsubscribe removes a consumer and wakes its read function. Idempotent.
	Unsubscribe(consumerID string)

	// Stats returns a snapshot of supplier and per-consumer counters.
	Stats() SupplierStats
}

// New creates a Supplier.
func New() Supplier {
	return internal.NewSupplier()
}
