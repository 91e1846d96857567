package internal

import "time"

// SupplierStats is a snapshot of supplier operational state.
type SupplierStats struct {
	// Published counts batches handed to Publish.
	Published uint64

	// InboxDrops counts batches overwritten in the inbox before distribution.
	// Should be ~0: distribution is a handful of pointer stores per consumer.
	InboxDrops uint64

	// Consumers maps consumer id to per-consumer statistics.
	Consumers map[string]ConsumerStats
}

// ConsumerStats tracks per-consumer operational state.
type ConsumerStats struct {
	ConsumerID string

	// LastConsumedAt is the wall-clock time of the last successful read.
	LastConsumedAt time.Time

	// LastConsumedSeq is the Seq of the last batch read.
	LastConsumedSeq uint64

	// ConsecutiveDrops is the current streak of batches overwritten before
	// being read. Resets to 0 on read.
	ConsecutiveDrops uint64

	// TotalDrops is the lifetime count of overwritten batches.
	TotalDrops uint64

	// IsIdle is true when nothing was read for longer than the idle threshold.
	IsIdle bool
}
