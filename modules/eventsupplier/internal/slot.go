package internal

import (
	"sync"
	"time"
)

// consumerSlot is a per-consumer mailbox: one batch, overwritten on publish,
// consumed by a blocking read.
type consumerSlot struct {
	mu    sync.Mutex
	cond  *sync.Cond
	batch *Batch

	lastConsumedAt   time.Time
	lastConsumedSeq  uint64
	consecutiveDrops uint64
	totalDrops       uint64

	closed bool
}

func newConsumerSlot() *consumerSlot {
	slot := &consumerSlot{lastConsumedAt: time.Now()}
	slot.cond = sync.NewCond(&slot.mu)
	return slot
}

func (slot *consumerSlot) publish(batch *Batch) {
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.closed {
		return
	}
	if slot.batch != nil {
		slot.consecutiveDrops++
		slot.totalDrops++
	}
	slot.batch = batch
	slot.cond.Signal()
}

// read blocks until a batch is available or the slot is closed (nil).
func (slot *consumerSlot) read() *Batch {
	slot.mu.Lock()
	defer slot.mu.Unlock()

	for slot.batch == nil && !slot.closed {
		slot.cond.Wait()
	}
	if slot.closed {
		return nil
	}

	batch := slot.batch
	slot.batch = nil
	slot.lastConsumedAt = time.Now()
	slot.lastConsumedSeq = batch.Seq
	slot.consecutiveDrops = 0
	return batch
}

func (slot *consumerSlot) close() {
	slot.mu.Lock()
	slot.closed = true
	slot.cond.Broadcast()
	slot.mu.Unlock()
}

// Subscribe registers a consumer and returns its blocking read function.
// After Stop it returns a read function that always yields nil.
//
// The read function MUST be called from a single goroutine. Subscribing an
// id that is already registered replaces (and closes) the previous slot.
func (s *supplier) Subscribe(consumerID string) func() *Batch {
	if s.stopping.Load() {
		return func() *Batch { return nil }
	}

	slot := newConsumerSlot()
	if prev, loaded := s.slots.Swap(consumerID, slot); loaded {
		prev.(*consumerSlot).close()
	}
	// Stop may have closed the slots between the check and the store.
	if s.stopping.Load() {
		slot.close()
	}
	return slot.read
}

// Unsubscribe closes the consumer's slot (its read function returns nil) and
// removes it from Stats. Idempotent.
func (s *supplier) Unsubscribe(consumerID string) {
	val, ok := s.slots.LoadAndDelete(consumerID)
	if !ok {
		return
	}
	val.(*consumerSlot).close()
}
