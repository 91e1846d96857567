package internal

import "time"

// idleThreshold marks a consumer idle when it has not read for this long.
const idleThreshold = 30 * time.Second

// Stats returns a snapshot of the supplier counters. Thread-safe.
func (s *supplier) Stats() SupplierStats {
	consumers := make(map[string]ConsumerStats)

	s.slots.Range(func(key, value any) bool {
		id := key.(string)
		slot := value.(*consumerSlot)

		slot.mu.Lock()
		consumers[id] = ConsumerStats{
			ConsumerID:       id,
			LastConsumedAt:   slot.lastConsumedAt,
			LastConsumedSeq:  slot.lastConsumedSeq,
			ConsecutiveDrops: slot.consecutiveDrops,
			TotalDrops:       slot.totalDrops,
			IsIdle:           time.Since(slot.lastConsumedAt) > idleThreshold,
		}
		slot.mu.Unlock()
		return true
	})

	return SupplierStats{
		Published:  s.published.Load(),
		InboxDrops: s.inboxDrops.Load(),
		Consumers:  consumers,
	}
}
