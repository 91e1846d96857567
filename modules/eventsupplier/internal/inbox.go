package internal

// Publish places batch in the inbox without blocking. An unconsumed batch is
// overwritten and counted in InboxDrops.
//
// Contract: batch MUST NOT be nil and MUST NOT be modified afterwards.
func (s *supplier) Publish(batch *Batch) {
	if s.stopping.Load() {
		return
	}

	s.inboxMu.Lock()
	if s.inboxBatch != nil {
		s.inboxDrops.Add(1)
	}
	s.inboxBatch = batch
	s.published.Add(1)
	s.inboxCond.Signal()
	s.inboxMu.Unlock()
}
