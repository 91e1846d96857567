package internal

// fanoutBatchSize is the consumer count above which distribution is split
// across goroutines, 8 slots each.
const fanoutBatchSize = 8

// distribute assigns the global sequence number and stores batch in every
// consumer slot.
//
// Fan-out goroutines are not joined: distributing to a slot is a few
// pointer stores, far shorter than the interval between drains.
func (s *supplier) distribute(batch *Batch) {
	batch.Seq = s.publishSeq.Add(1)

	var slots []*consumerSlot
	s.slots.Range(func(_, value any) bool {
		slots = append(slots, value.(*consumerSlot))
		return true
	})

	if len(slots) <= fanoutBatchSize {
		for _, slot := range slots {
			slot.publish(batch)
		}
		return
	}

	for i := 0; i < len(slots); i += fanoutBatchSize {
		group := slots[i:min(i+fanoutBatchSize, len(slots))]
		go func() {
			for _, slot := range group {
				slot.publish(batch)
			}
		}()
	}
}
