package ring

// arena holds both halves of the double buffer in one allocation.
//
// The halves never move and are never copied during a swap: the role of each
// half is given by the active index alone. All methods require the ring mutex.
type arena struct {
	mem      []byte
	capacity int

	active int // index (0 or 1) of the half being filled by the producer
	offset int // fill level of the active half
	lost   uint64
}

func newArena(capacity int) arena {
	return arena{
		mem:      make([]byte, 2*capacity),
		capacity: capacity,
	}
}

func (a *arena) half(i int) []byte {
	return a.mem[i*a.capacity : (i+1)*a.capacity : (i+1)*a.capacity]
}

// commit copies p into the free tail of the active half. Bytes that do not
// fit are counted as lost and never written. firstLoss is true when this
// commit is the first one to lose bytes since the last swap.
func (a *arena) commit(p []byte) (written, lost int, firstLoss bool) {
	written = copy(a.half(a.active)[a.offset:], p)
	a.offset += written
	lost = len(p) - written
	firstLoss = lost > 0 && a.lost == 0
	a.lost += uint64(lost)
	return written, lost, firstLoss
}

// swap exchanges the active and ready roles and returns the filled part of
// the previous active half with its counters. The new active half starts
// empty with zero loss.
func (a *arena) swap() Drain {
	prev := a.active
	d := Drain{
		Data:      a.half(prev)[:a.offset],
		BytesRead: uint64(a.offset),
		BytesLost: a.lost,
	}
	a.active = 1 - prev
	a.offset = 0
	a.lost = 0
	return d
}

func (a *arena) buffered() int {
	return a.offset
}
