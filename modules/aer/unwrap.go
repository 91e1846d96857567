package aer

// DefaultTimestampBits is the width of the rolling hardware counter on the
// historical boards.
const DefaultTimestampBits = 14

// MaxTimestampBits is the widest counter a timestamp word can carry.
const MaxTimestampBits = 29

// Unwrapper reconstructs a monotonic clock from a rolling counter.
//
// It is per-stream, per-channel state owned by a single goroutine; it is not
// safe for concurrent use.
type Unwrapper struct {
	wrapAdd  uint32
	bitWidth uint8
	mask     uint32

	wraps  uint64
	resets uint64
}

// NewUnwrapper creates an Unwrapper for a counter of bitWidth bits.
// Widths outside 1..MaxTimestampBits fall back to DefaultTimestampBits.
func NewUnwrapper(bitWidth uint8) *Unwrapper {
	if bitWidth == 0 || bitWidth > MaxTimestampBits {
		bitWidth = DefaultTimestampBits
	}
	return &Unwrapper{
		bitWidth: bitWidth,
		mask:     1<<bitWidth - 1,
	}
}

// Unwrap returns the counter bits plus the accumulated wrap offset.
func (u *Unwrapper) Unwrap(bits uint32) uint32 {
	return bits&u.mask + u.wrapAdd
}

// OnWrap advances the offset by one full counter period.
func (u *Unwrapper) OnWrap() {
	u.wrapAdd += 1 << u.bitWidth
	u.wraps++
}

// OnReset clears the offset. The next unwrapped values will usually be
// smaller than the previous ones.
func (u *Unwrapper) OnReset() {
	u.wrapAdd = 0
	u.resets++
}

// Offset returns the current wrap offset.
func (u *Unwrapper) Offset() uint32 {
	return u.wrapAdd
}

// BitWidth returns the counter width.
func (u *Unwrapper) BitWidth() uint8 {
	return u.bitWidth
}

// Wraps returns the number of wrap markers applied.
func (u *Unwrapper) Wraps() uint64 {
	return u.wraps
}

// Resets returns the number of reset markers applied.
func (u *Unwrapper) Resets() uint64 {
	return u.resets
}
