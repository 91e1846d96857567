package aer

// Event is a single decoded address event.
//
// Events are plain values: they are copied into windows and surfaces and
// never mutated after decoding.
type Event struct {
	// X is the column, already mirrored for layouts that require it.
	X uint16
	// Y is the row.
	Y uint16
	// Polarity is +1 (ON) or -1 (OFF).
	Polarity int8
	// Channel identifies the camera/eye on multi-camera rigs (0 or 1).
	Channel uint8
	// Type is the layout's type bit: ATIS change-detection (0) vs exposure
	// measurement (1), or the skin flag on LayoutDVS128Skin. Zero otherwise.
	Type uint8
	// Timestamp is the unwrapped clock in hardware ticks.
	Timestamp uint32
}

// On reports whether the event has positive polarity.
func (e Event) On() bool {
	return e.Polarity > 0
}
