package aer

import (
	"encoding/binary"
	"fmt"
)

// WordKind classifies a raw word by its top two bits.
type WordKind uint8

const (
	// KindData is an address event.
	KindData WordKind = 0b00
	// KindTimestamp carries the rolling hardware counter for one channel.
	KindTimestamp WordKind = 0b01
	// KindWrap signals that the channel counter overflowed.
	KindWrap WordKind = 0b10
	// KindReset signals that the channel counter was reset.
	KindReset WordKind = 0b11
)

const (
	kindShift = 30

	// payloadMask covers every bit below the kind tag.
	payloadMask uint32 = 1<<kindShift - 1

	// controlChannelBit selects the channel of timestamp and marker words.
	controlChannelBit uint32 = 1 << 29

	// counterMask covers the counter bits a timestamp word can carry.
	counterMask uint32 = controlChannelBit - 1
)

// String returns a short name for the word kind.
func (k WordKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindTimestamp:
		return "timestamp"
	case KindWrap:
		return "wrap"
	case KindReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Classify returns the kind of a raw word. It inspects the top two bits of the
// last byte of the little-endian word, i.e. bits 31..30.
func Classify(raw uint32) WordKind {
	return WordKind(raw >> kindShift)
}

// IsMarker reports whether raw is a wrap or reset marker.
func IsMarker(raw uint32) bool {
	k := Classify(raw)
	return k == KindWrap || k == KindReset
}

// ControlChannel returns the channel addressed by a timestamp or marker word.
func ControlChannel(raw uint32) uint8 {
	if raw&controlChannelBit != 0 {
		return 1
	}
	return 0
}

// TimestampWord builds a timestamp word for channel carrying counter bits.
// Bits above the counter field are discarded.
func TimestampWord(channel uint8, counter uint32) uint32 {
	return uint32(KindTimestamp)<<kindShift | channelBit(channel) | counter&counterMask
}

// TimestampBits returns the counter bits of a timestamp word.
func TimestampBits(raw uint32) uint32 {
	return raw & counterMask
}

// WrapMarker builds a wrap marker word for channel.
func WrapMarker(channel uint8) uint32 {
	return uint32(KindWrap)<<kindShift | channelBit(channel)
}

// ResetMarker builds a reset marker word for channel.
func ResetMarker(channel uint8) uint32 {
	return uint32(KindReset)<<kindShift | channelBit(channel)
}

func channelBit(channel uint8) uint32 {
	if channel&1 != 0 {
		return controlChannelBit
	}
	return 0
}

// Decode extracts an event from a data word. The returned event has a zero
// Timestamp: time comes from the Unwrapper, not from the address word.
//
// Errors:
//   - ErrUnsupportedLayout: unknown layout
//   - ErrNotDataWord: raw is a timestamp word or a marker
//   - ErrAddressRange: coordinates outside the resolution or reserved bits set
func Decode(raw uint32, layout Layout) (Event, error) {
	spec, err := lookup(layout)
	if err != nil {
		return Event{}, err
	}
	return decodeWith(spec, raw)
}

func decodeWith(spec *layoutSpec, raw uint32) (Event, error) {
	if kind := Classify(raw); kind != KindData {
		return Event{}, fmt.Errorf("%w: %s", ErrNotDataWord, kind)
	}
	if raw&payloadMask&^spec.used() != 0 {
		return Event{}, fmt.Errorf("%w: reserved bits set in 0x%08x", ErrAddressRange, raw)
	}

	x := int(spec.x.get(raw))
	y := int(spec.y.get(raw))
	if x >= spec.width || y >= spec.height {
		return Event{}, fmt.Errorf("%w: (%d,%d) outside %dx%d", ErrAddressRange, x, y, spec.width, spec.height)
	}
	if spec.mirrorX {
		x = spec.width - 1 - x
	}

	polarity := int8(-1)
	if spec.polarity.get(raw) != 0 {
		polarity = 1
	}

	return Event{
		X:        uint16(x),
		Y:        uint16(y),
		Polarity: polarity,
		Channel:  uint8(spec.channel.get(raw)),
		Type:     uint8(spec.typ.get(raw)),
	}, nil
}

// DecodeBytes decodes the first little-endian word of b.
// Returns ErrTruncated when len(b) < WordSize.
func DecodeBytes(b []byte, layout Layout) (Event, error) {
	if len(b) < WordSize {
		return Event{}, fmt.Errorf("%w: have %d bytes", ErrTruncated, len(b))
	}
	return Decode(binary.LittleEndian.Uint32(b), layout)
}

// Encode is the inverse of Decode: it packs the address fields of ev into a
// data word. Timestamp is ignored. Any Polarity > 0 encodes as ON.
func Encode(ev Event, layout Layout) (uint32, error) {
	spec, err := lookup(layout)
	if err != nil {
		return 0, err
	}

	x, y := int(ev.X), int(ev.Y)
	if x >= spec.width || y >= spec.height {
		return 0, fmt.Errorf("%w: (%d,%d) outside %dx%d", ErrAddressRange, x, y, spec.width, spec.height)
	}
	if uint32(ev.Channel) > spec.channel.max() || uint32(ev.Type) > spec.typ.max() {
		return 0, fmt.Errorf("%w: channel=%d type=%d not representable in %s",
			ErrAddressRange, ev.Channel, ev.Type, spec.name)
	}
	if spec.mirrorX {
		x = spec.width - 1 - x
	}

	var pol uint32
	if ev.Polarity > 0 {
		pol = 1
	}

	raw := spec.polarity.put(pol) |
		spec.x.put(uint32(x)) |
		spec.y.put(uint32(y)) |
		spec.typ.put(uint32(ev.Type)) |
		spec.channel.put(uint32(ev.Channel))
	return raw, nil
}

// AppendWord appends raw to b in little-endian order.
func AppendWord(b []byte, raw uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, raw)
}
