// Package aer decodes Address-Event Representation (AER) word streams produced
// by silicon-retina cameras into timestamped events.
//
// # Word Stream
//
// A stream is a flat sequence of 4-byte little-endian words. The top two bits
// of the last byte classify each word:
//
//	00  data word       address event in the selected Layout
//	01  timestamp word  bit 29 = channel, low bits = rolling hardware counter
//	10  wrap marker     bit 29 = channel, counter overflowed
//	11  reset marker    bit 29 = channel, counter was reset externally
//
// Data words carry no time of their own: they take the unwrapped value of the
// last timestamp word seen on their channel.
//
// # Layouts
//
// Each Layout is a fixed wire contract (mask/shift table) for one sensor
// generation:
//
//   - LayoutDVS128: 128x128, 7-bit x (mirrored), 7-bit y, polarity, channel
//   - LayoutDVS128Raw: same fields, x not mirrored
//   - LayoutDVS128Skin: LayoutDVS128 plus a skin flag exposed as Event.Type
//   - LayoutATIS20: 304x240, 9-bit x, 8-bit y, type, channel, polarity
//   - LayoutATIS24: 304x240 with shifted field offsets (11-bit x, 10-bit y)
//
// The three 128x128 variants are kept as distinct formats: they were observed
// in different recordings and none of them is canonical.
//
// # Timestamps
//
// The hardware counter is only DefaultTimestampBits wide. An Unwrapper turns it
// into a monotonic clock by adding 2^bits on every wrap marker and clearing the
// offset on every reset marker. A reset makes the clock jump backwards; this is
// a legal discontinuity and consumers must treat it as a request to reset their
// own temporal state.
//
// Each channel (e.g. left/right eye) owns its own Unwrapper. A Decoder keeps
// one per channel so a wrap on one eye never shifts the other.
//
// # Usage
//
// Offline logs:
//
//	events, err := aer.DecodeStream(data, aer.LayoutATIS20)
//
// Live chunks (word boundaries may be split across chunks):
//
//	dec, _ := aer.NewDecoder(aer.LayoutATIS20)
//	for chunk := range chunks {
//	    events = dec.Decode(chunk, events[:0])
//	}
//	stats := dec.Stats() // Malformed, Wraps, Resets, ...
//
// Malformed words are skipped and counted; decoding never aborts a stream.
package aer
