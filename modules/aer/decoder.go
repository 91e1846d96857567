package aer

import (
	"encoding/binary"
	"fmt"
)

// Channels is the number of independent channels a word stream can address.
// Channels keep separate clocks; no ordering holds between them.
const Channels = 2

// DecoderStats counts what a Decoder has seen so far.
type DecoderStats struct {
	// Words is the number of complete words consumed.
	Words uint64
	// Events is the number of data words decoded into events.
	Events uint64
	// Malformed counts data words rejected by the codec (skipped).
	Malformed uint64
	// Truncated counts trailing bytes discarded by Flush.
	Truncated uint64
	// Wraps and Resets count the markers applied, all channels together.
	Wraps  uint64
	Resets uint64
	// Backsteps counts events whose timestamp went backwards on their
	// channel. After a reset marker this is expected.
	Backsteps uint64
}

type channelState struct {
	unwrap  *Unwrapper
	counter uint32 // last raw counter bits
	last    uint32 // last unwrapped timestamp handed out
	seen    bool
}

// Decoder turns a chunked byte stream into events for one stream.
//
// It owns one Unwrapper per channel and carries partial words across Decode
// calls. A Decoder is owned by a single goroutine.
type Decoder struct {
	layout Layout
	spec   *layoutSpec

	ch     [Channels]channelState
	carry  [WordSize]byte
	carryN int

	stats DecoderStats
}

// DecoderOption customises a Decoder.
type DecoderOption func(*decoderConfig)

type decoderConfig struct {
	timestampBits uint8
}

// WithTimestampBits sets the hardware counter width (default DefaultTimestampBits).
func WithTimestampBits(bits uint8) DecoderOption {
	return func(c *decoderConfig) {
		c.timestampBits = bits
	}
}

// NewDecoder creates a Decoder for layout.
func NewDecoder(layout Layout, opts ...DecoderOption) (*Decoder, error) {
	spec, err := lookup(layout)
	if err != nil {
		return nil, err
	}

	cfg := decoderConfig{timestampBits: DefaultTimestampBits}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.timestampBits == 0 || cfg.timestampBits > MaxTimestampBits {
		return nil, fmt.Errorf("aer: invalid timestamp width %d (must be 1-%d)", cfg.timestampBits, MaxTimestampBits)
	}

	d := &Decoder{layout: layout, spec: spec}
	for i := range d.ch {
		d.ch[i].unwrap = NewUnwrapper(cfg.timestampBits)
	}
	return d, nil
}

// Layout returns the layout the decoder was built for.
func (d *Decoder) Layout() Layout {
	return d.layout
}

// Decode consumes chunk and appends the decoded events to dst.
// A trailing partial word is kept and completed by the next call.
func (d *Decoder) Decode(chunk []byte, dst []Event) []Event {
	if d.carryN > 0 {
		n := copy(d.carry[d.carryN:], chunk)
		d.carryN += n
		chunk = chunk[n:]
		if d.carryN < WordSize {
			return dst
		}
		dst = d.word(binary.LittleEndian.Uint32(d.carry[:]), dst)
		d.carryN = 0
	}

	for len(chunk) >= WordSize {
		dst = d.word(binary.LittleEndian.Uint32(chunk), dst)
		chunk = chunk[WordSize:]
	}

	if len(chunk) > 0 {
		d.carryN = copy(d.carry[:], chunk)
	}
	return dst
}

// Pending returns the number of bytes of an incomplete word held over.
func (d *Decoder) Pending() int {
	return d.carryN
}

// Flush discards an incomplete trailing word at end of stream and returns
// the number of bytes dropped. They are counted in Stats().Truncated.
func (d *Decoder) Flush() int {
	n := d.carryN
	d.carryN = 0
	d.stats.Truncated += uint64(n)
	return n
}

// Unwrapper returns the unwrap state of channel (0 or 1).
func (d *Decoder) Unwrapper(channel uint8) *Unwrapper {
	return d.ch[channel&1].unwrap
}

// Stats returns a copy of the decoder counters.
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

func (d *Decoder) word(raw uint32, dst []Event) []Event {
	d.stats.Words++

	switch Classify(raw) {
	case KindTimestamp:
		d.ch[ControlChannel(raw)].counter = TimestampBits(raw)

	case KindWrap:
		c := &d.ch[ControlChannel(raw)]
		c.unwrap.OnWrap()
		c.counter = 0
		d.stats.Wraps++

	case KindReset:
		c := &d.ch[ControlChannel(raw)]
		c.unwrap.OnReset()
		c.counter = 0
		d.stats.Resets++

	default:
		ev, err := decodeWith(d.spec, raw)
		if err != nil {
			d.stats.Malformed++
			return dst
		}
		c := &d.ch[ev.Channel&1]
		ev.Timestamp = c.unwrap.Unwrap(c.counter)
		if c.seen && ev.Timestamp < c.last {
			d.stats.Backsteps++
		}
		c.last = ev.Timestamp
		c.seen = true
		d.stats.Events++
		dst = append(dst, ev)
	}
	return dst
}
