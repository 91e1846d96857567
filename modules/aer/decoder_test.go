package aer_test

import (
	"errors"
	"testing"

	"github.com/e7canasta/orion-event-sensor/modules/aer"
)

func words(raws ...uint32) []byte {
	var b []byte
	for _, r := range raws {
		b = aer.AppendWord(b, r)
	}
	return b
}

// TestDecodeStream_EndToEnd feeds one data word and one wrap marker.
//
// Expect: exactly one event {64, 0, +1, 0}; the wrap marker yields no event
// and advances the channel offset by 2^14.
func TestDecodeStream_EndToEnd(t *testing.T) {
	dec, err := aer.NewDecoder(aer.LayoutATIS20)
	if err != nil {
		t.Fatalf("NewDecoder() failed: %v", err)
	}

	events := dec.Decode(words(0x00081), nil)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	want := aer.Event{X: 64, Y: 0, Polarity: 1, Channel: 0}
	if events[0] != want {
		t.Errorf("event = %+v, want %+v", events[0], want)
	}

	events = dec.Decode(words(aer.WrapMarker(0)), events[:0])
	if len(events) != 0 {
		t.Errorf("wrap marker produced %d events, want 0", len(events))
	}
	if got := dec.Unwrapper(0).Offset(); got != 1<<14 {
		t.Errorf("wrap offset = %d, want %d", got, 1<<14)
	}

	// Same through the batch entry point.
	batch, err := aer.DecodeStream(words(0x00081, aer.WrapMarker(0)), aer.LayoutATIS20)
	if err != nil {
		t.Fatalf("DecodeStream() failed: %v", err)
	}
	if len(batch) != 1 || batch[0] != want {
		t.Errorf("DecodeStream() = %+v, want [%+v]", batch, want)
	}
}

func TestDecoder_TimestampWordsAndWraps(t *testing.T) {
	dec, _ := aer.NewDecoder(aer.LayoutATIS20)

	events := dec.Decode(words(
		aer.TimestampWord(0, 16000), 0x81,
		aer.WrapMarker(0), 0x81,
		aer.TimestampWord(0, 10), 0x81,
	), nil)

	want := []uint32{16000, 1 << 14, 1<<14 + 10}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, ts := range want {
		if events[i].Timestamp != ts {
			t.Errorf("event %d timestamp = %d, want %d", i, events[i].Timestamp, ts)
		}
	}
}

// TestDecoder_ChannelsHaveIndependentUnwrap ensures a wrap on the left eye
// does not shift the right eye.
func TestDecoder_ChannelsHaveIndependentUnwrap(t *testing.T) {
	dec, _ := aer.NewDecoder(aer.LayoutATIS20)
	right := uint32(0x81 | 1<<19)

	events := dec.Decode(words(
		aer.TimestampWord(0, 100), aer.TimestampWord(1, 100),
		aer.WrapMarker(0),
		aer.TimestampWord(0, 50), 0x81,
		aer.TimestampWord(1, 150), right,
	), nil)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Channel != 0 || events[0].Timestamp != 1<<14+50 {
		t.Errorf("left event = %+v, want channel 0 at %d", events[0], 1<<14+50)
	}
	if events[1].Channel != 1 || events[1].Timestamp != 150 {
		t.Errorf("right event = %+v, want channel 1 at 150", events[1])
	}
}

// TestDecoder_SplitChunks feeds a stream one byte at a time.
func TestDecoder_SplitChunks(t *testing.T) {
	stream := words(aer.TimestampWord(0, 7), 0x81, 0x81|5<<10)

	dec, _ := aer.NewDecoder(aer.LayoutATIS20)
	var events []aer.Event
	for i := range stream {
		events = dec.Decode(stream[i:i+1], events)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Y != 5 || events[1].Timestamp != 7 {
		t.Errorf("second event = %+v, want y=5 t=7", events[1])
	}
	if dec.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", dec.Pending())
	}
}

func TestDecoder_MalformedWordsAreSkippedAndCounted(t *testing.T) {
	dec, _ := aer.NewDecoder(aer.LayoutATIS20)

	events := dec.Decode(words(0x81, 400<<1, 0x81|1<<25, 0x83), nil)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	stats := dec.Stats()
	if stats.Malformed != 2 {
		t.Errorf("Malformed = %d, want 2", stats.Malformed)
	}
	if stats.Words != 4 || stats.Events != 2 {
		t.Errorf("Words=%d Events=%d, want 4 and 2", stats.Words, stats.Events)
	}
}

func TestDecoder_ResetCountsBackstep(t *testing.T) {
	dec, _ := aer.NewDecoder(aer.LayoutATIS20)

	events := dec.Decode(words(
		aer.TimestampWord(0, 9000), 0x81,
		aer.ResetMarker(0),
		aer.TimestampWord(0, 3), 0x81,
	), nil)

	if len(events) != 2 || events[1].Timestamp != 3 {
		t.Fatalf("events = %+v, want second at t=3", events)
	}
	stats := dec.Stats()
	if stats.Resets != 1 || stats.Backsteps != 1 {
		t.Errorf("Resets=%d Backsteps=%d, want 1 and 1", stats.Resets, stats.Backsteps)
	}
}

func TestDecodeStream_TrailingBytes(t *testing.T) {
	data := append(words(0x81), 0x01, 0x02)

	events, err := aer.DecodeStream(data, aer.LayoutATIS20)
	if !errors.Is(err, aer.ErrTruncated) {
		t.Errorf("error = %v, want ErrTruncated", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d events, want 1 decoded before the truncation", len(events))
	}
}

func TestNewDecoder_Validation(t *testing.T) {
	if _, err := aer.NewDecoder(aer.LayoutUnknown); !errors.Is(err, aer.ErrUnsupportedLayout) {
		t.Errorf("error = %v, want ErrUnsupportedLayout", err)
	}
	if _, err := aer.NewDecoder(aer.LayoutATIS20, aer.WithTimestampBits(30)); err == nil {
		t.Error("expected error for 30-bit timestamps")
	}
}
