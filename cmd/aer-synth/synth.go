package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/e7canasta/orion-event-sensor/modules/aer"
)

// synthConfig shapes a synthetic recording.
type synthConfig struct {
	Layout   aer.Layout
	Events   int
	Step     uint32 // ticks between consecutive events
	Bits     uint8  // hardware counter width
	Channels int    // 1 or 2
	BarWidth int    // columns lit at once
}

// synthStats summarizes what was written.
type synthStats struct {
	Events int
	Words  int
	Wraps  int
	Last   uint32 // unwrapped time of the last event
}

// writeMovingBar writes a vertical bar sweeping left to right. The leading
// edge fires ON events and the trailing edge OFF events. Timestamps are
// emitted as rolling counter words with a wrap marker on every overflow.
func writeMovingBar(w io.Writer, cfg synthConfig) (synthStats, error) {
	var stats synthStats
	width, height := cfg.Layout.Dimensions()
	if width == 0 {
		return stats, fmt.Errorf("unsupported layout %v", cfg.Layout)
	}
	if cfg.Bits == 0 || cfg.Bits > aer.MaxTimestampBits {
		return stats, fmt.Errorf("timestamp bits must be 1-%d, got %d", aer.MaxTimestampBits, cfg.Bits)
	}
	if cfg.Channels < 1 || cfg.Channels > 2 {
		return stats, fmt.Errorf("channels must be 1 or 2, got %d", cfg.Channels)
	}
	barWidth := max(cfg.BarWidth, 1)

	bw := bufio.NewWriter(w)
	var buf []byte
	epoch := make([]uint32, cfg.Channels) // wraps emitted per channel

	for i := 0; i < cfg.Events; i++ {
		t := uint32(i) * cfg.Step
		ch := uint8(i % cfg.Channels)

		for e := t >> cfg.Bits; epoch[ch] < e; epoch[ch]++ {
			buf = aer.AppendWord(buf, aer.WrapMarker(ch))
			stats.Wraps++
		}

		k := i / cfg.Channels
		sweep := (k / height) % (width + barWidth)
		ev := aer.Event{Y: uint16(k % height), Channel: ch}
		if k%2 == 0 {
			// leading edge
			if sweep >= width {
				continue
			}
			ev.X, ev.Polarity = uint16(sweep), 1
		} else {
			// trailing edge
			if sweep < barWidth {
				continue
			}
			ev.X, ev.Polarity = uint16(sweep-barWidth), -1
		}

		raw, err := aer.Encode(ev, cfg.Layout)
		if err != nil {
			return stats, err
		}
		buf = aer.AppendWord(buf, aer.TimestampWord(ch, t&(1<<cfg.Bits-1)))
		buf = aer.AppendWord(buf, raw)
		stats.Events++
		stats.Last = t

		if len(buf) >= 64<<10 {
			if _, err := bw.Write(buf); err != nil {
				return stats, err
			}
			stats.Words += len(buf) / aer.WordSize
			buf = buf[:0]
		}
	}

	if _, err := bw.Write(buf); err != nil {
		return stats, err
	}
	stats.Words += len(buf) / aer.WordSize
	return stats, bw.Flush()
}
