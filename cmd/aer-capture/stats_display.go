package main

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/e7canasta/orion-event-sensor/modules/pipeline"
)

// statsDisplay prints a boxed summary per stats report.
type statsDisplay struct {
	mu   sync.Mutex
	out  io.Writer
	prev map[string]pipeline.StreamStats
	last map[string]time.Time
	now  func() time.Time
}

func newStatsDisplay(out io.Writer) *statsDisplay {
	return &statsDisplay{
		out:  out,
		prev: make(map[string]pipeline.StreamStats),
		last: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Sink prints each snapshot it receives. Safe to share between streams.
func (d *statsDisplay) Sink() pipeline.StatsSink {
	return d.print
}

func (d *statsDisplay) print(stats pipeline.StreamStats) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	rate := 0.0
	if prev, ok := d.prev[stats.Name]; ok {
		if dt := now.Sub(d.last[stats.Name]).Seconds(); dt > 0 {
			rate = float64(stats.Events-prev.Events) / dt
		}
	}
	d.prev[stats.Name] = stats
	d.last[stats.Name] = now

	w := d.out
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╭─────────────────────────────────────────────────────────────────╮")
	fmt.Fprintf(w, "│ Stream %s (%s, uptime %v)\n", stats.Name, stats.Layout, stats.Ring.Uptime.Round(time.Second))
	fmt.Fprintln(w, "├─────────────────────────────────────────────────────────────────┤")
	fmt.Fprintln(w, "│ Ingestion:")
	fmt.Fprintf(w, "│   Bytes Read:         %10.2f MB\n", float64(stats.Ring.BytesRead)/1024/1024)
	fmt.Fprintf(w, "│   Bytes Lost:         %10d (%.2f%%)\n", stats.Ring.BytesLost, stats.Ring.LossRate)
	fmt.Fprintf(w, "│   Drains:             %10d\n", stats.Ring.Drains)
	fmt.Fprintln(w, "│")
	fmt.Fprintln(w, "│ Decoding:")
	fmt.Fprintf(w, "│   Events:             %10d\n", stats.Events)
	fmt.Fprintf(w, "│   Event Rate:         %10.0f ev/s\n", rate)
	fmt.Fprintf(w, "│   Malformed:          %10d\n", stats.Decoder.Malformed)
	fmt.Fprintf(w, "│   Wraps / Resets:     %10d / %d\n", stats.Decoder.Wraps, stats.Decoder.Resets)
	if stats.OutOfBounds > 0 {
		fmt.Fprintf(w, "│   Out Of Bounds:      %10d\n", stats.OutOfBounds)
	}

	if len(stats.Windows) > 0 {
		fmt.Fprintln(w, "│")
		fmt.Fprintln(w, "│ Windows:")
		for _, name := range sortedKeys(stats.Windows) {
			ws := stats.Windows[name]
			fmt.Fprintf(w, "│   %-20s %10d events (%d evicted)\n", name+":", ws.Len, ws.Evicted)
		}
	}
	if len(stats.Surfaces) > 0 {
		fmt.Fprintln(w, "│")
		fmt.Fprintln(w, "│ Surfaces:")
		for _, name := range sortedKeys(stats.Surfaces) {
			ss := stats.Surfaces[name]
			fmt.Fprintf(w, "│   %-20s %10d updates (%d rejected)\n", name+":", ss.Updates, ss.Rejected)
		}
	}
	if stats.Supplier != nil {
		fmt.Fprintln(w, "│")
		fmt.Fprintln(w, "│ Supplier:")
		fmt.Fprintf(w, "│   Batches:            %10d\n", stats.Supplier.Published)
		fmt.Fprintf(w, "│   Inbox Drops:        %10d\n", stats.Supplier.InboxDrops)
		fmt.Fprintf(w, "│   Consumers:          %10d\n", len(stats.Supplier.Consumers))
	}
	fmt.Fprintln(w, "╰─────────────────────────────────────────────────────────────────╯")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
