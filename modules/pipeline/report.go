package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// StatsSink receives periodic stream stats (MQTT emitter, session journal).
type StatsSink func(StreamStats)

// Report logs one line per interval with the stream's loss counters and
// hands the same snapshot to every sink. Blocks until ctx is cancelled.
func (s *Stream) Report(ctx context.Context, interval time.Duration, sinks ...StatsSink) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var prev StreamStats
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stats := s.Stats()
		rate := float64(stats.Events-prev.Events) / interval.Seconds()

		slog.Info("pipeline: stream stats",
			"stream", stats.Name,
			"events", stats.Events,
			"event_rate", rate,
			"bytes_read", stats.Ring.BytesRead,
			"bytes_lost", stats.Ring.BytesLost,
			"loss_rate", stats.Ring.LossRate,
			"malformed", stats.Decoder.Malformed,
			"wraps", stats.Decoder.Wraps,
			"resets", stats.Decoder.Resets,
			"out_of_bounds", stats.OutOfBounds,
		)
		if stats.Ring.BytesLost > prev.Ring.BytesLost {
			slog.Warn("pipeline: ring overflow, consumer too slow",
				"stream", stats.Name,
				"lost_since_last_report", stats.Ring.BytesLost-prev.Ring.BytesLost,
			)
		}

		for _, sink := range sinks {
			sink(stats)
		}
		prev = stats
	}
}
