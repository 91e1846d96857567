package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// rateStabilityThreshold is the maximum event-rate standard deviation as a
// fraction of the mean for a stream to count as stable.
const rateStabilityThreshold = 0.15

// RateSample is a cumulative event count observed at a point in time.
type RateSample struct {
	At     time.Time
	Events uint64
}

// RateStats describes event-rate stability over a warm-up period.
type RateStats struct {
	Samples  int
	Events   uint64
	Duration time.Duration
	RateMean float64 // events per second over the whole period
	RateStd  float64 // stddev of per-interval rates around RateMean
	RateMin  float64
	RateMax  float64
	IsStable bool // RateStd < 15% of RateMean
}

// CalculateRateStats computes rate statistics from cumulative samples taken
// in time order.
func CalculateRateStats(samples []RateSample) *RateStats {
	if len(samples) < 2 {
		return &RateStats{Samples: len(samples)}
	}

	first, last := samples[0], samples[len(samples)-1]
	total := last.At.Sub(first.At)
	events := last.Events - first.Events
	stats := &RateStats{
		Samples:  len(samples),
		Events:   events,
		Duration: total,
	}
	if total <= 0 {
		return stats
	}
	stats.RateMean = float64(events) / total.Seconds()

	rates := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		dt := samples[i].At.Sub(samples[i-1].At).Seconds()
		if dt > 0 {
			rates = append(rates, float64(samples[i].Events-samples[i-1].Events)/dt)
		}
	}
	if len(rates) == 0 {
		return stats
	}

	stats.RateMin, stats.RateMax = rates[0], rates[0]
	var sumSquares float64
	for _, r := range rates {
		stats.RateMin = math.Min(stats.RateMin, r)
		stats.RateMax = math.Max(stats.RateMax, r)
		diff := r - stats.RateMean
		sumSquares += diff * diff
	}
	stats.RateStd = math.Sqrt(sumSquares / float64(len(rates)))
	stats.IsStable = stats.RateMean > 0 && stats.RateStd < stats.RateMean*rateStabilityThreshold
	return stats
}

// Warmup samples the event counter of a running stream for d and reports
// whether the event rate is stable. Run must be active in another goroutine.
//
// Returns an error if ctx is cancelled or fewer than 3 samples were taken.
func (s *Stream) Warmup(ctx context.Context, d time.Duration) (*RateStats, error) {
	interval := max(d/20, 10*time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.Now().Add(d)
	samples := []RateSample{{At: time.Now(), Events: s.eventCount.Load()}}

	slog.Info("pipeline: warmup started", "stream", s.cfg.Name, "duration", d)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("pipeline: warmup of %q cancelled: %w", s.cfg.Name, ctx.Err())
		case now := <-ticker.C:
			samples = append(samples, RateSample{At: now, Events: s.eventCount.Load()})
		}
	}

	if len(samples) < 3 {
		return nil, fmt.Errorf("pipeline: warmup of %q: not enough samples (%d)", s.cfg.Name, len(samples))
	}

	stats := CalculateRateStats(samples)
	slog.Info("pipeline: warmup complete",
		"stream", s.cfg.Name,
		"events", stats.Events,
		"rate_mean", stats.RateMean,
		"rate_std", stats.RateStd,
		"stable", stats.IsStable,
	)
	return stats, nil
}
