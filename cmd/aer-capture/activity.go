package main

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-event-sensor/modules/eventsupplier"
)

// activityConsumer reads batches from a stream's supplier and tracks event
// polarity, batch latency and the activity centroid.
type activityConsumer struct {
	id     string
	logger *slog.Logger

	batches        atomic.Uint64
	events         atomic.Uint64
	on             atomic.Uint64
	skipped        atomic.Uint64 // sequence gaps: batches overwritten before we read them
	totalLatencyUs atomic.Uint64
}

func newActivityConsumer(stream string) *activityConsumer {
	id := "activity-" + stream
	return &activityConsumer{id: id, logger: slog.With("consumer", id)}
}

// Run blocks until the supplier stops or the consumer is unsubscribed.
func (c *activityConsumer) Run(supplier eventsupplier.Supplier) {
	read := supplier.Subscribe(c.id)
	defer supplier.Unsubscribe(c.id)
	c.logger.Info("activity: consumer started")

	var lastSeq uint64
	for {
		batch := read()
		if batch == nil {
			c.logger.Info("activity: consumer stopped", "batches", c.batches.Load())
			return
		}
		if lastSeq > 0 && batch.Seq > lastSeq+1 {
			c.skipped.Add(batch.Seq - lastSeq - 1)
		}
		lastSeq = batch.Seq
		c.process(batch)
	}
}

func (c *activityConsumer) process(b *eventsupplier.Batch) {
	var on, sx, sy uint64
	for _, ev := range b.Events {
		if ev.On() {
			on++
		}
		sx += uint64(ev.X)
		sy += uint64(ev.Y)
	}
	latency := time.Since(b.Captured)

	c.batches.Add(1)
	c.events.Add(uint64(len(b.Events)))
	c.on.Add(on)
	c.totalLatencyUs.Add(uint64(latency.Microseconds()))

	if n := uint64(len(b.Events)); n > 0 {
		c.logger.Debug("activity: batch",
			"seq", b.Seq,
			"trace_id", b.TraceID,
			"events", n,
			"span_ticks", b.Last-b.First,
			"centroid_x", float64(sx)/float64(n),
			"centroid_y", float64(sy)/float64(n),
			"latency_us", latency.Microseconds(),
		)
	}
}

// activityStats summarizes a consumer.
type activityStats struct {
	ID         string
	Batches    uint64
	Events     uint64
	OnRatio    float64
	Skipped    uint64
	AvgLatency time.Duration
}

func (c *activityConsumer) Stats() activityStats {
	s := activityStats{
		ID:      c.id,
		Batches: c.batches.Load(),
		Events:  c.events.Load(),
		Skipped: c.skipped.Load(),
	}
	if s.Events > 0 {
		s.OnRatio = float64(c.on.Load()) / float64(s.Events)
	}
	if s.Batches > 0 {
		s.AvgLatency = time.Duration(c.totalLatencyUs.Load()/s.Batches) * time.Microsecond
	}
	return s
}
