package types

import (
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/e7canasta/orion-event-sensor/modules/pipeline"
)

// StreamReport is the wire form of one stream's stats snapshot
type StreamReport struct {
	InstanceID   string `json:"instance_id"`
	Stream       string `json:"stream"`
	SessionID    string `json:"session_id"`
	Layout       string `json:"layout"`
	TimestampStr string `json:"timestamp"`

	Ring    RingReport    `json:"ring"`
	Decoder DecoderReport `json:"decoder"`

	Events      uint64 `json:"events"`
	Batches     uint64 `json:"batches"`
	OutOfBounds uint64 `json:"out_of_bounds"`

	Windows  map[string]WindowReport  `json:"windows,omitempty"`
	Surfaces map[string]SurfaceReport `json:"surfaces,omitempty"`

	ConsumersIdle int `json:"consumers_idle"`
	Consumers     int `json:"consumers"`
}

// RingReport contains ingestion counters
type RingReport struct {
	Running       bool    `json:"running"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	BytesRead     uint64  `json:"bytes_read"`
	BytesLost     uint64  `json:"bytes_lost"`
	LossRate      float64 `json:"loss_rate"`
	Drains        uint64  `json:"drains"`
	Buffered      int     `json:"buffered"`
}

// DecoderReport contains decoding counters
type DecoderReport struct {
	Words     uint64 `json:"words"`
	Malformed uint64 `json:"malformed"`
	Truncated uint64 `json:"truncated"`
	Wraps     uint64 `json:"wraps"`
	Resets    uint64 `json:"resets"`
	Backsteps uint64 `json:"backsteps"`
}

// WindowReport contains window occupancy
type WindowReport struct {
	Len     int    `json:"len"`
	Evicted uint64 `json:"evicted"`
	Resets  uint64 `json:"resets"`
}

// SurfaceReport contains surface update counters
type SurfaceReport struct {
	Updates  uint64  `json:"updates"`
	Rejected uint64  `json:"rejected"`
	Resets   uint64  `json:"resets"`
	Latest   float64 `json:"latest"`
}

// NewStreamReport flattens a stats snapshot for publishing
func NewStreamReport(instanceID string, s pipeline.StreamStats, now time.Time) *StreamReport {
	r := &StreamReport{
		InstanceID:   instanceID,
		Stream:       s.Name,
		SessionID:    s.Ring.SessionID,
		Layout:       s.Layout,
		TimestampStr: now.UTC().Format(time.RFC3339Nano),
		Ring: RingReport{
			Running:       s.Ring.Running,
			UptimeSeconds: s.Ring.Uptime.Seconds(),
			BytesRead:     s.Ring.BytesRead,
			BytesLost:     s.Ring.BytesLost,
			LossRate:      s.Ring.LossRate,
			Drains:        s.Ring.Drains,
			Buffered:      s.Ring.Buffered,
		},
		Decoder: DecoderReport{
			Words:     s.Decoder.Words,
			Malformed: s.Decoder.Malformed,
			Truncated: s.Decoder.Truncated,
			Wraps:     s.Decoder.Wraps,
			Resets:    s.Decoder.Resets,
			Backsteps: s.Decoder.Backsteps,
		},
		Events:      s.Events,
		Batches:     s.Batches,
		OutOfBounds: s.OutOfBounds,
	}

	if len(s.Windows) > 0 {
		r.Windows = make(map[string]WindowReport, len(s.Windows))
		for name, w := range s.Windows {
			r.Windows[name] = WindowReport{Len: w.Len, Evicted: w.Evicted, Resets: w.Resets}
		}
	}
	if len(s.Surfaces) > 0 {
		r.Surfaces = make(map[string]SurfaceReport, len(s.Surfaces))
		for name, sf := range s.Surfaces {
			r.Surfaces[name] = SurfaceReport{
				Updates:  sf.Updates,
				Rejected: sf.Rejected,
				Resets:   sf.Resets,
				Latest:   sf.Latest,
			}
		}
	}
	if s.Supplier != nil {
		r.Consumers = len(s.Supplier.Consumers)
		for _, c := range s.Supplier.Consumers {
			if c.IsIdle {
				r.ConsumersIdle++
			}
		}
	}
	return r
}

// ToJSON encodes the report
func (r *StreamReport) ToJSON() ([]byte, error) {
	return sonnet.Marshal(r)
}
