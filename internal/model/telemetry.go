package model

import "time"

// RecordKind tells which reporting policy produced a TelemetryRecord.
type RecordKind int

const (
	RecordImmediate RecordKind = iota
	RecordWindowed
)

func (k RecordKind) String() string {
	switch k {
	case RecordImmediate:
		return "immediate"
	case RecordWindowed:
		return "windowed"
	default:
		return "unknown"
	}
}

// CategoryAverage is the per-frame average of one category over a window.
type CategoryAverage struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
	Average  int      `json:"average"`
}

// TelemetryRecord is the payload-ready result of the aggregator. Treat it as immutable.
type TelemetryRecord struct {
	Kind      RecordKind `json:"kind"`
	CreatedAt time.Time  `json:"created_at"`

	// Immediate policy.
	ClassID  int      `json:"class_id,omitempty"`
	Category Category `json:"category,omitempty"`
	Score    float64  `json:"score,omitempty"`
	Box      BBox     `json:"box"`

	// Windowed policy.
	WindowStart time.Time         `json:"window_start"`
	WindowEnd   time.Time         `json:"window_end"`
	FrameCount  int               `json:"frame_count,omitempty"`
	Averages    []CategoryAverage `json:"averages,omitempty"`
}

// AggregationWindow is the accumulation state of the windowed policy.
// FrameCount counts frames the detector processed, not every captured frame.
type AggregationWindow struct {
	StartedAt  time.Time
	FrameCount int
	Counts     map[Category]int
}
