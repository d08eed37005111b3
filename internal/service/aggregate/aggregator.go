// Package aggregate turns filtered detections into telemetry records under
// one of two reporting policies: immediate (one record per detection) or
// windowed (one record of per-frame averages per elapsed window).
package aggregate

import (
	"fmt"
	"time"

	"edgeagent/internal/model"
)

// Policy selects how detections are reported.
type Policy string

const (
	PolicyImmediate Policy = "immediate"
	PolicyWindowed  Policy = "windowed"
)

// Aggregator is updated once per processed frame by the producer loop only.
// Implementations are not safe for concurrent use.
type Aggregator interface {
	// Update folds one frame's detections in and returns the records to dispatch.
	Update(now time.Time, detections []model.Detection) []model.TelemetryRecord
	Policy() Policy
}

// Config selects and parameterizes a policy.
type Config struct {
	Policy             Policy
	Categories         model.CategoryMap
	WindowDuration     time.Duration
	MaxRecordsPerFrame int
}

// New creates the aggregator for cfg.Policy. start is the windowed policy's first
// window start; pass the zero time to open it at the first processed frame.
func New(cfg Config, start time.Time) (Aggregator, error) {
	switch cfg.Policy {
	case PolicyImmediate:
		return NewImmediate(cfg.MaxRecordsPerFrame), nil
	case PolicyWindowed:
		if cfg.WindowDuration <= 0 {
			return nil, fmt.Errorf("window duration must be > 0, got %v", cfg.WindowDuration)
		}
		return NewWindowed(cfg.Categories, cfg.WindowDuration, start), nil
	default:
		return nil, fmt.Errorf("unknown reporting policy %q", cfg.Policy)
	}
}
