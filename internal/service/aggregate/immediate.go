package aggregate

import (
	"sort"
	"time"

	"edgeagent/internal/model"
)

// Immediate emits one record per qualifying detection. It keeps no window state.
type Immediate struct {
	maxPerFrame int
	dropped     uint64
}

// NewImmediate creates the immediate policy. maxPerFrame > 0 caps the records
// emitted for one frame; 0 emits every detection.
func NewImmediate(maxPerFrame int) *Immediate {
	return &Immediate{maxPerFrame: maxPerFrame}
}

func (a *Immediate) Policy() Policy { return PolicyImmediate }

// Update returns len(detections) records, in detection order, unless capped.
// When capped, the highest-scoring detections are kept and still emitted in detection order.
func (a *Immediate) Update(now time.Time, detections []model.Detection) []model.TelemetryRecord {
	if len(detections) == 0 {
		return nil
	}

	keep := detections
	if a.maxPerFrame > 0 && len(detections) > a.maxPerFrame {
		keep = topByScore(detections, a.maxPerFrame)
		a.dropped += uint64(len(detections) - len(keep))
	}

	records := make([]model.TelemetryRecord, 0, len(keep))
	for _, d := range keep {
		records = append(records, model.TelemetryRecord{
			Kind:      model.RecordImmediate,
			CreatedAt: now,
			ClassID:   d.ClassID,
			Category:  d.Category,
			Score:     d.Score,
			Box:       d.Box,
		})
	}
	return records
}

// Dropped counts detections discarded by the per-frame cap.
func (a *Immediate) Dropped() uint64 {
	return a.dropped
}

// topByScore returns the n best detections, preserving their original order.
func topByScore(detections []model.Detection, n int) []model.Detection {
	idx := make([]int, len(detections))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return detections[idx[i]].Score > detections[idx[j]].Score
	})
	idx = idx[:n]
	sort.Ints(idx)

	out := make([]model.Detection, 0, n)
	for _, i := range idx {
		out = append(out, detections[i])
	}
	return out
}
