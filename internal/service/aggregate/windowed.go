package aggregate

import (
	"time"

	"edgeagent/internal/model"
)

// Windowed counts detections per category over a wall-clock window and emits
// one record of per-frame averages when the window has elapsed.
type Windowed struct {
	categories model.CategoryMap
	names      []model.Category
	duration   time.Duration
	window     model.AggregationWindow
}

// NewWindowed creates the windowed policy with its first window starting at start.
// A zero start opens the first window at the first processed frame.
func NewWindowed(categories model.CategoryMap, duration time.Duration, start time.Time) *Windowed {
	a := &Windowed{
		categories: categories,
		names:      categories.Names(),
		duration:   duration,
	}
	a.reset(start)
	return a
}

func (a *Windowed) Policy() Policy { return PolicyWindowed }

// Update counts the frame, then flushes if now - StartedAt >= duration.
// The frame is counted before the elapsed check, so a flushed window always
// has FrameCount >= 1. A stalled stream flushes once; missed windows are not replayed.
// Only frames the detector processed reach Update: a frame skipped on a detector
// error does not count toward the average.
func (a *Windowed) Update(now time.Time, detections []model.Detection) []model.TelemetryRecord {
	if a.window.StartedAt.IsZero() {
		a.window.StartedAt = now
	}
	a.window.FrameCount++
	for _, d := range detections {
		c := d.Category
		if _, ok := a.window.Counts[c]; !ok {
			c = a.categories.Lookup(d.ClassID)
		}
		a.window.Counts[c]++
	}

	if now.Sub(a.window.StartedAt) < a.duration {
		return nil
	}

	record := a.flush(now)
	a.reset(now)
	return []model.TelemetryRecord{record}
}

// flush builds the record for the current window. Averages use integer
// division, so sparse categories truncate to 0.
func (a *Windowed) flush(now time.Time) model.TelemetryRecord {
	averages := make([]model.CategoryAverage, 0, len(a.names))
	for _, name := range a.names {
		count := a.window.Counts[name]
		averages = append(averages, model.CategoryAverage{
			Category: name,
			Count:    count,
			Average:  count / a.window.FrameCount,
		})
	}
	return model.TelemetryRecord{
		Kind:        model.RecordWindowed,
		CreatedAt:   now,
		WindowStart: a.window.StartedAt,
		WindowEnd:   now,
		FrameCount:  a.window.FrameCount,
		Averages:    averages,
	}
}

func (a *Windowed) reset(start time.Time) {
	counts := make(map[model.Category]int, len(a.names))
	for _, name := range a.names {
		counts[name] = 0
	}
	a.window = model.AggregationWindow{StartedAt: start, Counts: counts}
}

// Window returns a copy of the current accumulation state.
func (a *Windowed) Window() model.AggregationWindow {
	counts := make(map[model.Category]int, len(a.window.Counts))
	for k, v := range a.window.Counts {
		counts[k] = v
	}
	return model.AggregationWindow{
		StartedAt:  a.window.StartedAt,
		FrameCount: a.window.FrameCount,
		Counts:     counts,
	}
}
