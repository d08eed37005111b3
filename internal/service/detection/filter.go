package detection

import "edgeagent/internal/model"

// Filter applies the confidence threshold and classifies detections.
type Filter struct {
	Threshold  float64
	Categories model.CategoryMap
}

// NewFilter creates a Filter. Detections scoring at or below threshold are dropped.
func NewFilter(threshold float64, categories model.CategoryMap) *Filter {
	return &Filter{Threshold: threshold, Categories: categories}
}

// Filter keeps detections with score > threshold, in input order, and maps
// their class id to a category. Unmapped ids fall into model.CategoryOther.
func (f *Filter) Filter(raw []model.RawDetection) []model.Detection {
	out := make([]model.Detection, 0, len(raw))
	for _, d := range raw {
		if d.Score <= f.Threshold {
			continue
		}
		out = append(out, model.Detection{
			ClassID:  d.ClassID,
			Category: f.Categories.Lookup(d.ClassID),
			Score:    d.Score,
			Box:      d.Box,
		})
	}
	return out
}
