package model

import (
	"image"
	"time"
)

// BBox is a bounding box in normalized [0,1] coordinates as produced by the SSD output layer.
type BBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Scale converts the box to pixel coordinates for a frame of the given size.
func (b BBox) Scale(width, height int) image.Rectangle {
	return image.Rect(
		int(b.Left*float64(width)),
		int(b.Top*float64(height)),
		int(b.Right*float64(width)),
		int(b.Bottom*float64(height)),
	)
}

// RawDetection is one object reported by the detector for one frame.
type RawDetection struct {
	ClassID int     `json:"class_id"`
	Score   float64 `json:"score"`
	Box     BBox    `json:"box"`
}

// Detection is a RawDetection that passed the confidence filter and was classified.
type Detection struct {
	ClassID  int      `json:"class_id"`
	Category Category `json:"category"`
	Score    float64  `json:"score"`
	Box      BBox     `json:"box"`
}

// FrameFormat tells the detector how Frame.Data is laid out.
type FrameFormat int

const (
	// FormatBGR is a raw 8-bit, 3-channel pixel buffer of Width*Height*3 bytes.
	FormatBGR FrameFormat = iota
	// FormatJPEG is an encoded JPEG image.
	FormatJPEG
)

// Frame is one captured image, opaque to everything except the detector.
type Frame struct {
	Seq        uint64
	Source     string
	CapturedAt time.Time
	Width      int
	Height     int
	Format     FrameFormat
	Data       []byte
}
