package camera

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"edgeagent/internal/model"
)

// Camera reads BGR frames from a gocv capture device, video file or stream URL.
type Camera struct {
	source  string
	capture *gocv.VideoCapture
	mat     gocv.Mat
	live    bool
	seq     uint64
}

// Open opens source. A numeric source is a device index.
func Open(source string) (*Camera, error) {
	var device interface{} = source
	live := false
	if index, err := strconv.Atoi(source); err == nil {
		device = index
		live = true
	}

	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture source %s: %w", source, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("capture source %s is not available", source)
	}

	return &Camera{
		source:  source,
		capture: capture,
		mat:     gocv.NewMat(),
		live:    live,
	}, nil
}

// Capture returns the next frame. A file or stream that ends yields io.EOF.
func (c *Camera) Capture(ctx context.Context) (*model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := c.capture.Read(&c.mat); !ok {
		if c.live {
			return nil, fmt.Errorf("failed to read from device %s", c.source)
		}
		return nil, io.EOF
	}
	if c.mat.Empty() {
		return nil, fmt.Errorf("empty frame from %s", c.source)
	}

	c.seq++
	return &model.Frame{
		Seq:        c.seq,
		Source:     c.source,
		CapturedAt: time.Now(),
		Width:      c.mat.Cols(),
		Height:     c.mat.Rows(),
		Format:     model.FormatBGR,
		Data:       c.mat.ToBytes(),
	}, nil
}

// Close releases the device.
func (c *Camera) Close() error {
	c.mat.Close()
	return c.capture.Close()
}
