// Package dispatch runs the frame loop: capture, detect, filter, aggregate,
// build and hand each message to the transport without waiting for delivery.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"edgeagent/internal/dto"
	"edgeagent/internal/logger"
	"edgeagent/internal/metrics"
	"edgeagent/internal/model"
	"edgeagent/internal/service/aggregate"
	"edgeagent/internal/service/transport"
)

// ErrCapture wraps the error that made the frame source give up.
var ErrCapture = errors.New("capture failed")

const defaultStatsInterval = 5 * time.Second

// FrameSource produces frames in capture order.
type FrameSource interface {
	Capture(ctx context.Context) (*model.Frame, error)
}

// Detector runs inference on one frame.
type Detector interface {
	Detect(frame *model.Frame) ([]model.RawDetection, error)
}

// Filter drops low-confidence detections and classifies the rest.
type Filter interface {
	Filter(raw []model.RawDetection) []model.Detection
}

// Builder turns a telemetry record into an outbound message.
type Builder interface {
	Build(record model.TelemetryRecord) (*dto.Message, error)
}

// Tracker allocates delivery contexts.
type Tracker interface {
	BeginSend(msg *dto.Message, channel string) uint64
	Reject(ctx uint64, err error)
	Counters() model.DeliveryCounters
}

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Source     FrameSource
	Detector   Detector
	Filter     Filter
	Aggregator aggregate.Aggregator
	Builder    Builder
	Tracker    Tracker
	Client     transport.Client
	OnConfirm  transport.ConfirmFunc
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
}

// Dispatcher owns the producer loop. Everything except the tracker and the
// transport is touched from the Run goroutine only.
type Dispatcher struct {
	Deps
	channel       string
	statsInterval time.Duration
	now           func() time.Time

	frames  uint64
	skipped uint64
	records uint64
	dropped uint64
}

// New creates a Dispatcher that sends on channel.
func New(deps Deps, channel string) *Dispatcher {
	return &Dispatcher{
		Deps:          deps,
		channel:       channel,
		statsInterval: defaultStatsInterval,
		now:           time.Now,
	}
}

// Run processes frames until ctx is cancelled or the source ends. End of
// stream and cancellation return nil; any other capture error is returned
// wrapped in ErrCapture. Pending sends are not awaited.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.Logger.Info("Dispatcher started: policy=%s channel=%s", d.Aggregator.Policy(), d.channel)
	lastStats := d.now()

	for {
		if ctx.Err() != nil {
			d.logStats()
			return nil
		}

		frame, err := d.Source.Capture(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				d.logStats()
				return nil
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				d.Logger.Info("Frame source ended after %d frames", d.frames)
				d.logStats()
				return nil
			default:
				d.Logger.Error("Capture failed: %v", err)
				d.logStats()
				return fmt.Errorf("%w: %v", ErrCapture, err)
			}
		}

		now := d.now()
		d.ProcessFrame(now, frame)

		if now.Sub(lastStats) >= d.statsInterval {
			d.logStats()
			lastStats = now
		}
	}
}

// ProcessFrame runs one frame through the pipeline and returns the number of
// messages handed to the transport. A detector error skips the frame; it is
// not counted by the aggregator.
func (d *Dispatcher) ProcessFrame(now time.Time, frame *model.Frame) int {
	raw, err := d.Detector.Detect(frame)
	if err != nil {
		d.skipped++
		d.Metrics.FramesSkipped.Inc()
		d.Logger.Warning("Skipping frame %d from %s: %v", frame.Seq, frame.Source, err)
		return 0
	}

	detections := d.Filter.Filter(raw)
	for _, det := range detections {
		d.Metrics.Detections.WithLabelValues(string(det.Category)).Inc()
		if frame.Width > 0 && frame.Height > 0 {
			r := det.Box.Scale(frame.Width, frame.Height)
			d.Logger.Debug("Frame %d: %s (class %d) %.2f at (%d,%d)-(%d,%d)",
				frame.Seq, det.Category, det.ClassID, det.Score, r.Min.X, r.Min.Y, r.Max.X, r.Max.Y)
		}
	}

	records := d.Aggregator.Update(now, detections)
	d.frames++
	d.Metrics.FramesProcessed.Inc()
	d.countDropped()

	sent := 0
	for _, record := range records {
		d.records++
		d.Metrics.Records.WithLabelValues(string(d.Aggregator.Policy())).Inc()
		if d.dispatch(record) {
			sent++
		}
	}
	return sent
}

// dispatch builds the message for record and starts its send.
func (d *Dispatcher) dispatch(record model.TelemetryRecord) bool {
	msg, err := d.Builder.Build(record)
	if err != nil {
		d.Logger.Error("Failed to build %s message: %v", record.Kind, err)
		return false
	}

	ctx := d.Tracker.BeginSend(msg, d.channel)
	d.Logger.Info("Sending message [%d]: %s", ctx, msg.Payload)
	if err := d.Client.SendAsync(d.channel, msg, d.OnConfirm, ctx); err != nil {
		d.Tracker.Reject(ctx, err)
		return false
	}
	return true
}

// countDropped mirrors the immediate aggregator's cap counter into metrics.
func (d *Dispatcher) countDropped() {
	capped, ok := d.Aggregator.(interface{ Dropped() uint64 })
	if !ok {
		return
	}
	if n := capped.Dropped(); n > d.dropped {
		d.Metrics.RecordsDropped.Add(float64(n - d.dropped))
		d.dropped = n
	}
}

func (d *Dispatcher) logStats() {
	c := d.Tracker.Counters()
	d.Logger.Info("Pipeline stats: frames=%d skipped=%d records=%d sent=%d confirmed=%d failed=%d rejected=%d expired=%d",
		d.frames, d.skipped, d.records, c.Sent, c.Confirmed, c.Failed, c.Rejected, c.Expired)
}
