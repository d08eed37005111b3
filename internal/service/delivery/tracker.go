package delivery

import (
	"context"
	"sort"
	"sync"
	"time"

	"edgeagent/internal/dto"
	"edgeagent/internal/logger"
	"edgeagent/internal/metrics"
	"edgeagent/internal/model"
)

// Recorder receives every settled delivery. Implementations must not block.
type Recorder interface {
	Record(d model.Delivery)
}

// Tracker correlates dispatched messages with their asynchronous confirmations.
// BeginSend is called by the producer loop, OnConfirmation by transport goroutines.
type Tracker struct {
	mu       sync.Mutex
	next     uint64
	pending  map[uint64]model.PendingDelivery
	counters model.DeliveryCounters

	ttl      time.Duration
	recorder Recorder
	metrics  *metrics.Metrics
	logger   *logger.Logger
	now      func() time.Time
}

// NewTracker creates a Tracker. ttl > 0 lets Expire settle sends that were never
// confirmed; recorder may be nil.
func NewTracker(logger *logger.Logger, metrics *metrics.Metrics, recorder Recorder, ttl time.Duration) *Tracker {
	return &Tracker{
		pending:  make(map[uint64]model.PendingDelivery),
		ttl:      ttl,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// BeginSend allocates a fresh context for msg and records it as pending.
// Contexts start at 1 and are never reused.
func (t *Tracker) BeginSend(msg *dto.Message, channel string) uint64 {
	p := model.PendingDelivery{
		MessageID:    msg.ID,
		Channel:      channel,
		Properties:   copyProperties(msg.Properties),
		DispatchedAt: t.now(),
	}

	t.mu.Lock()
	t.next++
	p.Context = t.next
	t.pending[p.Context] = p
	t.counters.Sent++
	pending := len(t.pending)
	t.mu.Unlock()

	t.metrics.MessagesSent.Inc()
	t.metrics.PendingDeliveries.Set(float64(pending))
	return p.Context
}

// Confirm has the transport callback signature and forwards to OnConfirmation.
func (t *Tracker) Confirm(msg *dto.Message, result dto.Result, ctx uint64) {
	t.OnConfirmation(ctx, result)
}

// OnConfirmation settles the pending send for ctx. A context that is not
// pending (already settled, expired or never issued) is logged and ignored.
// It reports whether ctx was pending.
func (t *Tracker) OnConfirmation(ctx uint64, result dto.Result) bool {
	now := t.now()

	t.mu.Lock()
	p, ok := t.pending[ctx]
	if !ok {
		t.counters.Unknown++
		t.mu.Unlock()
		t.metrics.UnknownConfirmations.Inc()
		t.logger.Warning("Confirmation[%d] for unknown context, result = %s", ctx, result)
		return false
	}
	delete(t.pending, ctx)
	t.counters.Confirmed++
	if !result.OK() {
		t.counters.Failed++
	}
	confirmed := t.counters.Confirmed
	pending := len(t.pending)
	t.mu.Unlock()

	d := settle(p, result, now)
	t.metrics.Confirmations.WithLabelValues(string(result.Status)).Inc()
	t.metrics.PendingDeliveries.Set(float64(pending))
	t.metrics.DeliveryLatency.Observe(d.Latency().Seconds())

	if result.OK() {
		t.logger.Info("Confirmation[%d] received for message with result = %s", ctx, result)
	} else {
		t.logger.Warning("Confirmation[%d] received for message with result = %s", ctx, result)
	}
	t.logger.Info("    Properties: %v", p.Properties)
	t.logger.Info("    Total calls confirmed: %d", confirmed)

	t.record(d)
	return true
}

// Reject settles a send that the transport refused synchronously. It is not a confirmation.
func (t *Tracker) Reject(ctx uint64, err error) {
	now := t.now()

	t.mu.Lock()
	p, ok := t.pending[ctx]
	if !ok {
		t.mu.Unlock()
		t.logger.Warning("Reject for unknown context %d: %v", ctx, err)
		return
	}
	delete(t.pending, ctx)
	t.counters.Rejected++
	pending := len(t.pending)
	t.mu.Unlock()

	t.metrics.SendRejected.Inc()
	t.metrics.PendingDeliveries.Set(float64(pending))
	t.logger.Error("Send[%d] on %s rejected: %v", ctx, p.Channel, err)

	t.record(settle(p, dto.Result{Status: model.StatusError, Detail: err.Error()}, now))
}

// Expire settles every pending send older than the TTL and returns how many it settled.
// It does nothing when the tracker has no TTL.
func (t *Tracker) Expire(now time.Time) int {
	if t.ttl <= 0 {
		return 0
	}

	var expired []model.PendingDelivery
	t.mu.Lock()
	for ctx, p := range t.pending {
		if now.Sub(p.DispatchedAt) >= t.ttl {
			expired = append(expired, p)
			delete(t.pending, ctx)
		}
	}
	t.counters.Expired += uint64(len(expired))
	pending := len(t.pending)
	t.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}

	sort.Slice(expired, func(i, j int) bool { return expired[i].Context < expired[j].Context })
	t.metrics.PendingDeliveries.Set(float64(pending))
	for _, p := range expired {
		t.metrics.Confirmations.WithLabelValues(string(model.StatusExpired)).Inc()
		t.logger.Warning("Send[%d] on %s expired after %v without confirmation", p.Context, p.Channel, t.ttl)
		t.record(settle(p, dto.Result{Status: model.StatusExpired, Detail: "no confirmation within " + t.ttl.String()}, now))
	}
	return len(expired)
}

// Run sweeps expired sends every interval until ctx is done. It returns at once without a TTL.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if t.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.Expire(now)
		}
	}
}

// Counters returns a snapshot of the delivery totals.
func (t *Tracker) Counters() model.DeliveryCounters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters
}

// Pending returns the outstanding sends ordered by context.
func (t *Tracker) Pending() []model.PendingDelivery {
	t.mu.Lock()
	out := make([]model.PendingDelivery, 0, len(t.pending))
	for _, p := range t.pending {
		out = append(out, p)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Context < out[j].Context })
	return out
}

func (t *Tracker) record(d model.Delivery) {
	if t.recorder != nil {
		t.recorder.Record(d)
	}
}

func settle(p model.PendingDelivery, result dto.Result, now time.Time) model.Delivery {
	return model.Delivery{
		Context:      p.Context,
		MessageID:    p.MessageID,
		Channel:      p.Channel,
		Properties:   p.Properties,
		Status:       result.Status,
		Detail:       result.Detail,
		DispatchedAt: p.DispatchedAt,
		SettledAt:    now,
	}
}

func copyProperties(props map[string]string) map[string]string {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
