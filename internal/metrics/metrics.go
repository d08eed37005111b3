package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "edgeagent"

// Metrics groups the agent's Prometheus collectors.
type Metrics struct {
	FramesProcessed      prometheus.Counter
	FramesSkipped        prometheus.Counter
	Detections           *prometheus.CounterVec
	Records              *prometheus.CounterVec
	RecordsDropped       prometheus.Counter
	MessagesSent         prometheus.Counter
	SendRejected         prometheus.Counter
	Confirmations        *prometheus.CounterVec
	UnknownConfirmations prometheus.Counter
	PendingDeliveries    prometheus.Gauge
	DeliveryLatency      prometheus.Histogram
	JournalFlushed       prometheus.Counter
	TransportQueueDepth  prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "frames_processed_total",
			Help: "Frames that went through detection and aggregation.",
		}),
		FramesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "frames_skipped_total",
			Help: "Frames dropped because the detector failed on them.",
		}),
		Detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "detections_total",
			Help: "Detections above the confidence threshold, by category.",
		}, []string{"category"}),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "records_total",
			Help: "Telemetry records emitted by the aggregator, by policy.",
		}, []string{"policy"}),
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "records_dropped_total",
			Help: "Detections discarded by the per-frame record cap.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "delivery", Name: "sent_total",
			Help: "Messages handed to the transport.",
		}),
		SendRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "delivery", Name: "rejected_total",
			Help: "Sends the transport refused synchronously.",
		}),
		Confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "delivery", Name: "confirmations_total",
			Help: "Settled deliveries, by status.",
		}, []string{"status"}),
		UnknownConfirmations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "delivery", Name: "unknown_confirmations_total",
			Help: "Confirmations for contexts that were not pending.",
		}),
		PendingDeliveries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "delivery", Name: "pending",
			Help: "Sends awaiting confirmation.",
		}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "delivery", Name: "latency_seconds",
			Help:    "Time from dispatch to confirmation.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		JournalFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "journal", Name: "flushed_total",
			Help: "Deliveries written to the journal.",
		}),
		TransportQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "transport", Name: "queue_depth",
			Help: "Sends queued in the transport, not yet published.",
		}),
	}

	reg.MustRegister(
		m.FramesProcessed,
		m.FramesSkipped,
		m.Detections,
		m.Records,
		m.RecordsDropped,
		m.MessagesSent,
		m.SendRejected,
		m.Confirmations,
		m.UnknownConfirmations,
		m.PendingDeliveries,
		m.DeliveryLatency,
		m.JournalFlushed,
		m.TransportQueueDepth,
	)
	return m
}

// NewUnregistered creates collectors that are not exposed anywhere. Used by tests and tools.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
