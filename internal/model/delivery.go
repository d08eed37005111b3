package model

import "time"

// DeliveryStatus is the outcome of one dispatched message.
type DeliveryStatus string

const (
	StatusOK             DeliveryStatus = "OK"
	StatusError          DeliveryStatus = "ERROR"
	StatusMessageTimeout DeliveryStatus = "MESSAGE_TIMEOUT"
	StatusBecauseDestroy DeliveryStatus = "BECAUSE_DESTROY"
	StatusExpired        DeliveryStatus = "EXPIRED"
)

// PendingDelivery is one outstanding send, owned by the delivery tracker.
type PendingDelivery struct {
	Context      uint64            `json:"context"`
	MessageID    string            `json:"message_id"`
	Channel      string            `json:"channel"`
	Properties   map[string]string `json:"properties,omitempty"`
	DispatchedAt time.Time         `json:"dispatched_at"`
}

// Delivery is a settled send as kept in the delivery journal.
type Delivery struct {
	ID           int64             `json:"id"`
	Context      uint64            `json:"context"`
	MessageID    string            `json:"message_id"`
	Channel      string            `json:"channel"`
	Properties   map[string]string `json:"properties,omitempty"`
	Status       DeliveryStatus    `json:"status"`
	Detail       string            `json:"detail,omitempty"`
	DispatchedAt time.Time         `json:"dispatched_at"`
	SettledAt    time.Time         `json:"settled_at"`
}

// Latency is the time between dispatch and settlement.
func (d Delivery) Latency() time.Duration {
	return d.SettledAt.Sub(d.DispatchedAt)
}

// DeliveryCounters are process-lifetime totals. They never decrease.
type DeliveryCounters struct {
	Sent      uint64 `json:"sent"`
	Confirmed uint64 `json:"confirmed"`
	Failed    uint64 `json:"failed"`
	Rejected  uint64 `json:"rejected"`
	Expired   uint64 `json:"expired"`
	Unknown   uint64 `json:"unknown"`
}

// DeliveryStats summarizes the delivery journal.
type DeliveryStats struct {
	Total       int                    `json:"total"`
	PerStatus   map[DeliveryStatus]int `json:"per_status"`
	PerChannel  map[string]int         `json:"per_channel"`
	AvgLatency  time.Duration          `json:"avg_latency_ns"`
	LastSettled time.Time              `json:"last_settled"`
}
