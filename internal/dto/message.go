package dto

import (
	"time"

	"edgeagent/internal/model"
)

// Message is one outbound telemetry message handed to a transport.
type Message struct {
	ID              string
	Payload         []byte
	Properties      map[string]string
	ContentType     string
	ContentEncoding string
	CreatedAt       time.Time
}

// Result is the transport-reported outcome delivered with a confirmation.
type Result struct {
	Status model.DeliveryStatus
	Detail string
}

// OK reports whether the message reached the sink.
func (r Result) OK() bool {
	return r.Status == model.StatusOK
}

func (r Result) String() string {
	if r.Detail == "" {
		return string(r.Status)
	}
	return string(r.Status) + " (" + r.Detail + ")"
}
