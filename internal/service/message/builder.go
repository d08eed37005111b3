package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"edgeagent/internal/dto"
	"edgeagent/internal/model"
)

const (
	ContentType     = "application/json"
	ContentEncoding = "utf-8"
)

// Builder renders telemetry records into outbound messages.
type Builder struct {
	deviceID       string
	alertProperty  string
	alertThreshold float64
	newID          func() string
}

// NewBuilder creates a Builder. A detection scoring above alertThreshold sets
// the alertProperty message property to "true".
func NewBuilder(deviceID, alertProperty string, alertThreshold float64) *Builder {
	return &Builder{
		deviceID:       deviceID,
		alertProperty:  alertProperty,
		alertThreshold: alertThreshold,
		newID:          func() string { return uuid.NewString() },
	}
}

// Build renders record into a message. Payload and properties depend only on the record.
func (b *Builder) Build(record model.TelemetryRecord) (*dto.Message, error) {
	var (
		payload    []byte
		properties map[string]string
		err        error
	)

	switch record.Kind {
	case model.RecordImmediate:
		payload, err = b.immediatePayload(record)
		properties = b.immediateProperties(record)
	case model.RecordWindowed:
		payload, err = windowedPayload(record)
		properties = map[string]string{}
	default:
		return nil, fmt.Errorf("unknown record kind %v", record.Kind)
	}
	if err != nil {
		return nil, err
	}

	return &dto.Message{
		ID:              b.newID(),
		Payload:         payload,
		Properties:      properties,
		ContentType:     ContentType,
		ContentEncoding: ContentEncoding,
		CreatedAt:       record.CreatedAt,
	}, nil
}

// immediatePayload renders {"deviceId": "...", "objectId": 3.00, "detectionScore": 0.42}.
func (b *Builder) immediatePayload(record model.TelemetryRecord) ([]byte, error) {
	deviceID, err := json.Marshal(b.deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode device id: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"deviceId": `)
	buf.Write(deviceID)
	buf.WriteString(`, "objectId": `)
	buf.WriteString(strconv.FormatFloat(float64(record.ClassID), 'f', 2, 64))
	buf.WriteString(`, "detectionScore": `)
	buf.WriteString(strconv.FormatFloat(record.Score, 'f', 2, 64))
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (b *Builder) immediateProperties(record model.TelemetryRecord) map[string]string {
	if b.alertProperty == "" {
		return map[string]string{}
	}
	return map[string]string{
		b.alertProperty: strconv.FormatBool(record.Score > b.alertThreshold),
	}
}

// windowedPayload renders {"banana": 0, "orange": 1, "other": 0} in category order.
func windowedPayload(record model.TelemetryRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, avg := range record.Averages {
		if i > 0 {
			buf.WriteString(", ")
		}
		key, err := json.Marshal(string(avg.Category))
		if err != nil {
			return nil, fmt.Errorf("failed to encode category %q: %w", avg.Category, err)
		}
		buf.Write(key)
		buf.WriteString(": ")
		buf.WriteString(strconv.Itoa(avg.Average))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
