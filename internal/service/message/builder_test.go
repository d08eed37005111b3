package message

import (
	"encoding/json"
	"testing"
	"time"

	"edgeagent/internal/model"
)

func TestBuild_ImmediatePayload(t *testing.T) {
	b := NewBuilder("myPythonDevice", "temperatureAlert", 0.5)

	msg, err := b.Build(model.TelemetryRecord{
		Kind:     model.RecordImmediate,
		ClassID:  3,
		Category: model.CategoryOther,
		Score:    0.42,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := `{"deviceId": "myPythonDevice", "objectId": 3.00, "detectionScore": 0.42}`
	if string(msg.Payload) != want {
		t.Errorf("Payload = %s, expected %s", msg.Payload, want)
	}
	if len(msg.Properties) != 1 || msg.Properties["temperatureAlert"] != "false" {
		t.Errorf("Properties = %v, expected temperatureAlert=false", msg.Properties)
	}
	if msg.ContentType != ContentType || msg.ContentEncoding != ContentEncoding {
		t.Errorf("Unexpected content headers %q %q", msg.ContentType, msg.ContentEncoding)
	}
	if msg.ID == "" {
		t.Error("Expected a message id")
	}
	if !json.Valid(msg.Payload) {
		t.Errorf("Payload is not valid JSON: %s", msg.Payload)
	}
}

func TestBuild_AlertProperty(t *testing.T) {
	b := NewBuilder("dev", "temperatureAlert", 0.5)

	tests := []struct {
		score    float64
		expected string
	}{
		{0.31, "false"},
		{0.5, "false"},
		{0.51, "true"},
		{0.99, "true"},
	}
	for _, tt := range tests {
		msg, err := b.Build(model.TelemetryRecord{Kind: model.RecordImmediate, ClassID: 1, Score: tt.score})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got := msg.Properties["temperatureAlert"]; got != tt.expected {
			t.Errorf("score %v: temperatureAlert = %q, expected %q", tt.score, got, tt.expected)
		}
	}
}

func TestBuild_NoAlertProperty(t *testing.T) {
	b := NewBuilder("dev", "", 0.5)
	msg, err := b.Build(model.TelemetryRecord{Kind: model.RecordImmediate, ClassID: 1, Score: 0.9})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(msg.Properties) != 0 {
		t.Errorf("Expected empty properties, got %v", msg.Properties)
	}
}

func TestBuild_WindowedPayload(t *testing.T) {
	b := NewBuilder("dev", "temperatureAlert", 0.5)
	start := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

	msg, err := b.Build(model.TelemetryRecord{
		Kind:        model.RecordWindowed,
		CreatedAt:   start.Add(5 * time.Second),
		WindowStart: start,
		WindowEnd:   start.Add(5 * time.Second),
		FrameCount:  10,
		Averages: []model.CategoryAverage{
			{Category: "banana", Count: 2, Average: 0},
			{Category: "orange", Count: 30, Average: 3},
			{Category: model.CategoryOther, Count: 10, Average: 1},
		},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := `{"banana": 0, "orange": 3, "other": 1}`
	if string(msg.Payload) != want {
		t.Errorf("Payload = %s, expected %s", msg.Payload, want)
	}
	if len(msg.Properties) != 0 {
		t.Errorf("Expected no properties for windowed records, got %v", msg.Properties)
	}
	if !msg.CreatedAt.Equal(start.Add(5 * time.Second)) {
		t.Errorf("CreatedAt = %v", msg.CreatedAt)
	}
}

func TestBuild_EscapesStrings(t *testing.T) {
	b := NewBuilder(`cam "north"`, "alert", 0.5)
	msg, err := b.Build(model.TelemetryRecord{Kind: model.RecordImmediate, ClassID: 7, Score: 0.6})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var decoded struct {
		DeviceID string  `json:"deviceId"`
		ObjectID float64 `json:"objectId"`
	}
	if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
		t.Fatalf("Payload is not valid JSON: %v (%s)", err, msg.Payload)
	}
	if decoded.DeviceID != `cam "north"` || decoded.ObjectID != 7 {
		t.Errorf("Decoded %+v", decoded)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	b := NewBuilder("dev", "alert", 0.5)
	record := model.TelemetryRecord{Kind: model.RecordImmediate, ClassID: 52, Score: 0.777}

	first, _ := b.Build(record)
	second, _ := b.Build(record)
	if string(first.Payload) != string(second.Payload) {
		t.Errorf("Payloads differ: %s vs %s", first.Payload, second.Payload)
	}
	if first.ID == second.ID {
		t.Error("Expected distinct message ids")
	}
}

func TestBuild_UnknownKind(t *testing.T) {
	b := NewBuilder("dev", "alert", 0.5)
	if _, err := b.Build(model.TelemetryRecord{Kind: model.RecordKind(42)}); err == nil {
		t.Error("Expected error for unknown record kind")
	}
}
