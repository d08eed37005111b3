package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"edgeagent/internal/model"
)

// isolate points Load at files that do not exist and clears the variables tests set.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, key := range []string{
		"DEVICE_ID", "REPORTING_POLICY", "CATEGORIES", "WINDOW_DURATION", "MESSAGE_TIMEOUT",
		"TRANSPORT", "MQTT_QOS", "OUTPUT_CHANNEL", "CONFIDENCE_THRESHOLD", "LOG_DEBUG",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load("", filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DeviceID != "myPythonDevice" {
		t.Errorf("Expected default device id, got %s", cfg.DeviceID)
	}
	if cfg.ReportingPolicy != PolicyImmediate {
		t.Errorf("Expected immediate policy, got %s", cfg.ReportingPolicy)
	}
	if cfg.ConfidenceThreshold != 0.3 || cfg.AlertThreshold != 0.5 {
		t.Errorf("Unexpected thresholds %v / %v", cfg.ConfidenceThreshold, cfg.AlertThreshold)
	}
	if cfg.MessageTimeout != 10*time.Second {
		t.Errorf("Expected 10s message timeout, got %v", cfg.MessageTimeout)
	}
	if cfg.MQTT.ClientID != "myPythonDevice/OpenCvModule" {
		t.Errorf("Unexpected derived client id %s", cfg.MQTT.ClientID)
	}
	if cfg.MQTT.TopicPrefix != "devices/myPythonDevice/modules/OpenCvModule/messages/events" {
		t.Errorf("Unexpected derived topic prefix %s", cfg.MQTT.TopicPrefix)
	}

	categories, err := cfg.CategoryMap()
	if err != nil {
		t.Fatalf("CategoryMap failed: %v", err)
	}
	if got := categories.Lookup(52); got != "banana" {
		t.Errorf("Expected class 52 to be banana, got %s", got)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := isolate(t)

	yamlPath := filepath.Join(dir, "agent.yaml")
	yamlData := `
device_id: yaml-device
reporting_policy: windowed
window_duration: 2s
categories:
  - class_id: 1
    name: person
transport: websocket
`
	if err := os.WriteFile(yamlPath, []byte(yamlData), 0644); err != nil {
		t.Fatalf("Failed to write yaml: %v", err)
	}
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("WINDOW_DURATION=1500\n"), 0644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	t.Setenv("DEVICE_ID", "env-device")
	// godotenv never overrides a variable that is set, even to "".
	os.Unsetenv("WINDOW_DURATION")

	cfg, err := Load(yamlPath, envPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DeviceID != "env-device" {
		t.Errorf("Expected env to override yaml, got %s", cfg.DeviceID)
	}
	if cfg.ReportingPolicy != PolicyWindowed {
		t.Errorf("Expected windowed policy from yaml, got %s", cfg.ReportingPolicy)
	}
	if cfg.WindowDuration != 1500*time.Millisecond {
		t.Errorf("Expected window of 1.5s from .env, got %v", cfg.WindowDuration)
	}
	if cfg.Transport != TransportWebsocket {
		t.Errorf("Expected websocket transport, got %s", cfg.Transport)
	}
	if len(cfg.Categories) != 1 || cfg.Categories[0].Name != "person" {
		t.Errorf("Expected yaml categories, got %+v", cfg.Categories)
	}
}

func TestLoad_CategoriesFromEnv(t *testing.T) {
	dir := isolate(t)
	t.Setenv("CATEGORIES", "1:person,3:car,8:car")

	cfg, err := Load("", filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	categories, _ := cfg.CategoryMap()
	if categories.Lookup(8) != "car" || categories.Lookup(52) != "other" {
		t.Errorf("Unexpected category mapping: %v", categories.Names())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty device", func(c *Config) { c.DeviceID = "" }},
		{"unknown policy", func(c *Config) { c.ReportingPolicy = "hourly" }},
		{"windowed without window", func(c *Config) { c.ReportingPolicy = PolicyWindowed; c.WindowDuration = 0 }},
		{"confidence of one", func(c *Config) { c.ConfidenceThreshold = 1 }},
		{"negative alert", func(c *Config) { c.AlertThreshold = -0.1 }},
		{"negative cap", func(c *Config) { c.MaxRecordsPerFrame = -1 }},
		{"reserved category", func(c *Config) { c.Categories = append(c.Categories, model.CategoryBinding{ClassID: 9, Name: "other"}) }},
		{"bad channel", func(c *Config) { c.OutputChannel = "temp output" }},
		{"unknown transport", func(c *Config) { c.Transport = "amqp" }},
		{"mqtt without broker", func(c *Config) { c.MQTT.Broker = "" }},
		{"qos 3", func(c *Config) { c.MQTT.QoS = 3 }},
		{"zero timeout", func(c *Config) { c.MessageTimeout = 0 }},
		{"negative ttl", func(c *Config) { c.PendingTTL = -time.Second }},
		{"no capture source", func(c *Config) { c.CaptureSource = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestValidate_FillsDefaults(t *testing.T) {
	cfg := Default()
	cfg.SendWorkers = 0
	cfg.SendQueueSize = 0
	cfg.JournalFlushInterval = 0

	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.SendWorkers != 1 || cfg.SendQueueSize != 256 {
		t.Errorf("Unexpected queue defaults %d/%d", cfg.SendWorkers, cfg.SendQueueSize)
	}
	if cfg.JournalFlushInterval != 30*time.Second {
		t.Errorf("Expected 30s flush interval, got %v", cfg.JournalFlushInterval)
	}
}
