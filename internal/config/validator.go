package config

import (
	"fmt"
	"regexp"
	"time"
)

var channelPattern = regexp.MustCompile(`^[A-Za-z0-9_\-.]+$`)

// Validate checks the configuration and fills derived defaults.
func Validate(cfg *Config) error {
	if cfg.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalid)
	}

	switch cfg.ReportingPolicy {
	case PolicyImmediate:
	case PolicyWindowed:
		if cfg.WindowDuration <= 0 {
			return fmt.Errorf("%w: window_duration must be > 0 for the windowed policy", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown reporting_policy %q (must be %q or %q)",
			ErrInvalid, cfg.ReportingPolicy, PolicyImmediate, PolicyWindowed)
	}

	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold >= 1 {
		return fmt.Errorf("%w: confidence_threshold must be in [0,1), got %v", ErrInvalid, cfg.ConfidenceThreshold)
	}
	if cfg.AlertThreshold < 0 || cfg.AlertThreshold > 1 {
		return fmt.Errorf("%w: alert_threshold must be in [0,1], got %v", ErrInvalid, cfg.AlertThreshold)
	}
	if cfg.MaxRecordsPerFrame < 0 {
		return fmt.Errorf("%w: max_records_per_frame must be >= 0", ErrInvalid)
	}
	if _, err := cfg.CategoryMap(); err != nil {
		return fmt.Errorf("%w: categories: %v", ErrInvalid, err)
	}

	if !channelPattern.MatchString(cfg.OutputChannel) {
		return fmt.Errorf("%w: output_channel %q must match %s", ErrInvalid, cfg.OutputChannel, channelPattern)
	}

	switch cfg.Transport {
	case TransportMQTT:
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("%w: mqtt.broker is required", ErrInvalid)
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", ErrInvalid)
		}
	case TransportWebsocket:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalid, cfg.Transport)
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = fmt.Sprintf("%s/%s", cfg.DeviceID, cfg.ModuleID)
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = fmt.Sprintf("devices/%s/modules/%s/messages/events", cfg.DeviceID, cfg.ModuleID)
	}
	if cfg.MessageTimeout <= 0 {
		return fmt.Errorf("%w: message_timeout must be > 0", ErrInvalid)
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 256
	}
	if cfg.SendWorkers <= 0 {
		cfg.SendWorkers = 1
	}
	if cfg.PendingTTL < 0 {
		return fmt.Errorf("%w: pending_ttl must be >= 0", ErrInvalid)
	}

	if cfg.CaptureSource == "" {
		return fmt.Errorf("%w: capture_source is required", ErrInvalid)
	}
	if cfg.CameraNames == nil {
		cfg.CameraNames = map[string]string{}
	}
	if cfg.JournalFlushInterval <= 0 {
		cfg.JournalFlushInterval = 30 * time.Second
	}
	if cfg.JournalBufferLimit <= 0 {
		cfg.JournalBufferLimit = 1000
	}
	return nil
}
